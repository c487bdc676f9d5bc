package outbox

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Relay polls an outbox table and hands unpublished rows to a Dispatcher.
// Delivery is at-least-once: a row is marked published only after Dispatch
// returns nil.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey    int64
	m          *metrics
	tableLabel string
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()

	label := TableLabel(table)
	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    advisoryLockKey("outbox:" + label),
		m:          getMetrics(),
		tableLabel: label,
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}
	r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
	return r.runLoop(ctx, r.pool)
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	for {
		conn, leader, err := r.acquireLeadership(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.opts.Logger.WithError(err).Warn("outbox: leader election failed")
		}

		if leader {
			r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
			r.opts.Logger.WithField("table", r.tableLabel).Info("outbox: relay became leader")

			err = r.runLoop(ctx, conn)
			r.releaseLeadership(conn)
			r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
			return err
		}

		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
	}
}

// acquireLeadership holds on to the connection when the advisory lock was
// taken; session locks are bound to it.
func (r *Relay) acquireLeadership(ctx context.Context) (*pgxpool.Conn, bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return conn, true, nil
}

func (r *Relay) releaseLeadership(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey); err != nil {
		r.opts.Logger.WithError(err).Warn("outbox: advisory unlock failed")
	}
	conn.Release()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Relay) runLoop(ctx context.Context, db querier) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, db); err != nil {
				r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if _, err := r.processOnce(ctx, db); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

// ProcessOnce claims and dispatches a single batch and reports how many rows
// were claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	return r.processOnce(ctx, r.pool)
}

type claimed struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	Topic       string
	Payload     []byte
	EventID     uuid.UUID
	Sequence    int64
	Attempts    int
}

func (c claimed) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":        table,
		"topic":        c.Topic,
		"event_id":     c.EventID.String(),
		"aggregate_id": c.AggregateID.String(),
		"sequence":     c.Sequence,
		"attempts":     c.Attempts,
	}
}

func (r *Relay) processOnce(ctx context.Context, db querier) (int, error) {
	now := time.Now()
	batch, err := r.claim(ctx, db, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return 0, err
	}

	for _, c := range batch {
		err := r.dispatch(ctx, c)
		outcome := r.classify(c, err)
		if settleErr := r.settle(ctx, db, c, outcome, err); settleErr != nil {
			r.opts.Logger.WithError(settleErr).WithFields(c.fields(r.tableLabel)).Warnf("outbox: %s failed", outcome)
		}
		if err != nil {
			r.opts.Logger.WithError(err).WithFields(c.fields(r.tableLabel)).Warn("outbox: dispatch failed")
		}
	}
	return len(batch), nil
}

func (r *Relay) dispatch(ctx context.Context, c claimed) error {
	dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	defer cancel()

	start := time.Now()
	err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
		Meta: Meta{
			Table:       r.table,
			AggregateID: c.AggregateID,
			Topic:       c.Topic,
			EventID:     c.EventID,
			Sequence:    c.Sequence,
			Attempts:    c.Attempts,
		},
		Payload: c.Payload,
	})

	result := "success"
	if err != nil {
		result = "failure"
	}
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, c.Topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, c.Topic, result).Observe(time.Since(start).Seconds())
	return err
}

type outcome string

const (
	outcomeAck  outcome = "ack"
	outcomeNack outcome = "nack"
	outcomeDead outcome = "dead"
)

func (r *Relay) classify(c claimed, err error) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case c.Attempts >= r.opts.MaxAttempts:
		return outcomeDead
	default:
		return outcomeNack
	}
}

// claim locks up to BatchSize due rows in one statement and bumps their
// attempt counters. Rows come back in publish order.
func (r *Relay) claim(ctx context.Context, db querier, now, lockCutoff time.Time) ([]claimed, error) {
	q := fmt.Sprintf(
		`WITH picked AS (
		   SELECT id
		     FROM %[1]s
		    WHERE published_at IS NULL
		      AND available_at <= $1
		      AND attempts < $2
		      AND (locked_at IS NULL OR locked_at < $3)
		    ORDER BY available_at, sequence
		    LIMIT $4
		    FOR UPDATE SKIP LOCKED
		 )
		 UPDATE %[1]s o
		    SET locked_at = $1,
		        attempts = o.attempts + 1
		   FROM picked
		  WHERE o.id = picked.id
		 RETURNING o.id, o.aggregate_id, o.topic, o.payload, o.event_id, o.sequence, o.attempts`,
		r.table.Sanitize(),
	)
	rows, err := db.Query(ctx, q, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	defer rows.Close()

	var items []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.AggregateID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Sequence < items[j].Sequence })
	return items, nil
}

func (r *Relay) settle(ctx context.Context, db querier, c claimed, o outcome, dispatchErr error) error {
	tableName := r.table.Sanitize()

	var (
		q    string
		args []any
	)
	switch o {
	case outcomeAck:
		q = fmt.Sprintf(
			`UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL
			  WHERE id = $1 AND published_at IS NULL`, tableName)
		args = []any{c.ID}
	case outcomeNack:
		q = fmt.Sprintf(
			`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3
			  WHERE id = $1 AND published_at IS NULL`, tableName)
		args = []any{c.ID, truncateError(dispatchErr, r.opts.LastErrorMaxLen), nextAttemptAt(time.Now(), c.Attempts, r.opts)}
	case outcomeDead:
		r.m.deadTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
		q = fmt.Sprintf(
			`UPDATE %s SET locked_at = NULL, last_error = $2
			  WHERE id = $1 AND published_at IS NULL`, tableName)
		args = []any{c.ID, truncateError(dispatchErr, r.opts.LastErrorMaxLen)}
	default:
		return fmt.Errorf("outbox: unknown outcome %q", o)
	}

	if _, err := db.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("outbox %s: %w", o, err)
	}
	return nil
}

func (r *Relay) observeQueueDepth(ctx context.Context, db querier) error {
	q := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s
		  WHERE published_at IS NULL`,
		r.table.Sanitize(),
	)
	var pending, locked int64
	if err := db.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return fmt.Errorf("outbox queue depth: %w", err)
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	r.m.locked.WithLabelValues(r.tableLabel).Set(float64(locked))
	return nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
