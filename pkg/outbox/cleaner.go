package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner prunes published rows, and optionally dead rows, past retention.
type Cleaner struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	opts       CleanerOptions
	tableLabel string
	m          *metrics
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if opts.DeadRetention > 0 && opts.DeadAttemptsThreshold <= 0 {
		return nil, invalidConfig("dead retention requires DeadAttemptsThreshold > 0")
	}
	opts.setDefaults()
	return &Cleaner{
		pool:       pool,
		table:      table,
		opts:       opts,
		tableLabel: TableLabel(table),
		m:          getMetrics(),
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := c.CleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", c.tableLabel).Warn("outbox: cleaner tick failed")
		}
	}
}

// CleanOnce deletes expired rows and returns how many were removed.
func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	now := time.Now()
	tableName := c.table.Sanitize()

	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, tableName),
		now.Add(-c.opts.Retention),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox cleaner delete published: %w", err)
	}
	removed := tag.RowsAffected()

	if c.opts.DeadRetention > 0 {
		tag, err := c.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s
			  WHERE published_at IS NULL
			    AND attempts >= $1
			    AND created_at < $2`, tableName),
			c.opts.DeadAttemptsThreshold, now.Add(-c.opts.DeadRetention),
		)
		if err != nil {
			return removed, fmt.Errorf("outbox cleaner delete dead: %w", err)
		}
		removed += tag.RowsAffected()
	}

	c.m.cleanedTotal.WithLabelValues(c.tableLabel).Add(float64(removed))
	return removed, nil
}
