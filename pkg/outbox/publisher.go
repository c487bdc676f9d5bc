package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/changeorders/pkg/repo"
)

type Publisher interface {
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (sequence int64, err error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

// Enqueue inserts msg using tx. Re-enqueueing an event id returns the
// sequence of the existing row.
func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (int64, error) {
	if err := validateMessage(table, msg); err != nil {
		return 0, err
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (aggregate_id, topic, payload, event_id, available_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		table.Sanitize(),
	)

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.AggregateID, msg.Topic, []byte(msg.Payload), msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return sequence, nil
}

func validateMessage(table pgx.Identifier, msg Message) error {
	switch {
	case len(table) == 0:
		return invalidMessage("table is required")
	case msg.AggregateID == uuid.Nil:
		return invalidMessage("aggregate_id is required")
	case msg.EventID == uuid.Nil:
		return invalidMessage("event_id is required")
	case msg.Topic == "":
		return invalidMessage("topic is required")
	case len(msg.Payload) == 0:
		return invalidMessage("payload is required")
	}
	return nil
}
