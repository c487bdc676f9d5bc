// Package notifications delivers notification events to their final
// destination.
package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/events"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

// Sink stores or forwards one notification. Deliver must be idempotent on the
// event id: the outbox relay delivers at least once.
type Sink interface {
	Deliver(ctx context.Context, ev *events.NotificationRequestedV1) error
}

// InboxSink writes notifications to the notifications table.
type InboxSink struct {
	pool *pgxpool.Pool
}

func NewInboxSink(pool *pgxpool.Pool) *InboxSink {
	return &InboxSink{pool: pool}
}

const insertNotificationQuery = `
INSERT INTO notifications (event_id, user_id, title, message, category, related_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING`

func (s *InboxSink) Deliver(ctx context.Context, ev *events.NotificationRequestedV1) error {
	if s.pool == nil {
		return errors.New("notifications: inbox pool is nil")
	}
	createdAt := ev.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, insertNotificationQuery,
		ev.EventID, ev.UserID, ev.Title, ev.Message, ev.Category, ev.RelatedID, createdAt.UTC(),
	)
	return err
}

// LogSink writes notifications to the log.
type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "notifications")}
}

func (s *LogSink) Deliver(_ context.Context, ev *events.NotificationRequestedV1) error {
	s.logger.WithFields(logrus.Fields{
		"event_id":   ev.EventID.String(),
		"user_id":    ev.UserID.String(),
		"category":   ev.Category,
		"related_id": ev.RelatedID.String(),
	}).Info(ev.Title)
	return nil
}

// MemorySink keeps delivered notifications in memory, deduplicated by event id.
type MemorySink struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	received []events.NotificationRequestedV1
}

func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

func (s *MemorySink) Deliver(_ context.Context, ev *events.NotificationRequestedV1) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ev.EventID.String()
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	s.received = append(s.received, *ev)
	return nil
}

func (s *MemorySink) Received() []events.NotificationRequestedV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.NotificationRequestedV1(nil), s.received...)
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, ev *events.NotificationRequestedV1) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe routes notification events published on bus to sink. Each
// delivery gets its own timeout since bus handlers carry no context.
func Subscribe(bus eventbus.EventBus, sink Sink, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bus.Subscribe(func(_ *outbox.Meta, ev *events.NotificationRequestedV1) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sink.Deliver(ctx, ev)
	})
}
