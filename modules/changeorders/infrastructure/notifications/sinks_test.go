package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/events"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

type sinkFunc func(ctx context.Context, ev *events.NotificationRequestedV1) error

func (f sinkFunc) Deliver(ctx context.Context, ev *events.NotificationRequestedV1) error {
	return f(ctx, ev)
}

func event() *events.NotificationRequestedV1 {
	return &events.NotificationRequestedV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		UserID:       uuid.New(),
		Title:        "Change request approved",
		Category:     "decision",
		RelatedID:    uuid.New(),
	}
}

func TestSubscribe_DeliversOncePerEvent(t *testing.T) {
	bus := eventbus.New(nil)
	sink := NewMemorySink()
	Subscribe(bus, sink, 0)

	ev := event()
	meta := &outbox.Meta{Topic: events.TopicNotificationRequestedV1, EventID: ev.EventID}
	require.NoError(t, bus.PublishE(meta, ev))
	require.NoError(t, bus.PublishE(meta, ev), "redelivery is absorbed")

	got := sink.Received()
	require.Len(t, got, 1)
	require.Equal(t, ev.UserID, got[0].UserID)
}

func TestSubscribe_PropagatesSinkErrors(t *testing.T) {
	bus := eventbus.New(nil)
	Subscribe(bus, sinkFunc(func(ctx context.Context, _ *events.NotificationRequestedV1) error {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return errors.New("inbox down")
	}), 0)

	err := bus.PublishE(&outbox.Meta{}, event())
	require.ErrorContains(t, err, "inbox down")
}

func TestFanoutAndLogSink(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	mem := NewMemorySink()
	failing := sinkFunc(func(context.Context, *events.NotificationRequestedV1) error { return errors.New("smtp down") })

	ev := event()
	err := Fanout{NewLogSink(logger), mem, failing}.Deliver(context.Background(), ev)
	require.ErrorContains(t, err, "smtp down")
	require.Len(t, mem.Received(), 1)
	require.Equal(t, "Change request approved", hook.LastEntry().Message)
	require.Equal(t, ev.EventID.String(), hook.LastEntry().Data["event_id"])
}

func TestInboxSink_RequiresPool(t *testing.T) {
	require.Error(t, NewInboxSink(nil).Deliver(context.Background(), event()))
}
