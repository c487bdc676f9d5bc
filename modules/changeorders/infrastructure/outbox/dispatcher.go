package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/events"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

// Dispatcher decodes relayed outbox rows and republishes them on the event
// bus, where the notification sinks are subscribed.
type Dispatcher struct {
	bus eventbus.EventBus
}

func NewDispatcher(bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d == nil || d.bus == nil {
		return fmt.Errorf("changeorders outbox dispatcher: bus is nil")
	}

	switch msg.Meta.Topic {
	case events.TopicNotificationRequestedV1:
	default:
		return fmt.Errorf("changeorders outbox dispatcher: unsupported topic %q", msg.Meta.Topic)
	}

	var ev events.NotificationRequestedV1
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("changeorders outbox dispatcher: decode payload: %w", err)
	}
	if ev.EventVersion != events.EventVersionV1 {
		return fmt.Errorf("changeorders outbox dispatcher: unsupported event version %d", ev.EventVersion)
	}
	return d.bus.PublishE(&msg.Meta, &ev)
}
