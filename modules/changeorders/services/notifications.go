package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/events"
	"github.com/iota-uz/changeorders/pkg/composables"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

const (
	CategoryApprovalRequest = "approval_request"
	CategoryDecision        = "decision"
)

type Notification struct {
	UserID    uuid.UUID
	Title     string
	Message   string
	Category  string
	RelatedID uuid.UUID
}

// Notifier is best effort: failures are handled inside Notify and never
// reach the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

func notificationEvent(n Notification, now time.Time) events.NotificationRequestedV1 {
	return events.NotificationRequestedV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		OccurredAt:   now.UTC(),
		UserID:       n.UserID,
		Title:        n.Title,
		Message:      n.Message,
		Category:     n.Category,
		RelatedID:    n.RelatedID,
	}
}

func logNotificationFailure(ctx context.Context, channel string, n Notification, err error) {
	recordNotificationFailure(channel)
	logWithFields(ctx, logrus.WarnLevel, "changeorders: notification dropped", logrus.Fields{
		"channel":    channel,
		"user_id":    n.UserID.String(),
		"related_id": n.RelatedID.String(),
		"category":   n.Category,
		"error":      err.Error(),
	})
}

// OutboxNotifier writes notifications to the outbox table inside a savepoint
// of the caller's transaction, so they commit with the business change and a
// failed enqueue leaves that change intact.
type OutboxNotifier struct {
	uow       UnitOfWork
	publisher outbox.Publisher
	table     pgx.Identifier
	now       func() time.Time
}

func NewOutboxNotifier(uow UnitOfWork, publisher outbox.Publisher, table pgx.Identifier) *OutboxNotifier {
	return &OutboxNotifier{uow: uow, publisher: publisher, table: table, now: time.Now}
}

func (o *OutboxNotifier) Notify(ctx context.Context, n Notification) {
	err := o.uow.InSavepoint(ctx, func(spCtx context.Context) error {
		tx, err := composables.UseTx(spCtx)
		if err != nil {
			return err
		}
		evt := notificationEvent(n, o.now())
		payload, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		_, err = o.publisher.Enqueue(spCtx, tx, o.table, outbox.Message{
			AggregateID: n.RelatedID,
			Topic:       events.TopicNotificationRequestedV1,
			EventID:     evt.EventID,
			Payload:     payload,
		})
		return err
	})
	if err != nil {
		logNotificationFailure(ctx, "outbox", n, err)
	}
}

// DirectNotifier publishes notifications on the in-process event bus.
type DirectNotifier struct {
	bus eventbus.EventBus
	now func() time.Time
}

func NewDirectNotifier(bus eventbus.EventBus) *DirectNotifier {
	return &DirectNotifier{bus: bus, now: time.Now}
}

func (d *DirectNotifier) Notify(ctx context.Context, n Notification) {
	evt := notificationEvent(n, d.now())
	meta := outbox.Meta{
		AggregateID: n.RelatedID,
		Topic:       events.TopicNotificationRequestedV1,
		EventID:     evt.EventID,
	}
	if err := d.bus.PublishE(&meta, &evt); err != nil {
		logNotificationFailure(ctx, "direct", n, err)
	}
}

// FormatAmount renders v in currency using go-money, or "n/a" when unknown.
func FormatAmount(v decimal.NullDecimal, currency string) string {
	if !v.Valid {
		return "n/a"
	}
	c := money.GetCurrency(currency)
	if c == nil {
		return v.Decimal.StringFixed(2) + " " + currency
	}
	minor := v.Decimal.Shift(int32(c.Fraction)).RoundBank(0).IntPart()
	return money.New(minor, c.Code).Display()
}

func approvalRequested(cr *changerequest.ChangeRequest, approverID uuid.UUID) Notification {
	return Notification{
		UserID:    approverID,
		Title:     "Approval requested",
		Message:   fmt.Sprintf("%s %q is waiting for your approval (level %d).", cr.Number, cr.Title, cr.CurrentLevel),
		Category:  CategoryApprovalRequest,
		RelatedID: cr.ID,
	}
}

func decisionReached(cr *changerequest.ChangeRequest) Notification {
	n := Notification{UserID: cr.CreatedBy, Category: CategoryDecision, RelatedID: cr.ID}
	switch cr.Status {
	case changerequest.StatusApproved:
		n.Title = "Change request approved"
		n.Message = fmt.Sprintf("%s %q was approved. Revised value: %s.", cr.Number, cr.Title, FormatAmount(cr.RevisedValue, cr.Currency))
	case changerequest.StatusRejected:
		reason := "no reason given"
		if cr.RejectionReason != nil {
			reason = *cr.RejectionReason
		}
		n.Title = "Change request rejected"
		n.Message = fmt.Sprintf("%s %q was rejected: %s.", cr.Number, cr.Title, reason)
	case changerequest.StatusDraft, changerequest.StatusPendingReview,
		changerequest.StatusCompleted, changerequest.StatusCancelled:
		n.Title = "Change request updated"
		n.Message = fmt.Sprintf("%s %q is now %s.", cr.Number, cr.Title, cr.Status)
	}
	return n
}
