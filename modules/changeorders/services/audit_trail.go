package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
)

type AppendParams struct {
	RequestID uuid.UUID
	ActorID   uuid.UUID
	Action    audit.Action
	Field     string
	Old       any
	New       any
	Comment   string
}

// AuditTrail appends history entries and reads them back in insertion order.
type AuditTrail struct {
	repo audit.Repository
	now  func() time.Time
}

func NewAuditTrail(repo audit.Repository, now func() time.Time) *AuditTrail {
	if now == nil {
		now = time.Now
	}
	return &AuditTrail{repo: repo, now: now}
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (a *AuditTrail) Append(ctx context.Context, p AppendParams) error {
	oldValue, err := snapshot(p.Old)
	if err != nil {
		return err
	}
	newValue, err := snapshot(p.New)
	if err != nil {
		return err
	}
	return a.repo.Append(ctx, &audit.Entry{
		ID:              uuid.New(),
		ChangeRequestID: p.RequestID,
		ActorID:         p.ActorID,
		Action:          p.Action,
		Field:           optionalString(p.Field),
		OldValue:        oldValue,
		NewValue:        newValue,
		Comment:         optionalString(p.Comment),
		CreatedAt:       a.now().UTC(),
	})
}

func (a *AuditTrail) List(ctx context.Context, requestID uuid.UUID) ([]*audit.Entry, error) {
	return a.repo.ListByRequest(ctx, requestID)
}
