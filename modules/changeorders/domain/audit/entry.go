package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreated           Action = "created"
	ActionFieldUpdated      Action = "field_updated"
	ActionRecalculated      Action = "recalculated"
	ActionApproversAssigned Action = "approvers_assigned"
	ActionSubmitted         Action = "submitted"
	ActionStepApproved      Action = "step_approved"
	ActionStepRejected      Action = "step_rejected"
	ActionApproved          Action = "approved"
	ActionRejected          Action = "rejected"
	ActionCompleted         Action = "completed"
	ActionCancelled         Action = "cancelled"
	ActionReopened          Action = "reopened"
	ActionLineItemAdded     Action = "line_item_added"
	ActionLineItemUpdated   Action = "line_item_updated"
	ActionLineItemRemoved   Action = "line_item_removed"
)

// Entry is an immutable history record. Sequence orders entries of one
// request by insertion.
type Entry struct {
	ID              uuid.UUID       `json:"id"`
	Sequence        int64           `json:"sequence"`
	ChangeRequestID uuid.UUID       `json:"change_request_id"`
	ActorID         uuid.UUID       `json:"actor_id"`
	Action          Action          `json:"action"`
	Field           *string         `json:"field,omitempty"`
	OldValue        json.RawMessage `json:"old_value,omitempty"`
	NewValue        json.RawMessage `json:"new_value,omitempty"`
	Comment         *string         `json:"comment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Repository is append only.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*Entry, error)
}
