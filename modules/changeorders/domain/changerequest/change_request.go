package changerequest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChangeRequest struct {
	ID          uuid.UUID `json:"id"`
	ScopeID     uuid.UUID `json:"scope_id"`
	Number      string    `json:"number"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Currency    string    `json:"currency"`

	BaselineValue decimal.NullDecimal `json:"baseline_value"`
	DeltaValue    decimal.NullDecimal `json:"delta_value"`
	DeltaSource   DeltaSource         `json:"delta_source"`
	RevisedValue  decimal.NullDecimal `json:"revised_value"`
	BaselineDate  *time.Time          `json:"baseline_date,omitempty"`
	DayImpact     *int                `json:"day_impact,omitempty"`
	RevisedDate   *time.Time          `json:"revised_date,omitempty"`

	ApproverIDs       []uuid.UUID `json:"approver_ids"`
	CurrentLevel      int         `json:"current_level"`
	CurrentApproverID *uuid.UUID  `json:"current_approver_id,omitempty"`

	CreatedBy       uuid.UUID  `json:"created_by"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChain reports whether the request is governed by an approval chain.
func (cr *ChangeRequest) HasChain() bool {
	return len(cr.ApproverIDs) > 0
}

// StampLifecycle sets the timestamp belonging to status unless it was set
// before. It reports whether a timestamp was written.
func (cr *ChangeRequest) StampLifecycle(status Status, now time.Time) bool {
	var slot **time.Time
	switch status {
	case StatusPendingReview:
		slot = &cr.SubmittedAt
	case StatusApproved:
		slot = &cr.ApprovedAt
	case StatusRejected:
		slot = &cr.RejectedAt
	case StatusCompleted:
		slot = &cr.CompletedAt
	case StatusCancelled:
		slot = &cr.CancelledAt
	case StatusDraft:
		return false
	}
	if slot == nil || *slot != nil {
		return false
	}
	t := now
	*slot = &t
	return true
}

// Clone returns a deep copy.
func (cr *ChangeRequest) Clone() *ChangeRequest {
	if cr == nil {
		return nil
	}
	cp := *cr
	cp.BaselineDate = cloneTime(cr.BaselineDate)
	cp.RevisedDate = cloneTime(cr.RevisedDate)
	cp.SubmittedAt = cloneTime(cr.SubmittedAt)
	cp.ApprovedAt = cloneTime(cr.ApprovedAt)
	cp.RejectedAt = cloneTime(cr.RejectedAt)
	cp.CompletedAt = cloneTime(cr.CompletedAt)
	cp.CancelledAt = cloneTime(cr.CancelledAt)
	if cr.DayImpact != nil {
		v := *cr.DayImpact
		cp.DayImpact = &v
	}
	if cr.CurrentApproverID != nil {
		v := *cr.CurrentApproverID
		cp.CurrentApproverID = &v
	}
	if cr.RejectionReason != nil {
		v := *cr.RejectionReason
		cp.RejectionReason = &v
	}
	cp.ApproverIDs = append([]uuid.UUID(nil), cr.ApproverIDs...)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Patch enumerates the fields a caller may change through an update. A nil
// field is left untouched. The double pointers and NullDecimal fields carry an
// explicit clear.
type Patch struct {
	Title         *string
	Description   *string
	Category      *Category
	Priority      *Priority
	BaselineValue *decimal.NullDecimal
	DeltaValue    *decimal.NullDecimal
	DeltaSource   *DeltaSource
	BaselineDate  **time.Time
	DayImpact     **int
	Status        *Status
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Priority == nil &&
		p.BaselineValue == nil && p.DeltaValue == nil && p.DeltaSource == nil && p.BaselineDate == nil &&
		p.DayImpact == nil && p.Status == nil
}

// HasFieldChanges reports whether the patch touches anything besides status.
func (p Patch) HasFieldChanges() bool {
	q := p
	q.Status = nil
	return !q.IsEmpty()
}
