package dtos

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/constants"
)

type ChangeRequestResponse struct {
	ID                  string   `json:"id"`
	ScopeID             string   `json:"scope_id"`
	Number              string   `json:"number"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	Priority            string   `json:"priority"`
	Status              string   `json:"status"`
	Currency            string   `json:"currency"`
	BaselineValue       *string  `json:"baseline_value"`
	DeltaValue          *string  `json:"delta_value"`
	DeltaSource         string   `json:"delta_source"`
	RevisedValue        *string  `json:"revised_value"`
	RevisedValueDisplay string   `json:"revised_value_display"`
	BaselineDate        *string  `json:"baseline_date"`
	DayImpact           *int     `json:"day_impact"`
	RevisedDate         *string  `json:"revised_date"`
	ApproverIDs         []string `json:"approver_ids"`
	CurrentLevel        int      `json:"current_level"`
	CurrentApproverID   *string  `json:"current_approver_id"`
	CreatedBy           string   `json:"created_by"`
	SubmittedAt         *string  `json:"submitted_at"`
	ApprovedAt          *string  `json:"approved_at"`
	RejectedAt          *string  `json:"rejected_at"`
	CompletedAt         *string  `json:"completed_at"`
	CancelledAt         *string  `json:"cancelled_at"`
	RejectionReason     *string  `json:"rejection_reason"`
	Version             int64    `json:"version"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

func amount(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.StringFixed(2)
	return &s
}

func date(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(constants.DateFormat)
	return &s
}

func timestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func NewChangeRequestResponse(cr *changerequest.ChangeRequest) ChangeRequestResponse {
	approvers := make([]string, 0, len(cr.ApproverIDs))
	for _, id := range cr.ApproverIDs {
		approvers = append(approvers, id.String())
	}
	var current *string
	if cr.CurrentApproverID != nil {
		s := cr.CurrentApproverID.String()
		current = &s
	}
	return ChangeRequestResponse{
		ID:                  cr.ID.String(),
		ScopeID:             cr.ScopeID.String(),
		Number:              cr.Number,
		Title:               cr.Title,
		Description:         cr.Description,
		Category:            string(cr.Category),
		Priority:            string(cr.Priority),
		Status:              string(cr.Status),
		Currency:            cr.Currency,
		BaselineValue:       amount(cr.BaselineValue),
		DeltaValue:          amount(cr.DeltaValue),
		DeltaSource:         string(cr.DeltaSource),
		RevisedValue:        amount(cr.RevisedValue),
		RevisedValueDisplay: services.FormatAmount(cr.RevisedValue, cr.Currency),
		BaselineDate:        date(cr.BaselineDate),
		DayImpact:           cr.DayImpact,
		RevisedDate:         date(cr.RevisedDate),
		ApproverIDs:         approvers,
		CurrentLevel:        cr.CurrentLevel,
		CurrentApproverID:   current,
		CreatedBy:           cr.CreatedBy.String(),
		SubmittedAt:         timestamp(cr.SubmittedAt),
		ApprovedAt:          timestamp(cr.ApprovedAt),
		RejectedAt:          timestamp(cr.RejectedAt),
		CompletedAt:         timestamp(cr.CompletedAt),
		CancelledAt:         timestamp(cr.CancelledAt),
		RejectionReason:     cr.RejectionReason,
		Version:             cr.Version,
		CreatedAt:           cr.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           cr.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type ChangeRequestListResponse struct {
	Total  int64                   `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Items  []ChangeRequestResponse `json:"items"`
}

type StepResponse struct {
	ID         string  `json:"id"`
	Level      int     `json:"level"`
	ApproverID string  `json:"approver_id"`
	Status     string  `json:"status"`
	Comment    *string `json:"comment,omitempty"`
	DecidedAt  *string `json:"decided_at"`
}

func NewStepResponses(steps []*approval.Step) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, StepResponse{
			ID:         s.ID.String(),
			Level:      s.Level,
			ApproverID: s.ApproverID.String(),
			Status:     string(s.Status),
			Comment:    s.Comment,
			DecidedAt:  timestamp(s.DecidedAt),
		})
	}
	return out
}

type AuditEntryResponse struct {
	Sequence  int64           `json:"sequence"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Field     *string         `json:"field,omitempty"`
	OldValue  json.RawMessage `json:"old_value,omitempty"`
	NewValue  json.RawMessage `json:"new_value,omitempty"`
	Comment   *string         `json:"comment,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func NewAuditEntryResponses(entries []*audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			Sequence:  e.Sequence,
			ActorID:   e.ActorID.String(),
			Action:    string(e.Action),
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Comment:   e.Comment,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type LineItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitRate    string `json:"unit_rate"`
	Amount      string `json:"amount"`
}

func NewLineItemResponse(item *costline.LineItem) LineItemResponse {
	return LineItemResponse{
		ID:          item.ID.String(),
		Description: item.Description,
		Quantity:    item.Quantity.String(),
		UnitRate:    item.UnitRate.String(),
		Amount:      item.Amount.StringFixed(2),
	}
}

type LineItemsResponse struct {
	Items []LineItemResponse `json:"items"`
	Total string             `json:"total"`
}

// LineItemMutationResponse pairs the touched item with the recomputed request.
type LineItemMutationResponse struct {
	Item          *LineItemResponse     `json:"item,omitempty"`
	ChangeRequest ChangeRequestResponse `json:"change_request"`
}
