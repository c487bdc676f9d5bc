package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/recalc"
)

const maxTitleLength = 200

type Dependencies struct {
	UnitOfWork UnitOfWork
	Requests   changerequest.Repository
	Counter    changerequest.Counter
	Steps      approval.Repository
	Audit      audit.Repository
	Lines      costline.Repository
	Notifier   Notifier

	Numbering       NumberingOptions
	DefaultCurrency string
	PageSize        int
	MaxPageSize     int
	Now             func() time.Time
}

// ChangeOrderService is the public surface of the change order workflow.
// Every mutating call runs in a single transaction.
type ChangeOrderService struct {
	uow       UnitOfWork
	requests  changerequest.Repository
	lines     costline.Repository
	numbering *NumberingService
	audit     *AuditTrail
	chain     *ApprovalChain
	notifier  Notifier

	defaultCurrency string
	pageSize        int
	maxPageSize     int
	now             func() time.Time
}

func NewChangeOrderService(deps Dependencies) *ChangeOrderService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.DefaultCurrency == "" {
		deps.DefaultCurrency = money.USD
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 25
	}
	if deps.MaxPageSize < deps.PageSize {
		deps.MaxPageSize = deps.PageSize
	}
	trail := NewAuditTrail(deps.Audit, deps.Now)
	return &ChangeOrderService{
		uow:             deps.UnitOfWork,
		requests:        deps.Requests,
		lines:           deps.Lines,
		numbering:       NewNumberingService(deps.UnitOfWork, deps.Counter, deps.Numbering),
		audit:           trail,
		chain:           NewApprovalChain(deps.UnitOfWork, deps.Requests, deps.Steps, trail, deps.Notifier, deps.Now),
		notifier:        deps.Notifier,
		defaultCurrency: strings.ToUpper(deps.DefaultCurrency),
		pageSize:        deps.PageSize,
		maxPageSize:     deps.MaxPageSize,
		now:             deps.Now,
	}
}

func (s *ChangeOrderService) Numbering() *NumberingService {
	return s.numbering
}

type CreateParams struct {
	ScopeID       uuid.UUID
	Title         string
	Description   string
	Category      changerequest.Category
	Priority      changerequest.Priority
	Currency      string
	BaselineValue decimal.NullDecimal
	DeltaValue    decimal.NullDecimal
	DeltaSource   changerequest.DeltaSource
	BaselineDate  *time.Time
	DayImpact     *int
	ApproverIDs   []uuid.UUID
}

func (s *ChangeOrderService) newRequest(p CreateParams, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	f := fieldErrors{}
	if actorID == uuid.Nil {
		f.required("actor_id")
	}
	if p.ScopeID == uuid.Nil {
		f.required("scope_id")
	}
	title := strings.TrimSpace(p.Title)
	switch {
	case title == "":
		f.required("title")
	case len(title) > maxTitleLength:
		f.invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	if p.Category == "" {
		f.required("category")
	} else if _, err := changerequest.ParseCategory(string(p.Category)); err != nil {
		f.invalid("category", err.Error())
	}
	if p.Priority == "" {
		p.Priority = changerequest.PriorityMedium
	} else if _, err := changerequest.ParsePriority(string(p.Priority)); err != nil {
		f.invalid("priority", err.Error())
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if money.GetCurrency(currency) == nil {
		f.invalid("currency", fmt.Sprintf("unknown currency %q", currency))
	}
	if p.BaselineValue.Valid && p.BaselineValue.Decimal.IsNegative() {
		f.invalid("baseline_value", "must not be negative")
	}
	if p.DeltaSource == "" {
		p.DeltaSource = changerequest.DeltaSourceManual
	} else if _, err := changerequest.ParseDeltaSource(string(p.DeltaSource)); err != nil {
		f.invalid("delta_source", err.Error())
	}
	if p.DeltaSource == changerequest.DeltaSourceLineItems && p.DeltaValue.Valid {
		f.invalid("delta_value", "is derived from line items")
	}
	if err := f.err(); err != nil {
		return nil, err
	}
	if len(p.ApproverIDs) > 0 {
		if err := validateApprovers(p.ApproverIDs); err != nil {
			return nil, err
		}
	}

	delta := normalizeAmount(p.DeltaValue)
	if p.DeltaSource == changerequest.DeltaSourceLineItems {
		delta = decimal.NewNullDecimal(decimal.Zero)
	}
	var baselineDate *time.Time
	if p.BaselineDate != nil {
		d := recalc.Date(*p.BaselineDate)
		baselineDate = &d
	}

	now := s.now().UTC()
	cr := &changerequest.ChangeRequest{
		ID:            uuid.New(),
		ScopeID:       p.ScopeID,
		Title:         title,
		Description:   strings.TrimSpace(p.Description),
		Category:      p.Category,
		Priority:      p.Priority,
		Status:        changerequest.StatusDraft,
		Currency:      currency,
		BaselineValue: normalizeAmount(p.BaselineValue),
		DeltaValue:    delta,
		DeltaSource:   p.DeltaSource,
		BaselineDate:  baselineDate,
		DayImpact:     p.DayImpact,
		CreatedBy:     actorID,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	derived := recalc.Derive(derivationInputs(cr), recalc.Derived{})
	cr.RevisedValue = normalizeAmount(derived.RevisedValue)
	cr.RevisedDate = derived.RevisedDate
	return cr, nil
}

// Create persists a draft request with a freshly assigned number and, when
// approvers are given, its approval chain.
func (s *ChangeOrderService) Create(ctx context.Context, p CreateParams, actorID uuid.UUID) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "Create", attribute.String("scope.id", p.ScopeID.String()))
	defer func() { endSpan(span, err) }()

	draft, err := s.newRequest(p, actorID)
	if err != nil {
		return nil, err
	}

	cr, err = inTxResult(ctx, s.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		_, err := s.numbering.Assign(txCtx, draft.ScopeID, func(spCtx context.Context, number string) error {
			draft.Number = number
			return s.requests.Create(spCtx, draft)
		})
		if err != nil {
			return nil, err
		}
		if err := s.audit.Append(txCtx, AppendParams{
			RequestID: draft.ID,
			ActorID:   actorID,
			Action:    audit.ActionCreated,
			New: map[string]any{
				"number":         draft.Number,
				"title":          draft.Title,
				"status":         draft.Status,
				"baseline_value": amountValue(draft.BaselineValue),
				"delta_value":    amountValue(draft.DeltaValue),
				"revised_value":  amountValue(draft.RevisedValue),
			},
		}); err != nil {
			return nil, err
		}
		if len(p.ApproverIDs) > 0 {
			if err := s.chain.Materialize(txCtx, draft, p.ApproverIDs, actorID); err != nil {
				return nil, err
			}
		}
		return draft, nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	logWithFields(ctx, logrus.InfoLevel, "changeorders: change request created", logrus.Fields{
		"change_request_id": cr.ID.String(),
		"number":            cr.Number,
		"scope_id":          cr.ScopeID.String(),
	})
	return cr, nil
}

func validatePatch(p changerequest.Patch) error {
	f := fieldErrors{}
	if p.IsEmpty() {
		f.invalid("patch", "must change at least one field")
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		switch {
		case title == "":
			f.required("title")
		case len(title) > maxTitleLength:
			f.invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
		}
	}
	if p.Category != nil {
		if _, err := changerequest.ParseCategory(string(*p.Category)); err != nil {
			f.invalid("category", err.Error())
		}
	}
	if p.Priority != nil {
		if _, err := changerequest.ParsePriority(string(*p.Priority)); err != nil {
			f.invalid("priority", err.Error())
		}
	}
	if p.DeltaSource != nil {
		if _, err := changerequest.ParseDeltaSource(string(*p.DeltaSource)); err != nil {
			f.invalid("delta_source", err.Error())
		}
	}
	if p.Status != nil {
		if _, err := changerequest.ParseStatus(string(*p.Status)); err != nil {
			f.invalid("status", err.Error())
		}
	}
	if p.BaselineValue != nil && p.BaselineValue.Valid && p.BaselineValue.Decimal.IsNegative() {
		f.invalid("baseline_value", "must not be negative")
	}
	return f.err()
}

// Update applies patch to the request. Field edits are written before a
// status change carried by the same patch.
func (s *ChangeOrderService) Update(ctx context.Context, id uuid.UUID, patch changerequest.Patch, actorID uuid.UUID) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "Update", attribute.String("change_request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if actorID == uuid.Nil {
		return nil, validationError(requiredFields("actor_id"))
	}
	if err := validatePatch(patch); err != nil {
		return committed(ctx, s.uow, s.requests, id), err
	}

	var from changerequest.Status
	cr, err = inTxResult(ctx, s.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, err := s.requests.GetForUpdate(txCtx, id)
		if err != nil {
			return nil, err
		}
		from = cr.Status
		now := s.now().UTC()

		changed := false
		if patch.HasFieldChanges() {
			if !cr.Status.FieldsEditable() {
				return nil, invalidStateError("CO_NOT_EDITABLE", fmt.Sprintf("fields of a %s request cannot change", cr.Status))
			}
			if changed, err = s.applyFields(txCtx, cr, patch, actorID); err != nil {
				return nil, err
			}
		}

		var notes []Notification
		if patch.Status != nil && *patch.Status != cr.Status {
			if notes, err = s.transition(txCtx, cr, *patch.Status, actorID, "", now); err != nil {
				return nil, err
			}
			changed = true
		}
		if !changed {
			return cr, nil
		}

		cr.UpdatedAt = now
		if err := s.requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		for _, n := range notes {
			s.notifier.Notify(txCtx, n)
		}
		return cr, nil
	})
	if err != nil {
		return committed(ctx, s.uow, s.requests, id), mapStoreError(err)
	}
	if cr.Status != from {
		recordTransition(string(from), string(cr.Status))
	}
	return cr, nil
}

type fieldChange struct {
	field         string
	before, after any
}

func (s *ChangeOrderService) applyFields(ctx context.Context, cr *changerequest.ChangeRequest, p changerequest.Patch, actorID uuid.UUID) (bool, error) {
	var changes []fieldChange
	record := func(field string, before, after any) {
		changes = append(changes, fieldChange{field: field, before: before, after: after})
	}

	if p.Title != nil {
		if title := strings.TrimSpace(*p.Title); title != cr.Title {
			record("title", cr.Title, title)
			cr.Title = title
		}
	}
	if p.Description != nil {
		if description := strings.TrimSpace(*p.Description); description != cr.Description {
			record("description", cr.Description, description)
			cr.Description = description
		}
	}
	if p.Category != nil && *p.Category != cr.Category {
		record("category", cr.Category, *p.Category)
		cr.Category = *p.Category
	}
	if p.Priority != nil && *p.Priority != cr.Priority {
		record("priority", cr.Priority, *p.Priority)
		cr.Priority = *p.Priority
	}
	if p.BaselineValue != nil {
		if v := normalizeAmount(*p.BaselineValue); !sameAmount(v, cr.BaselineValue) {
			record("baseline_value", amountValue(cr.BaselineValue), amountValue(v))
			cr.BaselineValue = v
		}
	}
	if p.DeltaSource != nil && *p.DeltaSource != cr.DeltaSource {
		record("delta_source", cr.DeltaSource, *p.DeltaSource)
		cr.DeltaSource = *p.DeltaSource
	}
	if p.DeltaValue != nil {
		if cr.DeltaSource == changerequest.DeltaSourceLineItems {
			f := fieldErrors{}
			f.invalid("delta_value", "is derived from line items")
			return false, f.err()
		}
		if v := normalizeAmount(*p.DeltaValue); !sameAmount(v, cr.DeltaValue) {
			record("delta_value", amountValue(cr.DeltaValue), amountValue(v))
			cr.DeltaValue = v
		}
	}
	if p.BaselineDate != nil {
		var v *time.Time
		if *p.BaselineDate != nil {
			d := recalc.Date(**p.BaselineDate)
			v = &d
		}
		if !sameDate(v, cr.BaselineDate) {
			record("baseline_date", dateValue(cr.BaselineDate), dateValue(v))
			cr.BaselineDate = v
		}
	}
	if p.DayImpact != nil && !sameInt(*p.DayImpact, cr.DayImpact) {
		record("day_impact", intValue(cr.DayImpact), intValue(*p.DayImpact))
		cr.DayImpact = *p.DayImpact
	}

	for _, c := range changes {
		if err := s.audit.Append(ctx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionFieldUpdated,
			Field:     c.field,
			Old:       c.before,
			New:       c.after,
		}); err != nil {
			return false, err
		}
	}

	synced := false
	if p.DeltaSource != nil && cr.DeltaSource == changerequest.DeltaSourceLineItems {
		var err error
		if synced, err = s.syncDelta(ctx, cr, actorID); err != nil {
			return false, err
		}
	}
	rederived, err := s.rederive(ctx, cr, actorID)
	if err != nil {
		return false, err
	}
	return len(changes) > 0 || synced || rederived, nil
}

func derivationInputs(cr *changerequest.ChangeRequest) recalc.Inputs {
	return recalc.Inputs{
		BaselineValue: cr.BaselineValue,
		DeltaValue:    cr.DeltaValue,
		BaselineDate:  cr.BaselineDate,
		DayImpact:     cr.DayImpact,
	}
}

// rederive recomputes the revised value and date of cr and audits each one
// that moved. It reports whether anything changed.
func (s *ChangeOrderService) rederive(ctx context.Context, cr *changerequest.ChangeRequest, actorID uuid.UUID) (bool, error) {
	previous := recalc.Derived{RevisedValue: cr.RevisedValue, RevisedDate: cr.RevisedDate}
	next := recalc.Derive(derivationInputs(cr), previous)
	next.RevisedValue = normalizeAmount(next.RevisedValue)

	changed := false
	if !sameAmount(previous.RevisedValue, next.RevisedValue) {
		if err := s.audit.Append(ctx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionRecalculated,
			Field:     "revised_value",
			Old:       amountValue(previous.RevisedValue),
			New:       amountValue(next.RevisedValue),
		}); err != nil {
			return false, err
		}
		cr.RevisedValue = next.RevisedValue
		changed = true
	}
	if !sameDate(previous.RevisedDate, next.RevisedDate) {
		if err := s.audit.Append(ctx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionRecalculated,
			Field:     "revised_date",
			Old:       dateValue(previous.RevisedDate),
			New:       dateValue(next.RevisedDate),
		}); err != nil {
			return false, err
		}
		cr.RevisedDate = next.RevisedDate
		changed = true
	}
	return changed, nil
}

var statusActions = map[changerequest.Status]audit.Action{
	changerequest.StatusDraft:         audit.ActionReopened,
	changerequest.StatusPendingReview: audit.ActionSubmitted,
	changerequest.StatusApproved:      audit.ActionApproved,
	changerequest.StatusRejected:      audit.ActionRejected,
	changerequest.StatusCompleted:     audit.ActionCompleted,
	changerequest.StatusCancelled:     audit.ActionCancelled,
}

// transition moves cr to status to and returns the notifications owed for
// it. The caller persists cr.
func (s *ChangeOrderService) transition(ctx context.Context, cr *changerequest.ChangeRequest, to changerequest.Status, actorID uuid.UUID, reason string, now time.Time) ([]Notification, error) {
	from := cr.Status
	if !changerequest.CanTransition(from, to) {
		return nil, invalidStateError("CO_INVALID_TRANSITION", fmt.Sprintf("cannot move from %s to %s", from, to))
	}

	var notes []Notification
	switch to {
	case changerequest.StatusPendingReview:
		if cr.CurrentApproverID != nil {
			notes = append(notes, approvalRequested(cr, *cr.CurrentApproverID))
		}
	case changerequest.StatusApproved, changerequest.StatusRejected:
		if cr.HasChain() {
			return nil, invalidStateError("CO_CHAIN_GOVERNED", "the approval chain decides this request")
		}
		if to == changerequest.StatusRejected {
			cr.RejectionReason = optionalString(reason)
		}
	case changerequest.StatusCompleted:
	case changerequest.StatusCancelled:
		if err := s.chain.withdraw(ctx, cr, now); err != nil {
			return nil, err
		}
	case changerequest.StatusDraft:
		if err := s.chain.Reset(ctx, cr); err != nil {
			return nil, err
		}
		cr.RejectionReason = nil
	}

	cr.Status = to
	cr.StampLifecycle(to, now)
	if err := s.audit.Append(ctx, AppendParams{
		RequestID: cr.ID,
		ActorID:   actorID,
		Action:    statusActions[to],
		Field:     "status",
		Old:       from,
		New:       to,
		Comment:   reason,
	}); err != nil {
		return nil, err
	}

	switch to {
	case changerequest.StatusApproved, changerequest.StatusRejected:
		notes = append(notes, decisionReached(cr))
	case changerequest.StatusDraft, changerequest.StatusPendingReview,
		changerequest.StatusCompleted, changerequest.StatusCancelled:
	}
	return notes, nil
}

// Submit sends a draft into review. Submitting a request that is already
// under review changes nothing.
func (s *ChangeOrderService) Submit(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	status := changerequest.StatusPendingReview
	return s.Update(ctx, id, changerequest.Patch{Status: &status}, actorID)
}

func (s *ChangeOrderService) Decide(ctx context.Context, id, approverID uuid.UUID, decision approval.Decision, comment string, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.chain.RecordDecision(ctx, DecisionParams{
		RequestID:  id,
		ApproverID: approverID,
		Decision:   decision,
		Comment:    comment,
		ActorID:    actorID,
	})
}

// Reopen returns a rejected request to draft with a fresh approval chain.
func (s *ChangeOrderService) Reopen(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.moveTo(ctx, "Reopen", id, changerequest.StatusDraft, reason, actorID)
}

// Cancel withdraws a request that has not been decided yet.
func (s *ChangeOrderService) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.moveTo(ctx, "Cancel", id, changerequest.StatusCancelled, reason, actorID)
}

func (s *ChangeOrderService) moveTo(ctx context.Context, op string, id uuid.UUID, to changerequest.Status, reason string, actorID uuid.UUID) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, op, attribute.String("change_request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if actorID == uuid.Nil {
		return nil, validationError(requiredFields("actor_id"))
	}
	var from changerequest.Status
	cr, err = inTxResult(ctx, s.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, err := s.requests.GetForUpdate(txCtx, id)
		if err != nil {
			return nil, err
		}
		from = cr.Status
		now := s.now().UTC()
		notes, err := s.transition(txCtx, cr, to, actorID, strings.TrimSpace(reason), now)
		if err != nil {
			return nil, err
		}
		cr.UpdatedAt = now
		if err := s.requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		for _, n := range notes {
			s.notifier.Notify(txCtx, n)
		}
		return cr, nil
	})
	if err != nil {
		return committed(ctx, s.uow, s.requests, id), mapStoreError(err)
	}
	recordTransition(string(from), string(cr.Status))
	return cr, nil
}

// ReplaceApprovers swaps the approval chain of a draft request.
func (s *ChangeOrderService) ReplaceApprovers(ctx context.Context, id uuid.UUID, approvers []uuid.UUID, actorID uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.chain.ReplaceApprovers(ctx, id, approvers, actorID)
}

func (s *ChangeOrderService) GetByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	cr, err := inTxResult(ctx, s.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		return s.requests.GetByID(txCtx, id)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return cr, nil
}

type ListResult struct {
	Items  []*changerequest.ChangeRequest
	Total  int64
	Limit  int
	Offset int
}

// ListByScope pages through the requests of a scope, newest first. A zero
// limit means the configured page size.
func (s *ChangeOrderService) ListByScope(ctx context.Context, scopeID uuid.UUID, params changerequest.FindParams) (*ListResult, error) {
	f := fieldErrors{}
	if scopeID == uuid.Nil {
		f.required("scope_id")
	}
	if params.Offset < 0 {
		f.invalid("offset", "must not be negative")
	}
	if params.Limit < 0 {
		f.invalid("limit", "must not be negative")
	}
	for _, st := range params.Statuses {
		if _, err := changerequest.ParseStatus(string(st)); err != nil {
			f.invalid("status", err.Error())
		}
	}
	if err := f.err(); err != nil {
		return nil, err
	}
	switch {
	case params.Limit == 0:
		params.Limit = s.pageSize
	case params.Limit > s.maxPageSize:
		params.Limit = s.maxPageSize
	}

	res, err := inTxResult(ctx, s.uow, func(txCtx context.Context) (*ListResult, error) {
		items, err := s.requests.ListByScope(txCtx, scopeID, params)
		if err != nil {
			return nil, err
		}
		total, err := s.requests.CountByScope(txCtx, scopeID, params)
		if err != nil {
			return nil, err
		}
		return &ListResult{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return res, nil
}

// History returns the audit trail of a request in insertion order.
func (s *ChangeOrderService) History(ctx context.Context, id uuid.UUID) ([]*audit.Entry, error) {
	entries, err := inTxResult(ctx, s.uow, func(txCtx context.Context) ([]*audit.Entry, error) {
		if _, err := s.requests.GetByID(txCtx, id); err != nil {
			return nil, err
		}
		return s.audit.List(txCtx, id)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return entries, nil
}

func (s *ChangeOrderService) Steps(ctx context.Context, id uuid.UUID) ([]*approval.Step, error) {
	return s.chain.Steps(ctx, id)
}
