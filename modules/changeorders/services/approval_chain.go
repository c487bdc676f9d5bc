package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
)

// ApprovalChain owns the ordered approval steps of a request and its
// current approver pointer.
type ApprovalChain struct {
	uow      UnitOfWork
	requests changerequest.Repository
	steps    approval.Repository
	audit    *AuditTrail
	notifier Notifier
	now      func() time.Time
}

func NewApprovalChain(uow UnitOfWork, requests changerequest.Repository, steps approval.Repository, trail *AuditTrail, notifier Notifier, now func() time.Time) *ApprovalChain {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &ApprovalChain{uow: uow, requests: requests, steps: steps, audit: trail, notifier: notifier, now: now}
}

func validateApprovers(approvers []uuid.UUID) error {
	f := fieldErrors{}
	if len(approvers) == 0 {
		f.required("approver_ids")
		return f.err()
	}
	seen := make(map[uuid.UUID]struct{}, len(approvers))
	for _, id := range approvers {
		if id == uuid.Nil {
			f.invalid("approver_ids", "must not contain empty ids")
			break
		}
		if _, dup := seen[id]; dup {
			f.invalid("approver_ids", "must not contain duplicates")
			break
		}
		seen[id] = struct{}{}
	}
	return f.err()
}

// Materialize creates one step per approver, points the request at level 1
// and persists the request. Must run inside a transaction.
func (c *ApprovalChain) Materialize(ctx context.Context, cr *changerequest.ChangeRequest, approvers []uuid.UUID, actorID uuid.UUID) error {
	if err := validateApprovers(approvers); err != nil {
		return err
	}
	now := c.now().UTC()
	if err := c.steps.CreateMany(ctx, approval.BuildChain(cr.ID, approvers, now)); err != nil {
		return err
	}

	previous := cr.ApproverIDs
	cr.ApproverIDs = append([]uuid.UUID(nil), approvers...)
	cr.CurrentLevel = 1
	first := approvers[0]
	cr.CurrentApproverID = &first
	cr.UpdatedAt = now
	if err := c.requests.Update(ctx, cr); err != nil {
		return err
	}
	return c.audit.Append(ctx, AppendParams{
		RequestID: cr.ID,
		ActorID:   actorID,
		Action:    audit.ActionApproversAssigned,
		Field:     "approver_ids",
		Old:       previous,
		New:       cr.ApproverIDs,
	})
}

// ReplaceApprovers swaps the approver list of a draft request. An empty
// list removes the chain.
func (c *ApprovalChain) ReplaceApprovers(ctx context.Context, id uuid.UUID, approvers []uuid.UUID, actorID uuid.UUID) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "ReplaceApprovers", attribute.String("change_request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if actorID == uuid.Nil {
		return nil, validationError(requiredFields("actor_id"))
	}
	if len(approvers) > 0 {
		if err := validateApprovers(approvers); err != nil {
			return committed(ctx, c.uow, c.requests, id), err
		}
	}

	cr, err = inTxResult(ctx, c.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, err := c.requests.GetForUpdate(txCtx, id)
		if err != nil {
			return nil, err
		}
		if cr.Status != changerequest.StatusDraft {
			return nil, invalidStateError("CO_APPROVERS_FROZEN", fmt.Sprintf("approvers can only change while draft, request is %s", cr.Status))
		}
		if err := c.steps.DeleteByRequest(txCtx, cr.ID); err != nil {
			return nil, err
		}
		if len(approvers) > 0 {
			return cr, c.Materialize(txCtx, cr, approvers, actorID)
		}

		previous := cr.ApproverIDs
		cr.ApproverIDs = nil
		cr.CurrentLevel = 0
		cr.CurrentApproverID = nil
		cr.UpdatedAt = c.now().UTC()
		if err := c.requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		return cr, c.audit.Append(txCtx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionApproversAssigned,
			Field:     "approver_ids",
			Old:       previous,
			New:       []uuid.UUID{},
		})
	})
	if err != nil {
		return committed(ctx, c.uow, c.requests, id), mapStoreError(err)
	}
	return cr, nil
}

// Reset rebuilds the chain of cr from its approver list with level 1
// pending. The caller persists cr.
func (c *ApprovalChain) Reset(ctx context.Context, cr *changerequest.ChangeRequest) error {
	if err := c.steps.DeleteByRequest(ctx, cr.ID); err != nil {
		return err
	}
	cr.CurrentLevel = 0
	cr.CurrentApproverID = nil
	if !cr.HasChain() {
		return nil
	}
	if err := c.steps.CreateMany(ctx, approval.BuildChain(cr.ID, cr.ApproverIDs, c.now().UTC())); err != nil {
		return err
	}
	first := cr.ApproverIDs[0]
	cr.CurrentLevel = 1
	cr.CurrentApproverID = &first
	return nil
}

// withdraw cancels every undecided step of cr.
func (c *ApprovalChain) withdraw(ctx context.Context, cr *changerequest.ChangeRequest, now time.Time) error {
	if !cr.HasChain() || cr.CurrentLevel == 0 {
		return nil
	}
	step, err := c.steps.GetAtLevelForUpdate(ctx, cr.ID, cr.CurrentLevel)
	if err != nil && !errors.Is(err, approval.ErrNotFound) {
		return err
	}
	if step != nil && step.Status == approval.StepPending {
		step.Status = approval.StepCancelled
		step.UpdatedAt = now
		if err := c.steps.UpdateStatus(ctx, step, approval.StepPending); err != nil {
			return err
		}
	}
	_, err = c.steps.CancelQueued(ctx, cr.ID, now)
	cr.CurrentApproverID = nil
	return err
}

type DecisionParams struct {
	RequestID  uuid.UUID
	ApproverID uuid.UUID
	Decision   approval.Decision
	Comment    string
	ActorID    uuid.UUID
}

func (p DecisionParams) validate() error {
	f := fieldErrors{}
	if p.RequestID == uuid.Nil {
		f.required("id")
	}
	if p.ApproverID == uuid.Nil {
		f.required("approver_id")
	}
	if p.ActorID == uuid.Nil {
		f.required("actor_id")
	}
	if _, err := approval.ParseDecision(string(p.Decision)); err != nil {
		f.invalid("decision", "must be approve or reject")
	}
	return f.err()
}

// RecordDecision applies one approver's decision. The request row and the
// current step are locked and re-read inside the transaction, so of two
// concurrent decisions on the same step only one can succeed.
func (c *ApprovalChain) RecordDecision(ctx context.Context, p DecisionParams) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "RecordDecision",
		attribute.String("change_request.id", p.RequestID.String()),
		attribute.String("approval.decision", string(p.Decision)),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = string(KindOf(err))
		}
		recordDecision(string(p.Decision), result)
		endSpan(span, err)
	}()

	if err := p.validate(); err != nil {
		return committed(ctx, c.uow, c.requests, p.RequestID), err
	}

	cr, err = inTxResult(ctx, c.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, err := c.requests.GetForUpdate(txCtx, p.RequestID)
		if err != nil {
			return nil, err
		}
		if cr.Status != changerequest.StatusPendingReview {
			return nil, invalidStateError("CO_NOT_PENDING_REVIEW", fmt.Sprintf("request is %s, decisions need pending_review", cr.Status))
		}

		step, err := c.currentStep(txCtx, cr, p.ApproverID)
		if err != nil {
			return nil, err
		}

		now := c.now().UTC()
		step.Status = p.Decision.Outcome()
		step.DecidedAt = &now
		step.Comment = optionalString(p.Comment)
		step.UpdatedAt = now
		if err := c.steps.UpdateStatus(txCtx, step, approval.StepPending); err != nil {
			return nil, err
		}

		stepAction := audit.ActionStepApproved
		if p.Decision == approval.DecisionReject {
			stepAction = audit.ActionStepRejected
		}
		if err := c.audit.Append(txCtx, AppendParams{
			RequestID: cr.ID,
			ActorID:   p.ActorID,
			Action:    stepAction,
			Field:     "level",
			New:       map[string]any{"level": step.Level, "approver_id": step.ApproverID},
			Comment:   p.Comment,
		}); err != nil {
			return nil, err
		}

		var notes []Notification
		switch p.Decision {
		case approval.DecisionApprove:
			notes, err = c.advance(txCtx, cr, p.ActorID, now)
		case approval.DecisionReject:
			notes, err = c.reject(txCtx, cr, p.ActorID, p.Comment, now)
		}
		if err != nil {
			return nil, err
		}

		cr.UpdatedAt = now
		if err := c.requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		for _, n := range notes {
			c.notifier.Notify(txCtx, n)
		}
		return cr, nil
	})
	if err != nil {
		return committed(ctx, c.uow, c.requests, p.RequestID), mapStoreError(err)
	}
	if cr.Status != changerequest.StatusPendingReview {
		recordTransition(string(changerequest.StatusPendingReview), string(cr.Status))
	}

	logWithFields(ctx, logrus.InfoLevel, "changeorders: decision recorded", logrus.Fields{
		"change_request_id": cr.ID.String(),
		"approver_id":       p.ApproverID.String(),
		"decision":          string(p.Decision),
		"status":            string(cr.Status),
	})
	return cr, nil
}

// currentStep returns the pending step at the request's current level when
// it belongs to approverID, and explains why not otherwise.
func (c *ApprovalChain) currentStep(ctx context.Context, cr *changerequest.ChangeRequest, approverID uuid.UUID) (*approval.Step, error) {
	if cr.CurrentLevel > 0 {
		step, err := c.steps.GetAtLevelForUpdate(ctx, cr.ID, cr.CurrentLevel)
		if err != nil && !errors.Is(err, approval.ErrNotFound) {
			return nil, err
		}
		if step != nil && step.ApproverID == approverID && step.Status == approval.StepPending {
			return step, nil
		}
	}

	own, err := c.steps.FindByApprover(ctx, cr.ID, approverID)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			return nil, newServiceError(KindNotFound, "CO_APPROVER_NOT_IN_CHAIN", "approver is not part of this request's chain", err)
		}
		return nil, err
	}
	switch own.Status {
	case approval.StepQueued:
		return nil, invalidStateError("CO_OUT_OF_TURN", fmt.Sprintf("level %d has not been reached yet", own.Level))
	case approval.StepApproved, approval.StepRejected, approval.StepCancelled:
		return nil, invalidStateError("CO_ALREADY_DECIDED", fmt.Sprintf("step at level %d is already %s", own.Level, own.Status))
	case approval.StepPending:
	}
	return nil, invalidStateError("CO_CHAIN_INCONSISTENT", "pending step does not match the current level")
}

func (c *ApprovalChain) advance(ctx context.Context, cr *changerequest.ChangeRequest, actorID uuid.UUID, now time.Time) ([]Notification, error) {
	next, err := c.steps.GetAtLevelForUpdate(ctx, cr.ID, cr.CurrentLevel+1)
	switch {
	case err == nil:
		next.Status = approval.StepPending
		next.UpdatedAt = now
		if err := c.steps.UpdateStatus(ctx, next, approval.StepQueued); err != nil {
			return nil, err
		}
		cr.CurrentLevel = next.Level
		approverID := next.ApproverID
		cr.CurrentApproverID = &approverID
		return []Notification{approvalRequested(cr, approverID)}, nil
	case errors.Is(err, approval.ErrNotFound):
	default:
		return nil, err
	}

	from := cr.Status
	cr.Status = changerequest.StatusApproved
	cr.StampLifecycle(changerequest.StatusApproved, now)
	cr.CurrentApproverID = nil
	if err := c.audit.Append(ctx, AppendParams{
		RequestID: cr.ID,
		ActorID:   actorID,
		Action:    audit.ActionApproved,
		Field:     "status",
		Old:       from,
		New:       cr.Status,
	}); err != nil {
		return nil, err
	}
	return []Notification{decisionReached(cr)}, nil
}

func (c *ApprovalChain) reject(ctx context.Context, cr *changerequest.ChangeRequest, actorID uuid.UUID, reason string, now time.Time) ([]Notification, error) {
	if _, err := c.steps.CancelQueued(ctx, cr.ID, now); err != nil {
		return nil, err
	}
	from := cr.Status
	cr.Status = changerequest.StatusRejected
	cr.StampLifecycle(changerequest.StatusRejected, now)
	cr.RejectionReason = optionalString(reason)
	cr.CurrentApproverID = nil
	if err := c.audit.Append(ctx, AppendParams{
		RequestID: cr.ID,
		ActorID:   actorID,
		Action:    audit.ActionRejected,
		Field:     "status",
		Old:       from,
		New:       cr.Status,
		Comment:   reason,
	}); err != nil {
		return nil, err
	}
	return []Notification{decisionReached(cr)}, nil
}

// Steps returns the chain of a request ordered by level.
func (c *ApprovalChain) Steps(ctx context.Context, id uuid.UUID) ([]*approval.Step, error) {
	steps, err := inTxResult(ctx, c.uow, func(txCtx context.Context) ([]*approval.Step, error) {
		if _, err := c.requests.GetByID(txCtx, id); err != nil {
			return nil, err
		}
		return c.steps.ListByRequest(txCtx, id)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return steps, nil
}
