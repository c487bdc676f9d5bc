package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
)

type ApprovalStepRepository struct {
	store *Store
}

func NewApprovalStepRepository(store *Store) approval.Repository {
	return &ApprovalStepRepository{store: store}
}

// checkChain mirrors the storage constraints: unique level, unique approver
// and at most one pending step per request.
func checkChain(steps []*approval.Step) error {
	levels := make(map[int]struct{}, len(steps))
	approvers := make(map[uuid.UUID]struct{}, len(steps))
	pending := 0
	for _, s := range steps {
		if _, dup := levels[s.Level]; dup {
			return fmt.Errorf("level %d: %w", s.Level, approval.ErrStepTaken)
		}
		levels[s.Level] = struct{}{}
		if _, dup := approvers[s.ApproverID]; dup {
			return fmt.Errorf("approver %s: %w", s.ApproverID, approval.ErrStepTaken)
		}
		approvers[s.ApproverID] = struct{}{}
		if s.Status == approval.StepPending {
			pending++
		}
	}
	if pending > 1 {
		return fmt.Errorf("more than one pending step: %w", approval.ErrStepTaken)
	}
	return nil
}

func (r *ApprovalStepRepository) CreateMany(ctx context.Context, steps []*approval.Step) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	byRequest := make(map[uuid.UUID][]*approval.Step)
	for _, s := range steps {
		byRequest[s.ChangeRequestID] = append(byRequest[s.ChangeRequestID], s.Clone())
	}
	for requestID, added := range byRequest {
		if _, ok := st.requests[requestID]; !ok {
			return fmt.Errorf("memstore: change request %s does not exist", requestID)
		}
		merged := append(append([]*approval.Step(nil), st.steps[requestID]...), added...)
		if err := checkChain(merged); err != nil {
			return err
		}
		sortSteps(merged)
		st.steps[requestID] = merged
	}
	return nil
}

func sortSteps(steps []*approval.Step) {
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j].Level < steps[j-1].Level; j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}
}

func (r *ApprovalStepRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*approval.Step, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*approval.Step, 0, len(st.steps[requestID]))
	for _, s := range st.steps[requestID] {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (r *ApprovalStepRepository) GetAtLevelForUpdate(ctx context.Context, requestID uuid.UUID, level int) (*approval.Step, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range st.steps[requestID] {
		if s.Level == level {
			return s.Clone(), nil
		}
	}
	return nil, fmt.Errorf("level %d: %w", level, approval.ErrNotFound)
}

func (r *ApprovalStepRepository) FindByApprover(ctx context.Context, requestID, approverID uuid.UUID) (*approval.Step, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range st.steps[requestID] {
		if s.ApproverID == approverID {
			return s.Clone(), nil
		}
	}
	return nil, fmt.Errorf("approver %s: %w", approverID, approval.ErrNotFound)
}

func (r *ApprovalStepRepository) UpdateStatus(ctx context.Context, step *approval.Step, expected approval.StepStatus) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	steps := st.steps[step.ChangeRequestID]
	for i, s := range steps {
		if s.ID != step.ID {
			continue
		}
		if s.Status != expected {
			return fmt.Errorf("step %s is no longer %s: %w", step.ID, expected, approval.ErrStepTaken)
		}
		next := append([]*approval.Step(nil), steps...)
		updated := s.Clone()
		updated.Status = step.Status
		updated.DecidedAt = step.DecidedAt
		updated.Comment = step.Comment
		updated.UpdatedAt = step.UpdatedAt
		next[i] = updated
		if err := checkChain(next); err != nil {
			return err
		}
		st.steps[step.ChangeRequestID] = next
		return nil
	}
	return fmt.Errorf("step %s: %w", step.ID, approval.ErrStepTaken)
}

func (r *ApprovalStepRepository) CancelQueued(ctx context.Context, requestID uuid.UUID, at time.Time) (int64, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, s := range st.steps[requestID] {
		if s.Status == approval.StepQueued {
			s.Status = approval.StepCancelled
			s.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (r *ApprovalStepRepository) DeleteByRequest(ctx context.Context, requestID uuid.UUID) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	delete(st.steps, requestID)
	return nil
}
