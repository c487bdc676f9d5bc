package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/pkg/composables"
)

func newRequest(scopeID uuid.UUID, number string) *changerequest.ChangeRequest {
	now := time.Now().UTC()
	return &changerequest.ChangeRequest{
		ID:          uuid.New(),
		ScopeID:     scopeID,
		Number:      number,
		Title:       "Extra footing",
		Category:    changerequest.CategoryScopeChange,
		Priority:    changerequest.PriorityMedium,
		Status:      changerequest.StatusDraft,
		Currency:    "USD",
		DeltaSource: changerequest.DeltaSourceManual,
		CreatedBy:   uuid.New(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepositories_RequireTransaction(t *testing.T) {
	store := New()
	repo := NewChangeRequestRepository(store)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, composables.ErrNoTx)
}

func TestUnitOfWork_RollbackRestoresState(t *testing.T) {
	store := New()
	uow := NewUnitOfWork(store)
	repo := NewChangeRequestRepository(store)
	ctx := context.Background()

	cr := newRequest(uuid.New(), "CO-1")
	boom := errors.New("boom")
	err := uow.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, cr))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = uow.InTx(ctx, func(txCtx context.Context) error {
		_, err := repo.GetByID(txCtx, cr.ID)
		return err
	})
	require.ErrorIs(t, err, changerequest.ErrNotFound)
}

func TestUnitOfWork_SavepointRollsBackOnlyInnerWork(t *testing.T) {
	store := New()
	uow := NewUnitOfWork(store)
	repo := NewChangeRequestRepository(store)
	ctx := context.Background()

	outer := newRequest(uuid.New(), "CO-1")
	inner := newRequest(uuid.New(), "CO-2")

	require.NoError(t, uow.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, outer))
		err := uow.InSavepoint(txCtx, func(spCtx context.Context) error {
			require.NoError(t, repo.Create(spCtx, inner))
			return errors.New("inner failed")
		})
		require.Error(t, err)
		return nil
	}))

	require.NoError(t, uow.InTx(ctx, func(txCtx context.Context) error {
		_, err := repo.GetByID(txCtx, outer.ID)
		require.NoError(t, err)
		_, err = repo.GetByID(txCtx, inner.ID)
		require.ErrorIs(t, err, changerequest.ErrNotFound)
		return nil
	}))

	require.ErrorIs(t, uow.InSavepoint(ctx, func(context.Context) error { return nil }), composables.ErrNoTx)
}

func TestChangeRequestRepository_Constraints(t *testing.T) {
	store := New()
	uow := NewUnitOfWork(store)
	repo := NewChangeRequestRepository(store)
	ctx := context.Background()
	scope := uuid.New()

	require.NoError(t, uow.InTx(ctx, func(txCtx context.Context) error {
		first := newRequest(scope, "CO-1")
		require.NoError(t, repo.Create(txCtx, first))
		require.ErrorIs(t, repo.Create(txCtx, newRequest(scope, "CO-1")), changerequest.ErrNumberTaken)
		require.NoError(t, repo.Create(txCtx, newRequest(uuid.New(), "CO-1")))

		stale, err := repo.GetByID(txCtx, first.ID)
		require.NoError(t, err)
		fresh, err := repo.GetByID(txCtx, first.ID)
		require.NoError(t, err)

		fresh.Title = "changed"
		require.NoError(t, repo.Update(txCtx, fresh))
		require.Equal(t, int64(2), fresh.Version)

		stale.Title = "lost update"
		require.ErrorIs(t, repo.Update(txCtx, stale), changerequest.ErrVersionConflict)

		n, err := repo.CountByScope(txCtx, scope, changerequest.FindParams{Statuses: []changerequest.Status{changerequest.StatusDraft}})
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	}))
}

func TestApprovalStepRepository_OnePendingPerRequest(t *testing.T) {
	store := New()
	uow := NewUnitOfWork(store)
	requests := NewChangeRequestRepository(store)
	steps := NewApprovalStepRepository(store)
	ctx := context.Background()

	require.NoError(t, uow.InTx(ctx, func(txCtx context.Context) error {
		cr := newRequest(uuid.New(), "CO-1")
		require.NoError(t, requests.Create(txCtx, cr))

		chain := approval.BuildChain(cr.ID, []uuid.UUID{uuid.New(), uuid.New()}, time.Now())
		require.NoError(t, steps.CreateMany(txCtx, chain))

		second := chain[1].Clone()
		second.Status = approval.StepPending
		require.ErrorIs(t, steps.UpdateStatus(txCtx, second, approval.StepQueued), approval.ErrStepTaken)

		first := chain[0].Clone()
		first.Status = approval.StepApproved
		require.NoError(t, steps.UpdateStatus(txCtx, first, approval.StepPending))
		require.ErrorIs(t, steps.UpdateStatus(txCtx, first, approval.StepPending), approval.ErrStepTaken)

		require.NoError(t, steps.UpdateStatus(txCtx, second, approval.StepQueued))

		n, err := steps.CancelQueued(txCtx, cr.ID, time.Now())
		require.NoError(t, err)
		require.Zero(t, n)

		listed, err := steps.ListByRequest(txCtx, cr.ID)
		require.NoError(t, err)
		require.Equal(t, []approval.StepStatus{approval.StepApproved, approval.StepPending}, []approval.StepStatus{listed[0].Status, listed[1].Status})
		return nil
	}))
}

func TestAuditRepository_PreservesInsertionOrder(t *testing.T) {
	store := New()
	uow := NewUnitOfWork(store)
	requests := NewChangeRequestRepository(store)
	auditRepo := NewAuditRepository(store)
	ctx := context.Background()

	require.NoError(t, uow.InTx(ctx, func(txCtx context.Context) error {
		cr := newRequest(uuid.New(), "CO-1")
		require.NoError(t, requests.Create(txCtx, cr))
		for _, action := range []audit.Action{audit.ActionCreated, audit.ActionFieldUpdated, audit.ActionSubmitted} {
			require.NoError(t, auditRepo.Append(txCtx, &audit.Entry{ID: uuid.New(), ChangeRequestID: cr.ID, Action: action}))
		}

		entries, err := auditRepo.ListByRequest(txCtx, cr.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		require.Equal(t, audit.ActionCreated, entries[0].Action)
		require.Equal(t, audit.ActionSubmitted, entries[2].Action)
		require.Less(t, entries[0].Sequence, entries[1].Sequence)
		return nil
	}))
}
