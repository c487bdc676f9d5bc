package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
)

// UnitOfWork scopes repository calls to one transaction carried by the
// context. InTx joins a transaction already present in ctx. InSavepoint rolls
// back only the work done by fn when fn fails.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
	InSavepoint(ctx context.Context, fn func(context.Context) error) error
}

func inTxResult[T any](ctx context.Context, uow UnitOfWork, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := uow.InTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}

// committed reads the stored request after a failed mutation, so callers get
// the record as it was before the attempt. It is nil when the request does
// not exist or cannot be read.
func committed(ctx context.Context, uow UnitOfWork, requests changerequest.Repository, id uuid.UUID) *changerequest.ChangeRequest {
	if id == uuid.Nil {
		return nil
	}
	cr, err := inTxResult(ctx, uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		return requests.GetByID(txCtx, id)
	})
	if err != nil {
		return nil
	}
	return cr
}
