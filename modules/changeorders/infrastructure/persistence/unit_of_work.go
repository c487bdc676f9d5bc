package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/changeorders/pkg/composables"
)

// UnitOfWork runs callbacks in a pgx transaction carried by the context.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) InTx(ctx context.Context, fn func(context.Context) error) error {
	return composables.InTx(ctx, u.pool, fn)
}

func (u *UnitOfWork) InSavepoint(ctx context.Context, fn func(context.Context) error) error {
	return composables.InSavepoint(ctx, fn)
}
