package changerequest

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("change request not found")
	ErrNumberTaken     = errors.New("change request number already taken in scope")
	ErrVersionConflict = errors.New("change request was modified concurrently")
)

type FindParams struct {
	Statuses []Status
	Limit    int
	Offset   int
}

type Repository interface {
	// Create inserts cr. A duplicate (scope_id, number) yields ErrNumberTaken.
	Create(ctx context.Context, cr *ChangeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	// GetForUpdate reads cr and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	// Update persists cr if its version is unchanged and bumps the version.
	Update(ctx context.Context, cr *ChangeRequest) error
	ListByScope(ctx context.Context, scopeID uuid.UUID, params FindParams) ([]*ChangeRequest, error)
	CountByScope(ctx context.Context, scopeID uuid.UUID, params FindParams) (int64, error)
}

// Counter hands out per scope ordinals for request numbers.
type Counter interface {
	Next(ctx context.Context, scopeID uuid.UUID) (int64, error)
}
