package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("approval step not found")
	// ErrStepTaken means a concurrent writer changed the step or claimed its
	// slot first.
	ErrStepTaken = errors.New("approval step changed concurrently")
)

type Repository interface {
	CreateMany(ctx context.Context, steps []*Step) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*Step, error)
	// GetAtLevelForUpdate locks the step for the rest of the transaction.
	GetAtLevelForUpdate(ctx context.Context, requestID uuid.UUID, level int) (*Step, error)
	FindByApprover(ctx context.Context, requestID, approverID uuid.UUID) (*Step, error)
	// UpdateStatus writes step only if its stored status is still expected.
	UpdateStatus(ctx context.Context, step *Step, expected StepStatus) error
	CancelQueued(ctx context.Context, requestID uuid.UUID, at time.Time) (int64, error)
	DeleteByRequest(ctx context.Context, requestID uuid.UUID) error
}
