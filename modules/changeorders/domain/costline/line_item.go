package costline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("cost line item not found")

type LineItem struct {
	ID              uuid.UUID       `json:"id"`
	ChangeRequestID uuid.UUID       `json:"change_request_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitRate        decimal.Decimal `json:"unit_rate"`
	Amount          decimal.Decimal `json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, item *LineItem) error
	Get(ctx context.Context, requestID, id uuid.UUID) (*LineItem, error)
	Update(ctx context.Context, item *LineItem) error
	Delete(ctx context.Context, requestID, id uuid.UUID) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*LineItem, error)
}
