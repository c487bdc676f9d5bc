package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/pkg/composables"
)

const lineItemColumns = `id, change_request_id, description, quantity, unit_rate, amount, created_at, updated_at`

type CostLineRepository struct{}

func NewCostLineRepository() costline.Repository {
	return &CostLineRepository{}
}

func amountParam(d decimal.Decimal) pgtype.Numeric {
	return pgNumeric(decimal.NewNullDecimal(d))
}

func scanLineItem(row rowScanner) (*costline.LineItem, error) {
	var (
		item                   costline.LineItem
		quantity, rate, amount pgtype.Numeric
	)
	if err := row.Scan(&item.ID, &item.ChangeRequestID, &item.Description, &quantity, &rate, &amount, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src pgtype.Numeric
		dst *decimal.Decimal
	}{{quantity, &item.Quantity}, {rate, &item.UnitRate}, {amount, &item.Amount}} {
		v, err := asNullDecimal(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v.Decimal
	}
	return &item, nil
}

func (r *CostLineRepository) Create(ctx context.Context, item *costline.LineItem) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO change_request_cost_lines (`+lineItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pgUUID(item.ID), pgUUID(item.ChangeRequestID), item.Description,
		amountParam(item.Quantity), amountParam(item.UnitRate), amountParam(item.Amount),
		item.CreatedAt, item.UpdatedAt,
	); err != nil {
		return gerrors.Wrap(err, "failed to create cost line")
	}
	return nil
}

func (r *CostLineRepository) Get(ctx context.Context, requestID, id uuid.UUID) (*costline.LineItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	item, err := scanLineItem(tx.QueryRow(ctx, `
		SELECT `+lineItemColumns+`
		FROM change_request_cost_lines
		WHERE change_request_id = $1 AND id = $2`,
		pgUUID(requestID), pgUUID(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gerrors.Wrapf(costline.ErrNotFound, "id %s", id)
		}
		return nil, gerrors.Wrap(err, "failed to load cost line")
	}
	return item, nil
}

func (r *CostLineRepository) Update(ctx context.Context, item *costline.LineItem) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE change_request_cost_lines
		SET description = $3, quantity = $4, unit_rate = $5, amount = $6, updated_at = $7
		WHERE change_request_id = $1 AND id = $2`,
		pgUUID(item.ChangeRequestID), pgUUID(item.ID), item.Description,
		amountParam(item.Quantity), amountParam(item.UnitRate), amountParam(item.Amount), item.UpdatedAt,
	)
	if err != nil {
		return gerrors.Wrap(err, "failed to update cost line")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Wrapf(costline.ErrNotFound, "id %s", item.ID)
	}
	return nil
}

func (r *CostLineRepository) Delete(ctx context.Context, requestID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM change_request_cost_lines WHERE change_request_id = $1 AND id = $2`, pgUUID(requestID), pgUUID(id))
	if err != nil {
		return gerrors.Wrap(err, "failed to delete cost line")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Wrapf(costline.ErrNotFound, "id %s", id)
	}
	return nil
}

func (r *CostLineRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*costline.LineItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT `+lineItemColumns+`
		FROM change_request_cost_lines
		WHERE change_request_id = $1
		ORDER BY created_at, id`,
		pgUUID(requestID),
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to list cost lines")
	}
	defer rows.Close()

	var out []*costline.LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "failed to scan cost line")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
