package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/recalc"
)

type LineItemParams struct {
	Description string
	Quantity    decimal.Decimal
	UnitRate    decimal.Decimal
}

type LineItemPatch struct {
	Description *string
	Quantity    *decimal.Decimal
	UnitRate    *decimal.Decimal
}

func validateLine(f fieldErrors, description string, quantity, unitRate decimal.Decimal) {
	if blank(description) {
		f.required("description")
	}
	if !quantity.IsPositive() {
		f.invalid("quantity", "must be greater than zero")
	}
	if unitRate.IsNegative() {
		f.invalid("unit_rate", "must not be negative")
	}
}

func lineValue(item *costline.LineItem) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"description": item.Description,
		"quantity":    item.Quantity.String(),
		"unit_rate":   item.UnitRate.String(),
		"amount":      item.Amount.StringFixed(recalc.AmountPlaces),
	}
}

// syncDelta sets the delta of a line item driven request to the sum of its
// lines. It reports whether the delta moved.
func (s *ChangeOrderService) syncDelta(ctx context.Context, cr *changerequest.ChangeRequest, actorID uuid.UUID) (bool, error) {
	if cr.DeltaSource != changerequest.DeltaSourceLineItems {
		return false, nil
	}
	items, err := s.lines.ListByRequest(ctx, cr.ID)
	if err != nil {
		return false, err
	}
	amounts := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		amounts = append(amounts, it.Amount)
	}
	total := normalizeAmount(decimal.NewNullDecimal(recalc.SumLines(amounts)))
	if sameAmount(total, cr.DeltaValue) {
		return false, nil
	}
	if err := s.audit.Append(ctx, AppendParams{
		RequestID: cr.ID,
		ActorID:   actorID,
		Action:    audit.ActionRecalculated,
		Field:     "delta_value",
		Old:       amountValue(cr.DeltaValue),
		New:       amountValue(total),
	}); err != nil {
		return false, err
	}
	cr.DeltaValue = total
	return true, nil
}

// withLines runs fn against a locked, editable request and then brings the
// delta and the derived values in line with the cost lines.
func (s *ChangeOrderService) withLines(ctx context.Context, requestID, actorID uuid.UUID, fn func(ctx context.Context, cr *changerequest.ChangeRequest) error) (*changerequest.ChangeRequest, error) {
	return inTxResult(ctx, s.uow, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, err := s.requests.GetForUpdate(txCtx, requestID)
		if err != nil {
			return nil, err
		}
		if !cr.Status.FieldsEditable() {
			return nil, invalidStateError("CO_NOT_EDITABLE", "line items of a "+string(cr.Status)+" request cannot change")
		}
		if err := fn(txCtx, cr); err != nil {
			return nil, err
		}
		if _, err := s.syncDelta(txCtx, cr, actorID); err != nil {
			return nil, err
		}
		if _, err := s.rederive(txCtx, cr, actorID); err != nil {
			return nil, err
		}
		cr.UpdatedAt = s.now().UTC()
		if err := s.requests.Update(txCtx, cr); err != nil {
			return nil, err
		}
		return cr, nil
	})
}

func (s *ChangeOrderService) AddLineItem(ctx context.Context, requestID uuid.UUID, p LineItemParams, actorID uuid.UUID) (item *costline.LineItem, cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "AddLineItem", attribute.String("change_request.id", requestID.String()))
	defer func() { endSpan(span, err) }()

	f := fieldErrors{}
	if actorID == uuid.Nil {
		f.required("actor_id")
	}
	validateLine(f, p.Description, p.Quantity, p.UnitRate)
	if err := f.err(); err != nil {
		return nil, nil, err
	}

	cr, err = s.withLines(ctx, requestID, actorID, func(txCtx context.Context, cr *changerequest.ChangeRequest) error {
		now := s.now().UTC()
		item = &costline.LineItem{
			ID:              uuid.New(),
			ChangeRequestID: cr.ID,
			Description:     strings.TrimSpace(p.Description),
			Quantity:        p.Quantity,
			UnitRate:        p.UnitRate,
			Amount:          recalc.LineAmount(p.Quantity, p.UnitRate),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.lines.Create(txCtx, item); err != nil {
			return err
		}
		return s.audit.Append(txCtx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionLineItemAdded,
			Field:     "line_items",
			New:       lineValue(item),
		})
	})
	if err != nil {
		return nil, committed(ctx, s.uow, s.requests, requestID), mapStoreError(err)
	}
	return item, cr, nil
}

func (s *ChangeOrderService) UpdateLineItem(ctx context.Context, requestID, lineID uuid.UUID, p LineItemPatch, actorID uuid.UUID) (item *costline.LineItem, cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "UpdateLineItem", attribute.String("change_request.id", requestID.String()))
	defer func() { endSpan(span, err) }()

	if actorID == uuid.Nil {
		return nil, nil, validationError(requiredFields("actor_id"))
	}
	if p.Description == nil && p.Quantity == nil && p.UnitRate == nil {
		f := fieldErrors{}
		f.invalid("patch", "must change at least one field")
		return nil, nil, f.err()
	}

	cr, err = s.withLines(ctx, requestID, actorID, func(txCtx context.Context, cr *changerequest.ChangeRequest) error {
		current, err := s.lines.Get(txCtx, cr.ID, lineID)
		if err != nil {
			return err
		}
		before := lineValue(current)
		next := *current
		if p.Description != nil {
			next.Description = strings.TrimSpace(*p.Description)
		}
		if p.Quantity != nil {
			next.Quantity = *p.Quantity
		}
		if p.UnitRate != nil {
			next.UnitRate = *p.UnitRate
		}
		f := fieldErrors{}
		validateLine(f, next.Description, next.Quantity, next.UnitRate)
		if err := f.err(); err != nil {
			return err
		}
		next.Amount = recalc.LineAmount(next.Quantity, next.UnitRate)
		next.UpdatedAt = s.now().UTC()
		if err := s.lines.Update(txCtx, &next); err != nil {
			return err
		}
		item = &next
		return s.audit.Append(txCtx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionLineItemUpdated,
			Field:     "line_items",
			Old:       before,
			New:       lineValue(item),
		})
	})
	if err != nil {
		return nil, committed(ctx, s.uow, s.requests, requestID), mapStoreError(err)
	}
	return item, cr, nil
}

func (s *ChangeOrderService) RemoveLineItem(ctx context.Context, requestID, lineID uuid.UUID, actorID uuid.UUID) (cr *changerequest.ChangeRequest, err error) {
	ctx, span := startSpan(ctx, "RemoveLineItem", attribute.String("change_request.id", requestID.String()))
	defer func() { endSpan(span, err) }()

	if actorID == uuid.Nil {
		return nil, validationError(requiredFields("actor_id"))
	}
	cr, err = s.withLines(ctx, requestID, actorID, func(txCtx context.Context, cr *changerequest.ChangeRequest) error {
		current, err := s.lines.Get(txCtx, cr.ID, lineID)
		if err != nil {
			return err
		}
		if err := s.lines.Delete(txCtx, cr.ID, lineID); err != nil {
			return err
		}
		return s.audit.Append(txCtx, AppendParams{
			RequestID: cr.ID,
			ActorID:   actorID,
			Action:    audit.ActionLineItemRemoved,
			Field:     "line_items",
			Old:       lineValue(current),
		})
	})
	if err != nil {
		return committed(ctx, s.uow, s.requests, requestID), mapStoreError(err)
	}
	return cr, nil
}

func (s *ChangeOrderService) ListLineItems(ctx context.Context, requestID uuid.UUID) ([]*costline.LineItem, error) {
	items, err := inTxResult(ctx, s.uow, func(txCtx context.Context) ([]*costline.LineItem, error) {
		if _, err := s.requests.GetByID(txCtx, requestID); err != nil {
			return nil, err
		}
		return s.lines.ListByRequest(txCtx, requestID)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return items, nil
}
