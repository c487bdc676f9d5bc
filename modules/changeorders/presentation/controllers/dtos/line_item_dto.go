package dtos

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/serrors"
)

type CreateLineItemDTO struct {
	Description string           `json:"description" validate:"required,max=500"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required"`
	UnitRate    *decimal.Decimal `json:"unit_rate" validate:"required"`
}

func (d *CreateLineItemDTO) ToParams() (services.LineItemParams, serrors.ValidationErrors) {
	d.Description = strings.TrimSpace(d.Description)
	if errs := validateStruct(d); errs != nil {
		return services.LineItemParams{}, errs
	}
	return services.LineItemParams{
		Description: d.Description,
		Quantity:    *d.Quantity,
		UnitRate:    *d.UnitRate,
	}, nil
}

type UpdateLineItemDTO struct {
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitRate    *decimal.Decimal `json:"unit_rate"`
}

func (d *UpdateLineItemDTO) ToPatch() (services.LineItemPatch, serrors.ValidationErrors) {
	if d.Description != nil {
		v := strings.TrimSpace(*d.Description)
		d.Description = &v
	}
	if errs := validateStruct(d); errs != nil {
		return services.LineItemPatch{}, errs
	}
	return services.LineItemPatch{
		Description: d.Description,
		Quantity:    d.Quantity,
		UnitRate:    d.UnitRate,
	}, nil
}
