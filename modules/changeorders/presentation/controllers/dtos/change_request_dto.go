package dtos

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/constants"
	"github.com/iota-uz/changeorders/pkg/serrors"
)

func fieldLocaleKey(field string) string {
	return fmt.Sprintf("ChangeOrders.Fields.%s", field)
}

func validateStruct(v any) serrors.ValidationErrors {
	err := constants.Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return serrors.ValidationErrors{"body": serrors.NewFieldInvalidError("body", err.Error(), "")}
	}
	return serrors.ProcessValidatorErrors(verrs, fieldLocaleKey)
}

func parseDate(field, raw string, errs serrors.ValidationErrors) *time.Time {
	t, err := time.Parse(constants.DateFormat, strings.TrimSpace(raw))
	if err != nil {
		errs[field] = serrors.NewFieldInvalidError(field, "must be a date formatted as YYYY-MM-DD", fieldLocaleKey(field))
		return nil
	}
	return &t
}

type CreateChangeRequestDTO struct {
	ScopeID       uuid.UUID        `json:"scope_id"`
	Title         string           `json:"title" validate:"required,max=200"`
	Description   string           `json:"description"`
	Category      string           `json:"category" validate:"required"`
	Priority      string           `json:"priority"`
	Currency      string           `json:"currency" validate:"omitempty,len=3"`
	BaselineValue *decimal.Decimal `json:"baseline_value"`
	DeltaValue    *decimal.Decimal `json:"delta_value"`
	DeltaSource   string           `json:"delta_source"`
	BaselineDate  *string          `json:"baseline_date"`
	DayImpact     *int             `json:"day_impact"`
	ApproverIDs   []uuid.UUID      `json:"approver_ids"`
}

func (d *CreateChangeRequestDTO) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	d.Priority = strings.TrimSpace(d.Priority)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.DeltaSource = strings.TrimSpace(d.DeltaSource)
}

// ToParams validates the shape of the body; domain rules stay with the
// service.
func (d *CreateChangeRequestDTO) ToParams() (services.CreateParams, serrors.ValidationErrors) {
	d.Normalize()
	errs := validateStruct(d)
	if errs == nil {
		errs = serrors.ValidationErrors{}
	}

	p := services.CreateParams{
		ScopeID:     d.ScopeID,
		Title:       d.Title,
		Description: d.Description,
		Category:    changerequest.Category(d.Category),
		Priority:    changerequest.Priority(d.Priority),
		Currency:    d.Currency,
		DeltaSource: changerequest.DeltaSource(d.DeltaSource),
		DayImpact:   d.DayImpact,
		ApproverIDs: d.ApproverIDs,
	}
	if d.BaselineValue != nil {
		p.BaselineValue = decimal.NewNullDecimal(*d.BaselineValue)
	}
	if d.DeltaValue != nil {
		p.DeltaValue = decimal.NewNullDecimal(*d.DeltaValue)
	}
	if d.BaselineDate != nil {
		p.BaselineDate = parseDate("baseline_date", *d.BaselineDate, errs)
	}
	if len(errs) > 0 {
		return services.CreateParams{}, errs
	}
	return p, nil
}

type UpdateChangeRequestDTO struct {
	Title         Optional[string]          `json:"title"`
	Description   Optional[string]          `json:"description"`
	Category      Optional[string]          `json:"category"`
	Priority      Optional[string]          `json:"priority"`
	BaselineValue Optional[decimal.Decimal] `json:"baseline_value"`
	DeltaValue    Optional[decimal.Decimal] `json:"delta_value"`
	DeltaSource   Optional[string]          `json:"delta_source"`
	BaselineDate  Optional[string]          `json:"baseline_date"`
	DayImpact     Optional[int]             `json:"day_impact"`
	Status        Optional[string]          `json:"status"`
}

// ToPatch maps the body onto a patch. Explicit nulls clear the nullable
// fields and are rejected everywhere else.
func (d *UpdateChangeRequestDTO) ToPatch() (changerequest.Patch, serrors.ValidationErrors) {
	errs := serrors.ValidationErrors{}
	notNull := func(field string, o bool) bool {
		if o {
			errs[field] = serrors.NewFieldInvalidError(field, "must not be null", fieldLocaleKey(field))
			return false
		}
		return true
	}

	var p changerequest.Patch
	if d.Title.Set && notNull("title", d.Title.Null) {
		v := strings.TrimSpace(d.Title.Value)
		p.Title = &v
	}
	if d.Description.Set {
		v := ""
		if !d.Description.Null {
			v = strings.TrimSpace(d.Description.Value)
		}
		p.Description = &v
	}
	if d.Category.Set && notNull("category", d.Category.Null) {
		v := changerequest.Category(strings.TrimSpace(d.Category.Value))
		p.Category = &v
	}
	if d.Priority.Set && notNull("priority", d.Priority.Null) {
		v := changerequest.Priority(strings.TrimSpace(d.Priority.Value))
		p.Priority = &v
	}
	if d.DeltaSource.Set && notNull("delta_source", d.DeltaSource.Null) {
		v := changerequest.DeltaSource(strings.TrimSpace(d.DeltaSource.Value))
		p.DeltaSource = &v
	}
	if d.Status.Set && notNull("status", d.Status.Null) {
		v := changerequest.Status(strings.TrimSpace(d.Status.Value))
		p.Status = &v
	}
	if d.BaselineValue.Set {
		v := decimal.NullDecimal{}
		if !d.BaselineValue.Null {
			v = decimal.NewNullDecimal(d.BaselineValue.Value)
		}
		p.BaselineValue = &v
	}
	if d.DeltaValue.Set {
		v := decimal.NullDecimal{}
		if !d.DeltaValue.Null {
			v = decimal.NewNullDecimal(d.DeltaValue.Value)
		}
		p.DeltaValue = &v
	}
	if d.BaselineDate.Set {
		var v *time.Time
		if !d.BaselineDate.Null {
			v = parseDate("baseline_date", d.BaselineDate.Value, errs)
		}
		p.BaselineDate = &v
	}
	if d.DayImpact.Set {
		v := d.DayImpact.Ptr()
		p.DayImpact = &v
	}

	if len(errs) > 0 {
		return changerequest.Patch{}, errs
	}
	return p, nil
}

type DecisionDTO struct {
	ApproverID *uuid.UUID `json:"approver_id"`
	Decision   string     `json:"decision" validate:"required,oneof=approve reject"`
	Comment    string     `json:"comment" validate:"max=2000"`
}

func (d *DecisionDTO) Ok() serrors.ValidationErrors {
	d.Decision = strings.ToLower(strings.TrimSpace(d.Decision))
	d.Comment = strings.TrimSpace(d.Comment)
	return validateStruct(d)
}

type ReasonDTO struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (d *ReasonDTO) Ok() serrors.ValidationErrors {
	d.Reason = strings.TrimSpace(d.Reason)
	return validateStruct(d)
}

type ApproversDTO struct {
	ApproverIDs []uuid.UUID `json:"approver_ids" validate:"required"`
}

func (d *ApproversDTO) Ok() serrors.ValidationErrors {
	return validateStruct(d)
}
