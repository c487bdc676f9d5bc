package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/pkg/serrors"
)

func fieldLocaleKey(field string) string {
	return "ChangeOrders.Fields." + field
}

type fieldErrors serrors.ValidationErrors

func (f fieldErrors) required(field string) {
	if _, ok := f[field]; !ok {
		f[field] = serrors.NewFieldRequiredError(field, fieldLocaleKey(field))
	}
}

func (f fieldErrors) invalid(field, reason string) {
	if _, ok := f[field]; !ok {
		f[field] = serrors.NewFieldInvalidError(field, reason, fieldLocaleKey(field))
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return validationError(serrors.ValidationErrors(f))
}

func requiredFields(fields ...string) serrors.ValidationErrors {
	f := fieldErrors{}
	for _, field := range fields {
		f.required(field)
	}
	return serrors.ValidationErrors(f)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalizeAmount rounds a money value half to even to cents.
func normalizeAmount(v decimal.NullDecimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return decimal.NewNullDecimal(v.Decimal.RoundBank(2))
}

func sameAmount(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// amountValue is the JSON snapshot of a nullable amount.
func amountValue(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.StringFixed(2)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
