// Package recalc derives revised monetary and schedule values from their
// inputs. Every function is pure.
package recalc

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the scale money amounts are stored with.
const AmountPlaces = 2

// RecomputeValue returns baseline + delta when both are known and previous
// otherwise, so a derived value is overwritten but never erased.
func RecomputeValue(baseline, delta, previous decimal.NullDecimal) decimal.NullDecimal {
	if !baseline.Valid || !delta.Valid {
		return previous
	}
	return decimal.NewNullDecimal(baseline.Decimal.Add(delta.Decimal))
}

// RecomputeDate adds dayImpact calendar days to the baseline date under the
// same presence rule as RecomputeValue. The result is a UTC midnight date.
func RecomputeDate(baseline *time.Time, dayImpact *int, previous *time.Time) *time.Time {
	if baseline == nil || dayImpact == nil {
		return previous
	}
	d := Date(*baseline).AddDate(0, 0, *dayImpact)
	return &d
}

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LineAmount is quantity * unit rate rounded half to even to AmountPlaces.
func LineAmount(quantity, unitRate decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitRate).RoundBank(AmountPlaces)
}

func SumLines(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

type Inputs struct {
	BaselineValue decimal.NullDecimal
	DeltaValue    decimal.NullDecimal
	BaselineDate  *time.Time
	DayImpact     *int
}

type Derived struct {
	RevisedValue decimal.NullDecimal
	RevisedDate  *time.Time
}

// Derive applies both recompute rules against the previously derived values.
func Derive(in Inputs, previous Derived) Derived {
	return Derived{
		RevisedValue: RecomputeValue(in.BaselineValue, in.DeltaValue, previous.RevisedValue),
		RevisedDate:  RecomputeDate(in.BaselineDate, in.DayImpact, previous.RevisedDate),
	}
}
