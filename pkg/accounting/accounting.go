// Package accounting holds the pure arithmetic behind installment operations:
// derived terms, payment totals, settlement detection and due date projection.
package accounting

import (
	"fmt"
	"math"
	"time"

	"github.com/3244536/Magest/pkg/models"
	"github.com/shopspring/decimal"
)

const daysPerMonth = 30

var (
	hundred = decimal.NewFromInt(100)

	// SettleEpsilon is the slack allowed when comparing paid against due.
	SettleEpsilon = decimal.New(1, -6)
)

// Terms are the amounts derived from an operation's principal, rate and duration.
type Terms struct {
	TotalDue          decimal.Decimal `json:"montant_total"`
	ProfitAmount      decimal.Decimal `json:"montant_benefice"`
	InstallmentAmount decimal.Decimal `json:"montant_mensualite"`
}

// InvalidTermsError is returned by ComputeTerms when a term is not positive.
type InvalidTermsError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid terms: %s must be positive, got %s", e.Field, e.Value)
}

func (e *InvalidTermsError) Unwrap() error {
	return models.ErrValidation
}

// ComputeTerms derives total due, profit and installment amount.
// Fractional durations are used directly as the divisor.
func ComputeTerms(principal, ratePercent, durationMonths decimal.Decimal) (Terms, error) {
	for _, t := range []struct {
		field string
		value decimal.Decimal
	}{
		{"principal", principal},
		{"rate_percent", ratePercent},
		{"duration_months", durationMonths},
	} {
		if !t.value.IsPositive() {
			return Terms{}, &InvalidTermsError{Field: t.field, Value: t.value}
		}
	}

	rate := ratePercent.Div(hundred)
	profit := principal.Mul(rate)
	total := principal.Add(profit)

	return Terms{
		TotalDue:          total,
		ProfitAmount:      profit,
		InstallmentAmount: total.Div(durationMonths),
	}, nil
}

// TotalPaid sums payment amounts. An empty slice sums to zero.
func TotalPaid(payments []*models.Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// IsSettled reports whether totalPaid covers totalDue, within SettleEpsilon.
func IsSettled(totalPaid, totalDue decimal.Decimal) bool {
	return totalPaid.Add(SettleEpsilon).GreaterThanOrEqual(totalDue)
}

// Remaining returns totalDue - totalPaid, floored at zero.
func Remaining(totalPaid, totalDue decimal.Decimal) decimal.Decimal {
	rest := totalDue.Sub(totalPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// ProjectNextDueDate returns the next installment date using a flat 30-day month:
// created + 30 * (elapsedDays/30 + 1) days. The second result is false when the
// operation is settled and has no further due date.
//
// created is the operation's creation date and now the reference date. The
// operation's duration takes no part in the formula, so it is not an argument;
// settled stands in for the caller's payment position.
//
// This is not calendar month arithmetic and must stay that way.
func ProjectNextDueDate(created, now time.Time, settled bool) (time.Time, bool) {
	if settled {
		return time.Time{}, false
	}

	start := truncateDay(created)
	elapsedDays := int(math.Floor(truncateDay(now).Sub(start).Hours() / 24))
	elapsedMonths := floorDiv(elapsedDays, daysPerMonth)

	return start.AddDate(0, 0, daysPerMonth*(elapsedMonths+1)), true
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
