/**
 * @description
 * This file implements the amortization scheduler: a pure function that turns
 * loan terms into a level-payment repayment schedule.
 *
 * The calculation uses:
 *
 *	monthlyRate = annualRatePercent / 100 / 12
 *	payment     = P * r * (1+r)^n / ((1+r)^n - 1)
 *
 * with a P/n fallback when the rate is zero. Monetary fields are rounded to
 * the smallest currency unit at every step so rounding error cannot compound;
 * whatever residual remains is absorbed into the last installment's principal
 * portion, which forces the final remaining balance to exactly zero.
 *
 * The function has no side effects and no storage dependency: identical
 * inputs always produce an identical schedule.
 */

package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RepaymentScheduleEntry describes one installment of a level-payment
// schedule. It is computed, not persisted, by the scheduler.
type RepaymentScheduleEntry struct {
	Sequence  int       `json:"sequence"`
	DueDate   time.Time `json:"due_date"`
	Principal int64     `json:"principal"`
	Interest  int64     `json:"interest"`
	Payment   int64     `json:"payment"`
	Remaining int64     `json:"remaining"`
}

var (
	// ErrInvalidPrincipal is returned for a non-positive principal.
	ErrInvalidPrincipal = errors.New("principal must be positive")
	// ErrInvalidTenor is returned for a non-positive tenor.
	ErrInvalidTenor = errors.New("tenor must be positive")
	// ErrInvalidRate is returned for a negative annual rate.
	ErrInvalidRate = errors.New("annual rate must not be negative")
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
)

// addMonthsClamped adds months to t, clamping the day to the target month's
// last day. AddDate would normalize a Jan 31 start into early March and the
// due dates would drift from there.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// BuildSchedule computes the repayment schedule for the given terms.
// The principal is in minor currency units; the rate is an annual percentage
// (e.g. 12 for 12%); installments fall due monthly starting one month after
// start.
func BuildSchedule(principal int64, annualRatePercent decimal.Decimal, tenorMonths int, start time.Time) ([]RepaymentScheduleEntry, error) {
	if principal <= 0 {
		return nil, ErrInvalidPrincipal
	}
	if tenorMonths <= 0 {
		return nil, ErrInvalidTenor
	}
	if annualRatePercent.IsNegative() {
		return nil, ErrInvalidRate
	}

	p := decimal.NewFromInt(principal)
	n := decimal.NewFromInt(int64(tenorMonths))
	monthlyRate := annualRatePercent.Div(hundred).Div(twelve)

	var payment decimal.Decimal
	if monthlyRate.IsZero() {
		payment = p.Div(n).Round(0)
	} else {
		// P * r * (1+r)^n / ((1+r)^n - 1)
		factor := one.Add(monthlyRate).Pow(n)
		payment = p.Mul(monthlyRate).Mul(factor).Div(factor.Sub(one)).Round(0)
	}

	schedule := make([]RepaymentScheduleEntry, 0, tenorMonths)
	remaining := p

	for seq := 1; seq <= tenorMonths; seq++ {
		interest := remaining.Mul(monthlyRate).Round(0)
		principalPart := payment.Sub(interest)

		// The last installment absorbs the rounding residual so the balance
		// lands on exactly zero.
		if seq == tenorMonths || principalPart.GreaterThan(remaining) {
			principalPart = remaining
		}
		if principalPart.IsNegative() {
			principalPart = decimal.Zero
		}

		remaining = remaining.Sub(principalPart)

		schedule = append(schedule, RepaymentScheduleEntry{
			Sequence:  seq,
			DueDate:   addMonthsClamped(start, seq),
			Principal: principalPart.IntPart(),
			Interest:  interest.IntPart(),
			Payment:   principalPart.Add(interest).IntPart(),
			Remaining: remaining.IntPart(),
		})
	}

	return schedule, nil
}
