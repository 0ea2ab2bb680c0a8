// Package amortization turns financing terms into installment schedules. It
// is pure and deterministic: no storage, no clock reads, decimal arithmetic
// only, so every ledger and change-workflow computation that depends on it is
// reproducible.
package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/pkg/common"
)

// Input is one schedule request. AnnualRate is a percentage (9.5 means 9.5%).
type Input struct {
	Principal        decimal.Decimal
	AnnualRate       decimal.Decimal
	InstallmentCount uint
	Frequency        domain.Frequency
	GracePeriodDays  uint
	StartDate        time.Time
}

// InstallmentDraft is one generated installment before persistence.
type InstallmentDraft struct {
	Sequence  uint
	DueDate   time.Time
	AmountDue decimal.Decimal
}

// Summary aggregates the generated schedule.
type Summary struct {
	PeriodicPayment decimal.Decimal
	TotalInterest   decimal.Decimal
	TotalPayable    decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

func periodsPerYear(f domain.Frequency) int64 {
	if f == domain.FrequencyWeekly {
		return 52
	}
	return 12
}

// TermMonths expresses a schedule length in whole months, for change-request
// previews.
func TermMonths(f domain.Frequency, count uint) uint {
	switch f {
	case domain.FrequencyMonthly:
		return count
	case domain.FrequencyWeekly:
		months := decimal.NewFromInt(int64(count)).
			Mul(decimal.NewFromInt(12)).
			Div(decimal.NewFromInt(52)).
			Round(0)
		return uint(months.IntPart())
	}
	return 0
}

// Generate produces the ordered installment schedule for the given terms.
//
// Every installment before the last carries the identical periodic payment
// rounded to the minor unit; the final installment absorbs the rounding
// residue so the schedule sums to principal plus interest exactly.
func Generate(in Input) ([]InstallmentDraft, Summary, error) {
	if !in.Principal.IsPositive() {
		return nil, Summary{}, common.Validation("principal must be positive, got %s", in.Principal)
	}
	if in.AnnualRate.IsNegative() {
		return nil, Summary{}, common.Validation("annual rate must not be negative, got %s", in.AnnualRate)
	}
	if in.StartDate.IsZero() {
		return nil, Summary{}, common.Validation("start date is required")
	}

	base := in.StartDate.AddDate(0, 0, int(in.GracePeriodDays))

	if in.Frequency == domain.FrequencyOneTime {
		drafts := []InstallmentDraft{{
			Sequence:  1,
			DueDate:   base,
			AmountDue: in.Principal.Round(2),
		}}
		return drafts, Summary{
			PeriodicPayment: in.Principal.Round(2),
			TotalInterest:   decimal.Zero,
			TotalPayable:    in.Principal.Round(2),
		}, nil
	}

	if in.Frequency != domain.FrequencyWeekly && in.Frequency != domain.FrequencyMonthly {
		return nil, Summary{}, common.Validation("unknown frequency %q", in.Frequency)
	}
	if in.InstallmentCount < 1 {
		return nil, Summary{}, common.Validation("installment count must be at least 1, got %d", in.InstallmentCount)
	}

	n := int64(in.InstallmentCount)
	count := decimal.NewFromInt(n)

	// Periodic rate as a fraction: annual% / periodsPerYear / 100.
	rate := in.AnnualRate.Div(decimal.NewFromInt(periodsPerYear(in.Frequency))).Div(hundred)

	var payment decimal.Decimal
	if rate.IsZero() {
		payment = in.Principal.Div(count)
	} else {
		// Standard annuity: P * r * (1+r)^n / ((1+r)^n - 1).
		factor := one.Add(rate).Pow(count)
		payment = in.Principal.Mul(rate).Mul(factor).Div(factor.Sub(one))
	}

	periodic := payment.Round(2)

	var totalPayable decimal.Decimal
	if rate.IsZero() {
		totalPayable = in.Principal.Round(2)
	} else {
		totalPayable = payment.Mul(count).Round(2)
	}

	drafts := make([]InstallmentDraft, 0, n)
	for i := int64(1); i <= n; i++ {
		amount := periodic
		if i == n {
			amount = totalPayable.Sub(periodic.Mul(decimal.NewFromInt(n - 1)))
		}
		drafts = append(drafts, InstallmentDraft{
			Sequence:  uint(i),
			DueDate:   dueDate(base, in.Frequency, int(i)),
			AmountDue: amount,
		})
	}

	return drafts, Summary{
		PeriodicPayment: periodic,
		TotalInterest:   totalPayable.Sub(in.Principal.Round(2)),
		TotalPayable:    totalPayable,
	}, nil
}

// Preview computes the change-request preview for switching an outstanding
// balance onto a different plan.
func Preview(outstanding decimal.Decimal, plan domain.AmortizationPlan, start time.Time) (termMonths uint, monthlyPayment decimal.Decimal, err error) {
	_, summary, err := Generate(Input{
		Principal:        outstanding,
		AnnualRate:       plan.AnnualRate,
		InstallmentCount: plan.InstallmentCount,
		Frequency:        plan.Frequency,
		GracePeriodDays:  plan.GracePeriodDays,
		StartDate:        start,
	})
	if err != nil {
		return 0, decimal.Zero, err
	}
	return TermMonths(plan.Frequency, plan.InstallmentCount), summary.PeriodicPayment, nil
}

func dueDate(base time.Time, f domain.Frequency, i int) time.Time {
	if f == domain.FrequencyWeekly {
		return base.AddDate(0, 0, 7*i)
	}
	return base.AddDate(0, i, 0)
}
