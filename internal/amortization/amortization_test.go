package amortization_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terravest/estatecore/internal/amortization"
	"github.com/terravest/estatecore/internal/domain"
)

var start = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func sumDrafts(drafts []amortization.InstallmentDraft) decimal.Decimal {
	total := decimal.Zero
	for _, d := range drafts {
		total = total.Add(d.AmountDue)
	}
	return total
}

func TestGenerateZeroRate(t *testing.T) {
	drafts, summary, err := amortization.Generate(amortization.Input{
		Principal:        decimal.NewFromInt(100000),
		AnnualRate:       decimal.Zero,
		InstallmentCount: 6,
		Frequency:        domain.FrequencyMonthly,
		StartDate:        start,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 6)

	// 100000 / 6 rounds to 16666.67; the last installment absorbs the
	// residue so the schedule still sums to the principal.
	for _, d := range drafts[:5] {
		assert.True(t, d.AmountDue.Equal(decimal.RequireFromString("16666.67")), "installment %d: %s", d.Sequence, d.AmountDue)
	}
	assert.True(t, drafts[5].AmountDue.Equal(decimal.RequireFromString("16666.65")), "last: %s", drafts[5].AmountDue)

	assert.True(t, sumDrafts(drafts).Equal(decimal.NewFromInt(100000)))
	assert.True(t, summary.PeriodicPayment.Equal(decimal.RequireFromString("16666.67")))
	assert.True(t, summary.TotalInterest.IsZero())
	assert.True(t, summary.TotalPayable.Equal(decimal.NewFromInt(100000)))
}

func TestGenerateWithInterest(t *testing.T) {
	drafts, summary, err := amortization.Generate(amortization.Input{
		Principal:        decimal.NewFromInt(680000000),
		AnnualRate:       decimal.RequireFromString("9.5"),
		InstallmentCount: 36,
		Frequency:        domain.FrequencyMonthly,
		StartDate:        start,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 36)

	// The schedule must sum to the rounded total payable exactly, and the
	// total must exceed the principal when the rate is positive.
	assert.True(t, sumDrafts(drafts).Equal(summary.TotalPayable))
	assert.True(t, summary.TotalPayable.GreaterThan(decimal.NewFromInt(680000000)))
	assert.True(t, summary.TotalInterest.Equal(summary.TotalPayable.Sub(decimal.NewFromInt(680000000))))

	for _, d := range drafts[:35] {
		assert.True(t, d.AmountDue.Equal(summary.PeriodicPayment))
	}

	// Monthly due dates advance one calendar month per sequence.
	assert.Equal(t, start.AddDate(0, 1, 0), drafts[0].DueDate)
	assert.Equal(t, start.AddDate(0, 36, 0), drafts[35].DueDate)
}

func TestGenerateOneTime(t *testing.T) {
	drafts, summary, err := amortization.Generate(amortization.Input{
		Principal:       decimal.NewFromInt(170000000),
		AnnualRate:      decimal.Zero,
		Frequency:       domain.FrequencyOneTime,
		GracePeriodDays: 5,
		StartDate:       start,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	assert.Equal(t, uint(1), drafts[0].Sequence)
	assert.Equal(t, start.AddDate(0, 0, 5), drafts[0].DueDate)
	assert.True(t, drafts[0].AmountDue.Equal(decimal.NewFromInt(170000000)))
	assert.True(t, summary.TotalInterest.IsZero())
}

func TestGenerateWeeklyDueDates(t *testing.T) {
	drafts, _, err := amortization.Generate(amortization.Input{
		Principal:        decimal.NewFromInt(5200),
		AnnualRate:       decimal.Zero,
		InstallmentCount: 4,
		Frequency:        domain.FrequencyWeekly,
		GracePeriodDays:  3,
		StartDate:        start,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	base := start.AddDate(0, 0, 3)
	for i, d := range drafts {
		assert.Equal(t, base.AddDate(0, 0, 7*(i+1)), d.DueDate)
	}
	assert.True(t, sumDrafts(drafts).Equal(decimal.NewFromInt(5200)))
}

func TestGenerateValidation(t *testing.T) {
	t.Run("Non-positive principal", func(t *testing.T) {
		_, _, err := amortization.Generate(amortization.Input{
			Principal:        decimal.Zero,
			InstallmentCount: 6,
			Frequency:        domain.FrequencyMonthly,
			StartDate:        start,
		})
		assert.Error(t, err)
	})

	t.Run("Negative rate", func(t *testing.T) {
		_, _, err := amortization.Generate(amortization.Input{
			Principal:        decimal.NewFromInt(1000),
			AnnualRate:       decimal.NewFromInt(-1),
			InstallmentCount: 6,
			Frequency:        domain.FrequencyMonthly,
			StartDate:        start,
		})
		assert.Error(t, err)
	})

	t.Run("Missing start date", func(t *testing.T) {
		_, _, err := amortization.Generate(amortization.Input{
			Principal:        decimal.NewFromInt(1000),
			InstallmentCount: 6,
			Frequency:        domain.FrequencyMonthly,
		})
		assert.Error(t, err)
	})

	t.Run("Zero installment count", func(t *testing.T) {
		_, _, err := amortization.Generate(amortization.Input{
			Principal: decimal.NewFromInt(1000),
			Frequency: domain.FrequencyMonthly,
			StartDate: start,
		})
		assert.Error(t, err)
	})

	t.Run("Unknown frequency", func(t *testing.T) {
		_, _, err := amortization.Generate(amortization.Input{
			Principal:        decimal.NewFromInt(1000),
			InstallmentCount: 6,
			Frequency:        domain.Frequency("DAILY"),
			StartDate:        start,
		})
		assert.Error(t, err)
	})
}

func TestTermMonths(t *testing.T) {
	assert.Equal(t, uint(36), amortization.TermMonths(domain.FrequencyMonthly, 36))
	assert.Equal(t, uint(12), amortization.TermMonths(domain.FrequencyWeekly, 52))
	assert.Equal(t, uint(6), amortization.TermMonths(domain.FrequencyWeekly, 26))
	assert.Equal(t, uint(0), amortization.TermMonths(domain.FrequencyOneTime, 1))
}

func TestPreview(t *testing.T) {
	plan := domain.AmortizationPlan{
		Frequency:        domain.FrequencyMonthly,
		InstallmentCount: 24,
		AnnualRate:       decimal.RequireFromString("12"),
	}

	term, monthly, err := amortization.Preview(decimal.NewFromInt(240000), plan, start)
	require.NoError(t, err)
	assert.Equal(t, uint(24), term)

	// 1% per period over 24 periods: the annuity payment must strictly
	// exceed the zero-rate payment of 10000.
	assert.True(t, monthly.GreaterThan(decimal.NewFromInt(10000)))
	assert.True(t, monthly.LessThan(decimal.NewFromInt(11500)))
}
