package amortization

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_PrincipalPortionsSumToPrincipal(t *testing.T) {
	principal := decimal.NewFromInt(120000)
	s, err := Generate(principal, decimal.NewFromInt(10), 12)
	require.NoError(t, err)
	require.Len(t, s.Rows, 12)

	sum := decimal.Zero
	for _, row := range s.Rows {
		sum = sum.Add(row.PrincipalPortion)
	}
	assert.True(t, sum.Sub(principal).Abs().LessThanOrEqual(decimal.NewFromFloat(0.01)),
		"principal portions sum to %s", sum)

	last := s.Rows[len(s.Rows)-1]
	assert.True(t, last.RemainingBalance.IsZero(), "final balance %s", last.RemainingBalance)
}

func TestGenerate_KnownMonthlyPayment(t *testing.T) {
	s, err := Generate(decimal.NewFromInt(120000), decimal.NewFromInt(10), 12)
	require.NoError(t, err)

	// 120000 at 10% over 12 months
	assert.Equal(t, "10549.91", s.InstallmentAmount().StringFixed(2))
	assert.Equal(t, "1000.00", s.Rows[0].InterestPortion.StringFixed(2))
	assert.True(t, s.TotalPayment.Sub(principalPlusInterest(s)).Abs().LessThan(decimal.NewFromFloat(0.000001)))
}

func principalPlusInterest(s *Schedule) decimal.Decimal {
	total := decimal.Zero
	for _, row := range s.Rows {
		total = total.Add(row.PrincipalPortion).Add(row.InterestPortion)
	}
	return total
}

func TestGenerate_ZeroRate(t *testing.T) {
	principal := decimal.NewFromInt(1000)
	s, err := Generate(principal, decimal.Zero, 3)
	require.NoError(t, err)

	assert.True(t, s.MonthlyPayment.Equal(principal.Div(decimal.NewFromInt(3))))
	assert.True(t, s.TotalInterest.IsZero())
	for _, row := range s.Rows {
		assert.True(t, row.InterestPortion.IsZero())
		assert.False(t, row.RemainingBalance.IsNegative())
	}
	assert.True(t, s.Rows[2].RemainingBalance.IsZero())

	even, err := MonthlyPayment(decimal.NewFromInt(120000), decimal.Zero, 12)
	require.NoError(t, err)
	assert.True(t, even.Equal(decimal.NewFromInt(10000)))
}

func TestGenerate_BalanceDeclinesEachMonth(t *testing.T) {
	s, err := Generate(decimal.NewFromInt(50000), decimal.NewFromFloat(12.5), 24)
	require.NoError(t, err)

	prev := decimal.NewFromInt(50000)
	for i, row := range s.Rows {
		assert.Equal(t, i+1, row.Month)
		assert.True(t, row.RemainingBalance.LessThan(prev), "month %d did not reduce balance", row.Month)
		prev = row.RemainingBalance
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		term      int
		want      error
	}{
		{"zero principal", decimal.Zero, decimal.NewFromInt(10), 12, ErrInvalidPrincipal},
		{"negative rate", decimal.NewFromInt(100), decimal.NewFromInt(-1), 12, ErrInvalidRate},
		{"zero term", decimal.NewFromInt(100), decimal.NewFromInt(10), 0, ErrInvalidTerm},
		{"term above cap", decimal.NewFromInt(1000), decimal.NewFromInt(10), MaxTermMonths + 1, ErrInvalidTerm},
		{"huge term", decimal.NewFromInt(1000), decimal.NewFromInt(10), 100_000_000, ErrInvalidTerm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.principal, tt.rate, tt.term)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
