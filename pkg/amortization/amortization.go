package amortization

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrincipal = errors.New("principal must be positive")
	ErrInvalidRate      = errors.New("interest rate must not be negative")
	ErrInvalidTerm      = errors.New("term must be between 1 and 600 months")
)

// MaxTermMonths caps a schedule at fifty years.
const MaxTermMonths = 600

// workingPrecision bounds intermediate digits; rates like 10%/12 never terminate.
const workingPrecision = 20

var (
	monthsPerYear = decimal.NewFromInt(12)
	hundred       = decimal.NewFromInt(100)
)

// Row is one month of a schedule. Values carry full precision; round when displaying.
type Row struct {
	Month            int             `json:"month"`
	Payment          decimal.Decimal `json:"payment"`
	PrincipalPortion decimal.Decimal `json:"principal"`
	InterestPortion  decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

type Schedule struct {
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalPayment   decimal.Decimal `json:"total_payment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	Rows           []Row           `json:"schedule"`
}

// MonthlyRate converts an annual percentage rate into a per-month fraction.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(hundred, workingPrecision).DivRound(monthsPerYear, workingPrecision)
}

// MonthlyPayment is the fixed annuity payment P·r·(1+r)^n / ((1+r)^n − 1), or P/n when r is zero.
func MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := validate(principal, annualRatePercent, termMonths); err != nil {
		return decimal.Zero, err
	}

	n := decimal.NewFromInt(int64(termMonths))
	r := MonthlyRate(annualRatePercent)
	if r.IsZero() {
		return principal.Div(n), nil
	}

	factor := compound(decimal.NewFromInt(1).Add(r), termMonths)
	return principal.Mul(r).Mul(factor).DivRound(factor.Sub(decimal.NewFromInt(1)), workingPrecision), nil
}

// Generate walks months 1..n applying the fixed payment to a declining balance.
func Generate(principal, annualRatePercent decimal.Decimal, termMonths int) (*Schedule, error) {
	payment, err := MonthlyPayment(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}
	r := MonthlyRate(annualRatePercent)

	s := &Schedule{
		MonthlyPayment: payment,
		TotalPayment:   payment.Mul(decimal.NewFromInt(int64(termMonths))),
		TotalInterest:  decimal.Zero,
		Rows:           make([]Row, 0, termMonths),
	}

	balance := principal
	for month := 1; month <= termMonths; month++ {
		interest := balance.Mul(r).Round(workingPrecision)
		principalPortion := payment.Sub(interest)
		balance = balance.Sub(principalPortion)
		s.TotalInterest = s.TotalInterest.Add(interest)

		remaining := balance
		if month == termMonths {
			// absorb drift left by the truncated rate
			remaining = remaining.Round(2)
		}
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}

		s.Rows = append(s.Rows, Row{
			Month:            month,
			Payment:          payment,
			PrincipalPortion: principalPortion,
			InterestPortion:  interest,
			RemainingBalance: remaining,
		})
	}

	return s, nil
}

// InstallmentAmount is the scheduled payment rounded to cents, as stored on each installment.
func (s *Schedule) InstallmentAmount() decimal.Decimal {
	return s.MonthlyPayment.Round(2)
}

func compound(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		result = result.Mul(base).Round(workingPrecision)
	}
	return result
}

func validate(principal, annualRatePercent decimal.Decimal, termMonths int) error {
	if !principal.IsPositive() {
		return ErrInvalidPrincipal
	}
	if annualRatePercent.IsNegative() {
		return ErrInvalidRate
	}
	if termMonths < 1 || termMonths > MaxTermMonths {
		return ErrInvalidTerm
	}
	return nil
}
