// Package amortization turns loan terms into a fixed installment quote and a
// due-date sequence. Everything here is a pure function of its inputs.
package amortization

import (
	"fmt"

	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

// Method selects how interest is charged over the life of a loan.
type Method string

const (
	// MethodSimple charges principal × monthly rate × elapsed months.
	MethodSimple Method = "simple"
	// MethodAmortized uses the fixed-payment annuity formula on a per-period rate.
	MethodAmortized Method = "amortized"
)

// ParseMethod maps a configuration value to a Method. Empty means simple.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodSimple:
		return MethodSimple, nil
	case MethodAmortized:
		return MethodAmortized, nil
	}
	return "", fmt.Errorf("%w: unknown interest method %q", models.ErrInvalidParameters, s)
}

var (
	hundred         = decimal.NewFromInt(100)
	daysPerMonth    = decimal.NewFromInt(30)
	weeksPerMonth   = decimal.RequireFromString("4.33")
	biweeksPerMonth = decimal.NewFromInt(2)
)

// annuityScale is the number of decimal places kept while compounding.
const annuityScale = 20

// Params are the terms a quote is computed from.
type Params struct {
	Principal   decimal.Decimal
	MonthlyRate decimal.Decimal // percent
	Count       int
	Cadence     models.Cadence
}

// Quote is the computed repayment plan for a set of Params.
type Quote struct {
	InstallmentValue decimal.Decimal `json:"installment_value"`
	TotalPayable     decimal.Decimal `json:"total_payable"`
	TotalInterest    decimal.Decimal `json:"total_interest"`
	ElapsedMonths    decimal.Decimal `json:"elapsed_months"`
}

// Validate rejects terms no quote can be produced for.
func (p Params) Validate() error {
	if !p.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be greater than zero", models.ErrInvalidParameters)
	}
	if p.MonthlyRate.IsNegative() {
		return fmt.Errorf("%w: monthly rate cannot be negative", models.ErrInvalidParameters)
	}
	if p.Count <= 0 {
		return fmt.Errorf("%w: installment count must be greater than zero", models.ErrInvalidParameters)
	}
	if !p.Cadence.Valid() {
		return fmt.Errorf("%w: unknown cadence %q", models.ErrInvalidParameters, p.Cadence)
	}
	return nil
}

// ElapsedMonths converts an installment count into months for the cadence.
func ElapsedMonths(count int, cadence models.Cadence) decimal.Decimal {
	n := decimal.NewFromInt(int64(count))
	switch cadence {
	case models.CadenceDaily:
		return n.Div(daysPerMonth)
	case models.CadenceWeekly:
		return n.Div(weeksPerMonth)
	case models.CadenceBiweekly:
		return n.Div(biweeksPerMonth)
	}
	return n
}

// Calculate quotes a loan with simple interest.
func Calculate(p Params) (Quote, error) {
	return CalculateWith(p, MethodSimple)
}

// CalculateWith quotes a loan with the given interest method.
func CalculateWith(p Params, method Method) (Quote, error) {
	if err := p.Validate(); err != nil {
		return Quote{}, err
	}
	months := ElapsedMonths(p.Count, p.Cadence)
	count := decimal.NewFromInt(int64(p.Count))

	switch method {
	case MethodSimple, "":
		interest := p.Principal.Mul(p.MonthlyRate.Div(hundred)).Mul(months).Round(2)
		total := p.Principal.Add(interest)
		return Quote{
			InstallmentValue: total.Div(count).Round(2),
			TotalPayable:     total,
			TotalInterest:    interest,
			ElapsedMonths:    months,
		}, nil

	case MethodAmortized:
		installment := annuityPayment(p, months)
		total := installment.Mul(count)
		return Quote{
			InstallmentValue: installment,
			TotalPayable:     total,
			TotalInterest:    total.Sub(p.Principal),
			ElapsedMonths:    months,
		}, nil
	}
	return Quote{}, fmt.Errorf("%w: unknown interest method %q", models.ErrInvalidParameters, method)
}

// annuityPayment computes P·r·(1+r)^n / ((1+r)^n − 1) for the per-period rate r.
func annuityPayment(p Params, months decimal.Decimal) decimal.Decimal {
	count := decimal.NewFromInt(int64(p.Count))
	// per-period rate = monthly rate × months spanned by one period
	periodRate := p.MonthlyRate.Div(hundred).Mul(months).Div(count)
	if periodRate.IsZero() {
		return p.Principal.Div(count).Round(2)
	}
	growth := decimal.NewFromInt(1).Add(periodRate)
	factor := decimal.NewFromInt(1)
	for i := 0; i < p.Count; i++ {
		factor = factor.Mul(growth).Round(annuityScale)
	}
	return p.Principal.Mul(periodRate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))).Round(2)
}
