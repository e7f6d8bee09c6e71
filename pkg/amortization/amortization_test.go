package amortization

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate_DailyScenario(t *testing.T) {
	q, err := Calculate(Params{
		Principal:   dec("1000000"),
		MonthlyRate: dec("20"),
		Count:       30,
		Cadence:     models.CadenceDaily,
	})
	require.NoError(t, err)

	assert.True(t, q.ElapsedMonths.Equal(dec("1")), "elapsed months %s", q.ElapsedMonths)
	assert.True(t, q.TotalInterest.Equal(dec("200000")), "interest %s", q.TotalInterest)
	assert.True(t, q.TotalPayable.Equal(dec("1200000")), "total %s", q.TotalPayable)
	assert.True(t, q.InstallmentValue.Equal(dec("40000")), "installment %s", q.InstallmentValue)
}

func TestCalculate_Invariants(t *testing.T) {
	cases := []Params{
		{Principal: dec("1000000"), MonthlyRate: dec("20"), Count: 30, Cadence: models.CadenceDaily},
		{Principal: dec("500000"), MonthlyRate: dec("10"), Count: 7, Cadence: models.CadenceWeekly},
		{Principal: dec("333333"), MonthlyRate: dec("7.5"), Count: 9, Cadence: models.CadenceBiweekly},
		{Principal: dec("2500000"), MonthlyRate: dec("3"), Count: 12, Cadence: models.CadenceMonthly},
		{Principal: dec("100"), MonthlyRate: dec("0"), Count: 3, Cadence: models.CadenceMonthly},
	}
	for _, method := range []Method{MethodSimple, MethodAmortized} {
		for _, p := range cases {
			q, err := CalculateWith(p, method)
			require.NoError(t, err)

			assert.True(t, q.TotalPayable.Sub(p.Principal).Equal(q.TotalInterest),
				"%s %s: total - principal != interest", method, p.Cadence)

			tolerance := decimal.NewFromFloat(0.005).Mul(decimal.NewFromInt(int64(p.Count)))
			diff := q.InstallmentValue.Mul(decimal.NewFromInt(int64(p.Count))).Sub(q.TotalPayable).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance),
				"%s %s: installment × count drifts %s from total", method, p.Cadence, diff)
		}
	}
}

func TestCalculate_ElapsedMonths(t *testing.T) {
	assert.True(t, ElapsedMonths(60, models.CadenceDaily).Equal(dec("2")))
	assert.True(t, ElapsedMonths(433, models.CadenceWeekly).Equal(dec("100")))
	assert.True(t, ElapsedMonths(6, models.CadenceBiweekly).Equal(dec("3")))
	assert.True(t, ElapsedMonths(5, models.CadenceMonthly).Equal(dec("5")))
}

func TestCalculate_InvalidParameters(t *testing.T) {
	valid := Params{Principal: dec("1000"), MonthlyRate: dec("5"), Count: 4, Cadence: models.CadenceWeekly}

	tests := map[string]func(p *Params){
		"zero principal":     func(p *Params) { p.Principal = decimal.Zero },
		"negative principal": func(p *Params) { p.Principal = dec("-1") },
		"negative rate":      func(p *Params) { p.MonthlyRate = dec("-0.1") },
		"zero count":         func(p *Params) { p.Count = 0 },
		"unknown cadence":    func(p *Params) { p.Cadence = "YEARLY" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			_, err := Calculate(p)
			assert.True(t, errors.Is(err, models.ErrInvalidParameters), "got %v", err)
		})
	}
}

func TestCalculateWith_AmortizedCostsMoreThanPrincipal(t *testing.T) {
	q, err := CalculateWith(Params{
		Principal:   dec("1200"),
		MonthlyRate: dec("2"),
		Count:       12,
		Cadence:     models.CadenceMonthly,
	}, MethodAmortized)
	require.NoError(t, err)

	// 1200 at 2%/month over 12 months pays 113.47 per month.
	assert.True(t, q.InstallmentValue.Equal(dec("113.47")), "installment %s", q.InstallmentValue)
	assert.True(t, q.TotalInterest.IsPositive())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodSimple, m)

	m, err = ParseMethod("amortized")
	require.NoError(t, err)
	assert.Equal(t, MethodAmortized, m)

	_, err = ParseMethod("compound")
	assert.ErrorIs(t, err, models.ErrInvalidParameters)
}

func TestDueDates(t *testing.T) {
	start := time.Date(2024, time.January, 31, 15, 30, 0, 0, time.UTC)

	t.Run("monthly clamps to month end", func(t *testing.T) {
		dates := DueDates(start, models.CadenceMonthly, 3)
		require.Len(t, dates, 3)
		assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), dates[0].Date)
		assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), dates[1].Date)
		assert.Equal(t, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC), dates[2].Date)
	})

	t.Run("monthly across year end", func(t *testing.T) {
		dates := DueDates(time.Date(2023, time.November, 30, 0, 0, 0, 0, time.UTC), models.CadenceMonthly, 3)
		assert.Equal(t, time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC), dates[0].Date)
		assert.Equal(t, time.Date(2024, time.January, 30, 0, 0, 0, 0, time.UTC), dates[1].Date)
		assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), dates[2].Date)
	})

	t.Run("daily weekly biweekly steps", func(t *testing.T) {
		base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, base.AddDate(0, 0, 2), DueDates(base, models.CadenceDaily, 2)[1].Date)
		assert.Equal(t, base.AddDate(0, 0, 14), DueDates(base, models.CadenceWeekly, 2)[1].Date)
		assert.Equal(t, base.AddDate(0, 0, 30), DueDates(base, models.CadenceBiweekly, 2)[1].Date)
	})

	t.Run("weekend flag without moving the date", func(t *testing.T) {
		// 2024-03-01 is a Friday.
		dates := DueDates(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), models.CadenceDaily, 3)
		assert.True(t, dates[0].Weekend)
		assert.Equal(t, time.Saturday, dates[0].Date.Weekday())
		assert.True(t, dates[1].Weekend)
		assert.False(t, dates[2].Weekend)
		assert.Equal(t, 1, dates[0].Number)
		assert.Equal(t, 3, dates[2].Number)
	})
}

func TestDescribe(t *testing.T) {
	p := Params{Principal: dec("1000000"), MonthlyRate: dec("20"), Count: 30, Cadence: models.CadenceDaily}
	q, err := Calculate(p)
	require.NoError(t, err)

	assert.Equal(t,
		"Loan of $1,000,000.00 payable in 30 daily installments of $40,000.00 each. Total payable: $1,200,000.00 (interest: $200,000.00)",
		Describe(q, p))
}

func TestDescribe_KeepsExactCents(t *testing.T) {
	p := Params{Principal: dec("9007199254740993.10"), Count: 1, Cadence: models.CadenceMonthly}
	q := Quote{InstallmentValue: dec("9007199254740993.10"), TotalPayable: dec("9007199254740993.10"), TotalInterest: dec("0.005")}

	assert.Equal(t,
		"Loan of $9,007,199,254,740,993.10 payable in 1 monthly installments of $9,007,199,254,740,993.10 each. "+
			"Total payable: $9,007,199,254,740,993.10 (interest: $0.01)",
		Describe(q, p))
}

func TestCalculateWith_AmortizedDaily(t *testing.T) {
	q, err := CalculateWith(Params{
		Principal:   dec("300000"),
		MonthlyRate: dec("10"),
		Count:       30,
		Cadence:     models.CadenceDaily,
	}, MethodAmortized)
	require.NoError(t, err)

	// r = 0.10 × 1 / 30 per day; the annuity lands between the interest-free
	// 10,000 and the simple-interest 11,000.
	assert.True(t, q.InstallmentValue.GreaterThan(dec("10000")), "installment %s", q.InstallmentValue)
	assert.True(t, q.InstallmentValue.LessThan(dec("11000")), "installment %s", q.InstallmentValue)
	assert.True(t, q.InstallmentValue.Equal(q.InstallmentValue.Round(2)), "rounded to cents")
	assert.True(t, q.TotalPayable.Equal(q.InstallmentValue.Mul(dec("30"))))
}
