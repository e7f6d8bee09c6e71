package amortization

import (
	"strconv"
	"strings"

	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cadenceNoun = map[models.Cadence]string{
	models.CadenceDaily:    "daily",
	models.CadenceWeekly:   "weekly",
	models.CadenceBiweekly: "biweekly",
	models.CadenceMonthly:  "monthly",
}

// Describe renders the human-readable summary stored on a loan, e.g.
// "Loan of $1,000,000.00 payable in 30 daily installments of $40,000.00 each. Total payable: $1,200,000.00 (interest: $200,000.00)".
func Describe(q Quote, p Params) string {
	pr := message.NewPrinter(language.English)
	return pr.Sprintf("Loan of %s payable in %d %s installments of %s each. Total payable: %s (interest: %s)",
		money(pr, p.Principal), p.Count, cadenceNoun[p.Cadence],
		money(pr, q.InstallmentValue), money(pr, q.TotalPayable), money(pr, q.TotalInterest))
}

// money renders d with two decimals and grouped thousands. The printer only
// groups the whole part; the cents come from the exact decimal.
func money(pr *message.Printer, d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + "$" + fixed
	}
	return pr.Sprintf("%s$%d.%s", sign, n, cents)
}
