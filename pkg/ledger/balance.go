package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
)

// The functions below take the Storage explicitly so callers holding a
// transaction read balances through it.

// TotalPaid sums the loan's payments, zero when there are none.
func TotalPaid(ctx context.Context, s store.Storage, loanID uuid.UUID) (decimal.Decimal, error) {
	paid, err := s.SumPayments(ctx, loanID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to total payments: %w", err)
	}
	return paid, nil
}

// Outstanding is max(0, total payable − paid).
func Outstanding(loan *models.Loan, paid decimal.Decimal) decimal.Decimal {
	balance := loan.TotalPayable.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// OutstandingBalance reads the loan's payments and returns its balance.
func OutstandingBalance(ctx context.Context, s store.Storage, loan *models.Loan) (decimal.Decimal, error) {
	paid, err := TotalPaid(ctx, s, loan.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return Outstanding(loan, paid), nil
}

// CanAcceptPayment is true for APPROVED or DISBURSED loans with a positive balance.
func CanAcceptPayment(loan *models.Loan, balance decimal.Decimal) bool {
	return (loan.Status == models.LoanApproved || loan.Status == models.LoanDisbursed) && balance.IsPositive()
}
