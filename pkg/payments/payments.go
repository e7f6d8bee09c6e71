// Package payments records cash received against loans, both from the
// counter and from field collectors completing their tasks.
//
// Every payment runs in one storage transaction that reads the loan and the
// installment under lock, so two racing payments can never push a balance
// below zero or settle a loan twice.
package payments

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/ledger"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Recorder applies payments and task outcomes.
type Recorder struct {
	storage store.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder over s.
func NewRecorder(s store.Storage, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{storage: s, logger: logger, now: time.Now}
}

// PaymentRequest describes cash received for a loan. With no InstallmentID
// the payment goes to the earliest open installment. A zero PaidAt means now.
type PaymentRequest struct {
	LoanID        uuid.UUID
	InstallmentID *uuid.UUID
	Amount        decimal.Decimal
	Notes         string
	PaidAt        time.Time
}

// Receipt is what a caller needs to render proof of payment.
type Receipt struct {
	Payment          *models.Payment         `json:"payment"`
	LoanID           uuid.UUID               `json:"loan_id"`
	Balance          decimal.Decimal         `json:"balance"`
	LoanStatus       models.LoanStatus       `json:"loan_status"`
	InstallmentState models.InstallmentState `json:"installment_state,omitempty"`
}

// RecordPayment validates and stores a payment.
func (r *Recorder) RecordPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	var receipt *Receipt
	err := r.storage.RunInTx(ctx, func(tx store.Storage) error {
		var err error
		receipt, err = r.record(ctx, tx, req)
		return err
	})
	if err != nil {
		r.logger.Warn("payment rejected",
			zap.String("op", "payments.RecordPayment"),
			zap.String("loan_id", req.LoanID.String()),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, err
	}
	r.logger.Info("payment recorded",
		zap.String("op", "payments.RecordPayment"),
		zap.String("loan_id", req.LoanID.String()),
		zap.String("payment_id", receipt.Payment.ID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("balance", receipt.Balance.StringFixed(2)))
	return receipt, nil
}

// record is the single payment path. It must run inside tx.
func (r *Recorder) record(ctx context.Context, tx store.Storage, req PaymentRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be greater than zero", models.ErrInvalidParameters)
	}

	loan, err := tx.GetLoanForUpdate(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.Payable() {
		return nil, fmt.Errorf("%w: loan is %s", models.ErrLoanNotPayable, loan.Status)
	}
	balance, err := ledger.OutstandingBalance(ctx, tx, loan)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(balance) {
		return nil, fmt.Errorf("%w: amount %s, outstanding %s", models.ErrPaymentExceedsBalance,
			req.Amount.StringFixed(2), balance.StringFixed(2))
	}

	installments, err := tx.ListInstallments(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	target, err := pickInstallment(installments, req.InstallmentID)
	if err != nil {
		return nil, err
	}

	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = r.now()
	}
	paidAt = paidAt.UTC()

	payment := &models.Payment{
		ID:     uuid.New(),
		LoanID: loan.ID,
		Amount: req.Amount,
		PaidAt: paidAt,
		Notes:  strings.TrimSpace(req.Notes),
	}
	receipt := &Receipt{Payment: payment, LoanID: loan.ID}

	if target != nil {
		payment.InstallmentID = &target.ID
		payment.InstallmentNumber = target.Number
		if err := allocate(ctx, tx, loan, installments, target, req.Amount, paidAt); err != nil {
			return nil, err
		}
		receipt.InstallmentState = target.State
	}

	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	balance = balance.Sub(req.Amount)
	if balance.Sign() <= 0 && loan.Status.CanTransitionTo(models.LoanPaid) {
		loan.Status = models.LoanPaid
		loan.ReferenceDueDate = nil
		loan.DaysPastDue = 0
		loan.MoraState = models.MoraCurrent
		loan.PenaltyInterest = decimal.Zero
	}
	loan.UpdatedAt = r.now().UTC()
	if err := tx.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}

	receipt.Balance = balance
	receipt.LoanStatus = loan.Status
	return receipt, nil
}

// pickInstallment resolves the installment a payment is applied to. It
// returns nil when the loan has no schedule yet.
func pickInstallment(installments []*models.Installment, id *uuid.UUID) (*models.Installment, error) {
	if id != nil {
		for _, inst := range installments {
			if inst.ID != *id {
				continue
			}
			if !inst.IsOpen() {
				return nil, fmt.Errorf("%w: installment %d is already paid", models.ErrInvalidParameters, inst.Number)
			}
			return inst, nil
		}
		return nil, fmt.Errorf("%w: installment %s does not belong to the loan", models.ErrInvalidParameters, id)
	}
	for _, inst := range installments {
		if inst.IsOpen() {
			return inst, nil
		}
	}
	return nil, nil
}

// allocate applies amount to target and spills what exceeds its remainder
// into the loan's other open installments by number. An installment never
// receives more than it still owes; target is refreshed in place.
func allocate(ctx context.Context, tx store.Storage, loan *models.Loan, installments []*models.Installment,
	target *models.Installment, amount decimal.Decimal, paidAt time.Time) error {
	order := []*models.Installment{target}
	rest := make([]*models.Installment, 0, len(installments))
	for _, inst := range installments {
		if inst.ID != target.ID && inst.IsOpen() {
			rest = append(rest, inst)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Number < rest[j].Number })
	order = append(order, rest...)

	for _, inst := range order {
		if !amount.IsPositive() {
			break
		}
		current, err := tx.GetInstallmentForUpdate(ctx, inst.ID)
		if err != nil {
			return err
		}
		applied := decimal.Min(amount, current.Remaining())
		if !applied.IsPositive() {
			continue
		}
		day := models.DateOf(paidAt)
		current.AmountPaid = current.AmountPaid.Add(applied)
		current.PaidOn = &day
		if current.AmountPaid.GreaterThanOrEqual(current.Amount) {
			current.State = models.InstallmentPaid
			if loan.ReferenceDueDate != nil && loan.ReferenceDueDate.Equal(current.DueDate) {
				loan.ReferenceDueDate = nil
			}
		} else {
			current.State = models.InstallmentPartial
		}
		if err := tx.UpdateInstallment(ctx, current); err != nil {
			return fmt.Errorf("failed to update installment %d: %w", current.Number, err)
		}
		if current.ID == target.ID {
			*target = *current
		}
		amount = amount.Sub(applied)
	}
	return nil
}
