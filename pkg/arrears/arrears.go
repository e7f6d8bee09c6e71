// Package arrears classifies disbursed loans by days past due and keeps their
// penalty interest current.
package arrears

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/ledger"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Band maps days past due to a mora state.
func Band(days int) models.MoraState {
	switch {
	case days <= 0:
		return models.MoraCurrent
	case days <= 30:
		return models.MoraEarly
	case days <= 90:
		return models.MoraHigh
	}
	return models.MoraCritical
}

// Assessment is the outcome of classifying one loan.
type Assessment struct {
	ReferenceDueDate *time.Time
	DaysPastDue      int
	MoraState        models.MoraState
	PenaltyInterest  decimal.Decimal
	// Escalate is set when a DISBURSED loan reached CRITICAL_ARREARS and moves to OVERDUE.
	Escalate bool
}

// Evaluate classifies loan as of asOf. Only DISBURSED loans are assessed;
// ok is false for every other status. The reference due date sticks once
// found: it is looked up only when the loan has none.
func Evaluate(loan *models.Loan, installments []*models.Installment, outstanding decimal.Decimal, asOf time.Time) (a Assessment, ok bool) {
	if loan.Status != models.LoanDisbursed {
		return Assessment{}, false
	}
	asOf = models.DateOf(asOf)

	ref := loan.ReferenceDueDate
	if ref == nil {
		for _, inst := range installments {
			if inst.State != models.InstallmentPending && inst.State != models.InstallmentPartial {
				continue
			}
			if !inst.DueDate.Before(asOf) {
				continue
			}
			if ref == nil || inst.DueDate.Before(*ref) {
				d := inst.DueDate
				ref = &d
			}
		}
		if ref == nil {
			return Assessment{MoraState: models.MoraCurrent, PenaltyInterest: decimal.Zero}, true
		}
	}

	days := models.DaysBetween(*ref, asOf)
	if days < 0 {
		days = 0
	}
	a = Assessment{
		ReferenceDueDate: ref,
		DaysPastDue:      days,
		MoraState:        Band(days),
		PenaltyInterest:  Penalty(outstanding, loan.DailyPenaltyRate, days),
	}
	a.Escalate = a.MoraState == models.MoraCritical
	return a, true
}

// Penalty is outstanding × daily rate/100 × days, rounded to cents.
func Penalty(outstanding, dailyRate decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return outstanding.Mul(dailyRate.Div(hundred)).Mul(decimal.NewFromInt(int64(days))).Round(2)
}

// Apply copies an assessment onto the loan.
func (a Assessment) Apply(loan *models.Loan) {
	if a.ReferenceDueDate != nil {
		d := *a.ReferenceDueDate
		loan.ReferenceDueDate = &d
	}
	loan.DaysPastDue = a.DaysPastDue
	loan.MoraState = a.MoraState
	loan.PenaltyInterest = a.PenaltyInterest
	if a.Escalate && loan.Status.CanTransitionTo(models.LoanOverdue) {
		loan.Status = models.LoanOverdue
	}
}

// Classifier persists arrears assessments.
type Classifier struct {
	storage store.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewClassifier creates a Classifier over s.
func NewClassifier(s store.Storage, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{storage: s, logger: logger, now: time.Now}
}

// RecomputeLoan assesses loan through s and stores the result. It returns
// the assessment and whether the loan was assessed at all.
func RecomputeLoan(ctx context.Context, s store.Storage, loan *models.Loan, asOf time.Time, now time.Time) (Assessment, bool, error) {
	if loan.Status != models.LoanDisbursed {
		return Assessment{}, false, nil
	}
	installments, err := s.ListInstallments(ctx, loan.ID)
	if err != nil {
		return Assessment{}, false, err
	}
	outstanding, err := ledger.OutstandingBalance(ctx, s, loan)
	if err != nil {
		return Assessment{}, false, err
	}
	a, ok := Evaluate(loan, installments, outstanding, asOf)
	if !ok {
		return a, false, nil
	}
	a.Apply(loan)
	loan.UpdatedAt = now.UTC()
	if err := s.UpdateLoan(ctx, loan); err != nil {
		return Assessment{}, false, fmt.Errorf("failed to store arrears for loan %s: %w", loan.ID, err)
	}
	return a, true, nil
}

// Recompute reassesses one loan as of asOf and returns the stored loan.
func (c *Classifier) Recompute(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*models.Loan, error) {
	var loan *models.Loan
	err := c.storage.RunInTx(ctx, func(tx store.Storage) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		_, _, err = RecomputeLoan(ctx, tx, loan, asOf, c.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// BatchResult counts what a batch recompute did.
type BatchResult struct {
	Scanned   int `json:"scanned"`
	InArrears int `json:"in_arrears"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// RecomputeAll reassesses every DISBURSED loan. A loan that fails is logged
// and skipped.
func (c *Classifier) RecomputeAll(ctx context.Context, asOf time.Time) (BatchResult, error) {
	var res BatchResult
	loans, err := c.storage.ListLoansByStatus(ctx, models.LoanDisbursed)
	if err != nil {
		return res, fmt.Errorf("failed to list disbursed loans: %w", err)
	}
	for _, loan := range loans {
		res.Scanned++
		var a Assessment
		err := c.storage.RunInTx(ctx, func(tx store.Storage) error {
			locked, err := tx.GetLoanForUpdate(ctx, loan.ID)
			if err != nil {
				return err
			}
			a, _, err = RecomputeLoan(ctx, tx, locked, asOf, c.now())
			return err
		})
		if err != nil {
			res.Failed++
			c.logger.Error("arrears recompute failed",
				zap.String("op", "arrears.RecomputeAll"),
				zap.String("loan_id", loan.ID.String()),
				zap.Error(err))
			continue
		}
		if a.DaysPastDue > 0 {
			res.InArrears++
		}
		if a.Escalate {
			res.Escalated++
		}
	}
	c.logger.Info("arrears recomputed",
		zap.String("op", "arrears.RecomputeAll"),
		zap.String("as_of", models.DateOf(asOf).Format(models.DateLayout)),
		zap.Int("scanned", res.Scanned),
		zap.Int("in_arrears", res.InArrears),
		zap.Int("escalated", res.Escalated),
		zap.Int("failed", res.Failed))
	return res, nil
}
