package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/amortization"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/routing"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger handles the loan lifecycle, schedules and balances.
type Ledger struct {
	storage     store.Storage
	logger      *zap.Logger
	method      amortization.Method
	penaltyRate decimal.Decimal
	now         func() time.Time
}

type Option func(*Ledger)

// WithInterestMethod selects the formula used to quote new loans.
func WithInterestMethod(m amortization.Method) Option {
	return func(l *Ledger) { l.method = m }
}

// WithDailyPenaltyRate sets the arrears rate (percent per day) given to new loans.
func WithDailyPenaltyRate(rate decimal.Decimal) Option {
	return func(l *Ledger) { l.penaltyRate = rate }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		storage:     s,
		logger:      logger,
		method:      amortization.MethodSimple,
		penaltyRate: models.DefaultDailyPenaltyRate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateClient validates and registers a client.
func (l *Ledger) CreateClient(ctx context.Context, c *models.Client) (*models.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = uuid.New()
	c.Active = true
	c.RegisteredAt = l.now().UTC()
	if err := l.storage.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	return c, nil
}

// LoanRequest carries the terms of a new loan.
type LoanRequest struct {
	ClientID    uuid.UUID
	Principal   decimal.Decimal
	MonthlyRate decimal.Decimal
	Count       int
	Cadence     models.Cadence
	// CollectorID assigns a collector by hand; nil lets the route index pick one.
	CollectorID *uuid.UUID
	// DailyPenaltyRate overrides the ledger default when set.
	DailyPenaltyRate *decimal.Decimal
}

// RequestLoan quotes and stores a loan in REQUESTED status.
func (l *Ledger) RequestLoan(ctx context.Context, req LoanRequest) (*models.Loan, error) {
	client, err := l.storage.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, fmt.Errorf("%w: client %s is inactive", models.ErrInvalidParameters, client.ID)
	}

	params := amortization.Params{
		Principal:   req.Principal,
		MonthlyRate: req.MonthlyRate,
		Count:       req.Count,
		Cadence:     req.Cadence,
	}
	quote, err := amortization.CalculateWith(params, l.method)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	penalty := l.penaltyRate
	if req.DailyPenaltyRate != nil {
		if req.DailyPenaltyRate.IsNegative() {
			return nil, fmt.Errorf("%w: daily penalty rate cannot be negative", models.ErrInvalidParameters)
		}
		penalty = *req.DailyPenaltyRate
	}
	loan := &models.Loan{
		ID:               uuid.New(),
		ClientID:         client.ID,
		CollectorID:      req.CollectorID,
		Principal:        req.Principal,
		MonthlyRate:      req.MonthlyRate,
		Cadence:          req.Cadence,
		InstallmentCount: req.Count,
		InstallmentValue: quote.InstallmentValue,
		TotalPayable:     quote.TotalPayable,
		TotalInterest:    quote.TotalInterest,
		ElapsedMonths:    quote.ElapsedMonths,
		Description:      amortization.Describe(quote, params),
		Status:           models.LoanRequested,
		RequestedAt:      now,
		MoraState:        models.MoraCurrent,
		PenaltyInterest:  decimal.Zero,
		DailyPenaltyRate: penalty,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if loan.CollectorID != nil {
		if _, err := l.storage.GetCollector(ctx, *loan.CollectorID); err != nil {
			return nil, err
		}
	} else {
		suggested, err := l.suggestCollector(ctx, client.Neighborhood)
		if err != nil {
			return nil, err
		}
		if suggested != nil {
			loan.CollectorID = &suggested.ID
		}
	}

	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	l.logger.Info("loan requested",
		zap.String("op", "ledger.RequestLoan"),
		zap.String("loan_id", loan.ID.String()),
		zap.String("total_payable", loan.TotalPayable.StringFixed(2)))
	return loan, nil
}

func (l *Ledger) suggestCollector(ctx context.Context, neighborhood string) (*models.Collector, error) {
	if routing.Normalize(neighborhood) == "" {
		return nil, nil
	}
	routes, err := l.storage.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	collectors, err := l.storage.ListCollectors(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := l.storage.CountActiveLoansByCollector(ctx)
	if err != nil {
		return nil, err
	}
	return routing.NewIndex(routes, collectors).Suggest(neighborhood, counts), nil
}

// AssignCollector assigns the suggested collector when the loan has none, or
// always when force is set. It reports whether the loan changed.
func (l *Ledger) AssignCollector(ctx context.Context, loanID uuid.UUID, force bool) (bool, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return false, err
	}
	if loan.CollectorID != nil && !force {
		return false, nil
	}
	client, err := l.storage.GetClient(ctx, loan.ClientID)
	if err != nil {
		return false, err
	}
	suggested, err := l.suggestCollector(ctx, client.Neighborhood)
	if err != nil {
		return false, err
	}
	if suggested == nil {
		return false, nil
	}
	loan.CollectorID = &suggested.ID
	loan.UpdatedAt = l.now().UTC()
	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return false, fmt.Errorf("failed to update loan collector: %w", err)
	}
	return true, nil
}

func (l *Ledger) transition(ctx context.Context, s store.Storage, loanID uuid.UUID, next models.LoanStatus, mutate func(*models.Loan)) (*models.Loan, error) {
	loan, err := s.GetLoanForUpdate(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: loan %s cannot move from %s to %s", models.ErrInvalidTransition, loan.ID, loan.Status, next)
	}
	loan.Status = next
	loan.UpdatedAt = l.now().UTC()
	if mutate != nil {
		mutate(loan)
	}
	if err := s.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to update loan status: %w", err)
	}
	return loan, nil
}

// ApproveLoan moves a REQUESTED loan to APPROVED.
func (l *Ledger) ApproveLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return l.transition(ctx, l.storage, loanID, models.LoanApproved, func(loan *models.Loan) {
		at := l.now().UTC()
		loan.ApprovedAt = &at
	})
}

// RejectLoan moves a REQUESTED loan to REJECTED.
func (l *Ledger) RejectLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return l.transition(ctx, l.storage, loanID, models.LoanRejected, nil)
}

// DisburseLoan marks an APPROVED loan DISBURSED on the given date and
// generates its schedule in the same transaction.
func (l *Ledger) DisburseLoan(ctx context.Context, loanID uuid.UUID, on time.Time) (*models.Loan, []*models.Installment, error) {
	var loan *models.Loan
	var schedule []*models.Installment
	err := l.storage.RunInTx(ctx, func(tx store.Storage) error {
		var err error
		loan, err = l.transition(ctx, tx, loanID, models.LoanDisbursed, func(loan *models.Loan) {
			d := models.DateOf(on)
			loan.DisbursedAt = &d
		})
		if err != nil {
			return err
		}
		schedule, err = buildSchedule(ctx, tx, loan)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	l.logger.Info("loan disbursed",
		zap.String("op", "ledger.DisburseLoan"),
		zap.String("loan_id", loan.ID.String()),
		zap.Int("installments", len(schedule)))
	return loan, schedule, nil
}

// GenerateSchedule replaces the loan's installments with a fresh schedule
// anchored at its disbursement date. Calling it again yields an equivalent schedule.
func (l *Ledger) GenerateSchedule(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	var schedule []*models.Installment
	err := l.storage.RunInTx(ctx, func(tx store.Storage) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		schedule, err = buildSchedule(ctx, tx, loan)
		return err
	})
	return schedule, err
}

// buildSchedule writes one installment per due date. The last installment
// absorbs rounding so the schedule sums to the total payable.
func buildSchedule(ctx context.Context, s store.Storage, loan *models.Loan) ([]*models.Installment, error) {
	if loan.DisbursedAt == nil {
		return nil, fmt.Errorf("%w: loan %s has no disbursement date", models.ErrInvalidParameters, loan.ID)
	}
	dates := amortization.DueDates(*loan.DisbursedAt, loan.Cadence, loan.InstallmentCount)
	schedule := make([]*models.Installment, 0, len(dates))
	allocated := decimal.Zero
	for i, d := range dates {
		amount := loan.InstallmentValue
		if i == len(dates)-1 {
			amount = loan.TotalPayable.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		schedule = append(schedule, &models.Installment{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			Number:     d.Number,
			DueDate:    d.Date,
			Amount:     amount,
			AmountPaid: decimal.Zero,
			State:      models.InstallmentPending,
		})
	}
	if err := s.ReplaceInstallments(ctx, loan.ID, schedule); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}
	return schedule, nil
}

// GetClient retrieves a client by its ID.
func (l *Ledger) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return l.storage.GetClient(ctx, id)
}

// ListLoans returns the loans in any of statuses, or every loan when none are given.
func (l *Ledger) ListLoans(ctx context.Context, statuses ...models.LoanStatus) ([]*models.Loan, error) {
	if len(statuses) == 0 {
		statuses = []models.LoanStatus{models.LoanRequested, models.LoanApproved, models.LoanDisbursed,
			models.LoanPaid, models.LoanRejected, models.LoanOverdue}
	}
	return l.storage.ListLoansByStatus(ctx, statuses...)
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(ctx, id)
}

// ListInstallments retrieves a loan's schedule.
func (l *Ledger) ListInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.ListInstallments(ctx, loanID)
}

// ListPayments retrieves a loan's payments.
func (l *Ledger) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.ListPayments(ctx, loanID)
}

// TotalPaid is the sum of every payment recorded on the loan.
func (l *Ledger) TotalPaid(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	return TotalPaid(ctx, l.storage, loanID)
}

// OutstandingBalance is what remains to be paid on the loan.
func (l *Ledger) OutstandingBalance(ctx context.Context, loan *models.Loan) (decimal.Decimal, error) {
	return OutstandingBalance(ctx, l.storage, loan)
}

// CanAcceptPayment reports whether the loan may take a new payment.
func (l *Ledger) CanAcceptPayment(ctx context.Context, loan *models.Loan) (bool, error) {
	balance, err := OutstandingBalance(ctx, l.storage, loan)
	if err != nil {
		return false, err
	}
	return CanAcceptPayment(loan, balance), nil
}

// IsSettled reports whether nothing remains to be paid.
func (l *Ledger) IsSettled(ctx context.Context, loan *models.Loan) (bool, error) {
	balance, err := OutstandingBalance(ctx, l.storage, loan)
	if err != nil {
		return false, err
	}
	return !balance.IsPositive(), nil
}

// Summary is a loan with its running balance, as shown on receipts and exports.
type Summary struct {
	Loan               *models.Loan    `json:"loan"`
	ClientName         string          `json:"client_name"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	PaidInstallments   int             `json:"paid_installments"`
	OpenInstallments   int             `json:"open_installments"`
}

// LoanSummary collects the loan, its client name and its balances.
func (l *Ledger) LoanSummary(ctx context.Context, loanID uuid.UUID) (*Summary, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	client, err := l.storage.GetClient(ctx, loan.ClientID)
	if err != nil {
		return nil, err
	}
	paid, err := TotalPaid(ctx, l.storage, loanID)
	if err != nil {
		return nil, err
	}
	installments, err := l.storage.ListInstallments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Loan:               loan,
		ClientName:         client.FullName(),
		TotalPaid:          paid,
		OutstandingBalance: Outstanding(loan, paid),
	}
	for _, inst := range installments {
		if inst.State == models.InstallmentPaid {
			sum.PaidInstallments++
		} else {
			sum.OpenInstallments++
		}
	}
	return sum, nil
}
