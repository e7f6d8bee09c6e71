// Package portfolio rolls the loan book up into daily health snapshots and
// per-collector performance figures.
package portfolio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/arrears"
	"github.com/mcclellann/fieldloan/pkg/ledger"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultGoalFraction is the share of total exposure expected to be collected per day.
var DefaultGoalFraction = decimal.RequireFromString("0.05")

var hundred = decimal.NewFromInt(100)

// Analyzer computes portfolio snapshots.
type Analyzer struct {
	storage      store.Storage
	classifier   *arrears.Classifier
	logger       *zap.Logger
	goalFraction decimal.Decimal
	location     *time.Location
	now          func() time.Time
}

type Option func(*Analyzer)

// WithGoalFraction overrides DefaultGoalFraction.
func WithGoalFraction(f decimal.Decimal) Option {
	return func(a *Analyzer) { a.goalFraction = f }
}

// WithClock replaces time.Now for timestamps and for deciding what today is.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithLocation sets the time zone that decides what today is. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) { a.location = loc }
}

func NewAnalyzer(s store.Storage, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		storage:      s,
		classifier:   arrears.NewClassifier(s, logger),
		logger:       logger,
		goalFraction: DefaultGoalFraction,
		location:     time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Options tune a snapshot run.
type Options struct {
	// IncludePaid also scans PAID loans. They count toward no bucket
	// exposure since their balance is zero.
	IncludePaid bool
}

func (a *Analyzer) today() time.Time {
	return models.DateOf(a.now().In(a.location))
}

// GenerateDailySnapshot aggregates the portfolio as of date and replaces the
// date's stored snapshot. For today the arrears of every loan are refreshed
// and stored first. Any other date is classified in memory and leaves the
// loans untouched. Aggregates that cannot be read degrade to zero.
func (a *Analyzer) GenerateDailySnapshot(ctx context.Context, date time.Time, opts Options) (*models.PortfolioSnapshot, error) {
	date = models.DateOf(date)
	op := zap.String("op", "portfolio.GenerateDailySnapshot")

	current := date.Equal(a.today())
	if current {
		if _, err := a.classifier.RecomputeAll(ctx, date); err != nil {
			a.logger.Warn("arrears refresh failed, using stored classification", op, zap.Error(err))
		}
	}

	statuses := []models.LoanStatus{models.LoanDisbursed, models.LoanOverdue}
	if opts.IncludePaid {
		statuses = append(statuses, models.LoanPaid)
	}
	loans, err := a.storage.ListLoansByStatus(ctx, statuses...)
	if err != nil {
		a.logger.Warn("failed to list loans, snapshot will be empty", op, zap.Error(err))
	}

	snap := &models.PortfolioSnapshot{
		ID:                   uuid.New(),
		AsOf:                 date,
		TotalExposure:        decimal.Zero,
		CurrentExposure:      decimal.Zero,
		EarlyArrearsExposure: decimal.Zero,
		HighArrearsExposure:  decimal.Zero,
		CriticalExposure:     decimal.Zero,
		PenaltyInterestTotal: decimal.Zero,
		CreatedAt:            a.now().UTC(),
	}

	daysSum, late := 0, 0
	for _, loan := range loans {
		exposure, err := ledger.OutstandingBalance(ctx, a.storage, loan)
		if err != nil {
			a.logger.Warn("failed to read balance, counting as zero", op,
				zap.String("loan_id", loan.ID.String()), zap.Error(err))
			exposure = decimal.Zero
		}
		if !current {
			loan = a.classifyAt(ctx, loan, exposure, date)
		}
		if loan.Status != models.LoanPaid {
			snap.ActiveLoans++
		}
		snap.TotalExposure = snap.TotalExposure.Add(exposure)
		snap.PenaltyInterestTotal = snap.PenaltyInterestTotal.Add(loan.PenaltyInterest)

		switch arrears.Band(loan.DaysPastDue) {
		case models.MoraCurrent:
			snap.CurrentLoans++
			snap.CurrentExposure = snap.CurrentExposure.Add(exposure)
		case models.MoraEarly:
			snap.EarlyArrearsLoans++
			snap.EarlyArrearsExposure = snap.EarlyArrearsExposure.Add(exposure)
		case models.MoraHigh:
			snap.HighArrearsLoans++
			snap.HighArrearsExposure = snap.HighArrearsExposure.Add(exposure)
		case models.MoraCritical:
			snap.CriticalArrearsLoans++
			snap.CriticalExposure = snap.CriticalExposure.Add(exposure)
		}
		if loan.DaysPastDue > 0 {
			daysSum += loan.DaysPastDue
			late++
		}
	}

	snap.OverdueExposure = snap.EarlyArrearsExposure.Add(snap.HighArrearsExposure).Add(snap.CriticalExposure)
	snap.OverduePercent = percent(snap.OverdueExposure, snap.TotalExposure)
	snap.AverageDaysPastDue = decimal.Zero
	if late > 0 {
		snap.AverageDaysPastDue = decimal.NewFromInt(int64(daysSum)).Div(decimal.NewFromInt(int64(late))).Round(2)
	}

	collected, err := a.storage.SumPaymentsBetween(ctx, date, date.AddDate(0, 0, 1))
	if err != nil {
		a.logger.Warn("failed to total today's payments, counting as zero", op, zap.Error(err))
		collected = decimal.Zero
	}
	snap.CollectedToday = collected
	snap.DailyGoal = snap.TotalExposure.Mul(a.goalFraction).Round(2)
	snap.GoalAttainmentPercent = percent(collected, snap.DailyGoal)

	if err := a.storage.ReplaceSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	a.logger.Info("portfolio snapshot stored", op,
		zap.String("as_of", date.Format(models.DateLayout)),
		zap.Int("active_loans", snap.ActiveLoans),
		zap.String("total_exposure", snap.TotalExposure.StringFixed(2)),
		zap.String("overdue_percent", snap.OverduePercent.StringFixed(2)),
		zap.String("collected", collected.StringFixed(2)))
	return snap, nil
}

// classifyAt returns a copy of loan carrying its arrears as of date. The
// stored loan is returned as is when it cannot be assessed.
func (a *Analyzer) classifyAt(ctx context.Context, loan *models.Loan, outstanding decimal.Decimal, date time.Time) *models.Loan {
	installments, err := a.storage.ListInstallments(ctx, loan.ID)
	if err != nil {
		a.logger.Warn("failed to list installments, using stored classification",
			zap.String("op", "portfolio.classifyAt"),
			zap.String("loan_id", loan.ID.String()), zap.Error(err))
		return loan
	}
	assessment, ok := arrears.Evaluate(loan, installments, outstanding, date)
	if !ok {
		return loan
	}
	view := *loan
	assessment.Apply(&view)
	return &view
}

// Snapshot returns the stored snapshot for date.
func (a *Analyzer) Snapshot(ctx context.Context, date time.Time) (*models.PortfolioSnapshot, error) {
	return a.storage.GetSnapshot(ctx, models.DateOf(date))
}

// percent is part/whole×100 rounded to cents, zero when whole is zero.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}
