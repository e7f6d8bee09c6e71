// Package jobs runs the daily batch work shared by the cron scheduler and
// the loanjobs command.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/fieldloan/pkg/arrears"
	"github.com/mcclellann/fieldloan/pkg/collection"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/portfolio"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Job names accepted by Run.
const (
	JobTasks    = "tasks"
	JobArrears  = "arrears"
	JobSnapshot = "snapshot"
	JobHealth   = "health"
	JobAll      = "all"
)

// Runner executes the daily jobs against one Storage.
type Runner struct {
	storage     store.Storage
	generator   *collection.Generator
	classifier  *arrears.Classifier
	analyzer    *portfolio.Analyzer
	logger      *zap.Logger
	location    *time.Location
	includePaid bool
	now         func() time.Time
}

type Option func(*runnerOptions)

type runnerOptions struct {
	location     *time.Location
	goalFraction decimal.Decimal
	includePaid  bool
	now          func() time.Time
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(o *runnerOptions) { o.location = loc }
}

// WithGoalFraction sets the snapshot goal fraction.
func WithGoalFraction(f decimal.Decimal) Option {
	return func(o *runnerOptions) { o.goalFraction = f }
}

// WithIncludePaid makes snapshots scan PAID loans too.
func WithIncludePaid(include bool) Option {
	return func(o *runnerOptions) { o.includePaid = include }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *runnerOptions) { o.now = now }
}

func NewRunner(s store.Storage, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := runnerOptions{location: time.UTC, goalFraction: portfolio.DefaultGoalFraction, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{
		storage:     s,
		generator:   collection.NewGenerator(s, logger),
		classifier:  arrears.NewClassifier(s, logger),
		analyzer:    portfolio.NewAnalyzer(s, logger,
			portfolio.WithGoalFraction(o.goalFraction),
			portfolio.WithLocation(o.location),
			portfolio.WithClock(o.now)),
		logger:      logger,
		location:    o.location,
		includePaid: o.includePaid,
		now:         o.now,
	}
}

// Today is the current calendar date in the runner's time zone.
func (r *Runner) Today() time.Time {
	y, m, d := r.now().In(r.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyTasks generates the date's collection tasks. Unless force is set the
// run is skipped when the date already has tasks.
func (r *Runner) DailyTasks(ctx context.Context, date time.Time, force, verbose bool) (int, error) {
	date = models.DateOf(date)
	if !force {
		existing, err := r.storage.CountTasks(ctx, date)
		if err != nil {
			return 0, fmt.Errorf("failed to count tasks: %w", err)
		}
		if existing > 0 {
			r.logger.Info("tasks already generated, skipping",
				zap.String("op", "jobs.DailyTasks"),
				zap.String("date", date.Format(models.DateLayout)),
				zap.Int("existing", existing))
			return 0, nil
		}
	}
	return r.generator.GenerateDailyTasks(ctx, date, collection.Options{Verbose: verbose, Force: force})
}

func (r *Runner) DailyArrears(ctx context.Context, date time.Time) (arrears.BatchResult, error) {
	return r.classifier.RecomputeAll(ctx, date)
}

func (r *Runner) DailySnapshot(ctx context.Context, date time.Time) (*models.PortfolioSnapshot, error) {
	return r.analyzer.GenerateDailySnapshot(ctx, date, portfolio.Options{IncludePaid: r.includePaid})
}

// Health summarizes what the storage currently holds.
type Health struct {
	ActiveLoans  int `json:"active_loans"`
	OverdueLoans int `json:"overdue_loans"`
	TasksToday   int `json:"tasks_today"`
	Collectors   int `json:"collectors"`
}

// HealthCheck reads a few aggregates to prove the storage answers.
func (r *Runner) HealthCheck(ctx context.Context) (Health, error) {
	var h Health
	active, err := r.storage.ListLoansByStatus(ctx, store.ActiveLoanStatuses...)
	if err != nil {
		return h, fmt.Errorf("health check failed: %w", err)
	}
	h.ActiveLoans = len(active)
	for _, loan := range active {
		if loan.Status == models.LoanOverdue {
			h.OverdueLoans++
		}
	}
	if h.TasksToday, err = r.storage.CountTasks(ctx, r.Today()); err != nil {
		return h, fmt.Errorf("health check failed: %w", err)
	}
	collectors, err := r.storage.ListCollectors(ctx)
	if err != nil {
		return h, fmt.Errorf("health check failed: %w", err)
	}
	h.Collectors = len(collectors)

	r.logger.Info("health check",
		zap.String("op", "jobs.HealthCheck"),
		zap.Int("active_loans", h.ActiveLoans),
		zap.Int("overdue_loans", h.OverdueLoans),
		zap.Int("tasks_today", h.TasksToday),
		zap.Int("collectors", h.Collectors))
	return h, nil
}

// Run executes job for date. JobAll runs arrears, tasks, then the snapshot,
// stopping at the first failure.
func (r *Runner) Run(ctx context.Context, job string, date time.Time, force, verbose bool) error {
	switch job {
	case JobTasks:
		n, err := r.DailyTasks(ctx, date, force, verbose)
		if err != nil {
			return err
		}
		r.logger.Info("job finished", zap.String("job", job), zap.Int("tasks", n))
	case JobArrears:
		res, err := r.DailyArrears(ctx, date)
		if err != nil {
			return err
		}
		r.logger.Info("job finished", zap.String("job", job), zap.Int("scanned", res.Scanned), zap.Int("failed", res.Failed))
	case JobSnapshot:
		snap, err := r.DailySnapshot(ctx, date)
		if err != nil {
			return err
		}
		r.logger.Info("job finished", zap.String("job", job), zap.String("snapshot_id", snap.ID.String()))
	case JobHealth:
		_, err := r.HealthCheck(ctx)
		return err
	case JobAll:
		for _, j := range []string{JobArrears, JobTasks, JobSnapshot} {
			if err := r.Run(ctx, j, date, force, verbose); err != nil {
				return fmt.Errorf("%s: %w", j, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown job %q", models.ErrInvalidParameters, job)
	}
	return nil
}
