package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

// ActiveLoanStatuses are the statuses counted as a collector's workload.
var ActiveLoanStatuses = []models.LoanStatus{models.LoanApproved, models.LoanDisbursed, models.LoanOverdue}

// Storage defines the persistence operations for the collections core.
// Lookups of missing rows return an error wrapping models.ErrNotFound.
type Storage interface {
	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	// GetLoanForUpdate reads a loan and holds a write lock on it until the
	// surrounding transaction ends.
	GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	ListLoansByStatus(ctx context.Context, statuses ...models.LoanStatus) ([]*models.Loan, error)
	CountActiveLoansByCollector(ctx context.Context) (map[uuid.UUID]int, error)

	// ReplaceInstallments deletes every installment of the loan and inserts the given ones.
	ReplaceInstallments(ctx context.Context, loanID uuid.UUID, installments []*models.Installment) error
	GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	GetInstallmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	UpdateInstallment(ctx context.Context, inst *models.Installment) error
	ListInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error)
	// ListDueInstallments returns the open installments due exactly on date,
	// of DISBURSED or OVERDUE loans assigned to the collector, that have no
	// task on date yet.
	ListDueInstallments(ctx context.Context, collectorID uuid.UUID, date time.Time) ([]*models.DueInstallment, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	SumPayments(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
	// SumPaymentsBetween totals every payment with from <= paid_at < to.
	SumPaymentsBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)

	// CreateTask returns models.ErrDuplicateTask when the installment already
	// has a task on the task's assignment date.
	CreateTask(ctx context.Context, task *models.CollectionTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.CollectionTask, error)
	UpdateTask(ctx context.Context, task *models.CollectionTask) error
	HasTask(ctx context.Context, installmentID uuid.UUID, date time.Time) (bool, error)
	CountTasks(ctx context.Context, date time.Time) (int, error)
	ListTasksRescheduledTo(ctx context.Context, collectorID uuid.UUID, date time.Time) ([]*models.CollectionTask, error)
	// ListTaskViews returns the collector's tasks on date ordered by visit
	// order. An empty statuses filter matches every status.
	ListTaskViews(ctx context.Context, collectorID uuid.UUID, date time.Time, statuses ...models.TaskStatus) ([]*models.TaskView, error)
	// DeleteUntouchedTasks removes the PENDING tasks on date that were never attempted.
	DeleteUntouchedTasks(ctx context.Context, date time.Time) (int, error)

	CreateRoute(ctx context.Context, route *models.Route) error
	ListRoutes(ctx context.Context) ([]*models.Route, error)
	CreateCollector(ctx context.Context, c *models.Collector) error
	GetCollector(ctx context.Context, id uuid.UUID) (*models.Collector, error)
	ListCollectors(ctx context.Context) ([]*models.Collector, error)

	// ReplaceSnapshot deletes any snapshot for the snapshot's date and stores this one.
	ReplaceSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error
	GetSnapshot(ctx context.Context, date time.Time) (*models.PortfolioSnapshot, error)

	// RunInTx runs fn against a Storage bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx Storage) error) error

	Close() error
}
