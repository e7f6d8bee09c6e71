package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)

func seedDueLoan(t *testing.T, s store.Storage) {
	t.Helper()
	ctx := context.Background()
	route := &models.Route{ID: uuid.New(), Name: "Centro", Neighborhoods: []string{"Centro"}, Active: true}
	require.NoError(t, s.CreateRoute(ctx, route))
	c := &models.Collector{ID: uuid.New(), FirstName: "Pedro", LastName: "Ruiz", DocumentNumber: "1",
		RouteIDs: []uuid.UUID{route.ID}, Active: true}
	require.NoError(t, s.CreateCollector(ctx, c))

	client := &models.Client{ID: uuid.New(), FirstName: "Ana", LastName: "Mora", NationalID: "12345678",
		Mobile: "3000000000", Neighborhood: "Centro", Active: true, RegisteredAt: today}
	require.NoError(t, s.CreateClient(ctx, client))
	disbursed := today.AddDate(0, 0, -1)
	loan := &models.Loan{ID: uuid.New(), ClientID: client.ID, CollectorID: &c.ID, Principal: decimal.NewFromInt(1000),
		MonthlyRate: decimal.Zero, Cadence: models.CadenceDaily, InstallmentCount: 1, InstallmentValue: decimal.NewFromInt(1000),
		TotalPayable: decimal.NewFromInt(1000), TotalInterest: decimal.Zero, Status: models.LoanDisbursed,
		DisbursedAt: &disbursed, MoraState: models.MoraCurrent, DailyPenaltyRate: models.DefaultDailyPenaltyRate,
		RequestedAt: today, CreatedAt: today, UpdatedAt: today}
	require.NoError(t, s.CreateLoan(ctx, loan))
	require.NoError(t, s.ReplaceInstallments(ctx, loan.ID, []*models.Installment{
		{ID: uuid.New(), LoanID: loan.ID, Number: 1, DueDate: today, Amount: loan.TotalPayable, State: models.InstallmentPending},
	}))
}

func newRunner(s store.Storage) *Runner {
	// 03:00 UTC is still the previous evening in UTC-5.
	clock := func() time.Time { return time.Date(2024, time.June, 15, 3, 0, 0, 0, time.UTC) }
	return NewRunner(s, nil, WithClock(clock), WithLocation(time.FixedZone("COT", -5*3600)))
}

func TestRunner_Today(t *testing.T) {
	r := newRunner(store.NewMemoryStore())
	assert.True(t, r.Today().Equal(today), "got %s", r.Today())
}

func TestRunner_DailyTasksGuard(t *testing.T) {
	s := store.NewMemoryStore()
	seedDueLoan(t, s)
	r := newRunner(s)
	ctx := context.Background()

	n, err := r.DailyTasks(ctx, today, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.DailyTasks(ctx, today, false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "skipped, tasks exist")

	n, err = r.DailyTasks(ctx, today, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "force regenerates the untouched task")

	count, err := s.CountTasks(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunner_RunAllAndHealth(t *testing.T) {
	s := store.NewMemoryStore()
	seedDueLoan(t, s)
	r := newRunner(s)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, JobAll, today, false, false))

	snap, err := s.GetSnapshot(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ActiveLoans)

	h, err := r.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, Health{ActiveLoans: 1, TasksToday: 1, Collectors: 1}, h)

	require.NoError(t, r.Run(ctx, JobHealth, today, false, false))
	assert.ErrorIs(t, r.Run(ctx, "payroll", today, false, false), models.ErrInvalidParameters)
}
