package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eachStore runs fn against a fresh SQLite file store and a fresh memory store.
func eachStore(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fieldloan.db"), nil)
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

var day = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

type fixture struct {
	client    *models.Client
	route     *models.Route
	collector *models.Collector
	loan      *models.Loan
	schedule  []*models.Installment
}

func seed(t *testing.T, ctx context.Context, s Storage) fixture {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)

	client := &models.Client{ID: uuid.New(), FirstName: "Lucía", LastName: "Gómez", NationalID: "1020304050",
		Mobile: "3001234567", Address: "Cra 1 # 2-3", Neighborhood: "Centro", Active: true, RegisteredAt: now}
	require.NoError(t, s.CreateClient(ctx, client))

	route := &models.Route{ID: uuid.New(), Name: "Ruta Centro", Neighborhoods: []string{"Centro", "San José"}, Active: true}
	require.NoError(t, s.CreateRoute(ctx, route))

	collector := &models.Collector{ID: uuid.New(), FirstName: "Pedro", LastName: "Ruiz", DocumentNumber: "80123456",
		RouteIDs: []uuid.UUID{route.ID}, Active: true, CommissionPercent: decimal.RequireFromString("5"),
		DailyGoal: decimal.RequireFromString("200000"), HiredOn: day}
	require.NoError(t, s.CreateCollector(ctx, collector))

	disbursed := day.AddDate(0, 0, -1)
	loan := &models.Loan{ID: uuid.New(), ClientID: client.ID, CollectorID: &collector.ID,
		Principal: decimal.RequireFromString("100000"), MonthlyRate: decimal.RequireFromString("20"),
		Cadence: models.CadenceDaily, InstallmentCount: 3, InstallmentValue: decimal.RequireFromString("35555.56"),
		TotalPayable: decimal.RequireFromString("106666.67"), TotalInterest: decimal.RequireFromString("6666.67"),
		ElapsedMonths: decimal.RequireFromString("0.1"), Status: models.LoanDisbursed, RequestedAt: now,
		DisbursedAt: &disbursed, MoraState: models.MoraCurrent, PenaltyInterest: decimal.Zero,
		DailyPenaltyRate: models.DefaultDailyPenaltyRate, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateLoan(ctx, loan))

	var schedule []*models.Installment
	for n := 1; n <= 3; n++ {
		schedule = append(schedule, &models.Installment{ID: uuid.New(), LoanID: loan.ID, Number: n,
			DueDate: disbursed.AddDate(0, 0, n), Amount: loan.InstallmentValue, AmountPaid: decimal.Zero,
			State: models.InstallmentPending})
	}
	require.NoError(t, s.ReplaceInstallments(ctx, loan.ID, schedule))
	return fixture{client, route, collector, loan, schedule}
}

func TestStore_LoanRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)

		got, err := s.GetLoan(ctx, f.loan.ID)
		require.NoError(t, err)
		assert.True(t, got.Principal.Equal(f.loan.Principal))
		assert.True(t, got.TotalPayable.Equal(f.loan.TotalPayable))
		assert.Equal(t, models.CadenceDaily, got.Cadence)
		require.NotNil(t, got.CollectorID)
		assert.Equal(t, f.collector.ID, *got.CollectorID)
		assert.Nil(t, got.ReferenceDueDate)

		ref := day.AddDate(0, 0, -10)
		got.ReferenceDueDate = &ref
		got.DaysPastDue = 10
		got.MoraState = models.MoraEarly
		got.PenaltyInterest = decimal.RequireFromString("21333.33")
		require.NoError(t, s.UpdateLoan(ctx, got))

		again, err := s.GetLoan(ctx, f.loan.ID)
		require.NoError(t, err)
		require.NotNil(t, again.ReferenceDueDate)
		assert.True(t, again.ReferenceDueDate.Equal(ref))
		assert.Equal(t, models.MoraEarly, again.MoraState)
		assert.True(t, again.PenaltyInterest.Equal(decimal.RequireFromString("21333.33")))

		_, err = s.GetLoan(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)

		loans, err := s.ListLoansByStatus(ctx, models.LoanDisbursed, models.LoanOverdue)
		require.NoError(t, err)
		assert.Len(t, loans, 1)

		counts, err := s.CountActiveLoansByCollector(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[f.collector.ID])
	})
}

func TestStore_ClientUniqueNationalID(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)
		dup := *f.client
		dup.ID = uuid.New()
		assert.ErrorIs(t, s.CreateClient(ctx, &dup), models.ErrInvalidParameters)
	})
}

func TestStore_InstallmentsReplaceAndDue(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)

		list, err := s.ListInstallments(ctx, f.loan.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, 1, list[0].Number)
		assert.True(t, list[0].DueDate.Equal(day))

		due, err := s.ListDueInstallments(ctx, f.collector.ID, day)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, f.schedule[0].ID, due[0].Installment.ID)
		assert.Equal(t, "Lucía Gómez", due[0].ClientName)
		assert.Equal(t, "Centro", due[0].Neighborhood)

		// Replacing keeps the count and drops the old rows.
		fresh := make([]*models.Installment, 0, 3)
		for _, inst := range f.schedule {
			c := *inst
			c.ID = uuid.New()
			fresh = append(fresh, &c)
		}
		require.NoError(t, s.ReplaceInstallments(ctx, f.loan.ID, fresh))
		list, err = s.ListInstallments(ctx, f.loan.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		_, err = s.GetInstallment(ctx, f.schedule[0].ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_TaskUniquePerInstallmentAndDate(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)
		now := time.Now().UTC()

		task := &models.CollectionTask{ID: uuid.New(), CollectorID: f.collector.ID, InstallmentID: f.schedule[0].ID,
			AssignedOn: day, Status: models.TaskPending, Priority: models.PriorityLow, VisitOrder: 1,
			CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateTask(ctx, task))

		dup := *task
		dup.ID = uuid.New()
		assert.ErrorIs(t, s.CreateTask(ctx, &dup), models.ErrDuplicateTask)

		has, err := s.HasTask(ctx, f.schedule[0].ID, day)
		require.NoError(t, err)
		assert.True(t, has)

		due, err := s.ListDueInstallments(ctx, f.collector.ID, day)
		require.NoError(t, err)
		assert.Empty(t, due, "installment with a task on the date is excluded")

		views, err := s.ListTaskViews(ctx, f.collector.ID, day)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, f.loan.ID, views[0].LoanID)
		assert.Equal(t, "Cra 1 # 2-3", views[0].Address)

		amount := decimal.RequireFromString("35555.56")
		task.Status = models.TaskCollected
		task.AmountCollected = &amount
		task.Location = &models.GeoPoint{Latitude: 4.6, Longitude: -74.08}
		task.Attempts = 1
		require.NoError(t, s.UpdateTask(ctx, task))

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCollected, got.Status)
		require.NotNil(t, got.AmountCollected)
		assert.True(t, got.AmountCollected.Equal(amount))
		require.NotNil(t, got.Location)
		assert.InDelta(t, -74.08, got.Location.Longitude, 1e-9)

		pending, err := s.ListTaskViews(ctx, f.collector.ID, day, models.TaskPending)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestStore_DeleteUntouchedTasks(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)
		now := time.Now().UTC()
		next := day.AddDate(0, 0, 1)

		untouched := &models.CollectionTask{ID: uuid.New(), CollectorID: f.collector.ID, InstallmentID: f.schedule[0].ID,
			AssignedOn: day, Status: models.TaskPending, Priority: models.PriorityLow, CreatedAt: now, UpdatedAt: now}
		attempted := &models.CollectionTask{ID: uuid.New(), CollectorID: f.collector.ID, InstallmentID: f.schedule[1].ID,
			AssignedOn: day, Status: models.TaskRescheduled, Priority: models.PriorityLow, Attempts: 1,
			RescheduledTo: &next, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateTask(ctx, untouched))
		require.NoError(t, s.CreateTask(ctx, attempted))

		n, err := s.CountTasks(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		deleted, err := s.DeleteUntouchedTasks(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		moved, err := s.ListTasksRescheduledTo(ctx, f.collector.ID, next)
		require.NoError(t, err)
		require.Len(t, moved, 1)
		assert.Equal(t, attempted.ID, moved[0].ID)
	})
}

func TestStore_PaymentsAndSums(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)

		total, err := s.SumPayments(ctx, f.loan.ID)
		require.NoError(t, err)
		assert.True(t, total.IsZero())

		instID := f.schedule[0].ID
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{ID: uuid.New(), LoanID: f.loan.ID, InstallmentID: &instID,
			Amount: decimal.RequireFromString("10000.10"), PaidAt: day.Add(10 * time.Hour), InstallmentNumber: 1}))
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{ID: uuid.New(), LoanID: f.loan.ID,
			Amount: decimal.RequireFromString("0.20"), PaidAt: day.Add(-time.Hour)}))

		total, err = s.SumPayments(ctx, f.loan.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("10000.30")), "got %s", total)

		today, err := s.SumPaymentsBetween(ctx, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.True(t, today.Equal(decimal.RequireFromString("10000.10")), "got %s", today)

		payments, err := s.ListPayments(ctx, f.loan.ID)
		require.NoError(t, err)
		require.Len(t, payments, 2)
		assert.Nil(t, payments[0].InstallmentID)
		require.NotNil(t, payments[1].InstallmentID)
		assert.Equal(t, instID, *payments[1].InstallmentID)
	})
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)

		err := s.RunInTx(ctx, func(tx Storage) error {
			loan, err := tx.GetLoanForUpdate(ctx, f.loan.ID)
			if err != nil {
				return err
			}
			loan.Status = models.LoanPaid
			if err := tx.UpdateLoan(ctx, loan); err != nil {
				return err
			}
			return models.ErrPaymentExceedsBalance
		})
		assert.ErrorIs(t, err, models.ErrPaymentExceedsBalance)

		got, err := s.GetLoan(ctx, f.loan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanDisbursed, got.Status)
	})
}

func TestMemoryStore_RollbackKeepsWritesOutsideTx(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seed(t, ctx, s)
	before, err := s.ListInstallments(ctx, f.loan.ID)
	require.NoError(t, err)

	outside := &models.Route{ID: uuid.New(), Name: "Norte", Neighborhoods: []string{"Norte"}, Active: true}
	err = s.RunInTx(ctx, func(tx Storage) error {
		require.NoError(t, s.CreateRoute(ctx, outside))

		loan, err := tx.GetLoanForUpdate(ctx, f.loan.ID)
		require.NoError(t, err)
		loan.Status = models.LoanPaid
		require.NoError(t, tx.UpdateLoan(ctx, loan))
		require.NoError(t, tx.CreatePayment(ctx, &models.Payment{ID: uuid.New(), LoanID: f.loan.ID,
			Amount: decimal.NewFromInt(100), PaidAt: day}))
		require.NoError(t, tx.ReplaceInstallments(ctx, f.loan.ID, nil))
		return models.ErrPaymentExceedsBalance
	})
	assert.ErrorIs(t, err, models.ErrPaymentExceedsBalance)

	routes, err := s.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 2, "route created outside the transaction survives its rollback")

	got, err := s.GetLoan(ctx, f.loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanDisbursed, got.Status)

	paid, err := s.SumPayments(ctx, f.loan.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	after, err := s.ListInstallments(ctx, f.loan.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_CollectorsRoutesSnapshots(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		f := seed(t, ctx, s)

		routes, err := s.ListRoutes(ctx)
		require.NoError(t, err)
		require.Len(t, routes, 1)
		assert.Equal(t, []string{"Centro", "San José"}, routes[0].Neighborhoods)

		c, err := s.GetCollector(ctx, f.collector.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.route.ID}, c.RouteIDs)
		assert.True(t, c.DailyGoal.Equal(decimal.RequireFromString("200000")))

		snap := &models.PortfolioSnapshot{ID: uuid.New(), AsOf: day, ActiveLoans: 1,
			TotalExposure: decimal.RequireFromString("106666.67"), CreatedAt: time.Now().UTC()}
		require.NoError(t, s.ReplaceSnapshot(ctx, snap))
		snap2 := *snap
		snap2.ID = uuid.New()
		snap2.ActiveLoans = 2
		require.NoError(t, s.ReplaceSnapshot(ctx, &snap2))

		got, err := s.GetSnapshot(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, snap2.ID, got.ID)
		assert.Equal(t, 2, got.ActiveLoans)
		assert.True(t, got.TotalExposure.Equal(snap.TotalExposure))

		_, err = s.GetSnapshot(ctx, day.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(DriverSQLite, filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("oracle", "dsn", nil)
	assert.Error(t, err)
}
