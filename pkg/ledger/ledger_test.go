package ledger

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

var fixedNow = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewLedger(s, nil, WithClock(func() time.Time { return fixedNow })), s
}

func newClient(t *testing.T, l *Ledger, neighborhood string) *models.Client {
	t.Helper()
	c, err := l.CreateClient(context.Background(), &models.Client{
		FirstName:    "María",
		LastName:     "López",
		NationalID:   uuidDigits(),
		Mobile:       "3101234567",
		Neighborhood: neighborhood,
	})
	require.NoError(t, err)
	return c
}

func uuidDigits() string {
	n := uuid.New().ID() % 1_000_000_000
	return decimal.NewFromInt(int64(n) + 1_000_000_000).String()
}

func TestCreateClient_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClient(ctx, &models.Client{FirstName: "A", LastName: "B", NationalID: "123", Mobile: "3001234567"})
	assert.ErrorIs(t, err, models.ErrInvalidParameters)

	_, err = l.CreateClient(ctx, &models.Client{FirstName: "A", LastName: "B", NationalID: "12345678", Mobile: "2001234567"})
	assert.ErrorIs(t, err, models.ErrInvalidParameters)

	c, err := l.CreateClient(ctx, &models.Client{FirstName: "A", LastName: "B", NationalID: "12345678", Mobile: "3001234567"})
	require.NoError(t, err)
	assert.True(t, c.Active)
	assert.NotEqual(t, uuid.Nil, c.ID)
}

func TestRequestLoan_QuotesAndDescribes(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	client := newClient(t, l, "")

	loan, err := l.RequestLoan(ctx, LoanRequest{
		ClientID:    client.ID,
		Principal:   decimal.NewFromInt(1_000_000),
		MonthlyRate: decimal.NewFromInt(20),
		Count:       30,
		Cadence:     models.CadenceDaily,
	})
	require.NoError(t, err)

	assert.Equal(t, models.LoanRequested, loan.Status)
	assert.True(t, loan.InstallmentValue.Equal(decimal.NewFromInt(40_000)))
	assert.True(t, loan.TotalPayable.Equal(decimal.NewFromInt(1_200_000)))
	assert.True(t, loan.TotalInterest.Equal(decimal.NewFromInt(200_000)))
	assert.True(t, loan.DailyPenaltyRate.Equal(models.DefaultDailyPenaltyRate))
	assert.Contains(t, loan.Description, "30 daily installments of $40,000.00")
	assert.Nil(t, loan.CollectorID, "no routes means no suggestion")

	_, err = l.RequestLoan(ctx, LoanRequest{ClientID: client.ID, Principal: decimal.Zero, MonthlyRate: decimal.NewFromInt(1), Count: 1, Cadence: models.CadenceDaily})
	assert.ErrorIs(t, err, models.ErrInvalidParameters)

	_, err = l.RequestLoan(ctx, LoanRequest{ClientID: uuid.New(), Principal: decimal.NewFromInt(1), MonthlyRate: decimal.NewFromInt(1), Count: 1, Cadence: models.CadenceDaily})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequestLoan_AutoAssignsLeastLoadedCollector(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	route := &models.Route{ID: uuid.New(), Name: "Norte", Neighborhoods: []string{"San José"}, Active: true}
	require.NoError(t, s.CreateRoute(ctx, route))
	busy := &models.Collector{ID: uuid.New(), FirstName: "Busy", LastName: "One", DocumentNumber: "1", RouteIDs: []uuid.UUID{route.ID}, Active: true}
	idle := &models.Collector{ID: uuid.New(), FirstName: "Idle", LastName: "Two", DocumentNumber: "2", RouteIDs: []uuid.UUID{route.ID}, Active: true}
	require.NoError(t, s.CreateCollector(ctx, busy))
	require.NoError(t, s.CreateCollector(ctx, idle))

	client := newClient(t, l, "san  jose")
	req := LoanRequest{ClientID: client.ID, Principal: decimal.NewFromInt(100_000), MonthlyRate: decimal.NewFromInt(10), Count: 4, Cadence: models.CadenceWeekly, CollectorID: &busy.ID}
	first, err := l.RequestLoan(ctx, req)
	require.NoError(t, err)
	_, err = l.ApproveLoan(ctx, first.ID)
	require.NoError(t, err)

	req.CollectorID = nil
	second, err := l.RequestLoan(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, second.CollectorID)
	assert.Equal(t, idle.ID, *second.CollectorID)

	changed, err := l.AssignCollector(ctx, second.ID, false)
	require.NoError(t, err)
	assert.False(t, changed, "already assigned and not forced")
}

func TestLifecycleTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	client := newClient(t, l, "")

	loan, err := l.RequestLoan(ctx, LoanRequest{ClientID: client.ID, Principal: decimal.NewFromInt(300), MonthlyRate: decimal.NewFromInt(10), Count: 3, Cadence: models.CadenceMonthly})
	require.NoError(t, err)

	_, _, err = l.DisburseLoan(ctx, loan.ID, fixedNow)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "cannot disburse before approval")

	approved, err := l.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)

	_, err = l.RejectLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	disbursed, schedule, err := l.DisburseLoan(ctx, loan.ID, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, models.LoanDisbursed, disbursed.Status)
	require.Len(t, schedule, 3)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
}

func TestGenerateSchedule_Idempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	client := newClient(t, l, "")

	loan, err := l.RequestLoan(ctx, LoanRequest{ClientID: client.ID, Principal: decimal.NewFromInt(100_000), MonthlyRate: decimal.NewFromInt(20), Count: 3, Cadence: models.CadenceDaily})
	require.NoError(t, err)

	_, err = l.GenerateSchedule(ctx, loan.ID)
	assert.ErrorIs(t, err, models.ErrInvalidParameters, "no disbursement date yet")

	_, err = l.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	_, first, err := l.DisburseLoan(ctx, loan.ID, fixedNow)
	require.NoError(t, err)

	second, err := l.GenerateSchedule(ctx, loan.ID)
	require.NoError(t, err)

	stored, err := l.ListInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored, len(first))
	assert.Len(t, second, len(first))

	total := func(list []*models.Installment) decimal.Decimal {
		sum := decimal.Zero
		for _, inst := range list {
			sum = sum.Add(inst.Amount)
		}
		return sum
	}
	assert.True(t, total(first).Equal(total(second)))
	assert.True(t, total(stored).Equal(loan.TotalPayable), "schedule sums to %s, want %s", total(stored), loan.TotalPayable)
	for i, inst := range stored {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, models.InstallmentPending, inst.State)
		assert.NotEqual(t, first[i].ID, inst.ID, "installments are replaced, not reused")
	}
}

func TestBalances(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	client := newClient(t, l, "")

	loan, err := l.RequestLoan(ctx, LoanRequest{ClientID: client.ID, Principal: decimal.NewFromInt(1000), MonthlyRate: decimal.Zero, Count: 2, Cadence: models.CadenceMonthly})
	require.NoError(t, err)
	loan, err = l.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)

	paid, err := l.TotalPaid(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	ok, err := l.CanAcceptPayment(ctx, loan)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.CreatePayment(ctx, &models.Payment{ID: uuid.New(), LoanID: loan.ID, Amount: decimal.NewFromInt(1200), PaidAt: fixedNow}))

	balance, err := l.OutstandingBalance(ctx, loan)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance never goes negative")

	settled, err := l.IsSettled(ctx, loan)
	require.NoError(t, err)
	assert.True(t, settled)

	ok, err = l.CanAcceptPayment(ctx, loan)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, CanAcceptPayment(&models.Loan{Status: models.LoanOverdue}, decimal.NewFromInt(1)))
	assert.False(t, CanAcceptPayment(&models.Loan{Status: models.LoanRequested}, decimal.NewFromInt(1)))

	summary, err := l.LoanSummary(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "María López", summary.ClientName)
	assert.True(t, summary.TotalPaid.Equal(decimal.NewFromInt(1200)))
}
