package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/payments"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	server := NewServer(store.NewMemoryStore(), &config.Configuration{}, nil)
	t.Cleanup(func() { server.storage.Close() })
	return server, newRouter(server)
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

// seedLoan registers a route, a collector and a client, then requests,
// approves and disburses a 40,000 interest-free loan in four daily
// installments starting 2024-04-02.
func seedLoan(t *testing.T, router http.Handler) (models.Loan, models.Collector) {
	rr := do(t, router, "POST", "/routes", map[string]interface{}{
		"name": "Centro", "neighborhoods": []string{"San José", "Centro"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var route models.Route
	decodeBody(t, rr, &route)

	rr = do(t, router, "POST", "/collectors", map[string]interface{}{
		"first_name": "Pedro", "last_name": "Ruiz", "document_number": "80123456",
		"route_ids": []string{route.ID.String()}, "daily_goal": "50000",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var collector models.Collector
	decodeBody(t, rr, &collector)

	rr = do(t, router, "POST", "/clients", map[string]interface{}{
		"first_name": "Ana", "last_name": "Mora", "national_id": "12345678",
		"mobile": "3001234567", "address": "Calle 1 # 2-3", "neighborhood": "san jose",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var client models.Client
	decodeBody(t, rr, &client)

	rr = do(t, router, "POST", "/loans", map[string]interface{}{
		"client_id": client.ID.String(), "principal": "40000", "monthly_rate": "0",
		"installment_count": 4, "cadence": "daily",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var loan models.Loan
	decodeBody(t, rr, &loan)
	require.NotNil(t, loan.CollectorID, "collector suggested from the route")
	assert.Equal(t, collector.ID, *loan.CollectorID)

	rr = do(t, router, "POST", "/loans/"+loan.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, router, "POST", "/loans/"+loan.ID.String()+"/disburse", map[string]string{"date": "2024-04-01"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return loan, collector
}

func TestAPI_LoanLifecycle(t *testing.T) {
	_, router := setupTestServer(t)
	loan, _ := seedLoan(t, router)
	base := "/loans/" + loan.ID.String()

	rr := do(t, router, "GET", base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched models.Loan
	decodeBody(t, rr, &fetched)
	assert.Equal(t, models.LoanDisbursed, fetched.Status)

	rr = do(t, router, "GET", base+"/schedule", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var schedule scheduleResponse
	decodeBody(t, rr, &schedule)
	require.Len(t, schedule.Installments, 4)
	assert.Equal(t, "2024-04-02", schedule.Installments[0].DueDate.Format(models.DateLayout))
	assert.True(t, schedule.Installments[3].Amount.Equal(decimal.NewFromInt(10_000)))

	rr = do(t, router, "POST", base+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "already disbursed")

	rr = do(t, router, "GET", "/loans?status=disbursed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var loans []models.Loan
	decodeBody(t, rr, &loans)
	assert.Len(t, loans, 1)
}

func TestAPI_RecordPayment(t *testing.T) {
	_, router := setupTestServer(t)
	loan, _ := seedLoan(t, router)
	base := "/loans/" + loan.ID.String()

	rr := do(t, router, "POST", base+"/payments", map[string]string{"amount": "15000", "notes": "counter"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var receipt payments.Receipt
	decodeBody(t, rr, &receipt)
	assert.True(t, receipt.Balance.Equal(decimal.NewFromInt(25_000)), "got %s", receipt.Balance)
	assert.Equal(t, models.LoanDisbursed, receipt.LoanStatus)

	rr = do(t, router, "POST", base+"/payments", map[string]string{"amount": "30000"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, "POST", base+"/payments", map[string]string{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", base+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []models.Payment
	decodeBody(t, rr, &list)
	assert.Len(t, list, 1)

	rr = do(t, router, "GET", base+"/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var sum struct {
		ClientName         string          `json:"client_name"`
		TotalPaid          decimal.Decimal `json:"total_paid"`
		OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
		PaidInstallments   int             `json:"paid_installments"`
	}
	decodeBody(t, rr, &sum)
	assert.Equal(t, "Ana Mora", sum.ClientName)
	assert.True(t, sum.TotalPaid.Equal(decimal.NewFromInt(15_000)))
	assert.True(t, sum.OutstandingBalance.Equal(decimal.NewFromInt(25_000)))
	assert.Equal(t, 1, sum.PaidInstallments)
}

func TestAPI_FieldCollection(t *testing.T) {
	_, router := setupTestServer(t)
	loan, collector := seedLoan(t, router)

	rr := do(t, router, "POST", "/tasks/generate", map[string]interface{}{"date": "2024-04-03"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var gen struct {
		Created int `json:"created"`
	}
	decodeBody(t, rr, &gen)
	assert.Equal(t, 1, gen.Created)

	rr = do(t, router, "GET", "/collectors/"+collector.ID.String()+"/agenda?date=2024-04-03", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var agenda []models.TaskView
	decodeBody(t, rr, &agenda)
	require.Len(t, agenda, 1)
	assert.Equal(t, loan.ID, agenda[0].LoanID)
	taskID := agenda[0].Task.ID.String()

	rr = do(t, router, "POST", "/tasks/"+taskID+"/collect", map[string]interface{}{
		"amount": "10000", "notes": "paid at door",
		"location": map[string]float64{"latitude": 4.65, "longitude": -74.05},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var receipt payments.Receipt
	decodeBody(t, rr, &receipt)
	assert.True(t, receipt.Balance.Equal(decimal.NewFromInt(30_000)))
	assert.Equal(t, models.InstallmentPaid, receipt.InstallmentState)
	assert.Contains(t, receipt.Payment.Notes, "Pedro Ruiz")

	rr = do(t, router, "POST", "/tasks/"+taskID+"/collect", map[string]string{"amount": "100"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "POST", "/tasks/"+taskID+"/status", map[string]string{"status": "NOT_HOME"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "POST", "/tasks/"+uuid.NewString()+"/status", map[string]string{"status": "NOT_HOME"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/tasks/"+taskID+"/collect", map[string]interface{}{
		"amount": "1", "location": map[string]float64{"latitude": 120, "longitude": 0},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/collectors/performance?date=2024-04-03", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var perf []struct {
		Collected int `json:"collected"`
	}
	decodeBody(t, rr, &perf)
	require.Len(t, perf, 1)
	assert.Equal(t, 1, perf[0].Collected)
}

func TestAPI_ArrearsAndSnapshots(t *testing.T) {
	_, router := setupTestServer(t)
	loan, _ := seedLoan(t, router)

	rr := do(t, router, "POST", "/loans/"+loan.ID.String()+"/arrears", map[string]string{"date": "2024-04-10"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var assessed models.Loan
	decodeBody(t, rr, &assessed)
	assert.Equal(t, 8, assessed.DaysPastDue)
	assert.Equal(t, models.MoraEarly, assessed.MoraState)

	rr = do(t, router, "POST", "/arrears/recompute", map[string]string{"date": "2024-04-10"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, "POST", "/snapshots", map[string]string{"date": "2024-04-10"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var snap models.PortfolioSnapshot
	decodeBody(t, rr, &snap)
	assert.Equal(t, 1, snap.ActiveLoans)
	assert.Equal(t, 1, snap.EarlyArrearsLoans)

	rr = do(t, router, "GET", "/snapshots/2024-04-10", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, router, "GET", "/snapshots/2020-01-01", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, router, "GET", "/snapshots/yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Validation(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "POST", "/clients", map[string]string{
		"first_name": "Ana", "last_name": "Mora", "national_id": "123", "mobile": "3001234567", "neighborhood": "Centro",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/loans", map[string]interface{}{
		"client_id": "nope", "principal": "1000", "installment_count": 4, "cadence": "DAILY",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/loans", map[string]interface{}{
		"client_id": uuid.NewString(), "principal": "1000", "installment_count": 4, "cadence": "DAILY",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "GET", "/loans/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, router, "GET", "/loans/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/routes", map[string]interface{}{"name": "Sur"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"active_loans":0,"overdue_loans":0,"tasks_today":0,"collectors":0}`, rr.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrDuplicateTask))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(models.ErrLoanNotPayable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
