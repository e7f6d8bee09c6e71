package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fieldloan/internal/config"
	"github.com/mcclellann/fieldloan/internal/jobs"
	"github.com/mcclellann/fieldloan/pkg/arrears"
	"github.com/mcclellann/fieldloan/pkg/collection"
	"github.com/mcclellann/fieldloan/pkg/ledger"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/payments"
	"github.com/mcclellann/fieldloan/pkg/portfolio"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Server holds the services behind the HTTP API.
type Server struct {
	ledger      *ledger.Ledger
	generator   *collection.Generator
	recorder    *payments.Recorder
	classifier  *arrears.Classifier
	analyzer    *portfolio.Analyzer
	runner      *jobs.Runner
	storage     store.Storage // Keep a reference to the storage to close it
	validate    *validator.Validate
	includePaid bool
	logger      *zap.Logger
}

func NewServer(s store.Storage, conf *config.Configuration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger: ledger.NewLedger(s, logger,
			ledger.WithInterestMethod(conf.Loans.Method()),
			ledger.WithDailyPenaltyRate(conf.Loans.PenaltyRate())),
		generator:  collection.NewGenerator(s, logger),
		recorder:   payments.NewRecorder(s, logger),
		classifier: arrears.NewClassifier(s, logger),
		analyzer: portfolio.NewAnalyzer(s, logger,
			portfolio.WithGoalFraction(conf.Portfolio.Fraction()),
			portfolio.WithLocation(conf.Schedule.Location())),
		runner: jobs.NewRunner(s, logger,
			jobs.WithLocation(conf.Schedule.Location()),
			jobs.WithGoalFraction(conf.Portfolio.Fraction()),
			jobs.WithIncludePaid(conf.Portfolio.IncludePaid)),
		storage:     s,
		validate:    validator.New(),
		includePaid: conf.Portfolio.IncludePaid,
		logger:      logger,
	}
}

func newRouter(server *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", server.healthHandler).Methods("GET")

	router.HandleFunc("/clients", server.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{id}", server.getClientHandler).Methods("GET")

	router.HandleFunc("/loans", server.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", server.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", server.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/approve", server.approveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/reject", server.rejectLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/disburse", server.disburseLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/schedule", server.getScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", server.generateScheduleHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/assign-collector", server.assignCollectorHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", server.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", server.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/summary", server.loanSummaryHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/arrears", server.recomputeLoanHandler).Methods("POST")

	router.HandleFunc("/routes", server.listRoutesHandler).Methods("GET")
	router.HandleFunc("/routes", server.createRouteHandler).Methods("POST")
	router.HandleFunc("/collectors", server.listCollectorsHandler).Methods("GET")
	router.HandleFunc("/collectors", server.createCollectorHandler).Methods("POST")
	router.HandleFunc("/collectors/performance", server.performanceHandler).Methods("GET")
	router.HandleFunc("/collectors/{id}/agenda", server.agendaHandler).Methods("GET")
	router.HandleFunc("/collectors/{id}/route/optimize", server.optimizeRouteHandler).Methods("POST")

	router.HandleFunc("/tasks/generate", server.generateTasksHandler).Methods("POST")
	router.HandleFunc("/tasks/{id}/collect", server.collectTaskHandler).Methods("POST")
	router.HandleFunc("/tasks/{id}/status", server.taskStatusHandler).Methods("POST")

	router.HandleFunc("/arrears/recompute", server.recomputeAllHandler).Methods("POST")
	router.HandleFunc("/snapshots", server.generateSnapshotHandler).Methods("POST")
	router.HandleFunc("/snapshots/{date}", server.getSnapshotHandler).Methods("GET")

	return router
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateTask),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTaskClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrPaymentExceedsBalance),
		errors.Is(err, models.ErrLoanNotPayable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("op", "api.fail"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs its validate tags. An empty
// body leaves dst at its zero value.
func (s *Server) decode(r *http.Request, dst interface{}) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", models.ErrInvalidParameters, err)
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidParameters, err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", models.ErrInvalidParameters)
	}
	return id, nil
}

// dateOr parses a YYYY-MM-DD date, falling back to today when empty.
func (s *Server) dateOr(value string) (time.Time, error) {
	if value == "" {
		return s.runner.Today(), nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", models.ErrInvalidParameters, value)
	}
	return d, nil
}

func optionalID(value string) *uuid.UUID {
	if value == "" {
		return nil
	}
	id := uuid.MustParse(value)
	return &id
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	h, err := s.runner.HealthCheck(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type createClientRequest struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	NationalID   string `json:"national_id" validate:"required,numeric,min=8,max=10"`
	Mobile       string `json:"mobile" validate:"required,numeric,len=10,startswith=3"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address"`
	Neighborhood string `json:"neighborhood" validate:"required"`
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := s.ledger.CreateClient(r.Context(), &models.Client{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		NationalID:   req.NationalID,
		Mobile:       req.Mobile,
		Email:        req.Email,
		Address:      req.Address,
		Neighborhood: req.Neighborhood,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := s.ledger.GetClient(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type createLoanRequest struct {
	ClientID         string           `json:"client_id" validate:"required,uuid"`
	Principal        decimal.Decimal  `json:"principal"`
	MonthlyRate      decimal.Decimal  `json:"monthly_rate"`
	InstallmentCount int              `json:"installment_count" validate:"required,gt=0"`
	Cadence          string           `json:"cadence" validate:"required"`
	CollectorID      string           `json:"collector_id" validate:"omitempty,uuid"`
	DailyPenaltyRate *decimal.Decimal `json:"daily_penalty_rate"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cadence, err := models.ParseCadence(req.Cadence)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.ledger.RequestLoan(r.Context(), ledger.LoanRequest{
		ClientID:         uuid.MustParse(req.ClientID),
		Principal:        req.Principal,
		MonthlyRate:      req.MonthlyRate,
		Count:            req.InstallmentCount,
		Cadence:          cadence,
		CollectorID:      optionalID(req.CollectorID),
		DailyPenaltyRate: req.DailyPenaltyRate,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	var statuses []models.LoanStatus
	for _, v := range r.URL.Query()["status"] {
		st, err := models.ParseLoanStatus(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		statuses = append(statuses, st)
	}
	loans, err := s.ledger.ListLoans(r.Context(), statuses...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionLoan(w, r, s.ledger.ApproveLoan)
}

func (s *Server) rejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionLoan(w, r, s.ledger.RejectLoan)
}

func (s *Server) transitionLoan(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID) (*models.Loan, error)) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := apply(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

type disburseRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type scheduleResponse struct {
	Loan         *models.Loan          `json:"loan,omitempty"`
	Installments []*models.Installment `json:"installments"`
}

func (s *Server) disburseLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req disburseRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	on, err := s.dateOr(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, installments, err := s.ledger.DisburseLoan(r.Context(), id, on)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{Loan: loan, Installments: installments})
}

func (s *Server) generateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	installments, err := s.ledger.GenerateSchedule(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scheduleResponse{Installments: installments})
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	installments, err := s.ledger.ListInstallments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{Installments: installments})
}

type assignCollectorRequest struct {
	Force bool `json:"force"`
}

func (s *Server) assignCollectorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req assignCollectorRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	changed, err := s.ledger.AssignCollector(r.Context(), id, req.Force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changed": changed, "loan": loan})
}

type recordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	InstallmentID string          `json:"installment_id" validate:"omitempty,uuid"`
	Notes         string          `json:"notes" validate:"max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req recordPaymentRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pr := payments.PaymentRequest{
		LoanID:        id,
		InstallmentID: optionalID(req.InstallmentID),
		Amount:        req.Amount,
		Notes:         req.Notes,
	}
	if req.PaidAt != nil {
		pr.PaidAt = *req.PaidAt
	}
	receipt, err := s.recorder.RecordPayment(r.Context(), pr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) loanSummaryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.ledger.LoanSummary(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type arrearsRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) recomputeLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req arrearsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asOf, err := s.dateOr(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.classifier.Recompute(r.Context(), id, asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) recomputeAllHandler(w http.ResponseWriter, r *http.Request) {
	var req arrearsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	asOf, err := s.dateOr(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.classifier.RecomputeAll(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createRouteRequest struct {
	Name          string   `json:"name" validate:"required"`
	Zone          string   `json:"zone"`
	Neighborhoods []string `json:"neighborhoods" validate:"required,min=1,dive,required"`
}

func (s *Server) createRouteHandler(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	route, err := s.generator.CreateRoute(r.Context(), &models.Route{
		Name:          req.Name,
		Zone:          req.Zone,
		Neighborhoods: req.Neighborhoods,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

func (s *Server) listRoutesHandler(w http.ResponseWriter, r *http.Request) {
	routes, err := s.generator.ListRoutes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

type createCollectorRequest struct {
	FirstName         string          `json:"first_name" validate:"required"`
	LastName          string          `json:"last_name" validate:"required"`
	DocumentNumber    string          `json:"document_number" validate:"required"`
	Phone             string          `json:"phone"`
	Email             string          `json:"email" validate:"omitempty,email"`
	RouteIDs          []string        `json:"route_ids" validate:"dive,uuid"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	DailyGoal         decimal.Decimal `json:"daily_goal"`
	HiredOn           string          `json:"hired_on" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) createCollectorHandler(w http.ResponseWriter, r *http.Request) {
	var req createCollectorRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c := &models.Collector{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		DocumentNumber:    req.DocumentNumber,
		Phone:             req.Phone,
		Email:             req.Email,
		CommissionPercent: req.CommissionPercent,
		DailyGoal:         req.DailyGoal,
	}
	for _, id := range req.RouteIDs {
		c.RouteIDs = append(c.RouteIDs, uuid.MustParse(id))
	}
	if req.HiredOn != "" {
		c.HiredOn, _ = models.ParseDate(req.HiredOn)
	}
	created, err := s.generator.CreateCollector(r.Context(), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listCollectorsHandler(w http.ResponseWriter, r *http.Request) {
	collectors, err := s.generator.ListCollectors(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectors)
}

func (s *Server) performanceHandler(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateOr(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perf, err := s.analyzer.CollectorPerformance(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) agendaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := s.dateOr(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	agenda, err := s.generator.Agenda(r.Context(), id, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agenda)
}

func (s *Server) optimizeRouteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := s.dateOr(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.generator.OptimizeRoute(r.Context(), id, date); err != nil {
		s.fail(w, r, err)
		return
	}
	agenda, err := s.generator.Agenda(r.Context(), id, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agenda)
}

type generateTasksRequest struct {
	Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Force   bool   `json:"force"`
	Verbose bool   `json:"verbose"`
}

func (s *Server) generateTasksHandler(w http.ResponseWriter, r *http.Request) {
	var req generateTasksRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := s.dateOr(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.generator.GenerateDailyTasks(r.Context(), date, collection.Options{Force: req.Force, Verbose: req.Verbose})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":    date.Format(models.DateLayout),
		"created": n,
	})
}

type locationRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

type collectTaskRequest struct {
	Amount   decimal.Decimal  `json:"amount"`
	Notes    string           `json:"notes" validate:"max=500"`
	Location *locationRequest `json:"location"`
}

func (s *Server) collectTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req collectTaskRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c := payments.Collection{Amount: req.Amount, Notes: req.Notes}
	if req.Location != nil {
		c.Location = &models.GeoPoint{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude}
	}
	receipt, err := s.recorder.CompleteTask(r.Context(), id, c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type taskStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	Notes        string `json:"notes" validate:"max=500"`
	RescheduleTo string `json:"reschedule_to" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) taskStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req taskStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := models.ParseTaskStatus(req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	change := payments.StatusChange{Status: status, Notes: req.Notes}
	if req.RescheduleTo != "" {
		to, _ := models.ParseDate(req.RescheduleTo)
		change.RescheduleTo = &to
	}
	task, err := s.recorder.ChangeTaskStatus(r.Context(), id, change)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type snapshotRequest struct {
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	IncludePaid *bool  `json:"include_paid"`
}

func (s *Server) generateSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := s.dateOr(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := portfolio.Options{IncludePaid: s.includePaid}
	if req.IncludePaid != nil {
		opts.IncludePaid = *req.IncludePaid
	}
	snap, err := s.analyzer.GenerateDailySnapshot(r.Context(), date, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	date, err := models.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid date", models.ErrInvalidParameters))
		return
	}
	snap, err := s.analyzer.Snapshot(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
