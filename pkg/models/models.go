package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultDailyPenaltyRate is the daily arrears rate (percent) applied to new loans.
var DefaultDailyPenaltyRate = decimal.RequireFromString("2.00")

type Client struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	NationalID   string    `json:"national_id"` // 8-10 digits, unique
	Mobile       string    `json:"mobile"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address"`
	Neighborhood string    `json:"neighborhood"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// FullName returns "first last".
func (c *Client) FullName() string {
	return c.FirstName + " " + c.LastName
}

var (
	nationalIDPattern = regexp.MustCompile(`^\d{8,10}$`)
	mobilePattern     = regexp.MustCompile(`^3\d{9}$`)
)

// Validate checks the onboarding rules: names present, an 8 to 10 digit
// national id and a 10 digit mobile number starting with 3.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("%w: first and last name are required", ErrInvalidParameters)
	}
	if !nationalIDPattern.MatchString(c.NationalID) {
		return fmt.Errorf("%w: national id must have 8 to 10 digits", ErrInvalidParameters)
	}
	if !mobilePattern.MatchString(c.Mobile) {
		return fmt.Errorf("%w: mobile must have 10 digits and start with 3", ErrInvalidParameters)
	}
	return nil
}

type Loan struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"client_id"`
	CollectorID      *uuid.UUID      `json:"collector_id,omitempty"`
	Principal        decimal.Decimal `json:"principal"`
	MonthlyRate      decimal.Decimal `json:"monthly_rate"` // percent per month
	Cadence          Cadence         `json:"cadence"`
	InstallmentCount int             `json:"installment_count"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
	TotalPayable     decimal.Decimal `json:"total_payable"`
	TotalInterest    decimal.Decimal `json:"total_interest"`
	ElapsedMonths    decimal.Decimal `json:"elapsed_months"`
	Description      string          `json:"description"`
	Status           LoanStatus      `json:"status"`
	RequestedAt      time.Time       `json:"requested_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	DisbursedAt      *time.Time      `json:"disbursed_at,omitempty"`

	// Arrears fields, owned by the arrears classifier.
	ReferenceDueDate *time.Time      `json:"reference_due_date,omitempty"`
	DaysPastDue      int             `json:"days_past_due"`
	MoraState        MoraState       `json:"mora_state"`
	PenaltyInterest  decimal.Decimal `json:"penalty_interest"`
	DailyPenaltyRate decimal.Decimal `json:"daily_penalty_rate"` // percent per day

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Installment struct {
	ID         uuid.UUID        `json:"id"`
	LoanID     uuid.UUID        `json:"loan_id"`
	Number     int              `json:"number"` // 1-based, unique per loan
	DueDate    time.Time        `json:"due_date"`
	Amount     decimal.Decimal  `json:"amount"`
	AmountPaid decimal.Decimal  `json:"amount_paid"`
	State      InstallmentState `json:"state"`
	PaidOn     *time.Time       `json:"paid_on,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// Remaining is what is still owed on the installment, never negative.
func (i *Installment) Remaining() decimal.Decimal {
	r := i.Amount.Sub(i.AmountPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// IsOpen reports whether the installment still expects money.
func (i *Installment) IsOpen() bool {
	return i.State == InstallmentPending || i.State == InstallmentPartial || i.State == InstallmentOverdue
}

// Payment is an append-only record of cash received.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	LoanID            uuid.UUID       `json:"loan_id"`
	InstallmentID     *uuid.UUID      `json:"installment_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAt            time.Time       `json:"paid_at"`
	InstallmentNumber int             `json:"installment_number"`
	Notes             string          `json:"notes,omitempty"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CollectionTask struct {
	ID              uuid.UUID        `json:"id"`
	CollectorID     uuid.UUID        `json:"collector_id"`
	InstallmentID   uuid.UUID        `json:"installment_id"`
	AssignedOn      time.Time        `json:"assigned_on"`
	Status          TaskStatus       `json:"status"`
	Priority        Priority         `json:"priority"`
	VisitOrder      int              `json:"visit_order"`
	VisitedAt       *time.Time       `json:"visited_at,omitempty"`
	AmountCollected *decimal.Decimal `json:"amount_collected,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Attempts        int              `json:"attempts"`
	RescheduledTo   *time.Time       `json:"rescheduled_to,omitempty"`
	Location        *GeoPoint        `json:"location,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type Route struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Zone          string    `json:"zone,omitempty"`
	Neighborhoods []string  `json:"neighborhoods"`
	Active        bool      `json:"active"`
}

type Collector struct {
	ID                uuid.UUID       `json:"id"`
	FirstName         string          `json:"first_name"`
	LastName          string          `json:"last_name"`
	DocumentNumber    string          `json:"document_number"`
	Phone             string          `json:"phone"`
	Email             string          `json:"email,omitempty"`
	RouteIDs          []uuid.UUID     `json:"route_ids"`
	Active            bool            `json:"active"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	DailyGoal         decimal.Decimal `json:"daily_goal"`
	HiredOn           time.Time       `json:"hired_on"`
}

// FullName returns "first last".
func (c *Collector) FullName() string {
	return c.FirstName + " " + c.LastName
}

// PortfolioSnapshot is the daily rollup of loan-book health, one per analysis date.
type PortfolioSnapshot struct {
	ID                    uuid.UUID       `json:"id"`
	AsOf                  time.Time       `json:"as_of"`
	ActiveLoans           int             `json:"active_loans"`
	TotalExposure         decimal.Decimal `json:"total_exposure"`
	CurrentExposure       decimal.Decimal `json:"current_exposure"`
	OverdueExposure       decimal.Decimal `json:"overdue_exposure"`
	OverduePercent        decimal.Decimal `json:"overdue_percent"`
	CurrentLoans          int             `json:"current_loans"`
	EarlyArrearsLoans     int             `json:"early_arrears_loans"`
	HighArrearsLoans      int             `json:"high_arrears_loans"`
	CriticalArrearsLoans  int             `json:"critical_arrears_loans"`
	EarlyArrearsExposure  decimal.Decimal `json:"early_arrears_exposure"`
	HighArrearsExposure   decimal.Decimal `json:"high_arrears_exposure"`
	CriticalExposure      decimal.Decimal `json:"critical_arrears_exposure"`
	PenaltyInterestTotal  decimal.Decimal `json:"penalty_interest_total"`
	AverageDaysPastDue    decimal.Decimal `json:"average_days_past_due"`
	CollectedToday        decimal.Decimal `json:"collected_today"`
	DailyGoal             decimal.Decimal `json:"daily_goal"`
	GoalAttainmentPercent decimal.Decimal `json:"goal_attainment_percent"`
	CreatedAt             time.Time       `json:"created_at"`
}

// DueInstallment is an installment joined with what task generation needs from its loan and client.
type DueInstallment struct {
	Installment  *Installment `json:"installment"`
	LoanStatus   LoanStatus   `json:"loan_status"`
	ClientName   string       `json:"client_name"`
	Neighborhood string       `json:"neighborhood"`
}

// TaskView is a collection task joined with its installment, loan and client.
type TaskView struct {
	Task         *CollectionTask `json:"task"`
	Installment  *Installment    `json:"installment"`
	LoanID       uuid.UUID       `json:"loan_id"`
	ClientName   string          `json:"client_name"`
	Address      string          `json:"address"`
	Neighborhood string          `json:"neighborhood"`
}
