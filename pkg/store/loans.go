package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
)

// CreateClient inserts a new client.
func (s *SQLStore) CreateClient(ctx context.Context, c *models.Client) error {
	_, err := s.exec(ctx,
		`INSERT INTO clients (id, first_name, last_name, national_id, mobile, email, address, neighborhood, active, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.NationalID, c.Mobile, c.Email, c.Address, c.Neighborhood, c.Active, c.RegisteredAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: national id %s already registered", models.ErrInvalidParameters, c.NationalID)
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := s.queryRow(ctx,
		`SELECT id, first_name, last_name, national_id, mobile, email, address, neighborhood, active, registered_at
		FROM clients WHERE id = ?`, id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.NationalID, &c.Mobile, &c.Email, &c.Address, &c.Neighborhood, &c.Active, &c.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("client")
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

const loanColumns = `id, client_id, collector_id, principal, monthly_rate, cadence, installment_count,
	installment_value, total_payable, total_interest, elapsed_months, description, status,
	requested_at, approved_at, disbursed_at, reference_due_date, days_past_due, mora_state,
	penalty_interest, daily_penalty_rate, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var collectorID uuid.NullUUID
	var approvedAt, disbursedAt, refDue sql.NullTime
	err := row.Scan(&loan.ID, &loan.ClientID, &collectorID, &loan.Principal, &loan.MonthlyRate, &loan.Cadence,
		&loan.InstallmentCount, &loan.InstallmentValue, &loan.TotalPayable, &loan.TotalInterest, &loan.ElapsedMonths,
		&loan.Description, &loan.Status, &loan.RequestedAt, &approvedAt, &disbursedAt, &refDue, &loan.DaysPastDue,
		&loan.MoraState, &loan.PenaltyInterest, &loan.DailyPenaltyRate, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if collectorID.Valid {
		loan.CollectorID = &collectorID.UUID
	}
	loan.ApprovedAt = nullTime(approvedAt)
	loan.DisbursedAt = nullTime(disbursedAt)
	if refDue.Valid {
		d := models.DateOf(refDue.Time)
		loan.ReferenceDueDate = &d
	}
	return &loan, nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// CreateLoan inserts a new loan into the database.
func (s *SQLStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.exec(ctx,
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.ClientID, loan.CollectorID, loan.Principal, loan.MonthlyRate, loan.Cadence,
		loan.InstallmentCount, loan.InstallmentValue, loan.TotalPayable, loan.TotalInterest, loan.ElapsedMonths,
		loan.Description, loan.Status, loan.RequestedAt.UTC(), utcPtr(loan.ApprovedAt), utcPtr(loan.DisbursedAt),
		utcPtr(loan.ReferenceDueDate), loan.DaysPastDue, loan.MoraState, loan.PenaltyInterest, loan.DailyPenaltyRate,
		loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return s.getLoan(ctx, id, "")
}

// GetLoanForUpdate implements Storage.
func (s *SQLStore) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return s.getLoan(ctx, id, s.forUpdate())
}

func (s *SQLStore) getLoan(ctx context.Context, id uuid.UUID, suffix string) (*models.Loan, error) {
	loan, err := scanLoan(s.queryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("loan")
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	res, err := s.exec(ctx,
		`UPDATE loans SET collector_id = ?, principal = ?, monthly_rate = ?, cadence = ?, installment_count = ?,
		installment_value = ?, total_payable = ?, total_interest = ?, elapsed_months = ?, description = ?, status = ?,
		approved_at = ?, disbursed_at = ?, reference_due_date = ?, days_past_due = ?, mora_state = ?,
		penalty_interest = ?, daily_penalty_rate = ?, updated_at = ? WHERE id = ?`,
		loan.CollectorID, loan.Principal, loan.MonthlyRate, loan.Cadence, loan.InstallmentCount,
		loan.InstallmentValue, loan.TotalPayable, loan.TotalInterest, loan.ElapsedMonths, loan.Description, loan.Status,
		utcPtr(loan.ApprovedAt), utcPtr(loan.DisbursedAt), utcPtr(loan.ReferenceDueDate), loan.DaysPastDue, loan.MoraState,
		loan.PenaltyInterest, loan.DailyPenaltyRate, loan.UpdatedAt.UTC(), loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(res, "loan")
}

// ListLoansByStatus retrieves the loans in any of the given statuses, oldest first.
func (s *SQLStore) ListLoansByStatus(ctx context.Context, statuses ...models.LoanStatus) ([]*models.Loan, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	set, args := in(statuses)
	rows, err := s.query(ctx, `SELECT `+loanColumns+` FROM loans WHERE status IN `+set+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CountActiveLoansByCollector implements Storage.
func (s *SQLStore) CountActiveLoansByCollector(ctx context.Context) (map[uuid.UUID]int, error) {
	set, args := in(ActiveLoanStatuses)
	rows, err := s.query(ctx,
		`SELECT collector_id, COUNT(*) FROM loans
		WHERE collector_id IS NOT NULL AND status IN `+set+` GROUP BY collector_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count active loans: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan loan count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
