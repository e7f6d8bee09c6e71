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

const installmentColumns = `id, loan_id, number, due_date, amount, amount_paid, state, paid_on, notes`

func scanInstallment(row rowScanner, extra ...any) (*models.Installment, error) {
	var inst models.Installment
	var paidOn sql.NullTime
	dest := append([]any{&inst.ID, &inst.LoanID, &inst.Number, &inst.DueDate, &inst.Amount, &inst.AmountPaid,
		&inst.State, &paidOn, &inst.Notes}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	inst.DueDate = models.DateOf(inst.DueDate)
	if paidOn.Valid {
		d := models.DateOf(paidOn.Time)
		inst.PaidOn = &d
	}
	return &inst, nil
}

// ReplaceInstallments implements Storage. Callers wanting atomicity run it inside RunInTx.
func (s *SQLStore) ReplaceInstallments(ctx context.Context, loanID uuid.UUID, installments []*models.Installment) error {
	if _, err := s.exec(ctx, `DELETE FROM installments WHERE loan_id = ?`, loanID); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}
	for _, inst := range installments {
		_, err := s.exec(ctx,
			`INSERT INTO installments (`+installmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, loanID, inst.Number, inst.DueDate.UTC(), inst.Amount,
			inst.AmountPaid, inst.State, utcPtr(inst.PaidOn), inst.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
		}
	}
	return nil
}

// GetInstallment retrieves an installment by its ID.
func (s *SQLStore) GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	return s.getInstallment(ctx, id, "")
}

// GetInstallmentForUpdate implements Storage.
func (s *SQLStore) GetInstallmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	return s.getInstallment(ctx, id, s.forUpdate())
}

func (s *SQLStore) getInstallment(ctx context.Context, id uuid.UUID, suffix string) (*models.Installment, error) {
	inst, err := scanInstallment(s.queryRow(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = ?`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("installment")
		}
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

// UpdateInstallment persists the mutable fields of an installment.
func (s *SQLStore) UpdateInstallment(ctx context.Context, inst *models.Installment) error {
	res, err := s.exec(ctx,
		`UPDATE installments SET amount_paid = ?, state = ?, paid_on = ?, notes = ? WHERE id = ?`,
		inst.AmountPaid, inst.State, utcPtr(inst.PaidOn), inst.Notes, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return checkAffected(res, "installment")
}

// ListInstallments retrieves a loan's schedule ordered by number.
func (s *SQLStore) ListInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.query(ctx, `SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? ORDER BY number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var out []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for installments: %w", err)
	}
	return out, nil
}

// ListDueInstallments implements Storage.
func (s *SQLStore) ListDueInstallments(ctx context.Context, collectorID uuid.UUID, date time.Time) ([]*models.DueInstallment, error) {
	date = models.DateOf(date)
	rows, err := s.query(ctx,
		`SELECT i.id, i.loan_id, i.number, i.due_date, i.amount, i.amount_paid, i.state, i.paid_on, i.notes,
			l.status, c.first_name, c.last_name, c.neighborhood
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		JOIN clients c ON c.id = l.client_id
		WHERE l.collector_id = ?
			AND i.due_date = ?
			AND i.state IN (?, ?)
			AND l.status IN (?, ?)
			AND NOT EXISTS (SELECT 1 FROM collection_tasks t WHERE t.installment_id = i.id AND t.assigned_on = ?)
		ORDER BY i.due_date, c.neighborhood, i.number, i.id`,
		collectorID, date, models.InstallmentPending, models.InstallmentPartial,
		models.LoanDisbursed, models.LoanOverdue, date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due installments: %w", err)
	}
	defer rows.Close()

	var out []*models.DueInstallment
	for rows.Next() {
		var due models.DueInstallment
		var first, last string
		inst, err := scanInstallment(rows, &due.LoanStatus, &first, &last, &due.Neighborhood)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due installment row: %w", err)
		}
		due.Installment = inst
		due.ClientName = first + " " + last
		out = append(out, &due)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for due installments: %w", err)
	}
	return out, nil
}
