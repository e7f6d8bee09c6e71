package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

// CreatePayment inserts a new payment. Payments are never updated.
func (s *SQLStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.exec(ctx,
		`INSERT INTO payments (id, loan_id, installment_id, amount, paid_at, installment_number, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LoanID, p.InstallmentID, p.Amount, p.PaidAt.UTC(), p.InstallmentNumber, p.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListPayments retrieves all payments for a loan, oldest first.
func (s *SQLStore) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.query(ctx,
		`SELECT id, loan_id, installment_id, amount, paid_at, installment_number, notes
		FROM payments WHERE loan_id = ? ORDER BY paid_at ASC, id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var instID uuid.NullUUID
		if err := rows.Scan(&p.ID, &p.LoanID, &instID, &p.Amount, &p.PaidAt, &p.InstallmentNumber, &p.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		if instID.Valid {
			p.InstallmentID = &instID.UUID
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// SumPayments totals a loan's payments; zero when there are none.
func (s *SQLStore) SumPayments(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	return s.sumAmounts(ctx, `SELECT amount FROM payments WHERE loan_id = ?`, loanID)
}

// SumPaymentsBetween implements Storage.
func (s *SQLStore) SumPaymentsBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return s.sumAmounts(ctx, `SELECT amount FROM payments WHERE paid_at >= ? AND paid_at < ?`, from.UTC(), to.UTC())
}

// sumAmounts adds the amounts in Go; SQLite would coerce TEXT money to REAL in SUM().
func (s *SQLStore) sumAmounts(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan payment amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error during rows iteration for payment amounts: %w", err)
	}
	return total, nil
}
