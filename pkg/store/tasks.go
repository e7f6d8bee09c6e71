package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

const taskColumns = `t.id, t.collector_id, t.installment_id, t.assigned_on, t.status, t.priority, t.visit_order,
	t.visited_at, t.amount_collected, t.notes, t.attempts, t.rescheduled_to, t.latitude, t.longitude,
	t.created_at, t.updated_at`

func scanTask(row rowScanner, extra ...any) (*models.CollectionTask, error) {
	var task models.CollectionTask
	var visitedAt, rescheduledTo sql.NullTime
	var amount decimal.NullDecimal
	var lat, lng sql.NullFloat64
	dest := append([]any{&task.ID, &task.CollectorID, &task.InstallmentID, &task.AssignedOn, &task.Status,
		&task.Priority, &task.VisitOrder, &visitedAt, &amount, &task.Notes, &task.Attempts, &rescheduledTo,
		&lat, &lng, &task.CreatedAt, &task.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	task.AssignedOn = models.DateOf(task.AssignedOn)
	task.VisitedAt = nullTime(visitedAt)
	if rescheduledTo.Valid {
		d := models.DateOf(rescheduledTo.Time)
		task.RescheduledTo = &d
	}
	if amount.Valid {
		task.AmountCollected = &amount.Decimal
	}
	if lat.Valid && lng.Valid {
		task.Location = &models.GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &task, nil
}

func taskArgs(task *models.CollectionTask) (amount, lat, lng any) {
	if task.AmountCollected != nil {
		amount = *task.AmountCollected
	}
	if task.Location != nil {
		lat, lng = task.Location.Latitude, task.Location.Longitude
	}
	return amount, lat, lng
}

// CreateTask implements Storage.
func (s *SQLStore) CreateTask(ctx context.Context, task *models.CollectionTask) error {
	amount, lat, lng := taskArgs(task)
	_, err := s.exec(ctx,
		`INSERT INTO collection_tasks (id, collector_id, installment_id, assigned_on, status, priority, visit_order,
			visited_at, amount_collected, notes, attempts, rescheduled_to, latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.CollectorID, task.InstallmentID, models.DateOf(task.AssignedOn), task.Status, task.Priority,
		task.VisitOrder, utcPtr(task.VisitedAt), amount, task.Notes, task.Attempts, utcPtr(task.RescheduledTo),
		lat, lng, task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("installment %s on %s: %w", task.InstallmentID, task.AssignedOn.Format(models.DateLayout), models.ErrDuplicateTask)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a collection task by its ID.
func (s *SQLStore) GetTask(ctx context.Context, id uuid.UUID) (*models.CollectionTask, error) {
	task, err := scanTask(s.queryRow(ctx, `SELECT `+taskColumns+` FROM collection_tasks t WHERE t.id = ?`+s.forUpdate(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("task")
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTask persists every mutable field of a task. Moving a task onto a
// date where its installment already has one returns models.ErrDuplicateTask.
func (s *SQLStore) UpdateTask(ctx context.Context, task *models.CollectionTask) error {
	amount, lat, lng := taskArgs(task)
	res, err := s.exec(ctx,
		`UPDATE collection_tasks SET assigned_on = ?, status = ?, priority = ?, visit_order = ?, visited_at = ?,
			amount_collected = ?, notes = ?, attempts = ?, rescheduled_to = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?`,
		models.DateOf(task.AssignedOn), task.Status, task.Priority, task.VisitOrder, utcPtr(task.VisitedAt),
		amount, task.Notes, task.Attempts, utcPtr(task.RescheduledTo), lat, lng, task.UpdatedAt.UTC(), task.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("installment %s on %s: %w", task.InstallmentID, task.AssignedOn.Format(models.DateLayout), models.ErrDuplicateTask)
		}
		return fmt.Errorf("failed to update task: %w", err)
	}
	return checkAffected(res, "task")
}

// HasTask reports whether the installment has a task assigned on date.
func (s *SQLStore) HasTask(ctx context.Context, installmentID uuid.UUID, date time.Time) (bool, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM collection_tasks WHERE installment_id = ? AND assigned_on = ?`,
		installmentID, models.DateOf(date)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check task: %w", err)
	}
	return n > 0, nil
}

// CountTasks counts every task assigned on date.
func (s *SQLStore) CountTasks(ctx context.Context, date time.Time) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM collection_tasks WHERE assigned_on = ?`, models.DateOf(date)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// ListTasksRescheduledTo implements Storage.
func (s *SQLStore) ListTasksRescheduledTo(ctx context.Context, collectorID uuid.UUID, date time.Time) ([]*models.CollectionTask, error) {
	rows, err := s.query(ctx,
		`SELECT `+taskColumns+` FROM collection_tasks t
		WHERE t.collector_id = ? AND t.rescheduled_to = ?
		ORDER BY t.assigned_on, t.visit_order, t.id`,
		collectorID, models.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list rescheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.CollectionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for tasks: %w", err)
	}
	return out, nil
}

// ListTaskViews implements Storage.
func (s *SQLStore) ListTaskViews(ctx context.Context, collectorID uuid.UUID, date time.Time, statuses ...models.TaskStatus) ([]*models.TaskView, error) {
	query := `SELECT ` + taskColumns + `,
			i.id, i.loan_id, i.number, i.due_date, i.amount, i.amount_paid, i.state, i.paid_on, i.notes,
			c.first_name, c.last_name, c.address, c.neighborhood
		FROM collection_tasks t
		JOIN installments i ON i.id = t.installment_id
		JOIN loans l ON l.id = i.loan_id
		JOIN clients c ON c.id = l.client_id
		WHERE t.collector_id = ? AND t.assigned_on = ?`
	args := []any{collectorID, models.DateOf(date)}
	if len(statuses) > 0 {
		set, statusArgs := in(statuses)
		query += ` AND t.status IN ` + set
		args = append(args, statusArgs...)
	}
	query += ` ORDER BY t.visit_order, t.created_at, t.id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list task views: %w", err)
	}
	defer rows.Close()

	var out []*models.TaskView
	for rows.Next() {
		view := &models.TaskView{Installment: &models.Installment{}}
		var paidOn sql.NullTime
		var first, last string
		inst := view.Installment
		task, err := scanTask(rows,
			&inst.ID, &inst.LoanID, &inst.Number, &inst.DueDate, &inst.Amount, &inst.AmountPaid, &inst.State, &paidOn, &inst.Notes,
			&first, &last, &view.Address, &view.Neighborhood)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task view row: %w", err)
		}
		inst.DueDate = models.DateOf(inst.DueDate)
		if paidOn.Valid {
			d := models.DateOf(paidOn.Time)
			inst.PaidOn = &d
		}
		view.Task = task
		view.LoanID = inst.LoanID
		view.ClientName = first + " " + last
		out = append(out, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for task views: %w", err)
	}
	return out, nil
}

// DeleteUntouchedTasks implements Storage.
func (s *SQLStore) DeleteUntouchedTasks(ctx context.Context, date time.Time) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM collection_tasks WHERE assigned_on = ? AND status = ? AND attempts = 0`,
		models.DateOf(date), models.TaskPending)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}
