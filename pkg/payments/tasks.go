package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Collection is the outcome of a successful field visit.
type Collection struct {
	Amount   decimal.Decimal
	Notes    string
	Location *models.GeoPoint
	// At defaults to now.
	At time.Time
}

// CompleteTask records the collected amount as a payment on the task's
// installment and closes the task as COLLECTED, in one transaction.
func (r *Recorder) CompleteTask(ctx context.Context, taskID uuid.UUID, c Collection) (*Receipt, error) {
	var receipt *Receipt
	err := r.storage.RunInTx(ctx, func(tx store.Storage) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status.IsClosed() {
			return fmt.Errorf("%w: task is %s", models.ErrTaskClosed, task.Status)
		}
		inst, err := tx.GetInstallment(ctx, task.InstallmentID)
		if err != nil {
			return err
		}
		collector, err := tx.GetCollector(ctx, task.CollectorID)
		if err != nil {
			return err
		}

		at := c.At
		if at.IsZero() {
			at = r.now()
		}
		at = at.UTC()

		receipt, err = r.record(ctx, tx, PaymentRequest{
			LoanID:        inst.LoanID,
			InstallmentID: &inst.ID,
			Amount:        c.Amount,
			Notes:         fieldNotes(collector, c.Notes),
			PaidAt:        at,
		})
		if err != nil {
			return err
		}

		amount := c.Amount
		task.Status = models.TaskCollected
		task.VisitedAt = &at
		task.AmountCollected = &amount
		task.Notes = strings.TrimSpace(c.Notes)
		if c.Location != nil {
			loc := *c.Location
			task.Location = &loc
		}
		task.UpdatedAt = r.now().UTC()
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		r.logger.Warn("task completion rejected",
			zap.String("op", "payments.CompleteTask"),
			zap.String("task_id", taskID.String()),
			zap.Error(err))
		return nil, err
	}
	r.logger.Info("task collected",
		zap.String("op", "payments.CompleteTask"),
		zap.String("task_id", taskID.String()),
		zap.String("payment_id", receipt.Payment.ID.String()),
		zap.String("amount", c.Amount.StringFixed(2)),
		zap.String("balance", receipt.Balance.StringFixed(2)))
	return receipt, nil
}

func fieldNotes(c *models.Collector, notes string) string {
	out := "Field collection by " + c.FullName()
	if notes = strings.TrimSpace(notes); notes != "" {
		out += ": " + notes
	}
	return out
}

// StatusChange is a visit outcome other than a collection.
type StatusChange struct {
	Status models.TaskStatus
	Notes  string
	// RescheduleTo is required for RESCHEDULED and ignored otherwise.
	RescheduleTo *time.Time
	// At defaults to now.
	At time.Time
}

// ChangeTaskStatus records a visit outcome. Every change counts as an attempt.
// COLLECTED goes through CompleteTask so a payment is always recorded.
func (r *Recorder) ChangeTaskStatus(ctx context.Context, taskID uuid.UUID, change StatusChange) (*models.CollectionTask, error) {
	if !change.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown task status %q", models.ErrInvalidParameters, change.Status)
	}
	if change.Status == models.TaskCollected {
		return nil, fmt.Errorf("%w: use task completion to collect", models.ErrInvalidTransition)
	}
	if change.Status == models.TaskRescheduled && change.RescheduleTo == nil {
		return nil, fmt.Errorf("%w: reschedule date is required", models.ErrInvalidParameters)
	}

	var task *models.CollectionTask
	err := r.storage.RunInTx(ctx, func(tx store.Storage) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status.IsClosed() {
			return fmt.Errorf("%w: task is %s", models.ErrTaskClosed, task.Status)
		}
		if change.Status == models.TaskRescheduled {
			to := models.DateOf(*change.RescheduleTo)
			if !to.After(task.AssignedOn) {
				return fmt.Errorf("%w: reschedule date must be after %s", models.ErrInvalidParameters,
					task.AssignedOn.Format(models.DateLayout))
			}
			task.RescheduledTo = &to
		}

		at := change.At
		if at.IsZero() {
			at = r.now()
		}
		at = at.UTC()
		task.Status = change.Status
		task.VisitedAt = &at
		task.Notes = strings.TrimSpace(change.Notes)
		task.Attempts++
		task.UpdatedAt = r.now().UTC()
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("task status changed",
		zap.String("op", "payments.ChangeTaskStatus"),
		zap.String("task_id", taskID.String()),
		zap.String("status", string(task.Status)),
		zap.Int("attempts", task.Attempts))
	return task, nil
}
