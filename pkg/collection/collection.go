// Package collection builds each collector's daily visit list.
//
// A run for a date pulls forward the tasks explicitly rescheduled to that
// date and creates one task per installment falling due on it. Older
// backlog is never swept up; it reaches a collector again only through a
// reschedule. After the passes, each collector's pending tasks for the date
// are renumbered so visits are grouped by neighborhood, highest priority
// first inside each group.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/mcclellann/fieldloan/pkg/routing"
	"github.com/mcclellann/fieldloan/pkg/store"
	"go.uber.org/zap"
)

// Generator creates and orders collection tasks.
type Generator struct {
	storage store.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator creates a Generator over s.
func NewGenerator(s store.Storage, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{storage: s, logger: logger, now: time.Now}
}

// Options tune a generation run.
type Options struct {
	// Verbose logs every task at info level instead of debug.
	Verbose bool
	// Force deletes the date's untouched tasks (PENDING, never attempted) first.
	Force bool
}

func (g *Generator) trace(opts Options, msg string, fields ...zap.Field) {
	if opts.Verbose {
		g.logger.Info(msg, fields...)
		return
	}
	g.logger.Debug(msg, fields...)
}

// GenerateDailyTasks runs both passes for every active collector with at
// least one route and returns how many tasks were created or pulled forward.
// Per-installment failures are logged and skipped.
func (g *Generator) GenerateDailyTasks(ctx context.Context, date time.Time, opts Options) (int, error) {
	date = models.DateOf(date)
	day := date.Format(models.DateLayout)
	op := zap.String("op", "collection.GenerateDailyTasks")

	if opts.Force {
		removed, err := g.storage.DeleteUntouchedTasks(ctx, date)
		if err != nil {
			return 0, fmt.Errorf("failed to clear tasks for %s: %w", day, err)
		}
		g.logger.Info("cleared untouched tasks before regeneration", op, zap.String("date", day), zap.Int("removed", removed))
	}

	collectors, err := g.storage.ListCollectors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list collectors: %w", err)
	}
	var working []*models.Collector
	for _, c := range collectors {
		if !c.Active {
			continue
		}
		if len(c.RouteIDs) == 0 {
			g.trace(opts, "collector has no routes, skipping", op, zap.String("collector", c.FullName()))
			continue
		}
		working = append(working, c)
	}
	g.trace(opts, "generating tasks", op, zap.String("date", day), zap.Int("collectors", len(working)))

	total := 0
	for _, c := range working {
		pulled := g.pullRescheduled(ctx, c, date, opts)
		created := g.createDue(ctx, c, date, opts)
		total += pulled + created
		g.trace(opts, "collector processed", op,
			zap.String("collector", c.FullName()),
			zap.Int("rescheduled", pulled),
			zap.Int("created", created))
	}

	if total > 0 {
		for _, c := range working {
			if err := g.OptimizeRoute(ctx, c.ID, date); err != nil {
				g.logger.Error("route optimization failed", op,
					zap.String("collector_id", c.ID.String()), zap.Error(err))
			}
		}
	}

	g.logger.Info("daily tasks generated", op, zap.String("date", day), zap.Int("tasks", total))
	return total, nil
}

// pullRescheduled moves the collector's tasks rescheduled to date onto date.
func (g *Generator) pullRescheduled(ctx context.Context, c *models.Collector, date time.Time, opts Options) int {
	op := zap.String("op", "collection.pullRescheduled")
	tasks, err := g.storage.ListTasksRescheduledTo(ctx, c.ID, date)
	if err != nil {
		g.logger.Error("failed to list rescheduled tasks", op, zap.String("collector_id", c.ID.String()), zap.Error(err))
		return 0
	}

	count := 0
	for _, task := range tasks {
		if task.AssignedOn.Equal(date) || task.Status.IsClosed() {
			continue
		}
		exists, err := g.storage.HasTask(ctx, task.InstallmentID, date)
		if err != nil {
			g.logger.Error("failed to check existing task", op, zap.String("task_id", task.ID.String()), zap.Error(err))
			continue
		}
		if exists {
			g.trace(opts, "installment already has a task on date, not pulling forward", op,
				zap.String("task_id", task.ID.String()))
			continue
		}
		inst, err := g.storage.GetInstallment(ctx, task.InstallmentID)
		if err != nil {
			g.logger.Error("failed to load installment", op, zap.String("task_id", task.ID.String()), zap.Error(err))
			continue
		}

		task.AssignedOn = date
		task.Status = models.TaskPending
		task.Priority = models.PriorityForDaysPastDue(models.DaysBetween(inst.DueDate, date))
		task.UpdatedAt = g.now().UTC()
		if err := g.storage.UpdateTask(ctx, task); err != nil {
			g.logger.Warn("failed to pull task forward", op, zap.String("task_id", task.ID.String()), zap.Error(err))
			continue
		}
		count++
		g.trace(opts, "rescheduled task pulled forward", op,
			zap.String("task_id", task.ID.String()),
			zap.Int("installment", inst.Number),
			zap.String("priority", string(task.Priority)))
	}
	return count
}

// createDue creates a task for each installment of the collector due on date.
func (g *Generator) createDue(ctx context.Context, c *models.Collector, date time.Time, opts Options) int {
	op := zap.String("op", "collection.createDue")
	due, err := g.storage.ListDueInstallments(ctx, c.ID, date)
	if err != nil {
		g.logger.Error("failed to list due installments", op, zap.String("collector_id", c.ID.String()), zap.Error(err))
		return 0
	}

	count := 0
	order := 1
	for _, d := range due {
		now := g.now().UTC()
		task := &models.CollectionTask{
			ID:            uuid.New(),
			CollectorID:   c.ID,
			InstallmentID: d.Installment.ID,
			AssignedOn:    date,
			Status:        models.TaskPending,
			Priority:      models.PriorityForDaysPastDue(models.DaysBetween(d.Installment.DueDate, date)),
			VisitOrder:    order,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := g.storage.CreateTask(ctx, task); err != nil {
			level := g.logger.Error
			if errors.Is(err, models.ErrDuplicateTask) {
				level = g.logger.Warn
			}
			level("failed to create task", op,
				zap.String("client", d.ClientName),
				zap.Int("installment", d.Installment.Number),
				zap.Error(err))
			continue
		}
		count++
		order++
		g.trace(opts, "task created", op,
			zap.String("client", d.ClientName),
			zap.Int("installment", d.Installment.Number),
			zap.String("amount", d.Installment.Amount.StringFixed(2)),
			zap.String("priority", string(task.Priority)))
	}
	return count
}

// OptimizeRoute renumbers the collector's PENDING tasks on date: tasks are
// grouped by client neighborhood in order of first appearance, sorted
// HIGH, MEDIUM, LOW inside each group and numbered from 1 across groups.
func (g *Generator) OptimizeRoute(ctx context.Context, collectorID uuid.UUID, date time.Time) error {
	views, err := g.storage.ListTaskViews(ctx, collectorID, date, models.TaskPending)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}

	var groups [][]*models.TaskView
	index := make(map[string]int)
	for _, v := range views {
		key := routing.Normalize(v.Neighborhood)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], v)
	}

	order := 1
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Task.Priority.Rank() < group[j].Task.Priority.Rank()
		})
		for _, v := range group {
			if v.Task.VisitOrder != order {
				v.Task.VisitOrder = order
				v.Task.UpdatedAt = g.now().UTC()
				if err := g.storage.UpdateTask(ctx, v.Task); err != nil {
					return fmt.Errorf("failed to reorder task %s: %w", v.Task.ID, err)
				}
			}
			order++
		}
	}
	return nil
}

// Agenda returns the collector's tasks on date in visit order.
func (g *Generator) Agenda(ctx context.Context, collectorID uuid.UUID, date time.Time) ([]*models.TaskView, error) {
	if _, err := g.storage.GetCollector(ctx, collectorID); err != nil {
		return nil, err
	}
	return g.storage.ListTaskViews(ctx, collectorID, models.DateOf(date))
}
