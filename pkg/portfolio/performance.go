package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

// CollectorPerformance is one collector's field results for a day.
type CollectorPerformance struct {
	CollectorID           uuid.UUID       `json:"collector_id"`
	Name                  string          `json:"name"`
	Tasks                 int             `json:"tasks"`
	Visited               int             `json:"visited"`
	Collected             int             `json:"collected"`
	Pending               int             `json:"pending"`
	AmountCollected       decimal.Decimal `json:"amount_collected"`
	DailyGoal             decimal.Decimal `json:"daily_goal"`
	GoalAttainmentPercent decimal.Decimal `json:"goal_attainment_percent"`
	EffectivenessPercent  decimal.Decimal `json:"effectiveness_percent"`
	Commission            decimal.Decimal `json:"commission"`
}

// CollectorPerformance reports every active collector's tasks on date.
func (a *Analyzer) CollectorPerformance(ctx context.Context, date time.Time) ([]CollectorPerformance, error) {
	date = models.DateOf(date)
	collectors, err := a.storage.ListCollectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collectors: %w", err)
	}

	var out []CollectorPerformance
	for _, c := range collectors {
		if !c.Active {
			continue
		}
		views, err := a.storage.ListTaskViews(ctx, c.ID, date)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks for %s: %w", c.FullName(), err)
		}
		p := CollectorPerformance{
			CollectorID:     c.ID,
			Name:            c.FullName(),
			Tasks:           len(views),
			AmountCollected: decimal.Zero,
			DailyGoal:       c.DailyGoal,
		}
		for _, v := range views {
			switch v.Task.Status {
			case models.TaskPending, models.TaskInProgress:
				p.Pending++
			case models.TaskCancelled:
			default:
				p.Visited++
			}
			if v.Task.Status == models.TaskCollected {
				p.Collected++
				if v.Task.AmountCollected != nil {
					p.AmountCollected = p.AmountCollected.Add(*v.Task.AmountCollected)
				}
			}
		}
		p.GoalAttainmentPercent = percent(p.AmountCollected, p.DailyGoal)
		p.EffectivenessPercent = percent(decimal.NewFromInt(int64(p.Collected)), decimal.NewFromInt(int64(p.Visited)))
		p.Commission = p.AmountCollected.Mul(c.CommissionPercent).Div(hundred).Round(2)
		out = append(out, p)
	}
	return out, nil
}
