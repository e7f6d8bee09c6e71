package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/fieldloan/pkg/models"
)

const snapshotColumns = `id, as_of, active_loans, total_exposure, current_exposure, overdue_exposure, overdue_percent,
	current_loans, early_arrears_loans, high_arrears_loans, critical_arrears_loans, early_arrears_exposure,
	high_arrears_exposure, critical_arrears_exposure, penalty_interest_total, average_days_past_due,
	collected_today, daily_goal, goal_attainment_percent, created_at`

// ReplaceSnapshot implements Storage.
func (s *SQLStore) ReplaceSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	return s.RunInTx(ctx, func(tx Storage) error {
		t := tx.(*SQLStore)
		asOf := models.DateOf(snap.AsOf)
		if _, err := t.exec(ctx, `DELETE FROM portfolio_snapshots WHERE as_of = ?`, asOf); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		_, err := t.exec(ctx,
			`INSERT INTO portfolio_snapshots (`+snapshotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, asOf, snap.ActiveLoans, snap.TotalExposure, snap.CurrentExposure, snap.OverdueExposure,
			snap.OverduePercent, snap.CurrentLoans, snap.EarlyArrearsLoans, snap.HighArrearsLoans,
			snap.CriticalArrearsLoans, snap.EarlyArrearsExposure, snap.HighArrearsExposure, snap.CriticalExposure,
			snap.PenaltyInterestTotal, snap.AverageDaysPastDue, snap.CollectedToday, snap.DailyGoal,
			snap.GoalAttainmentPercent, snap.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	})
}

// GetSnapshot retrieves the snapshot for date.
func (s *SQLStore) GetSnapshot(ctx context.Context, date time.Time) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	err := s.queryRow(ctx, `SELECT `+snapshotColumns+` FROM portfolio_snapshots WHERE as_of = ?`, models.DateOf(date)).Scan(
		&snap.ID, &snap.AsOf, &snap.ActiveLoans, &snap.TotalExposure, &snap.CurrentExposure, &snap.OverdueExposure,
		&snap.OverduePercent, &snap.CurrentLoans, &snap.EarlyArrearsLoans, &snap.HighArrearsLoans,
		&snap.CriticalArrearsLoans, &snap.EarlyArrearsExposure, &snap.HighArrearsExposure, &snap.CriticalExposure,
		&snap.PenaltyInterestTotal, &snap.AverageDaysPastDue, &snap.CollectedToday, &snap.DailyGoal,
		&snap.GoalAttainmentPercent, &snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("snapshot")
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.AsOf = models.DateOf(snap.AsOf)
	return &snap, nil
}
