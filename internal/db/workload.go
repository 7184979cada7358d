package db

import (
	"context"
	"fmt"
	"time"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// LoadWorkloadSnapshot builds the overwhelm detector's input from stored
// tasks. Energy, stress and available hours come from the caller; only
// the task-derived counters are computed here.
func (db *DB) LoadWorkloadSnapshot(ctx context.Context, userID string, now time.Time, availableHours float64, energy, stress int) (models.WorkloadSnapshot, error) {
	snap := models.WorkloadSnapshot{
		AvailableHoursToday: availableHours,
		EnergyLevel:         energy,
		StressLevel:         stress,
	}

	horizon := now.Add(48 * time.Hour)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND due_date < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND due_date >= ? AND due_date < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN started_at IS NOT NULL AND started_at >= ? THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE user_id = ? AND status IN ('pending', 'in_progress')
	`
	err := db.QueryRowContext(ctx, query, now, now, horizon, startOfDay, userID).Scan(
		&snap.ActiveTasks, &snap.OverdueTasks, &snap.UpcomingDeadlines, &snap.ContextSwitchesToday,
	)
	if err != nil {
		return snap, fmt.Errorf("failed to load workload snapshot: %w", err)
	}

	return snap, nil
}
