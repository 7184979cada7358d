package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// Mitigation is a concrete load-shedding suggestion. It never touches the
// tasks it names; acting on it is the caller's decision.
type Mitigation struct {
	Action    string   `json:"action"`
	TaskIDs   []string `json:"task_ids,omitempty"`
	Rationale string   `json:"rationale"`
}

type Assessment struct {
	Risk        RiskLevel    `json:"risk"`
	Score       float64      `json:"score"`
	Factors     []string     `json:"factors"`
	Mitigations []Mitigation `json:"mitigations,omitempty"`
}

// Detector scores a workload snapshot against four weighted signals.
// It never returns an error: an unusable snapshot yields RiskUnknown so
// a broken signal feed can never block planning.
type Detector struct {
	cfg config.OverwhelmConfig
}

func NewDetector(cfg config.OverwhelmConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Assess scores the snapshot. The optional task list is only consulted for
// mitigation suggestions; pass nil when none is available.
func (d *Detector) Assess(snap models.WorkloadSnapshot, tasks []*models.Task, now time.Time) Assessment {
	if missing := snap.Missing(); len(missing) > 0 {
		return Assessment{
			Risk:    RiskUnknown,
			Factors: []string{fmt.Sprintf("snapshot incomplete, missing %v", missing)},
		}
	}

	taskLoad := clamp01(float64(snap.ActiveTasks) / snap.AvailableHoursToday / d.cfg.TasksPerHour)

	// Any overdue work starts at half pressure so a single slipped deadline
	// already registers; each further one adds more.
	var overdue float64
	if snap.OverdueTasks > 0 {
		overdue = clamp01(0.5 + float64(snap.OverdueTasks)*0.125)
	}

	deadlines := clamp01(float64(snap.UpcomingDeadlines) / float64(d.cfg.DeadlineClusterLimit))

	// High stress and low energy compound; either alone is survivable.
	stressEnergy := clamp01(float64(snap.StressLevel) / 10.0 * float64(10-snap.EnergyLevel) / 10.0)

	w := d.cfg.Weights
	score := w.TaskLoad*taskLoad + w.Overdue*overdue + w.Deadlines*deadlines + w.StressEnergy*stressEnergy

	var risk RiskLevel
	switch {
	case score >= d.cfg.HighAt:
		risk = RiskHigh
	case score >= d.cfg.MediumAt:
		risk = RiskMedium
	default:
		risk = RiskLow
	}

	a := Assessment{Risk: risk, Score: score}

	if taskLoad >= 0.5 {
		a.Factors = append(a.Factors, fmt.Sprintf("%d active tasks against %.1f available hours", snap.ActiveTasks, snap.AvailableHoursToday))
	}
	if snap.OverdueTasks > 0 {
		a.Factors = append(a.Factors, fmt.Sprintf("%d tasks overdue", snap.OverdueTasks))
	}
	if deadlines >= 0.5 {
		a.Factors = append(a.Factors, fmt.Sprintf("%d deadlines within 48h", snap.UpcomingDeadlines))
	}
	if stressEnergy >= 0.35 {
		a.Factors = append(a.Factors, fmt.Sprintf("stress %d/10 with energy %d/10", snap.StressLevel, snap.EnergyLevel))
	}

	if risk == RiskMedium || risk == RiskHigh {
		a.Mitigations = d.mitigations(snap, tasks, now)
	}

	return a
}

// mitigations suggests deferring low-leverage work and capping the day.
// Defer candidates are pending quadrant 3 or 4 tasks with no deadline in
// the next 24 hours, least important first.
func (d *Detector) mitigations(snap models.WorkloadSnapshot, tasks []*models.Task, now time.Time) []Mitigation {
	var out []Mitigation

	var candidates []*models.Task
	for _, t := range tasks {
		if t.Status != models.TaskStatusPending || t.Quadrant < 3 {
			continue
		}
		if t.DueDate != nil && t.DueDate.Before(now.Add(24*time.Hour)) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Quadrant > candidates[j].Quadrant
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, t := range candidates {
			ids[i] = t.ID
		}
		out = append(out, Mitigation{
			Action:    "defer",
			TaskIDs:   ids,
			Rationale: fmt.Sprintf("%d low-leverage tasks have no deadline in the next 24h", len(ids)),
		})
	}

	if over := snap.ActiveTasks - d.cfg.DailyTaskCeiling; over > 0 {
		out = append(out, Mitigation{
			Action:    "reduce_today",
			Rationale: fmt.Sprintf("drop %d tasks from today's plan to stay at the ceiling of %d", over, d.cfg.DailyTaskCeiling),
		})
	}

	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
