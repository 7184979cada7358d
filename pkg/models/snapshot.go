package models

// WorkloadSnapshot is a point-in-time picture of a user's load, consumed by
// the overwhelm detector. A value of -1 marks a signal the caller could not
// supply; the detector refuses to score incomplete snapshots.
type WorkloadSnapshot struct {
	ActiveTasks          int     `json:"active_tasks"`
	OverdueTasks         int     `json:"overdue_tasks"`
	UpcomingDeadlines    int     `json:"upcoming_deadlines"` // due within the next 48h
	ContextSwitchesToday int     `json:"context_switches_today"`
	AvailableHoursToday  float64 `json:"available_hours_today"`
	EnergyLevel          int     `json:"energy_level"` // 1-10
	StressLevel          int     `json:"stress_level"` // 1-10
}

// Missing returns the names of the fields the caller left unset.
func (s WorkloadSnapshot) Missing() []string {
	var missing []string
	if s.ActiveTasks < 0 {
		missing = append(missing, "active_tasks")
	}
	if s.OverdueTasks < 0 {
		missing = append(missing, "overdue_tasks")
	}
	if s.UpcomingDeadlines < 0 {
		missing = append(missing, "upcoming_deadlines")
	}
	if s.AvailableHoursToday <= 0 {
		missing = append(missing, "available_hours_today")
	}
	if s.EnergyLevel < 1 || s.EnergyLevel > 10 {
		missing = append(missing, "energy_level")
	}
	if s.StressLevel < 1 || s.StressLevel > 10 {
		missing = append(missing, "stress_level")
	}
	return missing
}

// Complete reports whether every signal needed for scoring is present.
func (s WorkloadSnapshot) Complete() bool {
	return len(s.Missing()) == 0
}
