package planner

import (
	"sort"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// Matcher decides which tasks fit the user's current energy and orders
// the eligible ones.
type Matcher struct {
	tolerance int
}

func NewMatcher(tolerance int) *Matcher {
	return &Matcher{tolerance: tolerance}
}

// Eligible reports whether a task requiring the given energy fits a user
// at the given current energy.
func (m *Matcher) Eligible(required, current int) bool {
	return required <= current+m.tolerance
}

// CheckEligible is Eligible with score validation, for callers taking
// energy values straight off the wire.
func (m *Matcher) CheckEligible(required, current int) (bool, error) {
	if err := validateScore("required_energy", required); err != nil {
		return false, err
	}
	if err := validateScore("current_energy", current); err != nil {
		return false, err
	}
	return m.Eligible(required, current), nil
}

// Rank filters tasks to those eligible at the given energy and orders them
// by quadrant, then required energy, then due date (tasks without a due
// date last). The sort is stable, so equal tasks keep their input order.
// The input slice is not modified.
func (m *Matcher) Rank(tasks []*models.Task, currentEnergy int) ([]*models.Task, error) {
	if err := validateScore("current_energy", currentEnergy); err != nil {
		return nil, err
	}

	ranked := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if m.Eligible(t.RequiredEnergy, currentEnergy) {
			ranked = append(ranked, t)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Quadrant != b.Quadrant {
			return a.Quadrant < b.Quadrant
		}
		if a.RequiredEnergy != b.RequiredEnergy {
			return a.RequiredEnergy < b.RequiredEnergy
		}
		return dueBefore(a, b)
	})

	return ranked, nil
}

func dueBefore(a, b *models.Task) bool {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return false
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	default:
		return a.DueDate.Before(*b.DueDate)
	}
}
