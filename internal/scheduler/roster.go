package scheduler

import (
	"fmt"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// Roster is the immutable personnel registry for one run. It preserves
// input order, which the pre-scheduler and checkup re-imposition rely on.
type Roster struct {
	people  []models.Person
	byID    map[string]models.Person
	byLevel map[models.Level][]models.Person
}

// NewRoster builds and validates a registry. Unknown levels, unknown
// rotation units and duplicate ids are configuration errors and must never
// reach the engine.
func NewRoster(people []models.Person) (*Roster, error) {
	r := &Roster{
		people:  make([]models.Person, 0, len(people)),
		byID:    make(map[string]models.Person, len(people)),
		byLevel: make(map[models.Level][]models.Person, 4),
	}
	for _, p := range people {
		if p.ID == "" {
			return nil, fmt.Errorf("person with empty id")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate person id %q", p.ID)
		}
		if _, err := models.ParseLevel(string(p.Level)); err != nil {
			return nil, fmt.Errorf("person %s: %w", p.ID, err)
		}
		if p.RotationUnit == "" {
			return nil, fmt.Errorf("person %s: rotation unit is required", p.ID)
		}
		if !ValidUnit(p.Level, p.RotationUnit) {
			return nil, fmt.Errorf("person %s: unknown rotation unit %q for level %s", p.ID, p.RotationUnit, p.Level)
		}
		r.people = append(r.people, p)
		r.byID[p.ID] = p
		r.byLevel[p.Level] = append(r.byLevel[p.Level], p)
	}
	return r, nil
}

// All returns every person in input order.
func (r *Roster) All() []models.Person {
	return r.people
}

// ByLevel returns the people of one level in input order.
func (r *Roster) ByLevel(level models.Level) []models.Person {
	return r.byLevel[level]
}

// Get looks a person up by id.
func (r *Roster) Get(id string) (models.Person, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the roster size.
func (r *Roster) Len() int {
	return len(r.people)
}

// CountsByLevel returns per-level roster sizes.
func (r *Roster) CountsByLevel() map[models.Level]int {
	counts := make(map[models.Level]int, len(r.byLevel))
	for level, people := range r.byLevel {
		counts[level] = len(people)
	}
	return counts
}
