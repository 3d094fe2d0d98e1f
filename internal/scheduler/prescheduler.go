package scheduler

import (
	"fmt"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// AllocationError reports a resident the pre-scheduler could not place.
// It is a configuration-level failure: the roster is infeasible as given.
type AllocationError struct {
	PersonID string
	Unit     string
	Reason   string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot place %s (%s): %s", e.PersonID, e.Unit, e.Reason)
}

// Placement pins one person to a session and room.
type Placement struct {
	PersonID string          `json:"person_id"`
	Day      models.Day      `json:"day"`
	Time     models.TimeSlot `json:"time_slot"`
	Room     string          `json:"room"`
}

// PreScheduler resolves the R1 clinic rota deterministically and builds the
// seed grid every genetic candidate must honor.
type PreScheduler struct {
	roster *Roster
}

// NewPreScheduler wires the pre-scheduler to a validated roster.
func NewPreScheduler(roster *Roster) *PreScheduler {
	return &PreScheduler{roster: roster}
}

// r1DayPreference orders candidate clinic days for restricted units.
var r1DayPreference = []models.Day{
	models.Wednesday, models.Tuesday, models.Thursday, models.Monday, models.Friday,
}

// wardFallbackDays is retried over the raw pool when no valid day remains
// for a ward unit.
var wardFallbackDays = []models.Day{
	models.Wednesday, models.Thursday, models.Tuesday,
}

// PlanR1 assigns every R1 resident one afternoon clinic in room 4204.
// Three tiers, in order: units with a fixed day (health on Monday,
// community-1 on Tuesday), day-restricted units (wards avoid Mon/Fri,
// psychiatry-1 avoids Mon/Thu) picked by day preference, then the rest
// into whatever days remain.
func (p *PreScheduler) PlanR1() (map[string]models.R1Assignment, error) {
	pool := models.Weekdays()
	assignments := make(map[string]models.R1Assignment)

	var restricted, flexible []models.Person
	for _, person := range p.roster.ByLevel(models.LevelR1) {
		switch {
		case person.RotationUnit == unitHealth:
			assignments[person.ID] = models.R1Assignment{Day: models.Monday, Room: primaryR1Room}
			pool = removeDay(pool, models.Monday)
		case person.RotationUnit == unitCommunity1:
			assignments[person.ID] = models.R1Assignment{Day: models.Tuesday, Room: primaryR1Room}
			pool = removeDay(pool, models.Tuesday)
		case isWardUnit(person.RotationUnit) || person.RotationUnit == unitPsychiatry1:
			restricted = append(restricted, person)
		default:
			flexible = append(flexible, person)
		}
	}

	for _, person := range restricted {
		day, ok := pickRestrictedDay(pool, person.RotationUnit)
		if !ok {
			return nil, &AllocationError{
				PersonID: person.ID,
				Unit:     person.RotationUnit,
				Reason:   "no valid clinic day available",
			}
		}
		assignments[person.ID] = models.R1Assignment{Day: day, Room: primaryR1Room}
		pool = removeDay(pool, day)
	}

	for _, person := range flexible {
		if len(pool) == 0 {
			return nil, &AllocationError{
				PersonID: person.ID,
				Unit:     person.RotationUnit,
				Reason:   "no clinic slots remaining",
			}
		}
		assignments[person.ID] = models.R1Assignment{Day: pool[0], Room: primaryR1Room}
		pool = pool[1:]
	}

	return assignments, nil
}

func pickRestrictedDay(pool []models.Day, unit string) (models.Day, bool) {
	for _, preferred := range r1DayPreference {
		if !dayValidForUnit(unit, preferred) {
			continue
		}
		if containsDay(pool, preferred) {
			return preferred, true
		}
	}
	if isWardUnit(unit) {
		for _, fallback := range wardFallbackDays {
			if containsDay(pool, fallback) {
				return fallback, true
			}
		}
	}
	return "", false
}

func dayValidForUnit(unit string, day models.Day) bool {
	if isWardUnit(unit) {
		return day != models.Monday && day != models.Friday
	}
	if unit == unitPsychiatry1 {
		return day != models.Monday && day != models.Thursday
	}
	return true
}

func removeDay(pool []models.Day, day models.Day) []models.Day {
	out := pool[:0]
	for _, d := range pool {
		if d != day {
			out = append(out, d)
		}
	}
	return out
}

func containsDay(pool []models.Day, day models.Day) bool {
	for _, d := range pool {
		if d == day {
			return true
		}
	}
	return false
}

// Seed is the pre-scheduled base: the R1 clinic rota, the R4 fixed
// placements and the health-unit checkup pattern. The engine re-imposes
// it after every crossover.
type Seed struct {
	Grid      models.Grid
	R1Clinics map[string]models.R1Assignment

	r1Entries []Placement
	r4Entries []Placement
	r4Fixed   map[string]SessionRef
	healthIDs []string
}

// BuildSeed materializes the seed grid from resolved R1 assignments.
// Assignments may come from PlanR1 or from a caller-supplied override.
func (p *PreScheduler) BuildSeed(r1 map[string]models.R1Assignment) *Seed {
	seed := &Seed{
		Grid:      models.NewGrid(),
		R1Clinics: r1,
		r4Fixed:   make(map[string]SessionRef),
	}

	for _, person := range p.roster.ByLevel(models.LevelR1) {
		assignment, ok := r1[person.ID]
		if !ok {
			continue
		}
		room := assignment.Room
		if room == "" {
			room = primaryR1Room
		}
		entry := Placement{PersonID: person.ID, Day: assignment.Day, Time: models.Afternoon, Room: room}
		seed.r1Entries = append(seed.r1Entries, entry)
		seed.Grid.Assign(entry.Day, entry.Time, entry.Room, entry.PersonID)
		if person.RotationUnit == unitHealth {
			seed.healthIDs = append(seed.healthIDs, person.ID)
		}
	}

	for _, person := range p.roster.ByLevel(models.LevelR4) {
		if person.FixedSlot == nil {
			continue
		}
		day, slot := person.FixedSlot.Day, person.FixedSlot.Time
		room := person.FixedSlot.Room
		if room == "" {
			room = fallbackFixedRoom(day, slot)
		}
		if room == "" {
			continue
		}
		entry := Placement{PersonID: person.ID, Day: day, Time: slot, Room: room}
		seed.r4Entries = append(seed.r4Entries, entry)
		seed.r4Fixed[person.ID] = SessionRef{Day: day, Time: slot}
		seed.Grid.Assign(day, slot, room, person.ID)
	}

	seed.applyHealthPattern(seed.Grid)
	return seed
}

// fallbackFixedRoom picks the first required room of the session that is
// neither an R1 room, the senior room, nor a checkup station.
func fallbackFixedRoom(day models.Day, slot models.TimeSlot) string {
	for _, room := range RequiredRooms(day, slot) {
		if room == primaryR1Room || room == seniorRoom || IsCheckupRoom(room) {
			continue
		}
		return room
	}
	return ""
}

// Reimpose restores every seed placement on the grid in place: R1 clinics,
// R4 fixed slots, then the health checkup pattern.
func (s *Seed) Reimpose(g models.Grid) {
	for _, e := range s.r1Entries {
		g.Assign(e.Day, e.Time, e.Room, e.PersonID)
	}
	for _, e := range s.r4Entries {
		g.Assign(e.Day, e.Time, e.Room, e.PersonID)
	}
	s.applyHealthPattern(g)
}

func (s *Seed) applyHealthPattern(g models.Grid) {
	for _, id := range s.healthIDs {
		for _, ref := range r1HealthCheckupSessions {
			g.Assign(ref.Day, ref.Time, "checkup-1", id)
		}
	}
}

// SeededR1 reports whether the person holds a seeded R1 clinic.
func (s *Seed) SeededR1(personID string) bool {
	for _, e := range s.r1Entries {
		if e.PersonID == personID {
			return true
		}
	}
	return false
}

// R4FixedAt reports whether the person is pinned to exactly this session.
func (s *Seed) R4FixedAt(personID string, day models.Day, slot models.TimeSlot) bool {
	ref, ok := s.r4Fixed[personID]
	return ok && ref.Day == day && ref.Time == slot
}

// R1Placements returns the seeded R1 clinic entries.
func (s *Seed) R1Placements() []Placement {
	out := make([]Placement, len(s.r1Entries))
	copy(out, s.r1Entries)
	return out
}

// R4Placements returns the seeded R4 fixed entries.
func (s *Seed) R4Placements() []Placement {
	out := make([]Placement, len(s.r4Entries))
	copy(out, s.r4Entries)
	return out
}

// HealthAssignees returns the health-unit R1s carrying the checkup rota.
func (s *Seed) HealthAssignees() []string {
	out := make([]string, len(s.healthIDs))
	copy(out, s.healthIDs)
	return out
}
