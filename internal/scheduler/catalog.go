// Package scheduler implements the weekly clinic rota engine: a
// deterministic pre-scheduler for the R1 cohort plus a genetic search
// over full weekly grids.
package scheduler

import (
	"strings"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

const (
	// primaryR1Room is the only clinic room R1 residents may hold.
	primaryR1Room = "4204"
	// seniorRoom may only be held by R2 and R3 residents.
	seniorRoom = "4201"

	unitHealth      = "health"
	unitCommunity1  = "community-1"
	unitPsychiatry1 = "psychiatry-1"

	wardSuffix = "-ward"
)

// MinPersonnelPerLevel and MaxPersonnelPerLevel bound roster sizes per level.
const (
	MinPersonnelPerLevel = 1
	MaxPersonnelPerLevel = 10
)

var clinicRooms = []string{"4201", "4202", "4203", "4204", "4205", "4207", "4208", "4209", "4213", "4218"}

var checkupRooms = []string{"checkup-1", "checkup-2"}

// ClinicRooms returns the clinic room identifiers in grid column order.
func ClinicRooms() []string {
	out := make([]string, len(clinicRooms))
	copy(out, clinicRooms)
	return out
}

// CheckupRooms returns the health-check station identifiers.
func CheckupRooms() []string {
	out := make([]string, len(checkupRooms))
	copy(out, checkupRooms)
	return out
}

// IsCheckupRoom reports whether the room is a health-check station.
func IsCheckupRoom(room string) bool {
	return room == "checkup-1" || room == "checkup-2"
}

// sessionRooms is the daily room requirement table: which rooms must be
// staffed in each session of the week.
var sessionRooms = map[models.Day]map[models.TimeSlot][]string{
	models.Monday: {
		models.Morning:   {"4201", "4203", "4209", "4218", "checkup-1", "checkup-2"},
		models.Afternoon: {"4201", "4202", "4203", "4207", "4208", "4204", "checkup-1"},
	},
	models.Tuesday: {
		models.Morning:   {"4201", "4207", "4209", "checkup-1", "checkup-2"},
		models.Afternoon: {"4201", "4204", "4205", "4208", "checkup-1"},
	},
	models.Wednesday: {
		models.Morning:   {"4201", "4208", "4213", "4218", "checkup-1", "checkup-2"},
		models.Afternoon: {"4201", "4203", "4204", "4207", "4208", "4209", "4213", "checkup-1"},
	},
	models.Thursday: {
		models.Morning:   {"4201", "4213", "4218", "checkup-1", "checkup-2"},
		models.Afternoon: {"4201", "4202", "4204", "4205", "4207", "4208", "checkup-1"},
	},
	models.Friday: {
		models.Morning:   {"4201", "4205", "4218", "checkup-1", "checkup-2"},
		models.Afternoon: {"4201", "4202", "4204", "4205", "4207", "4208", "checkup-1"},
	},
}

// RequiredRooms returns the rooms that must be staffed in one session.
func RequiredRooms(day models.Day, slot models.TimeSlot) []string {
	bySlot, ok := sessionRooms[day]
	if !ok {
		return nil
	}
	return bySlot[slot]
}

// TotalRequiredRooms counts every required room entry across the week.
func TotalRequiredRooms() int {
	total := 0
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			total += len(RequiredRooms(day, slot))
		}
	}
	return total
}

var rotationUnits = map[models.Level][]string{
	models.LevelR1: {
		"medicine-ward", "health", "emergency", "pediatric-ward",
		"psychiatry-1", "community-1", "obstetric-ward", "radiology",
	},
	models.LevelR2: {
		"obstetrics-clinic", "medicine-ward", "pediatrics-clinic", "surgery-ward",
		"community-2", "ophthalmology-clinic", "dermatology-clinic", "neurology-clinic",
		"rehab-clinic", "ent-clinic", "psychiatry-2", "family-practice",
	},
	models.LevelR3: {
		"chief-resident", "satellite-1", "neurology-clinic", "urology-clinic",
		"diabetes-education", "palliative-1", "geriatrics-clinic", "palliative-2",
		"medicine-clinic", "radiology",
	},
	models.LevelR4: {
		"sleep-clinic", "travel-clinic", "osteoporosis-clinic", "weight-clinic",
		"pain-clinic", "satellite-2", "other",
	},
}

// RotationUnits returns the known rotation units for one level.
func RotationUnits(level models.Level) []string {
	units := rotationUnits[level]
	out := make([]string, len(units))
	copy(out, units)
	return out
}

// ValidUnit reports whether the unit belongs to the level's rotation list.
func ValidUnit(level models.Level, unit string) bool {
	for _, u := range rotationUnits[level] {
		if u == unit {
			return true
		}
	}
	return false
}

// DefaultPersonnelCounts returns the roster size the engine defaults are
// tuned for.
func DefaultPersonnelCounts() map[models.Level]int {
	return map[models.Level]int{
		models.LevelR1: 5,
		models.LevelR2: 6,
		models.LevelR3: 4,
		models.LevelR4: 6,
	}
}

// DefaultRosterSize is the sum of the default per-level counts.
func DefaultRosterSize() int {
	total := 0
	for _, n := range DefaultPersonnelCounts() {
		total += n
	}
	return total
}

// SessionRef names one day/slot pair.
type SessionRef struct {
	Day  models.Day
	Time models.TimeSlot
}

// FixedDuty is one required session for a unit's fixed rota. An empty Rooms
// list means presence in the session is enough; a non-empty list means the
// person must not sit in any other room of that session.
type FixedDuty struct {
	Day   models.Day
	Time  models.TimeSlot
	Rooms []string
}

// Restriction constrains when a unit may be scheduled.
type Restriction struct {
	ForbiddenDays  []models.Day
	ForbiddenSlots []SessionRef
	// Required demands one of Rooms at the session whenever the person
	// carries any checkup duty that week.
	Required *ConditionalRequirement
}

// ConditionalRequirement is a co-occurrence rule tied to checkup duty.
type ConditionalRequirement struct {
	Day   models.Day
	Time  models.TimeSlot
	Rooms []string
}

// LevelRules bundles every compiled constraint for one seniority level.
type LevelRules struct {
	Fixed        map[string][]FixedDuty
	Restrictions map[string]Restriction
	MaxClinics   int
	SpecialMax   map[string]int

	Require4201           bool
	RequireMorning        bool
	RequireDifferentTimes bool
	TuesdayTeaching       bool
}

// r1HealthCheckupSessions is the fixed checkup rota for health-unit R1s:
// eight sessions per week, all on checkup-1.
var r1HealthCheckupSessions = []SessionRef{
	{models.Monday, models.Morning},
	{models.Tuesday, models.Morning},
	{models.Tuesday, models.Afternoon},
	{models.Wednesday, models.Afternoon},
	{models.Thursday, models.Morning},
	{models.Thursday, models.Afternoon},
	{models.Friday, models.Morning},
	{models.Friday, models.Afternoon},
}

// R1HealthCheckupSessions returns the fixed checkup rota for health-unit R1s.
func R1HealthCheckupSessions() []SessionRef {
	out := make([]SessionRef, len(r1HealthCheckupSessions))
	copy(out, r1HealthCheckupSessions)
	return out
}

var levelRules = map[models.Level]LevelRules{
	models.LevelR1: {
		Fixed: map[string][]FixedDuty{
			unitHealth:     r1HealthDuties(),
			unitCommunity1: {{Day: models.Tuesday, Time: models.Afternoon, Rooms: []string{primaryR1Room}}},
		},
		Restrictions: map[string]Restriction{
			unitPsychiatry1: {ForbiddenSlots: []SessionRef{
				{models.Monday, models.Afternoon},
				{models.Thursday, models.Afternoon},
			}},
			"pediatric-ward": {Required: &ConditionalRequirement{
				Day: models.Wednesday, Time: models.Morning, Rooms: []string{"checkup-1", "checkup-2"},
			}},
			"obstetric-ward": {Required: &ConditionalRequirement{
				Day: models.Wednesday, Time: models.Morning, Rooms: []string{"checkup-1", "checkup-2"},
			}},
		},
		MaxClinics: 1,
	},
	models.LevelR2: {
		Fixed: map[string][]FixedDuty{
			"community-2": {
				{Day: models.Wednesday, Time: models.Afternoon},
				{Day: models.Friday, Time: models.Morning},
			},
		},
		Restrictions: map[string]Restriction{
			"dermatology-clinic": {ForbiddenSlots: []SessionRef{
				{models.Wednesday, models.Morning},
				{models.Wednesday, models.Afternoon},
			}},
			"rehab-clinic": {ForbiddenSlots: []SessionRef{
				{models.Wednesday, models.Morning},
			}},
		},
		MaxClinics:            2,
		Require4201:           true,
		RequireDifferentTimes: true,
	},
	models.LevelR3: {
		Fixed: map[string][]FixedDuty{
			"satellite-1": {{Day: models.Tuesday, Time: models.Morning, Rooms: []string{seniorRoom}}},
			"chief-resident": {
				{Day: models.Monday, Time: models.Morning},
				{Day: models.Tuesday, Time: models.Afternoon},
				{Day: models.Thursday, Time: models.Afternoon},
			},
			"palliative-2": {
				{Day: models.Tuesday, Time: models.Morning},
				{Day: models.Wednesday, Time: models.Afternoon},
				{Day: models.Friday, Time: models.Afternoon},
			},
		},
		Restrictions: map[string]Restriction{
			"palliative-1": {ForbiddenSlots: []SessionRef{
				{models.Monday, models.Morning},
			}},
		},
		MaxClinics:     3,
		SpecialMax:     map[string]int{"satellite-1": 1},
		Require4201:    true,
		RequireMorning: true,
	},
	models.LevelR4: {
		Fixed: map[string][]FixedDuty{
			"satellite-2": {{Day: models.Thursday, Time: models.Afternoon}},
		},
		Restrictions: map[string]Restriction{
			"sleep-clinic": {ForbiddenSlots: []SessionRef{
				{models.Tuesday, models.Afternoon},
				{models.Thursday, models.Morning},
				{models.Thursday, models.Afternoon},
			}},
			"travel-clinic": {ForbiddenSlots: []SessionRef{
				{models.Monday, models.Afternoon},
				{models.Friday, models.Afternoon},
			}},
			"osteoporosis-clinic": {ForbiddenSlots: []SessionRef{
				{models.Tuesday, models.Afternoon},
				{models.Thursday, models.Morning},
			}},
			"weight-clinic": {ForbiddenSlots: []SessionRef{
				{models.Tuesday, models.Morning},
				{models.Wednesday, models.Afternoon},
			}},
			"pain-clinic": {ForbiddenSlots: []SessionRef{
				{models.Tuesday, models.Afternoon},
				{models.Friday, models.Afternoon},
				{models.Wednesday, models.Morning},
			}},
		},
		MaxClinics:      3,
		SpecialMax:      map[string]int{"satellite-2": 1, "travel-clinic": 2},
		RequireMorning:  true,
		TuesdayTeaching: true,
	},
}

// r1HealthDuties is the Monday clinic plus the eight-session checkup rota.
func r1HealthDuties() []FixedDuty {
	duties := []FixedDuty{
		{Day: models.Monday, Time: models.Afternoon, Rooms: []string{primaryR1Room}},
	}
	for _, ref := range r1HealthCheckupSessions {
		duties = append(duties, FixedDuty{Day: ref.Day, Time: ref.Time, Rooms: []string{"checkup-1"}})
	}
	return duties
}

// Rules returns the compiled constraint set for one level.
func Rules(level models.Level) LevelRules {
	return levelRules[level]
}

// MaxClinicsFor resolves the non-checkup clinic cap for one person.
func MaxClinicsFor(p models.Person) int {
	rules := levelRules[p.Level]
	if limit, ok := rules.SpecialMax[p.RotationUnit]; ok {
		return limit
	}
	return rules.MaxClinics
}

// RoomEligible reports whether the person may ever hold the room.
func RoomEligible(p models.Person, room string) bool {
	if IsCheckupRoom(room) {
		return p.HealthCheck
	}
	if room == seniorRoom {
		return p.Level == models.LevelR2 || p.Level == models.LevelR3
	}
	return true
}

// SessionBarred reports whether unit restrictions or Tuesday teaching bar
// the person from the session entirely.
func SessionBarred(p models.Person, day models.Day, slot models.TimeSlot) bool {
	if p.Level == models.LevelR4 && p.TuesdayTeaching && day == models.Tuesday {
		return true
	}
	restriction, ok := levelRules[p.Level].Restrictions[p.RotationUnit]
	if !ok {
		return false
	}
	for _, d := range restriction.ForbiddenDays {
		if d == day {
			return true
		}
	}
	for _, ref := range restriction.ForbiddenSlots {
		if ref.Day == day && ref.Time == slot {
			return true
		}
	}
	return false
}

// isWardUnit matches any rotation unit with the ward suffix. The Mon/Fri
// ward rule binds at pre-schedule time only.
func isWardUnit(unit string) bool {
	return strings.HasSuffix(unit, wardSuffix) && unit != wardSuffix
}
