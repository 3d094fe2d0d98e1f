package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// Penalty weights. The relative magnitudes encode rule priority and are
// load-bearing for search behavior; change them only together with the
// convergence threshold.
const (
	penaltyDoubleBooking      = 1000.0
	penaltyRequiredUnfilled   = 1000.0
	penaltyCheckupUnstaffed   = 500.0
	penaltyFullDay            = 800.0
	penaltySeniorRoomHolder   = 600.0
	penaltyFixedWrongRoom     = 300.0
	penaltyForbiddenDay       = 400.0
	penaltyForbiddenSlot      = 400.0
	penaltyOverClinicCap      = 200.0
	penaltyR1OffPrimary       = 400.0
	penaltyNoCheckupDuty      = 300.0
	penaltyHealthPatternCount = 800.0
	penaltyHealthNoClinic     = 400.0
	penaltySeniorRoomCount    = 300.0
	penaltyNoMorningClinic    = 200.0
	penaltySameSessionTimes   = 200.0
	penaltyTuesdayTeaching    = 500.0
	penaltyFixedSlotMissing   = 1000.0
	penaltyFixedSlotStray     = 800.0

	softFixedPresence      = 100.0
	softCheckupRequirement = 50.0

	healthCheckupTarget = 8
	distributionCeiling = 20.0
)

// Evaluator scores candidate grids against the compiled rule tables.
// Evaluation is side-effect-free; one evaluator serves concurrent callers.
type Evaluator struct {
	roster *Roster
}

// NewEvaluator builds an evaluator over a validated roster.
func NewEvaluator(roster *Roster) *Evaluator {
	return &Evaluator{roster: roster}
}

// Report is the scored outcome for one grid.
type Report struct {
	Hard         []string
	Soft         []string
	Penalty      float64
	Coverage     float64
	Distribution float64
	Fitness      float64
}

// Violations converts a report into the API-facing shape.
func (r Report) Violations() models.ViolationReport {
	return models.ViolationReport{
		Hard:         r.Hard,
		Soft:         r.Soft,
		TotalPenalty: r.Penalty,
	}
}

// Evaluate scores one grid. Fitness = coverage + distribution - penalty.
func (e *Evaluator) Evaluate(g models.Grid) Report {
	var rep Report
	byPerson := e.assignmentsByPerson(g)

	e.checkDoubleBooking(g, &rep)
	e.checkRequiredRooms(g, &rep)
	e.checkFullDays(g, &rep)
	e.checkSeniorRoom(g, &rep)
	e.checkPersonRules(g, byPerson, &rep)
	e.checkR4Fixed(g, byPerson, &rep)

	rep.Coverage = e.requiredCoverage(g)
	rep.Distribution = e.distribution(byPerson)
	rep.Fitness = rep.Coverage + rep.Distribution - rep.Penalty
	return rep
}

func (e *Evaluator) hard(rep *Report, weight float64, format string, args ...interface{}) {
	rep.Penalty += weight
	rep.Hard = append(rep.Hard, fmt.Sprintf(format, args...))
}

func (e *Evaluator) soft(rep *Report, weight float64, format string, args ...interface{}) {
	rep.Penalty += weight
	rep.Soft = append(rep.Soft, fmt.Sprintf(format, args...))
}

func (e *Evaluator) checkDoubleBooking(g models.Grid, rep *Report) {
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			rooms := g.Rooms(day, slot)
			for _, person := range e.roster.All() {
				count := 0
				for _, occupant := range rooms {
					if occupant == person.ID {
						count++
					}
				}
				if count > 1 {
					rep.Penalty += penaltyDoubleBooking * float64(count-1)
					rep.Hard = append(rep.Hard, fmt.Sprintf(
						"double booking: %s holds %d rooms on %s %s", person.ID, count, day, slot))
				}
			}
		}
	}
}

func (e *Evaluator) checkRequiredRooms(g models.Grid, rep *Report) {
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			rooms := g.Rooms(day, slot)
			for _, room := range RequiredRooms(day, slot) {
				if occupant, ok := rooms[room]; ok && occupant != "" {
					continue
				}
				e.hard(rep, penaltyRequiredUnfilled, "required room %s unfilled on %s %s", room, day, slot)
				if IsCheckupRoom(room) {
					e.hard(rep, penaltyCheckupUnstaffed, "health-check station %s unstaffed on %s %s", room, day, slot)
				}
			}
		}
	}
}

func (e *Evaluator) checkFullDays(g models.Grid, rep *Report) {
	for _, person := range e.roster.All() {
		if person.Level == models.LevelR1 && person.RotationUnit == unitHealth {
			continue
		}
		for _, day := range models.Weekdays() {
			if g.Holds(day, models.Morning, person.ID) && g.Holds(day, models.Afternoon, person.ID) {
				e.hard(rep, penaltyFullDay, "%s works both sessions on %s", person.ID, day)
			}
		}
	}
}

func (e *Evaluator) checkSeniorRoom(g models.Grid, rep *Report) {
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			occupant, ok := g.PersonAt(day, slot, seniorRoom)
			if !ok || occupant == "" {
				continue
			}
			person, known := e.roster.Get(occupant)
			if !known || (person.Level != models.LevelR2 && person.Level != models.LevelR3) {
				e.hard(rep, penaltySeniorRoomHolder, "room %s held by %s on %s %s", seniorRoom, occupant, day, slot)
			}
		}
	}
}

func (e *Evaluator) checkPersonRules(g models.Grid, byPerson map[string][]Placement, rep *Report) {
	for _, person := range e.roster.All() {
		assignments := byPerson[person.ID]
		var clinics, checkups []Placement
		for _, a := range assignments {
			if IsCheckupRoom(a.Room) {
				checkups = append(checkups, a)
			} else {
				clinics = append(clinics, a)
			}
		}
		rules := Rules(person.Level)

		for _, duty := range rules.Fixed[person.RotationUnit] {
			if len(duty.Rooms) > 0 {
				e.checkFixedRoomDuty(g, person, duty, rep)
			} else if !g.Holds(duty.Day, duty.Time, person.ID) {
				e.soft(rep, softFixedPresence, "%s absent from %s fixed session %s %s",
					person.ID, person.RotationUnit, duty.Day, duty.Time)
			}
		}

		if restriction, ok := rules.Restrictions[person.RotationUnit]; ok {
			for _, day := range restriction.ForbiddenDays {
				if g.Holds(day, models.Morning, person.ID) || g.Holds(day, models.Afternoon, person.ID) {
					e.hard(rep, penaltyForbiddenDay, "%s scheduled on restricted day %s", person.ID, day)
				}
			}
			for _, ref := range restriction.ForbiddenSlots {
				if g.Holds(ref.Day, ref.Time, person.ID) {
					e.hard(rep, penaltyForbiddenSlot, "%s scheduled in restricted session %s %s", person.ID, ref.Day, ref.Time)
				}
			}
			if restriction.Required != nil && len(checkups) > 0 {
				if !holdsOneOf(g, restriction.Required.Day, restriction.Required.Time, restriction.Required.Rooms, person.ID) {
					e.soft(rep, softCheckupRequirement, "%s on checkup duty but missing %s %s requirement",
						person.ID, restriction.Required.Day, restriction.Required.Time)
				}
			}
		}

		limit := MaxClinicsFor(person)
		if excess := len(clinics) - limit; excess > 0 {
			rep.Penalty += penaltyOverClinicCap * float64(excess)
			rep.Hard = append(rep.Hard, fmt.Sprintf(
				"%s exceeds clinic cap: %d > %d", person.ID, len(clinics), limit))
		}

		if person.Level == models.LevelR1 {
			for _, c := range clinics {
				if c.Time != models.Afternoon || c.Room != primaryR1Room {
					e.hard(rep, penaltyR1OffPrimary, "%s holds clinic outside afternoon %s: %s %s %s",
						person.ID, primaryR1Room, c.Day, c.Time, c.Room)
				}
			}
			if person.RotationUnit == unitHealth {
				if len(checkups) != healthCheckupTarget {
					e.hard(rep, penaltyHealthPatternCount, "%s has %d checkup sessions, expected %d",
						person.ID, len(checkups), healthCheckupTarget)
				}
				if occupant, _ := g.PersonAt(models.Monday, models.Afternoon, primaryR1Room); occupant != person.ID {
					e.hard(rep, penaltyHealthNoClinic, "%s missing Monday afternoon clinic in %s",
						person.ID, primaryR1Room)
				}
			}
		}

		if person.HealthCheck && len(checkups) == 0 {
			e.hard(rep, penaltyNoCheckupDuty, "%s flagged for checkups but has none", person.ID)
		}

		if rules.Require4201 {
			count := 0
			for _, c := range clinics {
				if c.Room == seniorRoom {
					count++
				}
			}
			if count != 1 {
				e.hard(rep, penaltySeniorRoomCount, "%s must hold %s exactly once, has %d",
					person.ID, seniorRoom, count)
			}
		}

		if rules.RequireMorning {
			morning := 0
			for _, c := range clinics {
				if c.Time == models.Morning {
					morning++
				}
			}
			if morning == 0 {
				e.hard(rep, penaltyNoMorningClinic, "%s has no morning clinic", person.ID)
			}
		}

		if rules.RequireDifferentTimes && len(clinics) == 2 && clinics[0].Time == clinics[1].Time {
			e.hard(rep, penaltySameSessionTimes, "%s clinics share the same session time", person.ID)
		}

		if rules.TuesdayTeaching && person.TuesdayTeaching {
			if g.Holds(models.Tuesday, models.Morning, person.ID) || g.Holds(models.Tuesday, models.Afternoon, person.ID) {
				e.hard(rep, penaltyTuesdayTeaching, "%s assigned on Tuesday despite teaching duty", person.ID)
			}
		}
	}
}

// checkFixedRoomDuty penalizes sitting in the wrong room during a fixed
// session; being absent from the session is handled elsewhere.
func (e *Evaluator) checkFixedRoomDuty(g models.Grid, person models.Person, duty FixedDuty, rep *Report) {
	if !g.Holds(duty.Day, duty.Time, person.ID) {
		return
	}
	if holdsOneOf(g, duty.Day, duty.Time, duty.Rooms, person.ID) {
		return
	}
	e.hard(rep, penaltyFixedWrongRoom, "%s in wrong room for %s fixed duty on %s %s",
		person.ID, person.RotationUnit, duty.Day, duty.Time)
}

func (e *Evaluator) checkR4Fixed(g models.Grid, byPerson map[string][]Placement, rep *Report) {
	for _, person := range e.roster.ByLevel(models.LevelR4) {
		if person.FixedSlot == nil {
			continue
		}
		day, slot := person.FixedSlot.Day, person.FixedSlot.Time
		if !g.Holds(day, slot, person.ID) {
			e.hard(rep, penaltyFixedSlotMissing, "%s missing from fixed session %s %s", person.ID, day, slot)
		}
		for _, a := range byPerson[person.ID] {
			if a.Day == day && a.Time == slot {
				continue
			}
			if IsCheckupRoom(a.Room) {
				continue
			}
			e.hard(rep, penaltyFixedSlotStray, "%s assigned outside fixed session: %s %s %s",
				person.ID, a.Day, a.Time, a.Room)
		}
	}
}

// requiredCoverage is the filled share of the requirement table, 0-100.
func (e *Evaluator) requiredCoverage(g models.Grid) float64 {
	total, filled := 0, 0
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			rooms := g.Rooms(day, slot)
			for _, room := range RequiredRooms(day, slot) {
				total++
				if occupant, ok := rooms[room]; ok && occupant != "" {
					filled++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total) * 100
}

// distribution rewards even workloads: ceiling minus the population
// variance of per-person assignment counts, floored at zero.
func (e *Evaluator) distribution(byPerson map[string][]Placement) float64 {
	n := e.roster.Len()
	if n == 0 {
		return 0
	}
	sum := 0
	for _, person := range e.roster.All() {
		sum += len(byPerson[person.ID])
	}
	mean := float64(sum) / float64(n)
	variance := 0.0
	for _, person := range e.roster.All() {
		diff := float64(len(byPerson[person.ID])) - mean
		variance += diff * diff
	}
	variance /= float64(n)
	if variance >= distributionCeiling {
		return 0
	}
	return distributionCeiling - variance
}

// Statistics summarizes the grid for reporting. Coverage here spans every
// room entry present in the grid, not just the requirement table.
func (e *Evaluator) Statistics(g models.Grid) models.Statistics {
	byPerson := e.assignmentsByPerson(g)
	perPerson := make(map[string]int, e.roster.Len())
	for _, person := range e.roster.All() {
		perPerson[person.ID] = len(byPerson[person.ID])
	}

	total, filled := 0, 0
	checkupTotal, checkupFilled := 0, 0
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			for room, occupant := range g.Rooms(day, slot) {
				total++
				if occupant != "" {
					filled++
				}
				if IsCheckupRoom(room) {
					checkupTotal++
					if occupant != "" {
						checkupFilled++
					}
				}
			}
		}
	}

	stats := models.Statistics{
		TotalPersonnel:       e.roster.Len(),
		PersonnelByLevel:     e.roster.CountsByLevel(),
		AssignmentsPerPerson: perPerson,
	}
	if total > 0 {
		stats.CoverageRate = float64(filled) / float64(total) * 100
	}
	if checkupTotal > 0 {
		stats.HealthCheckCoverage = float64(checkupFilled) / float64(checkupTotal) * 100
	}
	return stats
}

// assignmentsByPerson flattens the grid into deterministic per-person
// placement lists (day, then slot, then room order).
func (e *Evaluator) assignmentsByPerson(g models.Grid) map[string][]Placement {
	out := make(map[string][]Placement, e.roster.Len())
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			rooms := g.Rooms(day, slot)
			for _, room := range sortedRooms(rooms) {
				occupant := rooms[room]
				if occupant == "" {
					continue
				}
				out[occupant] = append(out[occupant], Placement{
					PersonID: occupant, Day: day, Time: slot, Room: room,
				})
			}
		}
	}
	return out
}

func holdsOneOf(g models.Grid, day models.Day, slot models.TimeSlot, rooms []string, personID string) bool {
	for _, room := range rooms {
		if occupant, _ := g.PersonAt(day, slot, room); occupant == personID {
			return true
		}
	}
	return false
}

func sortedRooms(rooms map[string]string) []string {
	keys := make([]string, 0, len(rooms))
	for room := range rooms {
		keys = append(keys, room)
	}
	sort.Strings(keys)
	return keys
}
