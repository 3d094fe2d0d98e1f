package models

// Day enumerates the working days of the weekly grid.
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
)

// Weekdays returns the grid days in order.
func Weekdays() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// TimeSlot enumerates the two half-day sessions.
type TimeSlot string

const (
	Morning   TimeSlot = "Morning"
	Afternoon TimeSlot = "Afternoon"
)

// TimeSlots returns the sessions in order.
func TimeSlots() []TimeSlot {
	return []TimeSlot{Morning, Afternoon}
}

// Grid is one week of room assignments: day -> time slot -> room -> person id.
// An empty person id marks a required room nobody could fill. Grids are the
// unit of genetic representation and must never be shared between candidates;
// use Clone whenever a grid crosses an ownership boundary.
type Grid map[Day]map[TimeSlot]map[string]string

// NewGrid returns a grid with every day/slot bucket allocated and no rooms.
func NewGrid() Grid {
	g := make(Grid, len(Weekdays()))
	for _, day := range Weekdays() {
		g[day] = make(map[TimeSlot]map[string]string, 2)
		for _, slot := range TimeSlots() {
			g[day][slot] = make(map[string]string)
		}
	}
	return g
}

// Clone deep-copies the grid.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for day, slots := range g {
		out[day] = make(map[TimeSlot]map[string]string, len(slots))
		for slot, rooms := range slots {
			copied := make(map[string]string, len(rooms))
			for room, person := range rooms {
				copied[room] = person
			}
			out[day][slot] = copied
		}
	}
	return out
}

// Assign places a person (or "" to leave the room open) into a room,
// allocating intermediate buckets as needed.
func (g Grid) Assign(day Day, slot TimeSlot, room, personID string) {
	if g[day] == nil {
		g[day] = make(map[TimeSlot]map[string]string, 2)
	}
	if g[day][slot] == nil {
		g[day][slot] = make(map[string]string)
	}
	g[day][slot][room] = personID
}

// Rooms returns the room assignments for one session, never nil.
func (g Grid) Rooms(day Day, slot TimeSlot) map[string]string {
	if g[day] == nil {
		return map[string]string{}
	}
	rooms := g[day][slot]
	if rooms == nil {
		return map[string]string{}
	}
	return rooms
}

// PersonAt reports who holds a room and whether the room exists in the grid.
func (g Grid) PersonAt(day Day, slot TimeSlot, room string) (string, bool) {
	if g[day] == nil || g[day][slot] == nil {
		return "", false
	}
	person, ok := g[day][slot][room]
	return person, ok
}

// Holds reports whether the person appears anywhere in the given session.
func (g Grid) Holds(day Day, slot TimeSlot, personID string) bool {
	if personID == "" {
		return false
	}
	for _, occupant := range g.Rooms(day, slot) {
		if occupant == personID {
			return true
		}
	}
	return false
}
