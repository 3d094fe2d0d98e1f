package models

import "fmt"

// Level enumerates resident seniority levels.
type Level string

const (
	LevelR1 Level = "R1"
	LevelR2 Level = "R2"
	LevelR3 Level = "R3"
	LevelR4 Level = "R4"
)

// Levels returns all levels in seniority order.
func Levels() []Level {
	return []Level{LevelR1, LevelR2, LevelR3, LevelR4}
}

// ParseLevel validates a raw level string.
func ParseLevel(raw string) (Level, error) {
	switch Level(raw) {
	case LevelR1, LevelR2, LevelR3, LevelR4:
		return Level(raw), nil
	}
	return "", fmt.Errorf("unknown level %q", raw)
}

// Person is one resident on the weekly roster. Immutable once loaded.
type Person struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	Level           Level      `json:"level"`
	RotationUnit    string     `json:"rotation_unit"`
	HealthCheck     bool       `json:"health_check"`
	TuesdayTeaching bool       `json:"tuesday_teaching"`
	FixedSlot       *FixedSlot `json:"fixed_schedule,omitempty"`
}

// FixedSlot pins a person to a single day and time slot, optionally a room.
// An empty Room lets the pre-scheduler pick a fallback clinic room.
type FixedSlot struct {
	Day  Day      `json:"day"`
	Time TimeSlot `json:"time_slot"`
	Room string   `json:"room,omitempty"`
}

// DisplayName renders the person for exports.
func (p Person) DisplayName() string {
	if p.Name == "" {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
