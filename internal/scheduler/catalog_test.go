package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

func TestRequiredRoomsTable(t *testing.T) {
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			rooms := RequiredRooms(day, slot)
			require.NotEmpty(t, rooms, "%s %s must require rooms", day, slot)
			assert.Contains(t, rooms, "4201", "%s %s must staff the senior room", day, slot)
			assert.Contains(t, rooms, "checkup-1", "%s %s must staff checkup-1", day, slot)
			if slot == models.Morning {
				assert.Contains(t, rooms, "checkup-2", "%s morning must staff checkup-2", day)
			} else {
				assert.NotContains(t, rooms, "checkup-2", "%s afternoon runs one checkup station", day)
			}
		}
	}
	assert.Equal(t, 61, TotalRequiredRooms())
}

func TestDefaultPersonnelCounts(t *testing.T) {
	counts := DefaultPersonnelCounts()
	assert.Equal(t, 5, counts[models.LevelR1])
	assert.Equal(t, 6, counts[models.LevelR2])
	assert.Equal(t, 4, counts[models.LevelR3])
	assert.Equal(t, 6, counts[models.LevelR4])
	assert.Equal(t, 21, DefaultRosterSize())
}

func TestRoomEligible(t *testing.T) {
	tests := []struct {
		name   string
		person models.Person
		room   string
		want   bool
	}{
		{"checkup needs flag", models.Person{Level: models.LevelR2, HealthCheck: false}, "checkup-1", false},
		{"checkup with flag", models.Person{Level: models.LevelR1, HealthCheck: true}, "checkup-2", true},
		{"senior room for R2", models.Person{Level: models.LevelR2}, "4201", true},
		{"senior room for R3", models.Person{Level: models.LevelR3}, "4201", true},
		{"senior room blocks R1", models.Person{Level: models.LevelR1}, "4201", false},
		{"senior room blocks R4", models.Person{Level: models.LevelR4}, "4201", false},
		{"ordinary room open", models.Person{Level: models.LevelR4}, "4207", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RoomEligible(tc.person, tc.room))
		})
	}
}

func TestSessionBarred(t *testing.T) {
	sleep := models.Person{ID: "r4-1", Level: models.LevelR4, RotationUnit: "sleep-clinic"}
	assert.True(t, SessionBarred(sleep, models.Tuesday, models.Afternoon))
	assert.True(t, SessionBarred(sleep, models.Thursday, models.Morning))
	assert.False(t, SessionBarred(sleep, models.Monday, models.Morning))

	teaching := models.Person{ID: "r4-2", Level: models.LevelR4, RotationUnit: "other", TuesdayTeaching: true}
	assert.True(t, SessionBarred(teaching, models.Tuesday, models.Morning))
	assert.True(t, SessionBarred(teaching, models.Tuesday, models.Afternoon))
	assert.False(t, SessionBarred(teaching, models.Wednesday, models.Morning))

	// The Tuesday bar only binds for R4.
	r2Teaching := models.Person{ID: "r2-1", Level: models.LevelR2, RotationUnit: "ent-clinic", TuesdayTeaching: true}
	assert.False(t, SessionBarred(r2Teaching, models.Tuesday, models.Morning))

	psych := models.Person{ID: "r1-1", Level: models.LevelR1, RotationUnit: "psychiatry-1"}
	assert.True(t, SessionBarred(psych, models.Monday, models.Afternoon))
	assert.True(t, SessionBarred(psych, models.Thursday, models.Afternoon))
	assert.False(t, SessionBarred(psych, models.Monday, models.Morning))

	// The conditional checkup requirement is not a session bar.
	ward := models.Person{ID: "r1-2", Level: models.LevelR1, RotationUnit: "pediatric-ward"}
	assert.False(t, SessionBarred(ward, models.Wednesday, models.Morning))
}

func TestMaxClinicsFor(t *testing.T) {
	assert.Equal(t, 1, MaxClinicsFor(models.Person{Level: models.LevelR1, RotationUnit: "emergency"}))
	assert.Equal(t, 2, MaxClinicsFor(models.Person{Level: models.LevelR2, RotationUnit: "ent-clinic"}))
	assert.Equal(t, 3, MaxClinicsFor(models.Person{Level: models.LevelR3, RotationUnit: "urology-clinic"}))
	assert.Equal(t, 1, MaxClinicsFor(models.Person{Level: models.LevelR3, RotationUnit: "satellite-1"}))
	assert.Equal(t, 1, MaxClinicsFor(models.Person{Level: models.LevelR4, RotationUnit: "satellite-2"}))
	assert.Equal(t, 2, MaxClinicsFor(models.Person{Level: models.LevelR4, RotationUnit: "travel-clinic"}))
}

func TestR1HealthCheckupSessions(t *testing.T) {
	sessions := R1HealthCheckupSessions()
	require.Len(t, sessions, 8)
	assert.NotContains(t, sessions, SessionRef{Day: models.Monday, Time: models.Afternoon},
		"Monday afternoon is the health unit's clinic, not a checkup session")
	assert.NotContains(t, sessions, SessionRef{Day: models.Wednesday, Time: models.Morning})
}

func TestValidUnit(t *testing.T) {
	assert.True(t, ValidUnit(models.LevelR1, "health"))
	assert.True(t, ValidUnit(models.LevelR4, "travel-clinic"))
	assert.False(t, ValidUnit(models.LevelR1, "travel-clinic"))
	assert.False(t, ValidUnit(models.LevelR2, "no-such-unit"))
}
