package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

func TestNewRosterRejectsBadPeople(t *testing.T) {
	tests := []struct {
		name    string
		people  []models.Person
		wantErr string
	}{
		{
			name:    "empty id",
			people:  []models.Person{{Level: models.LevelR2, RotationUnit: "ent-clinic"}},
			wantErr: "empty id",
		},
		{
			name: "duplicate id",
			people: []models.Person{
				{ID: "a", Level: models.LevelR2, RotationUnit: "ent-clinic"},
				{ID: "a", Level: models.LevelR3, RotationUnit: "urology-clinic"},
			},
			wantErr: `duplicate person id "a"`,
		},
		{
			name:    "unknown level",
			people:  []models.Person{{ID: "a", Level: "R9", RotationUnit: "ent-clinic"}},
			wantErr: "person a",
		},
		{
			name:    "missing unit",
			people:  []models.Person{{ID: "a", Level: models.LevelR2}},
			wantErr: "rotation unit is required",
		},
		{
			name:    "unit from wrong level",
			people:  []models.Person{{ID: "a", Level: models.LevelR4, RotationUnit: "ent-clinic"}},
			wantErr: `unknown rotation unit "ent-clinic" for level R4`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoster(tt.people)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRosterAccessors(t *testing.T) {
	people := []models.Person{
		{ID: "b", Level: models.LevelR3, RotationUnit: "urology-clinic"},
		{ID: "a", Level: models.LevelR2, RotationUnit: "ent-clinic"},
		{ID: "c", Level: models.LevelR2, RotationUnit: "rehab-clinic"},
	}
	roster, err := NewRoster(people)
	require.NoError(t, err)

	assert.Equal(t, 3, roster.Len())
	// Input order survives, it drives deterministic iteration everywhere.
	assert.Equal(t, "b", roster.All()[0].ID)
	assert.Equal(t, "a", roster.All()[1].ID)

	r2 := roster.ByLevel(models.LevelR2)
	require.Len(t, r2, 2)
	assert.Equal(t, "a", r2[0].ID)
	assert.Equal(t, "c", r2[1].ID)

	p, ok := roster.Get("c")
	require.True(t, ok)
	assert.Equal(t, "rehab-clinic", p.RotationUnit)
	_, ok = roster.Get("zz")
	assert.False(t, ok)

	assert.Equal(t, map[models.Level]int{models.LevelR2: 2, models.LevelR3: 1}, roster.CountsByLevel())
}
