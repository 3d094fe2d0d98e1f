package dto

import (
	"time"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// PersonInput is one roster entry as submitted by clients.
type PersonInput struct {
	ID              string              `json:"id" validate:"required"`
	Name            string              `json:"name"`
	Level           string              `json:"level" validate:"required,oneof=R1 R2 R3 R4"`
	RotationUnit    string              `json:"rotation_unit" validate:"required"`
	HealthCheck     bool                `json:"health_check"`
	TuesdayTeaching bool                `json:"tuesday_teaching"`
	FixedSchedule   *FixedScheduleInput `json:"fixed_schedule,omitempty" validate:"omitempty"`
}

// FixedScheduleInput pins a person to one session, optionally a room.
type FixedScheduleInput struct {
	Day      string `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday"`
	TimeSlot string `json:"time_slot" validate:"required,oneof=Morning Afternoon"`
	Room     string `json:"room,omitempty"`
}

// ToModel converts the payload into the immutable domain person.
func (p PersonInput) ToModel() models.Person {
	person := models.Person{
		ID:              p.ID,
		Name:            p.Name,
		Level:           models.Level(p.Level),
		RotationUnit:    p.RotationUnit,
		HealthCheck:     p.HealthCheck,
		TuesdayTeaching: p.TuesdayTeaching,
	}
	if p.FixedSchedule != nil {
		person.FixedSlot = &models.FixedSlot{
			Day:  models.Day(p.FixedSchedule.Day),
			Time: models.TimeSlot(p.FixedSchedule.TimeSlot),
			Room: p.FixedSchedule.Room,
		}
	}
	return person
}

// CreateRunRequest captures POST /schedule/runs payload.
type CreateRunRequest struct {
	Personnel     []PersonInput                `json:"personnel" validate:"required,min=1,dive"`
	Options       *models.EngineOptions        `json:"options,omitempty" validate:"omitempty"`
	R1Assignments map[string]R1AssignmentInput `json:"r1_assignments,omitempty" validate:"omitempty,dive"`
	WeekLabel     string                       `json:"week_label,omitempty"`
}

// R1AssignmentInput overrides the pre-scheduler pick for one R1 resident.
type R1AssignmentInput struct {
	Day  string `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday"`
	Room string `json:"room" validate:"required"`
}

// People converts the request roster into domain persons.
func (r CreateRunRequest) People() []models.Person {
	people := make([]models.Person, 0, len(r.Personnel))
	for _, p := range r.Personnel {
		people = append(people, p.ToModel())
	}
	return people
}

// RunResponse is returned after creating or reusing a run.
type RunResponse struct {
	ID       string               `json:"id"`
	Status   models.RotaJobStatus `json:"status"`
	Progress int                  `json:"progress"`
	Reused   bool                 `json:"reused,omitempty"`
}

// ArtifactLink exposes one downloadable artifact with its signed URL.
type ArtifactLink struct {
	Kind      models.ArtifactKind `json:"kind"`
	Filename  string              `json:"filename"`
	URL       string              `json:"url"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// RunStatusResponse exposes job progress metadata.
type RunStatusResponse struct {
	ID         string               `json:"id"`
	Status     models.RotaJobStatus `json:"status"`
	Progress   int                  `json:"progress"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Error      *string              `json:"error,omitempty"`
	Artifacts  []ArtifactLink       `json:"artifacts,omitempty"`
}

// RunResultResponse wraps the full engine outcome for a finished run.
type RunResultResponse struct {
	ID     string               `json:"id"`
	Status models.RotaJobStatus `json:"status"`
	Result models.RunResult     `json:"result"`
}

// PreviewRequest captures POST /schedule/preview payload.
type PreviewRequest struct {
	Personnel []PersonInput `json:"personnel" validate:"required,min=1,dive"`
}

// People converts the preview roster into domain persons.
func (r PreviewRequest) People() []models.Person {
	people := make([]models.Person, 0, len(r.Personnel))
	for _, p := range r.Personnel {
		people = append(people, p.ToModel())
	}
	return people
}

// PreviewAssignment is one resolved R1 clinic placement.
type PreviewAssignment struct {
	PersonID string `json:"person_id"`
	Unit     string `json:"unit"`
	Day      string `json:"day"`
	Room     string `json:"room"`
}

// PreviewFixedPlacement is one resolved fixed session placement.
type PreviewFixedPlacement struct {
	PersonID string `json:"person_id"`
	Day      string `json:"day"`
	TimeSlot string `json:"time_slot"`
	Room     string `json:"room"`
}

// PreviewResponse returns the deterministic pre-schedule without running
// the engine.
type PreviewResponse struct {
	R1Assignments   []PreviewAssignment     `json:"r1_assignments"`
	CheckupPattern  []PreviewFixedPlacement `json:"checkup_pattern"`
	FixedPlacements []PreviewFixedPlacement `json:"fixed_placements"`
}

// ValidateRosterRequest captures POST /schedule/validate payload. Bindings
// stay loose so validation can report problems instead of rejecting them.
type ValidateRosterRequest struct {
	Personnel []PersonInput `json:"personnel"`
}

// ValidateRosterResponse is the full roster verdict.
type ValidateRosterResponse struct {
	Valid      bool     `json:"valid"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	Difficulty int      `json:"difficulty"`
}

// ValidateFieldRequest captures POST /schedule/validate-field payload.
type ValidateFieldRequest struct {
	Level string `json:"level" validate:"required,oneof=R1 R2 R3 R4"`
	Field string `json:"field" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// ValidateFieldResponse is the partial verdict for one field.
type ValidateFieldResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// DefaultsResponse describes the schedulable world for UI bootstrapping.
type DefaultsResponse struct {
	Levels        []models.Level            `json:"levels"`
	RotationUnits map[models.Level][]string `json:"rotation_units"`
	DefaultCounts map[models.Level]int      `json:"default_counts"`
	Days          []models.Day              `json:"days"`
	TimeSlots     []models.TimeSlot         `json:"time_slots"`
	ClinicRooms   []string                  `json:"clinic_rooms"`
	CheckupRooms  []string                  `json:"checkup_rooms"`
	Engine        EngineDefaults            `json:"engine"`
}

// EngineDefaults mirrors the tunable engine defaults for display.
type EngineDefaults struct {
	PopulationSize       int     `json:"population_size"`
	MaxGenerations       int     `json:"max_generations"`
	EliteFraction        float64 `json:"elite_fraction"`
	MutationRate         float64 `json:"mutation_rate"`
	CrossoverRate        float64 `json:"crossover_rate"`
	TournamentSize       int     `json:"tournament_size"`
	ConvergenceThreshold int     `json:"convergence_threshold"`
}
