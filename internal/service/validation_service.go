package service

import (
	"fmt"
	"strconv"

	"github.com/noah-isme/clinic-rota-api/internal/dto"
	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/scheduler"
)

const (
	difficultyLowHealthCheck    = 20
	difficultyTuesdayTeaching   = 10
	difficultyRestrictiveUnits  = 15
	difficultyLowHeadcount      = 25
	difficultyHighHeadcountEase = 10
)

// restrictiveUnits are rotations that remove people from the general clinic
// pool for large parts of the week.
var restrictiveUnits = map[string]struct{}{
	"health": {}, "emergency": {}, "radiology": {},
	"psychiatry-1": {}, "psychiatry-2": {},
	"palliative-1": {}, "palliative-2": {},
	"diabetes-education": {}, "sleep-clinic": {},
	"travel-clinic": {}, "osteoporosis-clinic": {}, "weight-clinic": {},
}

// crowdedUnitWarnings fire when more than two people share the unit.
var crowdedUnitWarnings = map[string]string{
	"health":    "multiple residents in health may limit health check coverage",
	"emergency": "multiple personnel in emergency may reduce clinic availability",
	"radiology": "multiple personnel in radiology may reduce clinic availability",
}

// ValidationService checks rosters before they reach the engine. All checks
// are advisory at this layer; the verdict carries messages instead of errors
// so clients can surface them field by field.
type ValidationService struct{}

// NewValidationService constructs the validation service.
func NewValidationService() *ValidationService {
	return &ValidationService{}
}

// ValidateRoster produces the full verdict for a submitted roster.
func (s *ValidationService) ValidateRoster(people []models.Person) dto.ValidateRosterResponse {
	errs := make([]string, 0)
	warnings := make([]string, 0)

	counts := make(map[models.Level]int, 4)
	seen := make(map[string]struct{}, len(people))
	for _, p := range people {
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				errs = append(errs, fmt.Sprintf("duplicate person id %q", p.ID))
			}
			seen[p.ID] = struct{}{}
		}
		if _, err := models.ParseLevel(string(p.Level)); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid level %q", p.ID, p.Level))
			continue
		}
		counts[p.Level]++
		if p.RotationUnit == "" {
			errs = append(errs, fmt.Sprintf("%s: missing rotation unit", p.ID))
		} else if !scheduler.ValidUnit(p.Level, p.RotationUnit) {
			errs = append(errs, fmt.Sprintf("%s: invalid rotation unit %q for %s", p.ID, p.RotationUnit, p.Level))
		}
	}

	for _, level := range models.Levels() {
		if count := counts[level]; count < scheduler.MinPersonnelPerLevel || count > scheduler.MaxPersonnelPerLevel {
			errs = append(errs, fmt.Sprintf("invalid %s count: must be between %d and %d", level, scheduler.MinPersonnelPerLevel, scheduler.MaxPersonnelPerLevel))
		}
	}

	warnings = append(warnings, crowdedUnitConflicts(people)...)
	score, difficultyWarnings := assessDifficulty(people)
	warnings = append(warnings, difficultyWarnings...)

	return dto.ValidateRosterResponse{
		Valid:      len(errs) == 0,
		Errors:     errs,
		Warnings:   warnings,
		Difficulty: score,
	}
}

// ValidateField checks a single interactive edit. Unknown fields pass so the
// UI can send everything through without a field allowlist.
func (s *ValidationService) ValidateField(level, field, value string) dto.ValidateFieldResponse {
	switch field {
	case "rotation_unit":
		parsed, err := models.ParseLevel(level)
		if err != nil {
			return dto.ValidateFieldResponse{Valid: false, Message: fmt.Sprintf("invalid level %q", level)}
		}
		if !scheduler.ValidUnit(parsed, value) {
			return dto.ValidateFieldResponse{Valid: false, Message: fmt.Sprintf("invalid rotation unit %q for %s", value, parsed)}
		}
	case "personnel_count":
		count, err := strconv.Atoi(value)
		if err != nil {
			return dto.ValidateFieldResponse{Valid: false, Message: "count must be a number"}
		}
		if count < scheduler.MinPersonnelPerLevel || count > scheduler.MaxPersonnelPerLevel {
			return dto.ValidateFieldResponse{Valid: false, Message: fmt.Sprintf("count must be between %d and %d", scheduler.MinPersonnelPerLevel, scheduler.MaxPersonnelPerLevel)}
		}
	}
	return dto.ValidateFieldResponse{Valid: true}
}

func crowdedUnitConflicts(people []models.Person) []string {
	unitCounts := make(map[string]int)
	for _, p := range people {
		if p.RotationUnit != "" {
			unitCounts[p.RotationUnit]++
		}
	}
	warnings := make([]string, 0)
	// Iterate over a fixed order so verdicts are stable.
	for _, unit := range []string{"health", "emergency", "radiology"} {
		if unitCounts[unit] > 2 {
			warnings = append(warnings, crowdedUnitWarnings[unit])
		}
	}
	return warnings
}

func assessDifficulty(people []models.Person) (int, []string) {
	warnings := make([]string, 0)
	score := 0

	total := len(people)
	healthCheckCount := 0
	tuesdayTeachingCount := 0
	restrictiveCount := 0
	for _, p := range people {
		if p.HealthCheck {
			healthCheckCount++
		}
		if p.TuesdayTeaching {
			tuesdayTeachingCount++
		}
		if _, ok := restrictiveUnits[p.RotationUnit]; ok {
			restrictiveCount++
		}
	}

	if healthCheckCount < 4 {
		warnings = append(warnings, fmt.Sprintf("only %d personnel available for health checks - may be insufficient", healthCheckCount))
		score += difficultyLowHealthCheck
	}
	if tuesdayTeachingCount > 2 {
		warnings = append(warnings, fmt.Sprintf("%d R4 personnel have Tuesday teaching - may limit scheduling flexibility", tuesdayTeachingCount))
		score += difficultyTuesdayTeaching
	}
	if float64(restrictiveCount) > float64(total)*0.3 {
		warnings = append(warnings, "many personnel have restrictive rotation units - scheduling may be challenging")
		score += difficultyRestrictiveUnits
	}
	if total < 18 {
		warnings = append(warnings, "low total personnel count may make it difficult to fill all slots")
		score += difficultyLowHeadcount
	} else if total > 25 {
		score -= difficultyHighHeadcountEase
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, warnings
}
