package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/scheduler"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
)

// RulesService serves the operator-editable rules document. The engine's
// hard rule tables are compiled in; this document carries the tunable caps
// and room preferences, loaded from a JSON file at startup and replaceable
// over the API. The fingerprint folds the active document into run digests
// so an edit never reuses a stale cached run.
type RulesService struct {
	path   string
	logger *zap.Logger

	mu          sync.RWMutex
	doc         models.RulesDocument
	fingerprint string
}

// NewRulesService loads the rules document from path, falling back to the
// built-in defaults when the file is absent or the path is empty. A file
// that exists but fails to parse or validate is a fatal configuration error.
func NewRulesService(path string, logger *zap.Logger) (*RulesService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	doc := defaultRules()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Info("rules file absent, using built-in defaults", zap.String("path", path))
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read rules file")
		default:
			var loaded models.RulesDocument
			if err := json.Unmarshal(data, &loaded); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rules file is not valid JSON")
			}
			doc = loaded
		}
	}

	normalizeRules(&doc)
	if problems := validateRules(doc); len(problems) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(problems, "; "))
	}

	svc := &RulesService{path: path, logger: logger}
	svc.store(doc)
	return svc, nil
}

// Document returns a copy of the active rules document.
func (s *RulesService) Document() models.RulesDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRules(s.doc)
}

// Fingerprint identifies the active document contents. Run digests embed it
// so a rules replacement defeats deduplication of earlier runs.
func (s *RulesService) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// Replace validates and installs a new rules document, writing it through to
// the configured file so the edit survives a restart.
func (s *RulesService) Replace(doc models.RulesDocument) (models.RulesDocument, error) {
	normalizeRules(&doc)
	if problems := validateRules(doc); len(problems) > 0 {
		return models.RulesDocument{}, appErrors.Clone(appErrors.ErrValidation, strings.Join(problems, "; "))
	}

	if s.path != "" {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return models.RulesDocument{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode rules document")
		}
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			return models.RulesDocument{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist rules document")
		}
	}

	s.store(doc)
	s.logger.Info("rules document replaced", zap.String("fingerprint", s.Fingerprint()))
	return s.Document(), nil
}

func (s *RulesService) store(doc models.RulesDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.fingerprint = rulesFingerprint(doc)
}

// rulesFingerprint hashes the canonical JSON encoding; encoding/json sorts
// map keys, so equal documents always hash equal.
func rulesFingerprint(doc models.RulesDocument) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return "unencodable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateRules(doc models.RulesDocument) []string {
	var problems []string

	for unit, c := range doc.UnitConstraints {
		if !knownUnit(unit) {
			problems = append(problems, fmt.Sprintf("unknown rotation unit %q", unit))
			continue
		}
		if c.MinClinics < 0 {
			problems = append(problems, fmt.Sprintf("unit %q: min_clinics must not be negative", unit))
		}
		if c.MaxClinics < c.MinClinics {
			problems = append(problems, fmt.Sprintf("unit %q: max_clinics must be at least min_clinics", unit))
		}
	}

	if doc.GeneralRules.MaxClinicsPerDay < 1 {
		problems = append(problems, "general_rules: max_clinics_per_day must be at least 1")
	}
	if doc.GeneralRules.MaxClinicsPerWeek < doc.GeneralRules.MaxClinicsPerDay {
		problems = append(problems, "general_rules: max_clinics_per_week must be at least max_clinics_per_day")
	}
	for _, level := range doc.GeneralRules.HealthCheckPriority {
		if _, err := models.ParseLevel(string(level)); err != nil {
			problems = append(problems, fmt.Sprintf("general_rules: unknown level %q in health_check_priority", level))
		}
	}

	clinicRooms := make(map[string]bool)
	for _, room := range scheduler.ClinicRooms() {
		clinicRooms[room] = true
	}
	for unit, rooms := range doc.RoomPreferences {
		if !knownUnit(unit) {
			problems = append(problems, fmt.Sprintf("room_preferences: unknown rotation unit %q", unit))
			continue
		}
		for _, room := range rooms {
			if !clinicRooms[room] {
				problems = append(problems, fmt.Sprintf("room_preferences: unit %q lists unknown clinic room %q", unit, room))
			}
		}
	}

	return problems
}

func normalizeRules(doc *models.RulesDocument) {
	if doc.UnitConstraints == nil {
		doc.UnitConstraints = make(map[string]models.UnitConstraint)
	}
	if doc.RoomPreferences == nil {
		doc.RoomPreferences = make(map[string][]string)
	}
}

func cloneRules(doc models.RulesDocument) models.RulesDocument {
	out := models.RulesDocument{
		UnitConstraints: make(map[string]models.UnitConstraint, len(doc.UnitConstraints)),
		GeneralRules:    doc.GeneralRules,
		RoomPreferences: make(map[string][]string, len(doc.RoomPreferences)),
	}
	for unit, c := range doc.UnitConstraints {
		out.UnitConstraints[unit] = c
	}
	out.GeneralRules.HealthCheckPriority = append([]models.Level(nil), doc.GeneralRules.HealthCheckPriority...)
	for unit, rooms := range doc.RoomPreferences {
		out.RoomPreferences[unit] = append([]string(nil), rooms...)
	}
	return out
}

func knownUnit(unit string) bool {
	for _, level := range models.Levels() {
		if scheduler.ValidUnit(level, unit) {
			return true
		}
	}
	return false
}

// defaultRules is the built-in document used when no rules file exists.
func defaultRules() models.RulesDocument {
	return models.RulesDocument{
		UnitConstraints: map[string]models.UnitConstraint{
			"health":            {MinClinics: 0, MaxClinics: 2, AllowHealthCheck: true},
			"emergency":         {MinClinics: 1, MaxClinics: 3},
			"medicine-ward":     {MinClinics: 2, MaxClinics: 4},
			"pediatric-ward":    {MinClinics: 2, MaxClinics: 4},
			"psychiatry-1":      {MinClinics: 1, MaxClinics: 3},
			"psychiatry-2":      {MinClinics: 1, MaxClinics: 3},
			"community-1":       {MinClinics: 2, MaxClinics: 4},
			"community-2":       {MinClinics: 2, MaxClinics: 4},
			"obstetric-ward":    {MinClinics: 2, MaxClinics: 4},
			"obstetrics-clinic": {MinClinics: 2, MaxClinics: 4},
			"radiology":         {MinClinics: 0, MaxClinics: 2},
			"chief-resident":    {MinClinics: 2, MaxClinics: 4},
			"satellite-1":       {MinClinics: 1, MaxClinics: 3},
			"satellite-2":       {MinClinics: 1, MaxClinics: 3},
			"palliative-1":      {MinClinics: 1, MaxClinics: 3},
			"palliative-2":      {MinClinics: 1, MaxClinics: 3},
			"other":             {MinClinics: 2, MaxClinics: 5},
		},
		GeneralRules: models.GeneralRules{
			MaxClinicsPerDay:         2,
			MaxClinicsPerWeek:        8,
			HealthCheckPriority:      []models.Level{models.LevelR1, models.LevelR2, models.LevelR3, models.LevelR4},
			TuesdayTeachingExemption: true,
		},
		RoomPreferences: map[string][]string{
			"medicine-clinic":   {"4201", "4202", "4203"},
			"surgery-ward":      {"4204", "4205"},
			"pediatrics-clinic": {"4207", "4208"},
			"obstetrics-clinic": {"4209", "4213"},
			"other":             {"4218"},
		},
	}
}
