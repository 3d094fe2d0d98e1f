package models

// RulesDocument is the operator-editable rules overlay. The hard per-level
// rule tables are compiled in; this document carries the tunable caps and
// preferences loaded from JSON and replaceable over the API.
type RulesDocument struct {
	UnitConstraints map[string]UnitConstraint `json:"unit_constraints"`
	GeneralRules    GeneralRules              `json:"general_rules"`
	RoomPreferences map[string][]string       `json:"room_preferences,omitempty"`
}

// UnitConstraint caps clinic load for one rotation unit.
type UnitConstraint struct {
	MinClinics       int  `json:"min_clinics"`
	MaxClinics       int  `json:"max_clinics"`
	AllowHealthCheck bool `json:"allow_health_check"`
}

// GeneralRules holds grid-wide caps and toggles.
type GeneralRules struct {
	MaxClinicsPerDay         int     `json:"max_clinics_per_day"`
	MaxClinicsPerWeek        int     `json:"max_clinics_per_week"`
	HealthCheckPriority      []Level `json:"health_check_priority"`
	TuesdayTeachingExemption bool    `json:"tuesday_teaching_exemption"`
}
