package models

// RunResult is the outcome of one engine run. Schedule is keyed by week
// label; the engine produces a single Monday-Friday grid and callers label
// it (W1 by default).
type RunResult struct {
	Schedule    map[string]Grid `json:"schedule"`
	Statistics  Statistics      `json:"statistics"`
	Violations  ViolationReport `json:"violations"`
	Fitness     float64         `json:"fitness"`
	Generations int             `json:"generations"`
}

// Statistics summarizes a generated grid.
type Statistics struct {
	TotalPersonnel       int            `json:"total_personnel"`
	PersonnelByLevel     map[Level]int  `json:"personnel_by_level"`
	AssignmentsPerPerson map[string]int `json:"assignments_per_person"`
	CoverageRate         float64        `json:"coverage_rate"`
	HealthCheckCoverage  float64        `json:"health_check_coverage"`
}

// ViolationReport lists constraint breaches found in a grid. Hard entries
// block acceptance in practice; soft entries only cost fitness.
type ViolationReport struct {
	Hard         []string `json:"hard_violations"`
	Soft         []string `json:"soft_violations"`
	TotalPenalty float64  `json:"total_penalty"`
}

// HardCount is a convenience for reporting.
func (v ViolationReport) HardCount() int { return len(v.Hard) }

// EngineOptions carries optional per-request overrides for the genetic
// engine. Nil fields fall back to scaled defaults.
type EngineOptions struct {
	PopulationSize       *int     `json:"population_size,omitempty" validate:"omitempty,min=10,max=2000"`
	MaxGenerations       *int     `json:"max_generations,omitempty" validate:"omitempty,min=1,max=5000"`
	EliteFraction        *float64 `json:"elite_fraction,omitempty" validate:"omitempty,gt=0,lt=1"`
	MutationRate         *float64 `json:"mutation_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	CrossoverRate        *float64 `json:"crossover_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	TournamentSize       *int     `json:"tournament_size,omitempty" validate:"omitempty,min=2,max=50"`
	ConvergenceThreshold *int     `json:"convergence_threshold,omitempty" validate:"omitempty,min=1,max=500"`
	RandomSeed           *int64   `json:"random_seed,omitempty"`
}
