package scheduler

import (
	"math"
	"runtime"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

const (
	defaultPopulationSize       = 300
	defaultMaxGenerations       = 500
	defaultEliteFraction        = 0.1
	defaultMutationRate         = 0.15
	defaultCrossoverRate        = 0.8
	defaultTournamentSize       = 5
	defaultConvergenceThreshold = 30

	maxScaledPopulation  = 500
	maxScaledGenerations = 800
)

// Config holds the tunable engine parameters for one run.
type Config struct {
	PopulationSize       int
	MaxGenerations       int
	EliteFraction        float64
	MutationRate         float64
	CrossoverRate        float64
	TournamentSize       int
	ConvergenceThreshold int

	// Parallelism bounds the fitness evaluation pool; zero means all CPUs.
	Parallelism int
	// RandomSeed makes runs reproducible; zero seeds from the clock.
	RandomSeed int64
	// OnProgress, when set, is called once per generation after evaluation.
	OnProgress func(generation, maxGenerations int, bestFitness float64)
}

// DefaultConfig returns the parameters tuned for the default roster size.
func DefaultConfig() Config {
	return Config{
		PopulationSize:       defaultPopulationSize,
		MaxGenerations:       defaultMaxGenerations,
		EliteFraction:        defaultEliteFraction,
		MutationRate:         defaultMutationRate,
		CrossoverRate:        defaultCrossoverRate,
		TournamentSize:       defaultTournamentSize,
		ConvergenceThreshold: defaultConvergenceThreshold,
	}
}

// ScaledConfig grows population and generation budgets sublinearly for
// rosters larger than the default size.
func ScaledConfig(rosterSize int) Config {
	cfg := DefaultConfig()
	baseline := DefaultRosterSize()
	if rosterSize <= baseline {
		return cfg
	}
	ratio := float64(rosterSize) / float64(baseline)
	cfg.PopulationSize = minInt(maxScaledPopulation, int(float64(defaultPopulationSize)*math.Pow(ratio, 1.2)))
	cfg.MaxGenerations = minInt(maxScaledGenerations, int(float64(defaultMaxGenerations)*math.Pow(ratio, 0.8)))
	return cfg
}

// Merge overlays request-level overrides onto the config.
func (c Config) Merge(opts *models.EngineOptions) Config {
	if opts == nil {
		return c
	}
	if opts.PopulationSize != nil {
		c.PopulationSize = *opts.PopulationSize
	}
	if opts.MaxGenerations != nil {
		c.MaxGenerations = *opts.MaxGenerations
	}
	if opts.EliteFraction != nil {
		c.EliteFraction = *opts.EliteFraction
	}
	if opts.MutationRate != nil {
		c.MutationRate = *opts.MutationRate
	}
	if opts.CrossoverRate != nil {
		c.CrossoverRate = *opts.CrossoverRate
	}
	if opts.TournamentSize != nil {
		c.TournamentSize = *opts.TournamentSize
	}
	if opts.ConvergenceThreshold != nil {
		c.ConvergenceThreshold = *opts.ConvergenceThreshold
	}
	if opts.RandomSeed != nil {
		c.RandomSeed = *opts.RandomSeed
	}
	return c
}

// normalized clamps the config into runnable bounds.
func (c Config) normalized() Config {
	if c.PopulationSize < 2 {
		c.PopulationSize = 2
	}
	if c.MaxGenerations < 1 {
		c.MaxGenerations = 1
	}
	if c.EliteFraction < 0 || c.EliteFraction >= 1 {
		c.EliteFraction = defaultEliteFraction
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		c.MutationRate = defaultMutationRate
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		c.CrossoverRate = defaultCrossoverRate
	}
	if c.TournamentSize < 2 {
		c.TournamentSize = 2
	}
	if c.TournamentSize > c.PopulationSize {
		c.TournamentSize = c.PopulationSize
	}
	if c.ConvergenceThreshold < 1 {
		c.ConvergenceThreshold = 1
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	return c
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
