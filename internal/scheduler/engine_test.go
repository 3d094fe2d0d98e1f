package scheduler

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

func engineRoster(t *testing.T) *Roster {
	t.Helper()
	return mustRoster(t, []models.Person{
		{ID: "hz", Name: "Health One", Level: models.LevelR1, RotationUnit: "health", HealthCheck: true},
		{ID: "cm", Level: models.LevelR1, RotationUnit: "community-1"},
		{ID: "pw", Level: models.LevelR1, RotationUnit: "pediatric-ward"},
		{ID: "ps", Level: models.LevelR1, RotationUnit: "psychiatry-1"},
		{ID: "em", Level: models.LevelR1, RotationUnit: "emergency"},
		{ID: "r2a", Level: models.LevelR2, RotationUnit: "ent-clinic"},
		{ID: "r2b", Level: models.LevelR2, RotationUnit: "neurology-clinic"},
		{ID: "r2c", Level: models.LevelR2, RotationUnit: "obstetrics-clinic"},
		{ID: "r2d", Level: models.LevelR2, RotationUnit: "family-practice"},
		{ID: "r2e", Level: models.LevelR2, RotationUnit: "ophthalmology-clinic", HealthCheck: true},
		{ID: "r2f", Level: models.LevelR2, RotationUnit: "psychiatry-2", HealthCheck: true},
		{ID: "r3a", Level: models.LevelR3, RotationUnit: "urology-clinic"},
		{ID: "r3b", Level: models.LevelR3, RotationUnit: "medicine-clinic"},
		{ID: "r3c", Level: models.LevelR3, RotationUnit: "diabetes-education"},
		{ID: "r3d", Level: models.LevelR3, RotationUnit: "geriatrics-clinic"},
		{ID: "r4a", Level: models.LevelR4, RotationUnit: "other", FixedSlot: &models.FixedSlot{
			Day: models.Thursday, Time: models.Afternoon, Room: "4202",
		}},
		{ID: "r4b", Level: models.LevelR4, RotationUnit: "other", HealthCheck: true},
		{ID: "r4c", Level: models.LevelR4, RotationUnit: "other", HealthCheck: true},
		{ID: "r4d", Level: models.LevelR4, RotationUnit: "osteoporosis-clinic"},
		{ID: "r4e", Level: models.LevelR4, RotationUnit: "weight-clinic"},
		{ID: "r4f", Level: models.LevelR4, RotationUnit: "pain-clinic"},
	})
}

func engineSeed(t *testing.T, roster *Roster) *Seed {
	t.Helper()
	pre := NewPreScheduler(roster)
	r1, err := pre.PlanR1()
	require.NoError(t, err)
	return pre.BuildSeed(r1)
}

func smallConfig(randomSeed int64) Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 24
	cfg.MaxGenerations = 6
	cfg.TournamentSize = 3
	cfg.ConvergenceThreshold = 30
	cfg.Parallelism = 2
	cfg.RandomSeed = randomSeed
	return cfg
}

func TestEngineRunKeepsSeedIntact(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)
	engine := NewEngine(roster, seed, NewEvaluator(roster), smallConfig(42), nil)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 6, res.Generations)

	for _, pl := range seed.R1Placements() {
		got, ok := res.Grid.PersonAt(pl.Day, pl.Time, pl.Room)
		require.True(t, ok, "seeded room %s %s %s missing", pl.Day, pl.Time, pl.Room)
		assert.Equal(t, pl.PersonID, got)
	}
	for _, pl := range seed.R4Placements() {
		got, ok := res.Grid.PersonAt(pl.Day, pl.Time, pl.Room)
		require.True(t, ok)
		assert.Equal(t, pl.PersonID, got)
	}
	for _, ref := range R1HealthCheckupSessions() {
		got, _ := res.Grid.PersonAt(ref.Day, ref.Time, "checkup-1")
		assert.Equal(t, "hz", got, "health pattern lost at %s %s", ref.Day, ref.Time)
	}
	assert.False(t, hasViolation(res.Report.Hard, "missing from fixed session"))
}

func TestEngineDeterministicForSameRandomSeed(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)
	eval := NewEvaluator(roster)

	cfg := smallConfig(7)
	cfg.Parallelism = 3

	res1, err := NewEngine(roster, seed, eval, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	res2, err := NewEngine(roster, seed, eval, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, res1.Report.Fitness, res2.Report.Fitness)
	assert.True(t, reflect.DeepEqual(res1.Grid, res2.Grid), "same random seed must reproduce the same grid")
}

func TestEngineBestFitnessMonotonic(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)

	var history []float64
	cfg := smallConfig(13)
	cfg.MaxGenerations = 8
	cfg.OnProgress = func(gen, max int, best float64) {
		assert.Equal(t, 8, max)
		assert.Equal(t, len(history)+1, gen)
		history = append(history, best)
	}

	res, err := NewEngine(roster, seed, NewEvaluator(roster), cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, history, res.Generations)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1])
	}
	assert.Equal(t, res.Report.Fitness, history[len(history)-1])
}

func TestEngineStopsWhenStalled(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)

	// With crossover and mutation off, later generations only clone the
	// first one, so the best can never improve and the stall counter
	// terminates the run after exactly threshold extra generations.
	cfg := Config{
		PopulationSize:       12,
		MaxGenerations:       100,
		EliteFraction:        0.25,
		MutationRate:         0,
		CrossoverRate:        0,
		TournamentSize:       3,
		ConvergenceThreshold: 3,
		Parallelism:          1,
		RandomSeed:           11,
	}

	res, err := NewEngine(roster, seed, NewEvaluator(roster), cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Generations)
}

func TestEngineCancelledBeforeStart(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEngine(roster, seed, NewEvaluator(roster), smallConfig(5), nil).Run(ctx)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineCancelledMidRunReturnsPartialBest(t *testing.T) {
	roster := engineRoster(t)
	seed := engineSeed(t, roster)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := smallConfig(9)
	cfg.MaxGenerations = 10
	cfg.OnProgress = func(gen, max int, best float64) {
		if gen == 2 {
			cancel()
		}
	}

	res, err := NewEngine(roster, seed, NewEvaluator(roster), cfg, nil).Run(ctx)
	require.NotNil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Generations)
	assert.NotNil(t, res.Grid)
}
