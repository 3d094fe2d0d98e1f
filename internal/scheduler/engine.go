package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// NoScheduleError reports a run that ended without a usable candidate.
type NoScheduleError struct {
	BestFitness float64
	Generations int
}

func (e *NoScheduleError) Error() string {
	return fmt.Sprintf("no valid schedule found after %d generations (best fitness %.2f)", e.Generations, e.BestFitness)
}

// Result is a completed run: the best grid found and its score.
type Result struct {
	Grid        models.Grid
	Report      Report
	Generations int
}

// Engine evolves weekly grids from a pre-scheduled seed. An engine is
// single-use: Run drives one search and must not be called twice.
type Engine struct {
	roster *Roster
	seed   *Seed
	eval   *Evaluator
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger
}

// NewEngine wires a search over the given roster and seed.
func NewEngine(roster *Roster, seed *Seed, eval *Evaluator, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalized()
	source := cfg.RandomSeed
	if source == 0 {
		source = time.Now().UnixNano()
	}
	return &Engine{
		roster: roster,
		seed:   seed,
		eval:   eval,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(source)),
		logger: logger,
	}
}

// Run executes the search. Cancellation is honored at generation
// boundaries; a cancelled run returns the best candidate found so far
// together with the context error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	population := e.initialPopulation()
	reports := make([]Report, len(population))

	var best models.Grid
	var bestReport Report
	generations := 0
	stall := 0

	e.logger.Info("rota search started",
		zap.Int("population", e.cfg.PopulationSize),
		zap.Int("max_generations", e.cfg.MaxGenerations),
		zap.Int("roster_size", e.roster.Len()),
	)

	for gen := 0; gen < e.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			if best == nil {
				return nil, err
			}
			return &Result{Grid: best, Report: bestReport, Generations: generations}, err
		}

		e.evaluateAll(population, reports)
		generations = gen + 1

		improved := false
		for i := range population {
			if best == nil || reports[i].Fitness > bestReport.Fitness {
				best = population[i].Clone()
				bestReport = reports[i]
				improved = true
			}
		}
		if improved {
			stall = 0
			e.logger.Debug("best candidate improved",
				zap.Int("generation", generations),
				zap.Float64("fitness", bestReport.Fitness),
			)
		} else {
			stall++
		}

		if e.cfg.OnProgress != nil {
			e.cfg.OnProgress(generations, e.cfg.MaxGenerations, bestReport.Fitness)
		}

		if stall >= e.cfg.ConvergenceThreshold {
			e.logger.Info("search converged",
				zap.Int("generation", generations),
				zap.Int("stall_generations", stall),
			)
			break
		}
		if gen+1 >= e.cfg.MaxGenerations {
			break
		}

		population = e.nextGeneration(population, reports)
	}

	if best == nil {
		return nil, &NoScheduleError{BestFitness: math.Inf(-1), Generations: generations}
	}

	e.logger.Info("rota search finished",
		zap.Int("generations", generations),
		zap.Float64("fitness", bestReport.Fitness),
		zap.Int("hard_violations", len(bestReport.Hard)),
	)
	return &Result{Grid: best, Report: bestReport, Generations: generations}, nil
}

// initialPopulation clones the seed and fills every open required room
// with a random eligible person, leaving unfillable rooms empty.
func (e *Engine) initialPopulation() []models.Grid {
	population := make([]models.Grid, e.cfg.PopulationSize)
	for i := range population {
		g := e.seed.Grid.Clone()
		e.fillRandom(g)
		population[i] = g
	}
	return population
}

func (e *Engine) fillRandom(g models.Grid) {
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			for _, room := range RequiredRooms(day, slot) {
				if occupant, ok := g.PersonAt(day, slot, room); ok && occupant != "" {
					continue
				}
				candidates := e.eligible(g, day, slot, room)
				if len(candidates) == 0 {
					g.Assign(day, slot, room, "")
					continue
				}
				g.Assign(day, slot, room, candidates[e.rng.Intn(len(candidates))])
			}
		}
	}
}

// eligible lists everyone who may take the room right now: free in this
// session and the other session of the day, not barred by unit rules, and
// allowed into the room itself.
func (e *Engine) eligible(g models.Grid, day models.Day, slot models.TimeSlot, room string) []string {
	other := models.Afternoon
	if slot == models.Afternoon {
		other = models.Morning
	}
	var out []string
	for _, person := range e.roster.All() {
		if g.Holds(day, slot, person.ID) {
			continue
		}
		if g.Holds(day, other, person.ID) {
			continue
		}
		if SessionBarred(person, day, slot) {
			continue
		}
		if !RoomEligible(person, room) {
			continue
		}
		out = append(out, person.ID)
	}
	return out
}

// evaluateAll scores the whole population concurrently and waits for the
// generation barrier before returning.
func (e *Engine) evaluateAll(population []models.Grid, reports []Report) {
	workers := e.cfg.Parallelism
	if workers > len(population) {
		workers = len(population)
	}
	if workers <= 1 {
		for i := range population {
			reports[i] = e.eval.Evaluate(population[i])
		}
		return
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				reports[i] = e.eval.Evaluate(population[i])
			}
		}()
	}
	for i := range population {
		indices <- i
	}
	close(indices)
	wg.Wait()
}

func (e *Engine) nextGeneration(population []models.Grid, reports []Report) []models.Grid {
	n := len(population)
	next := make([]models.Grid, 0, n+1)
	for _, i := range topIndices(reports, e.eliteCount()) {
		next = append(next, population[i].Clone())
	}
	for len(next) < n {
		p1 := e.tournament(population, reports)
		p2 := e.tournament(population, reports)
		c1, c2 := e.crossover(p1, p2)
		next = append(next, e.mutate(c1), e.mutate(c2))
	}
	return next[:n]
}

func (e *Engine) eliteCount() int {
	return int(float64(e.cfg.PopulationSize) * e.cfg.EliteFraction)
}

// tournament samples distinct candidates and returns a copy of the fittest.
func (e *Engine) tournament(population []models.Grid, reports []Report) models.Grid {
	k := e.cfg.TournamentSize
	if k > len(population) {
		k = len(population)
	}
	sample := e.rng.Perm(len(population))[:k]
	winner := sample[0]
	for _, i := range sample[1:] {
		if reports[i].Fitness > reports[winner].Fitness {
			winner = i
		}
	}
	return population[winner].Clone()
}

// crossover swaps whole days from a random cut point onward, then
// re-imposes the seed on both children. The inputs are owned by the
// caller and consumed.
func (e *Engine) crossover(a, b models.Grid) (models.Grid, models.Grid) {
	if e.rng.Float64() > e.cfg.CrossoverRate {
		return a, b
	}
	days := models.Weekdays()
	cut := 1 + e.rng.Intn(len(days)-1)
	for _, day := range days[cut:] {
		a[day], b[day] = b[day], a[day]
	}
	e.seed.Reimpose(a)
	e.seed.Reimpose(b)
	return a, b
}

// mutate rewrites one to three random rooms in place. Seeded R1 clinics
// and R4 residents sitting in their fixed session are never displaced;
// clearing a room is an explicit candidate outcome.
func (e *Engine) mutate(g models.Grid) models.Grid {
	if e.rng.Float64() > e.cfg.MutationRate {
		return g
	}
	days := models.Weekdays()
	slots := models.TimeSlots()
	edits := 1 + e.rng.Intn(3)
	for i := 0; i < edits; i++ {
		day := days[e.rng.Intn(len(days))]
		slot := slots[e.rng.Intn(len(slots))]
		rooms := sortedRooms(g.Rooms(day, slot))
		if len(rooms) == 0 {
			continue
		}
		room := rooms[e.rng.Intn(len(rooms))]
		incumbent, _ := g.PersonAt(day, slot, room)
		if incumbent != "" {
			if person, ok := e.roster.Get(incumbent); ok && person.Level == models.LevelR1 {
				continue
			}
			if e.seed.R4FixedAt(incumbent, day, slot) {
				continue
			}
		}
		candidates := e.eligible(g, day, slot, room)
		pick := e.rng.Intn(len(candidates) + 1)
		if pick == len(candidates) {
			g.Assign(day, slot, room, "")
			continue
		}
		g.Assign(day, slot, room, candidates[pick])
	}
	return g
}

// topIndices returns the indices of the k fittest reports, best first.
func topIndices(reports []Report, k int) []int {
	indices := make([]int, len(reports))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return reports[indices[a]].Fitness > reports[indices[b]].Fitness
	})
	if k > len(indices) {
		k = len(indices)
	}
	return indices[:k]
}
