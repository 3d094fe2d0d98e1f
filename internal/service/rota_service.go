package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-rota-api/internal/dto"
	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/repository"
	"github.com/noah-isme/clinic-rota-api/internal/scheduler"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
	"github.com/noah-isme/clinic-rota-api/pkg/jobs"
)

// RotaJobType is the queue job type for schedule generation runs.
const RotaJobType = "rota.generate"

const (
	defaultWeekLabel = "W1"
	digestKeyPrefix  = "rota:digest:"
	resultKeyPrefix  = "rota:result:"
)

// RotaJobStore is the persistence surface the run lifecycle needs. Both
// the Postgres repository and the in-memory store satisfy it; main picks
// one based on configuration.
type RotaJobStore interface {
	Create(ctx context.Context, job *models.RotaJob) error
	GetByID(ctx context.Context, id string) (*models.RotaJob, error)
	GetByDigest(ctx context.Context, digest string, since time.Time) (*models.RotaJob, error)
	Update(ctx context.Context, id string, params repository.UpdateRotaJobParams) error
	List(ctx context.Context, status models.RotaJobStatus, limit, offset int) ([]models.RotaJob, int, error)
	ListQueued(ctx context.Context, limit int) ([]models.RotaJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.RotaJob, error)
	Delete(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// rulesFingerprinter folds the active rule document version into run
// digests so a rules change never reuses a stale run.
type rulesFingerprinter interface {
	Fingerprint() string
}

// RotaService orchestrates schedule run lifecycle management.
type RotaService struct {
	store     RotaJobStore
	queue     jobDispatcher
	cache     *CacheService
	exporter  *ExportService
	validator *ValidationService
	validate  *validator.Validate
	rules     rulesFingerprinter
	logger    *zap.Logger
	cfg       RotaServiceConfig
}

// RotaServiceConfig governs dedup, recovery and artifact retention.
type RotaServiceConfig struct {
	DedupTTL        time.Duration
	RetentionPeriod time.Duration
	CleanupInterval time.Duration
}

// RunDownload aggregates resolved download data for streaming.
type RunDownload struct {
	File      *os.File
	Filename  string
	Kind      models.ArtifactKind
	SizeBytes int64
	ExpiresAt time.Time
}

// NewRotaService constructs the run service.
func NewRotaService(store RotaJobStore, queue jobDispatcher, cache *CacheService, exporter *ExportService, rosterValidator *ValidationService, rules rulesFingerprinter, cfg RotaServiceConfig, logger *zap.Logger) *RotaService {
	if rosterValidator == nil {
		rosterValidator = NewValidationService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 7 * 24 * time.Hour
	}
	return &RotaService{
		store:     store,
		queue:     queue,
		cache:     cache,
		exporter:  exporter,
		validator: rosterValidator,
		validate:  validator.New(),
		rules:     rules,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateRun validates the roster, reuses a recent identical run when one
// exists, and otherwise persists and enqueues a new generation job.
func (s *RotaService) CreateRun(ctx context.Context, req dto.CreateRunRequest, createdBy *string) (*dto.RunResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload")
	}
	people := req.People()
	verdict := s.validator.ValidateRoster(people)
	if !verdict.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(verdict.Errors, "; "))
	}
	overrides, err := resolveR1Overrides(people, req.R1Assignments)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(req.WeekLabel)
	if label == "" {
		label = defaultWeekLabel
	}
	params := models.RotaJobParams{
		Personnel:     people,
		Options:       req.Options,
		R1Assignments: overrides,
		WeekLabel:     label,
	}
	digest, err := runDigest(params, s.rulesFingerprint())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to digest run parameters")
	}
	if existing := s.lookupReusable(ctx, digest); existing != nil {
		return &dto.RunResponse{ID: existing.ID, Status: existing.Status, Progress: existing.Progress, Reused: true}, nil
	}

	job := &models.RotaJob{Digest: digest, Params: params, CreatedBy: createdBy}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rota job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: RotaJobType}); err != nil {
		s.markEnqueueFailed(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue rota job")
	}
	s.rememberDigest(ctx, digest, job.ID)
	return &dto.RunResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns run progress plus signed artifact links once finished.
func (s *RotaService) GetStatus(ctx context.Context, id string) (*dto.RunStatusResponse, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rota job")
	}
	if job == nil {
		return nil, appErrors.ErrNotFound
	}
	return s.statusResponse(job, true)
}

// GetResult returns the stored engine outcome for a finished run. The bool
// reports whether the payload came from the cache; finished results are
// immutable, so they cache safely.
func (s *RotaService) GetResult(ctx context.Context, id string) (*dto.RunResultResponse, bool, error) {
	var cached dto.RunResultResponse
	if hit, _ := s.cache.Get(ctx, resultKey(id), &cached); hit {
		return &cached, true, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rota job")
	}
	if job == nil {
		return nil, false, appErrors.ErrNotFound
	}
	if job.Status != models.RotaJobStatusFinished {
		return nil, false, appErrors.Clone(appErrors.ErrJobNotFinished, fmt.Sprintf("run is %s", strings.ToLower(string(job.Status))))
	}
	if job.Result.IsZero() {
		return nil, false, appErrors.Wrap(fmt.Errorf("finished run %s has no stored result", job.ID), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "run result missing")
	}
	resp := &dto.RunResultResponse{ID: job.ID, Status: job.Status, Result: job.Result.RunResult}
	_ = s.cache.Set(ctx, resultKey(id), resp, 0)
	return resp, false, nil
}

// List returns run summaries, newest first. Signed links are omitted;
// fetch a single run for download URLs.
func (s *RotaService) List(ctx context.Context, status string, page, perPage int) ([]dto.RunStatusResponse, int, error) {
	var filter models.RotaJobStatus
	if status != "" {
		filter = models.RotaJobStatus(strings.ToUpper(status))
		switch filter {
		case models.RotaJobStatusQueued, models.RotaJobStatusProcessing, models.RotaJobStatusFinished, models.RotaJobStatusFailed:
		default:
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status filter %q", status))
		}
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	} else if perPage > 100 {
		perPage = 100
	}
	records, total, err := s.store.List(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rota jobs")
	}
	items := make([]dto.RunStatusResponse, 0, len(records))
	for i := range records {
		resp, err := s.statusResponse(&records[i], false)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *resp)
	}
	return items, total, nil
}

// ResolveDownload verifies a signed token and opens the artifact stream.
// Expired tokens are reported separately from tampered ones.
func (s *RotaService) ResolveDownload(ctx context.Context, token string) (*RunDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, true)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	if time.Now().After(expiresAt) {
		return nil, appErrors.ErrLinkExpired
	}
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rota job")
	}
	if job == nil {
		return nil, appErrors.ErrNotFound
	}
	if job.Status != models.RotaJobStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrJobNotFinished, "run artifacts are not ready")
	}
	artifact, ok := job.Artifacts.Find(relPath)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match a stored artifact")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open artifact file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat artifact file")
	}
	return &RunDownload{
		File:      file,
		Filename:  artifact.Filename,
		Kind:      artifact.Kind,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

// Preview resolves the deterministic pre-schedule without running the
// engine: R1 clinic picks, the checkup rota, and fixed senior sessions.
func (s *RotaService) Preview(people []models.Person) (*dto.PreviewResponse, error) {
	verdict := s.validator.ValidateRoster(people)
	if !verdict.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(verdict.Errors, "; "))
	}
	roster, err := scheduler.NewRoster(people)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster")
	}
	pre := scheduler.NewPreScheduler(roster)
	planned, err := pre.PlanR1()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInfeasibleRoster.Code, appErrors.ErrInfeasibleRoster.Status, appErrors.ErrInfeasibleRoster.Message)
	}
	seed := pre.BuildSeed(planned)

	resp := &dto.PreviewResponse{
		R1Assignments:   make([]dto.PreviewAssignment, 0, len(planned)),
		CheckupPattern:  []dto.PreviewFixedPlacement{},
		FixedPlacements: []dto.PreviewFixedPlacement{},
	}
	for _, entry := range seed.R1Placements() {
		unit := ""
		if person, ok := roster.Get(entry.PersonID); ok {
			unit = person.RotationUnit
		}
		resp.R1Assignments = append(resp.R1Assignments, dto.PreviewAssignment{
			PersonID: entry.PersonID,
			Unit:     unit,
			Day:      string(entry.Day),
			Room:     entry.Room,
		})
	}
	sort.Slice(resp.R1Assignments, func(i, j int) bool {
		return resp.R1Assignments[i].PersonID < resp.R1Assignments[j].PersonID
	})

	checkupRoom := scheduler.CheckupRooms()[0]
	for _, id := range seed.HealthAssignees() {
		for _, ref := range scheduler.R1HealthCheckupSessions() {
			resp.CheckupPattern = append(resp.CheckupPattern, dto.PreviewFixedPlacement{
				PersonID: id,
				Day:      string(ref.Day),
				TimeSlot: string(ref.Time),
				Room:     checkupRoom,
			})
		}
	}
	for _, entry := range seed.R4Placements() {
		resp.FixedPlacements = append(resp.FixedPlacements, dto.PreviewFixedPlacement{
			PersonID: entry.PersonID,
			Day:      string(entry.Day),
			TimeSlot: string(entry.Time),
			Room:     entry.Room,
		})
	}
	sortPlacements(resp.CheckupPattern)
	sortPlacements(resp.FixedPlacements)
	return resp, nil
}

// Defaults describes the schedulable world for client bootstrapping.
func (s *RotaService) Defaults() *dto.DefaultsResponse {
	units := make(map[models.Level][]string, len(models.Levels()))
	for _, level := range models.Levels() {
		units[level] = scheduler.RotationUnits(level)
	}
	cfg := scheduler.DefaultConfig()
	return &dto.DefaultsResponse{
		Levels:        models.Levels(),
		RotationUnits: units,
		DefaultCounts: scheduler.DefaultPersonnelCounts(),
		Days:          models.Weekdays(),
		TimeSlots:     models.TimeSlots(),
		ClinicRooms:   scheduler.ClinicRooms(),
		CheckupRooms:  scheduler.CheckupRooms(),
		Engine: dto.EngineDefaults{
			PopulationSize:       cfg.PopulationSize,
			MaxGenerations:       cfg.MaxGenerations,
			EliteFraction:        cfg.EliteFraction,
			MutationRate:         cfg.MutationRate,
			CrossoverRate:        cfg.CrossoverRate,
			TournamentSize:       cfg.TournamentSize,
			ConvergenceThreshold: cfg.ConvergenceThreshold,
		},
	}
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *RotaService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.store.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued rota jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: RotaJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// InvalidateDedup drops cached digest lookups so the next identical
// request schedules a fresh run. Called when the rule document changes.
func (s *RotaService) InvalidateDedup(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, digestKeyPrefix+"*")
}

// StartCleanup boots a goroutine that purges expired runs periodically.
func (s *RotaService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *RotaService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.RetentionPeriod)
	for {
		expired, err := s.store.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		if len(expired) == 0 {
			break
		}
		for _, job := range expired {
			for _, artifact := range job.Artifacts {
				if err := s.exporter.Delete(artifact.Path); err != nil {
					s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "path", artifact.Path, "error", err)
				}
			}
			if err := s.store.Delete(ctx, job.ID); err != nil {
				s.logger.Sugar().Warnw("cleanup job delete failed", "job_id", job.ID, "error", err)
				return
			}
		}
		if len(expired) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.RetentionPeriod); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *RotaService) statusResponse(job *models.RotaJob, withLinks bool) (*dto.RunStatusResponse, error) {
	resp := &dto.RunStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if withLinks && job.Status == models.RotaJobStatusFinished {
		for _, artifact := range job.Artifacts {
			url, expiresAt, err := s.exporter.Link(job.ID, artifact)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign artifact link")
			}
			resp.Artifacts = append(resp.Artifacts, dto.ArtifactLink{
				Kind:      artifact.Kind,
				Filename:  artifact.Filename,
				URL:       url,
				ExpiresAt: expiresAt,
			})
		}
	}
	return resp, nil
}

func (s *RotaService) markEnqueueFailed(ctx context.Context, jobID string, cause error) {
	failed := models.RotaJobStatusFailed
	progress := 100
	msg := cause.Error()
	now := time.Now().UTC()
	if err := s.store.Update(ctx, jobID, repository.UpdateRotaJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// lookupReusable finds a recent non-failed run with the same digest, first
// through the cache, then through the store.
func (s *RotaService) lookupReusable(ctx context.Context, digest string) *models.RotaJob {
	if s.cfg.DedupTTL <= 0 {
		return nil
	}
	var jobID string
	if hit, _ := s.cache.Get(ctx, digestKey(digest), &jobID); hit && jobID != "" {
		job, err := s.store.GetByID(ctx, jobID)
		if err == nil && job != nil && job.Status != models.RotaJobStatusFailed {
			return job
		}
	}
	job, err := s.store.GetByDigest(ctx, digest, time.Now().UTC().Add(-s.cfg.DedupTTL))
	if err != nil {
		s.logger.Sugar().Warnw("digest lookup failed", "error", err)
		return nil
	}
	return job
}

func (s *RotaService) rememberDigest(ctx context.Context, digest, jobID string) {
	_ = s.cache.Set(ctx, digestKey(digest), jobID, s.cfg.DedupTTL)
}

func (s *RotaService) rulesFingerprint() string {
	if s.rules == nil {
		return ""
	}
	return s.rules.Fingerprint()
}

func digestKey(digest string) string {
	return digestKeyPrefix + digest
}

func resultKey(jobID string) string {
	return resultKeyPrefix + jobID
}

// runDigest hashes canonicalized run parameters together with the active
// rules fingerprint. Personnel order does not change the digest.
func runDigest(params models.RotaJobParams, rulesVersion string) (string, error) {
	people := make([]models.Person, len(params.Personnel))
	copy(people, params.Personnel)
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })

	canonical := struct {
		models.RotaJobParams
		Rules string `json:"rules,omitempty"`
	}{RotaJobParams: params, Rules: rulesVersion}
	canonical.Personnel = people

	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal run params: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// resolveR1Overrides validates caller-pinned R1 clinics against the
// submitted roster before they reach the pre-scheduler.
func resolveR1Overrides(people []models.Person, raw map[string]dto.R1AssignmentInput) (map[string]models.R1Assignment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	byID := make(map[string]models.Person, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}
	validDays := make(map[string]bool, 5)
	for _, d := range models.Weekdays() {
		validDays[string(d)] = true
	}
	clinicRooms := make(map[string]bool)
	for _, room := range scheduler.ClinicRooms() {
		clinicRooms[room] = true
	}
	out := make(map[string]models.R1Assignment, len(raw))
	for id, in := range raw {
		person, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("r1 assignment references unknown person %q", id))
		}
		if person.Level != models.LevelR1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("r1 assignment for %s targets a %s resident", id, person.Level))
		}
		if !validDays[in.Day] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("r1 assignment for %s has invalid day %q", id, in.Day))
		}
		if !clinicRooms[in.Room] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("r1 assignment for %s uses unknown clinic room %q", id, in.Room))
		}
		out[id] = models.R1Assignment{Day: models.Day(in.Day), Room: in.Room}
	}
	return out, nil
}

func sortPlacements(entries []dto.PreviewFixedPlacement) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		if dayOrder(a.Day) != dayOrder(b.Day) {
			return dayOrder(a.Day) < dayOrder(b.Day)
		}
		return slotOrder(a.TimeSlot) < slotOrder(b.TimeSlot)
	})
}

func dayOrder(day string) int {
	for i, d := range models.Weekdays() {
		if string(d) == day {
			return i
		}
	}
	return len(models.Weekdays())
}

func slotOrder(slot string) int {
	if slot == string(models.Morning) {
		return 0
	}
	return 1
}

// artifactGenerator renders and stores downloadable files for a job.
type artifactGenerator interface {
	Generate(ctx context.Context, job *models.RotaJob) (models.ArtifactList, error)
}

// runRecorder receives engine run outcomes for metrics.
type runRecorder interface {
	ObserveRun(outcome string, duration time.Duration, generations int, bestFitness float64)
}

// RotaWorkerConfig tunes background run processing. Zero engine fields
// fall back to roster-scaled defaults.
type RotaWorkerConfig struct {
	MaxRetries     int
	RunTimeout     time.Duration
	PopulationSize int
	MaxGenerations int
	Parallelism    int
}

// RotaWorker bridges queue jobs to the scheduling engine.
type RotaWorker struct {
	store    RotaJobStore
	exporter artifactGenerator
	metrics  runRecorder
	logger   *zap.Logger
	cfg      RotaWorkerConfig
}

// NewRotaWorker constructs a worker.
func NewRotaWorker(store RotaJobStore, exporter artifactGenerator, metrics runRecorder, cfg RotaWorkerConfig, logger *zap.Logger) *RotaWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &RotaWorker{
		store:    store,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Handle processes one queued generation job.
func (w *RotaWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.store.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record == nil {
		w.logger.Sugar().Warnw("rota job vanished before processing", "job_id", job.ID)
		return nil
	}
	if record.Status == models.RotaJobStatusFinished {
		// Duplicate delivery after recovery; the work is already done.
		return nil
	}
	processing := models.RotaJobStatusProcessing
	progress := 10
	if err := w.store.Update(ctx, job.ID, repository.UpdateRotaJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	started := time.Now()
	result, runErr := w.run(ctx, record)
	if runErr != nil {
		return w.finishFailure(ctx, job, started, runErr)
	}

	record.Result = models.RotaJobResult{RunResult: *result}
	artifacts, err := w.exporter.Generate(ctx, record)
	if err != nil {
		return w.finishFailure(ctx, job, started, fmt.Errorf("render artifacts: %w", err))
	}

	finished := models.RotaJobStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.store.Update(ctx, job.ID, repository.UpdateRotaJobParams{
		Status:       &finished,
		Progress:     &progress,
		Result:       &record.Result,
		Artifacts:    &artifacts,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.observe(RunOutcomeFinished, time.Since(started), result.Generations, result.Fitness)
	w.logger.Sugar().Infow("rota run finished",
		"job_id", job.ID,
		"generations", result.Generations,
		"fitness", result.Fitness,
		"hard_violations", len(result.Violations.Hard),
	)
	return nil
}

// run executes the engine for one job and assembles the stored result.
func (w *RotaWorker) run(ctx context.Context, record *models.RotaJob) (*models.RunResult, error) {
	roster, err := scheduler.NewRoster(record.Params.Personnel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInfeasibleRoster.Code, appErrors.ErrInfeasibleRoster.Status, "roster rejected")
	}
	pre := scheduler.NewPreScheduler(roster)
	planned, err := pre.PlanR1()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInfeasibleRoster.Code, appErrors.ErrInfeasibleRoster.Status, "r1 pre-schedule failed")
	}
	for id, assignment := range record.Params.R1Assignments {
		planned[id] = assignment
	}
	seed := pre.BuildSeed(planned)
	eval := scheduler.NewEvaluator(roster)

	cfg := scheduler.ScaledConfig(roster.Len())
	if w.cfg.PopulationSize > 0 {
		cfg.PopulationSize = w.cfg.PopulationSize
	}
	if w.cfg.MaxGenerations > 0 {
		cfg.MaxGenerations = w.cfg.MaxGenerations
	}
	if w.cfg.Parallelism > 0 {
		cfg.Parallelism = w.cfg.Parallelism
	}
	cfg = cfg.Merge(record.Params.Options)

	// Progress moves from 10 to 95 while the search runs; the final 5
	// points cover artifact rendering.
	lastProgress := 10
	cfg.OnProgress = func(generation, maxGenerations int, _ float64) {
		if maxGenerations <= 0 {
			return
		}
		pct := 10 + generation*85/maxGenerations
		if pct <= lastProgress {
			return
		}
		lastProgress = pct
		p := pct
		if err := w.store.Update(ctx, record.ID, repository.UpdateRotaJobParams{Progress: &p}); err != nil {
			w.logger.Sugar().Debugw("progress update failed", "job_id", record.ID, "error", err)
		}
	}

	engine := scheduler.NewEngine(roster, seed, eval, cfg, w.logger)
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()
	res, err := engine.Run(runCtx)
	if err != nil {
		var noSchedule *scheduler.NoScheduleError
		switch {
		case errors.As(err, &noSchedule):
			return nil, appErrors.Wrap(err, appErrors.ErrNoSchedule.Code, appErrors.ErrNoSchedule.Status, appErrors.ErrNoSchedule.Message)
		case res != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Budget exhausted: ship the best candidate found so far.
			w.logger.Sugar().Warnw("run hit time budget, keeping best candidate",
				"job_id", record.ID, "generations", res.Generations)
		default:
			return nil, err
		}
	}

	label := record.Params.WeekLabel
	if label == "" {
		label = defaultWeekLabel
	}
	return &models.RunResult{
		Schedule:    map[string]models.Grid{label: res.Grid},
		Statistics:  eval.Statistics(res.Grid),
		Violations:  res.Report.Violations(),
		Fitness:     res.Report.Fitness,
		Generations: res.Generations,
	}, nil
}

func (w *RotaWorker) finishFailure(ctx context.Context, job jobs.Job, started time.Time, cause error) error {
	if ctx.Err() != nil {
		// Shutdown mid-run: requeue so recovery picks the job up again.
		queued := models.RotaJobStatusQueued
		reset := 0
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.store.Update(bg, job.ID, repository.UpdateRotaJobParams{Status: &queued, Progress: &reset}); err != nil {
			w.logger.Sugar().Warnw("failed to requeue interrupted job", "job_id", job.ID, "error", err)
		}
		return cause
	}
	msg := cause.Error()
	if job.Attempt >= w.cfg.MaxRetries || isPermanentRunError(cause) {
		failed := models.RotaJobStatusFailed
		progress := 100
		now := time.Now().UTC()
		if err := w.store.Update(ctx, job.ID, repository.UpdateRotaJobParams{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); err != nil {
			w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
		}
		w.observe(RunOutcomeFailed, time.Since(started), 0, 0)
		w.logger.Sugar().Errorw("rota run failed", "job_id", job.ID, "attempt", job.Attempt, "error", msg)
		if isPermanentRunError(cause) {
			// Deterministic failure: retrying cannot succeed.
			return nil
		}
		return cause
	}
	queued := models.RotaJobStatusQueued
	reset := 0
	if err := w.store.Update(ctx, job.ID, repository.UpdateRotaJobParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", err)
	}
	w.observe(RunOutcomeRequeued, time.Since(started), 0, 0)
	w.logger.Sugar().Warnw("rota run failed, retrying", "job_id", job.ID, "attempt", job.Attempt, "error", msg)
	return cause
}

func (w *RotaWorker) observe(outcome string, duration time.Duration, generations int, fitness float64) {
	if w.metrics == nil {
		return
	}
	w.metrics.ObserveRun(outcome, duration, generations, fitness)
}

// isPermanentRunError reports failures retries cannot fix: infeasible
// rosters and exhausted searches.
func isPermanentRunError(err error) bool {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case appErrors.ErrInfeasibleRoster.Code, appErrors.ErrNoSchedule.Code:
		return true
	default:
		return false
	}
}
