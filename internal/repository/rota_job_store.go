package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

// MemoryJobStore keeps rota runs in process memory. It backs deployments
// without Postgres; runs are lost on restart. Method contracts mirror
// RotaJobRepository so the service layer can swap either in.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.RotaJob
}

// NewMemoryJobStore constructs an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.RotaJob)}
}

// Create registers a new run.
func (s *MemoryJobStore) Create(_ context.Context, job *models.RotaJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.RotaJobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.jobs[job.ID] = *job
	s.mu.Unlock()
	return nil
}

// GetByID returns a run, or nil when unknown.
func (s *MemoryJobStore) GetByID(_ context.Context, id string) (*models.RotaJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// GetByDigest returns the newest reusable run for a request digest.
func (s *MemoryJobStore) GetByDigest(_ context.Context, digest string, since time.Time) (*models.RotaJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.RotaJob
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Digest != digest || job.Status == models.RotaJobStatusFailed || job.CreatedAt.Before(since) {
			continue
		}
		if found == nil || job.CreatedAt.After(found.CreatedAt) {
			copied := job
			found = &copied
		}
	}
	return found, nil
}

// Update applies the provided changes to a run.
func (s *MemoryJobStore) Update(_ context.Context, id string, params UpdateRotaJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.Result != nil {
		job.Result = *params.Result
	}
	if params.Artifacts != nil {
		job.Artifacts = *params.Artifacts
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	s.jobs[id] = job
	return nil
}

// List pages through runs newest first, optionally filtered by status.
func (s *MemoryJobStore) List(_ context.Context, status models.RotaJobStatus, limit, offset int) ([]models.RotaJob, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	all := make([]models.RotaJob, 0, len(s.jobs))
	for id := range s.jobs {
		job := s.jobs[id]
		if status != "" && job.Status != status {
			continue
		}
		all = append(all, job)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []models.RotaJob{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// ListQueued returns queued runs oldest first.
func (s *MemoryJobStore) ListQueued(_ context.Context, limit int) ([]models.RotaJob, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	queued := make([]models.RotaJob, 0)
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status == models.RotaJobStatusQueued {
			queued = append(queued, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

// ListFinishedBefore returns completed runs older than the cutoff.
func (s *MemoryJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.RotaJob, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	finished := make([]models.RotaJob, 0)
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status == models.RotaJobStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(finished, func(i, j int) bool { return finished[i].FinishedAt.Before(*finished[j].FinishedAt) })
	if len(finished) > limit {
		finished = finished[:limit]
	}
	return finished, nil
}

// Delete removes a run.
func (s *MemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}
