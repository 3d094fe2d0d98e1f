package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

const rotaJobColumns = `id, digest, params, status, progress, result, artifacts, created_by, created_at, finished_at, error_message`

// RotaJobRepository persists rota runs in Postgres.
type RotaJobRepository struct {
	db *sqlx.DB
}

// NewRotaJobRepository constructs the repository.
func NewRotaJobRepository(db *sqlx.DB) *RotaJobRepository {
	return &RotaJobRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *RotaJobRepository) Create(ctx context.Context, job *models.RotaJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.RotaJobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO rota_jobs (` + rotaJobColumns + `)
VALUES (:id, :digest, :params, :status, :progress, :result, :artifacts, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create rota job: %w", err)
	}
	return nil
}

// GetByID returns a run row by its identifier.
func (r *RotaJobRepository) GetByID(ctx context.Context, id string) (*models.RotaJob, error) {
	const query = `SELECT ` + rotaJobColumns + ` FROM rota_jobs WHERE id = $1`
	var job models.RotaJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get rota job: %w", err)
	}
	return &job, nil
}

// GetByDigest returns the newest reusable run for a request digest, or nil
// when every matching run already failed or none exists since the cutoff.
func (r *RotaJobRepository) GetByDigest(ctx context.Context, digest string, since time.Time) (*models.RotaJob, error) {
	const query = `SELECT ` + rotaJobColumns + ` FROM rota_jobs
WHERE digest = $1 AND status <> 'FAILED' AND created_at >= $2
ORDER BY created_at DESC LIMIT 1`
	var job models.RotaJob
	if err := r.db.GetContext(ctx, &job, query, digest, since); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get rota job by digest: %w", err)
	}
	return &job, nil
}

// UpdateRotaJobParams defines the mutable fields of a run row.
type UpdateRotaJobParams struct {
	Status       *models.RotaJobStatus
	Progress     *int
	Result       *models.RotaJobResult
	Artifacts    *models.ArtifactList
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *RotaJobRepository) Update(ctx context.Context, id string, params UpdateRotaJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.Result != nil {
		set = append(set, fmt.Sprintf("result = $%d", argPos))
		args = append(args, *params.Result)
		argPos++
	}
	if params.Artifacts != nil {
		set = append(set, fmt.Sprintf("artifacts = $%d", argPos))
		args = append(args, *params.Artifacts)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE rota_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update rota job: %w", err)
	}
	return nil
}

// List pages through run rows newest first, optionally filtered by status.
func (r *RotaJobRepository) List(ctx context.Context, status models.RotaJobStatus, limit, offset int) ([]models.RotaJob, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	countArgs := []interface{}{}
	listArgs := []interface{}{}
	if status != "" {
		where = " WHERE status = $1"
		countArgs = append(countArgs, status)
		listArgs = append(listArgs, status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM rota_jobs"+where, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count rota jobs: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM rota_jobs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		rotaJobColumns, where, len(listArgs)+1, len(listArgs)+2)
	listArgs = append(listArgs, limit, offset)

	var jobs []models.RotaJob
	if err := r.db.SelectContext(ctx, &jobs, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list rota jobs: %w", err)
	}
	return jobs, total, nil
}

// ListQueued fetches queued runs for cold start recovery.
func (r *RotaJobRepository) ListQueued(ctx context.Context, limit int) ([]models.RotaJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + rotaJobColumns + ` FROM rota_jobs
WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.RotaJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued rota jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore retrieves completed runs prior to cutoff for cleanup.
func (r *RotaJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.RotaJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + rotaJobColumns + ` FROM rota_jobs
WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.RotaJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished rota jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a run row.
func (r *RotaJobRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM rota_jobs WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete rota job: %w", err)
	}
	return nil
}
