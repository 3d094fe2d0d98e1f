package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-rota-api/internal/models"
)

var rotaJobTestColumns = []string{
	"id", "digest", "params", "status", "progress", "result",
	"artifacts", "created_by", "created_at", "finished_at", "error_message",
}

func newRotaJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRotaJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()

	repo := NewRotaJobRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rota_jobs")).
		WithArgs(sqlmock.AnyArg(), "digest-1", sqlmock.AnyArg(), "QUEUED", 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.RotaJob{
		Digest: "digest-1",
		Params: models.RotaJobParams{
			Personnel: []models.Person{{ID: "p1", Level: models.LevelR2, RotationUnit: "ent-clinic"}},
		},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.RotaJobStatusQueued, job.Status)

	rows := sqlmock.NewRows(rotaJobTestColumns).
		AddRow(job.ID, "digest-1", `{"personnel":[]}`, "QUEUED", 0, nil, nil, nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+rotaJobColumns+" FROM rota_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, job.ID, fetched.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	mock.ExpectQuery("SELECT .* FROM rota_jobs WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(rotaJobTestColumns))

	job, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, job)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryGetByDigest(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	rows := sqlmock.NewRows(rotaJobTestColumns).
		AddRow("job-1", "digest-1", `{"personnel":[]}`, "PROCESSING", 40, nil, nil, nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE digest = $1 AND status <> 'FAILED' AND created_at >= $2")).
		WithArgs("digest-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	job, err := repo.GetByDigest(context.Background(), "digest-1", time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "job-1", job.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	now := time.Now()
	status := models.RotaJobStatusFinished
	progress := 100
	artifacts := models.ArtifactList{{Kind: models.ArtifactGridCSV, Filename: "grid.csv", Path: "job-1/grid.csv"}}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rota_jobs SET status = $1, progress = $2, artifacts = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, progress, sqlmock.AnyArg(), now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateRotaJobParams{
		Status:     &status,
		Progress:   &progress,
		Artifacts:  &artifacts,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	// No SET clause means no statement at all.
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateRotaJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryList(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM rota_jobs WHERE status = $1")).
		WithArgs(models.RotaJobStatusFinished).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	rows := sqlmock.NewRows(rotaJobTestColumns).
		AddRow("job-3", "d3", `{"personnel":[]}`, "FINISHED", 100, nil, nil, nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs(models.RotaJobStatusFinished, 1, 2).
		WillReturnRows(rows)

	jobs, total, err := repo.List(context.Background(), models.RotaJobStatusFinished, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	rows := sqlmock.NewRows(rotaJobTestColumns).
		AddRow("job-1", "d1", `{"personnel":[]}`, "QUEUED", 0, nil, nil, nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	finished := time.Now().Add(-25 * time.Hour)
	rows := sqlmock.NewRows(rotaJobTestColumns).
		AddRow("job-1", "d1", `{"personnel":[]}`, "FINISHED", 100, nil, nil, nil, time.Now().Add(-48*time.Hour), finished, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotaJobRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRotaJobRepoMock(t)
	defer cleanup()
	repo := NewRotaJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rota_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
