package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(store, signer, cfg, zap.NewNop(), nil, nil, nil)
	return svc, store
}

func exportFixtureJob() *models.RotaJob {
	grid := models.NewGrid()
	grid.Assign(models.Monday, models.Morning, "4203", "d1")
	grid.Assign(models.Monday, models.Morning, "checkup-1", "hx")
	grid.Assign(models.Monday, models.Afternoon, "4204", "hx")

	people := []models.Person{
		{ID: "hx", Level: models.LevelR1, RotationUnit: "health", HealthCheck: true},
		{ID: "d1", Name: "Dr. One", Level: models.LevelR4, RotationUnit: "other"},
	}
	result := models.RunResult{
		Schedule: map[string]models.Grid{"W1": grid},
		Statistics: models.Statistics{
			TotalPersonnel:       2,
			PersonnelByLevel:     map[models.Level]int{models.LevelR1: 1, models.LevelR4: 1},
			AssignmentsPerPerson: map[string]int{"hx": 2, "d1": 1},
			CoverageRate:         4.9,
			HealthCheckCoverage:  9.1,
		},
		Fitness:     87.5,
		Generations: 12,
	}
	return &models.RotaJob{
		ID:     "job-1",
		Status: models.RotaJobStatusFinished,
		Params: models.RotaJobParams{Personnel: people},
		Result: models.RotaJobResult{RunResult: result},
	}
}

func readStoredCSV(t *testing.T, store *storage.LocalStorage, relPath string) [][]string {
	t.Helper()
	file, err := os.Open(store.Path(relPath))
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func columnIndex(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %q not found in %v", name, header)
	return -1
}

func findArtifact(t *testing.T, artifacts models.ArtifactList, kind models.ArtifactKind) models.Artifact {
	t.Helper()
	for _, a := range artifacts {
		if a.Kind == kind {
			return a
		}
	}
	t.Fatalf("artifact %s not generated", kind)
	return models.Artifact{}
}

func TestExportServiceGeneratesAllArtifacts(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	artifacts, err := svc.Generate(context.Background(), exportFixtureJob())
	require.NoError(t, err)
	require.Len(t, artifacts, 5)
	for _, a := range artifacts {
		info, err := os.Stat(store.Path(a.Path))
		require.NoError(t, err, "artifact %s missing on disk", a.Kind)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestExportServiceGridCSVShape(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	artifacts, err := svc.Generate(context.Background(), exportFixtureJob())
	require.NoError(t, err)

	grid := findArtifact(t, artifacts, models.ArtifactGridCSV)
	records := readStoredCSV(t, store, grid.Path)
	require.Len(t, records, 11, "header plus ten sessions")

	header := records[0]
	assert.Equal(t, []string{"Week", "Day", "Time"}, header[:3])
	assert.Contains(t, header, "4201")
	assert.Contains(t, header, "checkup-2")

	monMorning := records[1]
	assert.Equal(t, "W1", monMorning[columnIndex(t, header, "Week")])
	assert.Equal(t, "Monday", monMorning[columnIndex(t, header, "Day")])
	assert.Equal(t, "Morning", monMorning[columnIndex(t, header, "Time")])
	assert.Equal(t, "Dr. One (d1)", monMorning[columnIndex(t, header, "4203")])
	assert.Equal(t, "hx", monMorning[columnIndex(t, header, "checkup-1")])
	assert.Empty(t, monMorning[columnIndex(t, header, "4201")])
}

func TestExportServicePersonalCSVCounts(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	artifacts, err := svc.Generate(context.Background(), exportFixtureJob())
	require.NoError(t, err)

	personal := findArtifact(t, artifacts, models.ArtifactPersonalCSV)
	records := readStoredCSV(t, store, personal.Path)
	require.Len(t, records, 3, "header plus one row per person")

	header := records[0]
	byPerson := map[string][]string{}
	for _, row := range records[1:] {
		byPerson[row[columnIndex(t, header, "Person")]] = row
	}

	hx := byPerson["hx"]
	require.NotNil(t, hx)
	assert.Equal(t, "R1", hx[columnIndex(t, header, "Level")])
	assert.Equal(t, "health", hx[columnIndex(t, header, "Unit")])
	assert.Equal(t, "checkup-1", hx[columnIndex(t, header, "Monday Morning")])
	assert.Equal(t, "4204", hx[columnIndex(t, header, "Monday Afternoon")])
	assert.Equal(t, "1", hx[columnIndex(t, header, "Clinics")])
	assert.Equal(t, "1", hx[columnIndex(t, header, "Checkups")])

	d1 := byPerson["Dr. One (d1)"]
	require.NotNil(t, d1)
	assert.Equal(t, "4203", d1[columnIndex(t, header, "Monday Morning")])
	assert.Equal(t, "1", d1[columnIndex(t, header, "Clinics")])
	assert.Equal(t, "0", d1[columnIndex(t, header, "Checkups")])
}

func TestExportServiceStatisticsCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	artifacts, err := svc.Generate(context.Background(), exportFixtureJob())
	require.NoError(t, err)

	stats := findArtifact(t, artifacts, models.ArtifactStatisticsCSV)
	records := readStoredCSV(t, store, stats.Path)
	require.NotEmpty(t, records)

	metrics := map[string]string{}
	for _, row := range records[1:] {
		require.Len(t, row, 2)
		metrics[row[0]] = row[1]
	}
	assert.Equal(t, "2", metrics["Total Personnel"])
	assert.Equal(t, "1", metrics["R1 Personnel"])
	assert.Equal(t, "3", metrics["Filled Assignments"])
	assert.Equal(t, "61", metrics["Required Rooms"])
	assert.Equal(t, "4.9%", metrics["Coverage Rate"])
	assert.Equal(t, "1", metrics["Min Load"])
	assert.Equal(t, "2", metrics["Max Load"])
	assert.Equal(t, "87.50", metrics["Fitness"])
	assert.Equal(t, "12", metrics["Generations"])
	assert.Equal(t, "2", metrics["Assignments (health)"])
	assert.Equal(t, "1", metrics["Assignments (other)"])
}

func TestExportServiceBundleContainsCSVs(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	artifacts, err := svc.Generate(context.Background(), exportFixtureJob())
	require.NoError(t, err)

	bundle := findArtifact(t, artifacts, models.ArtifactBundleZIP)
	data, err := os.ReadFile(store.Path(bundle.Path))
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"rota-grid.csv", "rota-personal.csv", "rota-statistics.csv"}, names)
}

func TestExportServiceLinkRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := exportFixtureJob()
	artifacts, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	grid := findArtifact(t, artifacts, models.ArtifactGridCSV)
	url, expiresAt, err := svc.Link(job.ID, grid)
	require.NoError(t, err)
	assert.Contains(t, url, "/api/v1/export/")
	assert.True(t, expiresAt.After(time.Now()))

	token := url[len("/api/v1/export/"):]
	jobID, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)
	assert.Equal(t, job.ID, jobID)
	assert.Equal(t, grid.Path, relPath)

	_, _, _, err = svc.ParseToken(token+"00", false)
	assert.Error(t, err, "tampered signature must not parse")
}

func TestExportServiceGenerateRequiresResult(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.Generate(context.Background(), &models.RotaJob{ID: "bare"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no result to export")
}
