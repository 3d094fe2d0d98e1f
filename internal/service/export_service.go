package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/scheduler"
	"github.com/noah-isme/clinic-rota-api/pkg/export"
	"github.com/noah-isme/clinic-rota-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderLandscape(data export.Dataset, title string) ([]byte, error)
}

type zipBundler interface {
	Bundle(entries []export.BundleEntry) ([]byte, error)
}

// ExportConfig tunes artifact rendering and link signing.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders run artifacts, stores them on disk, and signs
// download links at read time.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	zip     zipBundler
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, zip zipBundler) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if zip == nil {
		zip = export.NewZIPBundler()
	}
	return &ExportService{
		storage: files,
		csv:     csv,
		pdf:     pdf,
		zip:     zip,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders every artifact for a finished run and stores them under
// the job's directory. Paths come back on the artifact list; links are
// signed later, per request.
func (s *ExportService) Generate(_ context.Context, job *models.RotaJob) (models.ArtifactList, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if job.Result.IsZero() {
		return nil, fmt.Errorf("job %s has no result to export", job.ID)
	}
	result := &job.Result.RunResult
	people := job.Params.Personnel

	gridData := buildGridDataset(result, people)
	personalData := buildPersonalDataset(result, people)
	statsData := buildStatisticsDataset(result, people)

	gridCSV, err := s.csv.Render(gridData)
	if err != nil {
		return nil, fmt.Errorf("render grid csv: %w", err)
	}
	personalCSV, err := s.csv.Render(personalData)
	if err != nil {
		return nil, fmt.Errorf("render personal csv: %w", err)
	}
	statsCSV, err := s.csv.Render(statsData)
	if err != nil {
		return nil, fmt.Errorf("render statistics csv: %w", err)
	}
	pdfBytes, err := s.pdf.RenderLandscape(gridData, pdfTitle(result))
	if err != nil {
		return nil, fmt.Errorf("render schedule pdf: %w", err)
	}
	zipBytes, err := s.zip.Bundle([]export.BundleEntry{
		{Name: "rota-grid.csv", Data: gridCSV},
		{Name: "rota-personal.csv", Data: personalCSV},
		{Name: "rota-statistics.csv", Data: statsCSV},
	})
	if err != nil {
		return nil, fmt.Errorf("bundle csv zip: %w", err)
	}

	files := []struct {
		kind     models.ArtifactKind
		filename string
		data     []byte
	}{
		{models.ArtifactGridCSV, "rota-grid.csv", gridCSV},
		{models.ArtifactPersonalCSV, "rota-personal.csv", personalCSV},
		{models.ArtifactStatisticsCSV, "rota-statistics.csv", statsCSV},
		{models.ArtifactSchedulePDF, "rota-schedule.pdf", pdfBytes},
		{models.ArtifactBundleZIP, "rota-bundle.zip", zipBytes},
	}
	artifacts := make(models.ArtifactList, 0, len(files))
	for _, f := range files {
		relPath, err := s.storage.Save(fmt.Sprintf("%s/%s", job.ID, f.filename), f.data)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", f.filename, err)
		}
		artifacts = append(artifacts, models.Artifact{Kind: f.kind, Filename: f.filename, Path: relPath})
	}
	return artifacts, nil
}

// Link signs a download URL for one stored artifact.
func (s *ExportService) Link(jobID string, artifact models.Artifact) (string, time.Time, error) {
	token, expiresAt, err := s.signer.Generate(jobID, artifact.Path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign artifact link: %w", err)
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token), expiresAt, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored artifact file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func pdfTitle(result *models.RunResult) string {
	labels := sortedWeekLabels(result)
	if len(labels) == 0 {
		return "Weekly Clinic Rota"
	}
	return fmt.Sprintf("Weekly Clinic Rota %s", strings.Join(labels, ", "))
}

func sortedWeekLabels(result *models.RunResult) []string {
	labels := make([]string, 0, len(result.Schedule))
	for label := range result.Schedule {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func allRooms() []string {
	return append(scheduler.ClinicRooms(), scheduler.CheckupRooms()...)
}

func displayFor(people []models.Person) map[string]string {
	names := make(map[string]string, len(people))
	for _, p := range people {
		names[p.ID] = p.DisplayName()
	}
	return names
}

func buildGridDataset(result *models.RunResult, people []models.Person) export.Dataset {
	rooms := allRooms()
	headers := append([]string{"Week", "Day", "Time"}, rooms...)
	names := displayFor(people)

	rows := make([]map[string]string, 0)
	for _, label := range sortedWeekLabels(result) {
		grid := result.Schedule[label]
		for _, day := range models.Weekdays() {
			for _, slot := range models.TimeSlots() {
				row := map[string]string{
					"Week": label,
					"Day":  string(day),
					"Time": string(slot),
				}
				for _, room := range rooms {
					personID, ok := grid.PersonAt(day, slot, room)
					if !ok || personID == "" {
						continue
					}
					if name, known := names[personID]; known {
						row[room] = name
					} else {
						row[room] = personID
					}
				}
				rows = append(rows, row)
			}
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildPersonalDataset(result *models.RunResult, people []models.Person) export.Dataset {
	headers := []string{"Week", "Person", "Level", "Unit"}
	for _, day := range models.Weekdays() {
		for _, slot := range models.TimeSlots() {
			headers = append(headers, fmt.Sprintf("%s %s", day, slot))
		}
	}
	headers = append(headers, "Clinics", "Checkups")

	rows := make([]map[string]string, 0, len(people)*len(result.Schedule))
	for _, label := range sortedWeekLabels(result) {
		grid := result.Schedule[label]
		for _, p := range people {
			row := map[string]string{
				"Week":   label,
				"Person": p.DisplayName(),
				"Level":  string(p.Level),
				"Unit":   p.RotationUnit,
			}
			clinics, checkups := 0, 0
			for _, day := range models.Weekdays() {
				for _, slot := range models.TimeSlots() {
					room := roomHeldBy(grid, day, slot, p.ID)
					if room == "" {
						continue
					}
					row[fmt.Sprintf("%s %s", day, slot)] = room
					if scheduler.IsCheckupRoom(room) {
						checkups++
					} else {
						clinics++
					}
				}
			}
			row["Clinics"] = fmt.Sprintf("%d", clinics)
			row["Checkups"] = fmt.Sprintf("%d", checkups)
			rows = append(rows, row)
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// roomHeldBy scans rooms in canonical order so repeated exports render the
// same cell even for degenerate double-booked grids.
func roomHeldBy(grid models.Grid, day models.Day, slot models.TimeSlot, personID string) string {
	for _, room := range allRooms() {
		if occupant, ok := grid.PersonAt(day, slot, room); ok && occupant == personID {
			return room
		}
	}
	return ""
}

func buildStatisticsDataset(result *models.RunResult, people []models.Person) export.Dataset {
	stats := result.Statistics
	weeks := len(result.Schedule)
	if weeks == 0 {
		weeks = 1
	}

	rows := []map[string]string{
		{"Metric": "Total Personnel", "Value": fmt.Sprintf("%d", stats.TotalPersonnel)},
	}
	for _, level := range models.Levels() {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("%s Personnel", level),
			"Value":  fmt.Sprintf("%d", stats.PersonnelByLevel[level]),
		})
	}

	filled := 0
	minLoad, maxLoad := -1, 0
	for _, count := range stats.AssignmentsPerPerson {
		filled += count
		if minLoad < 0 || count < minLoad {
			minLoad = count
		}
		if count > maxLoad {
			maxLoad = count
		}
	}
	if minLoad < 0 {
		minLoad = 0
	}
	rows = append(rows,
		map[string]string{"Metric": "Filled Assignments", "Value": fmt.Sprintf("%d", filled)},
		map[string]string{"Metric": "Required Rooms", "Value": fmt.Sprintf("%d", scheduler.TotalRequiredRooms()*weeks)},
		map[string]string{"Metric": "Coverage Rate", "Value": fmt.Sprintf("%.1f%%", stats.CoverageRate)},
		map[string]string{"Metric": "Health Check Coverage", "Value": fmt.Sprintf("%.1f%%", stats.HealthCheckCoverage)},
		map[string]string{"Metric": "Min Load", "Value": fmt.Sprintf("%d", minLoad)},
		map[string]string{"Metric": "Max Load", "Value": fmt.Sprintf("%d", maxLoad)},
		map[string]string{"Metric": "Fitness", "Value": fmt.Sprintf("%.2f", result.Fitness)},
		map[string]string{"Metric": "Generations", "Value": fmt.Sprintf("%d", result.Generations)},
		map[string]string{"Metric": "Hard Violations", "Value": fmt.Sprintf("%d", len(result.Violations.Hard))},
		map[string]string{"Metric": "Soft Violations", "Value": fmt.Sprintf("%d", len(result.Violations.Soft))},
	)

	unitLoads := make(map[string]int)
	for _, p := range people {
		unitLoads[p.RotationUnit] += stats.AssignmentsPerPerson[p.ID]
	}
	units := make([]string, 0, len(unitLoads))
	for unit := range unitLoads {
		units = append(units, unit)
	}
	sort.Strings(units)
	for _, unit := range units {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("Assignments (%s)", unit),
			"Value":  fmt.Sprintf("%d", unitLoads[unit]),
		})
	}

	return export.Dataset{Headers: []string{"Metric", "Value"}, Rows: rows}
}
