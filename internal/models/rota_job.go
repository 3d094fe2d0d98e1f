package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RotaJobStatus captures background generation job lifecycle states.
type RotaJobStatus string

const (
	RotaJobStatusQueued     RotaJobStatus = "QUEUED"
	RotaJobStatusProcessing RotaJobStatus = "PROCESSING"
	RotaJobStatusFinished   RotaJobStatus = "FINISHED"
	RotaJobStatusFailed     RotaJobStatus = "FAILED"
)

// ArtifactKind enumerates the files rendered for a finished run.
type ArtifactKind string

const (
	ArtifactGridCSV       ArtifactKind = "grid-csv"
	ArtifactPersonalCSV   ArtifactKind = "personal-csv"
	ArtifactStatisticsCSV ArtifactKind = "statistics-csv"
	ArtifactSchedulePDF   ArtifactKind = "schedule-pdf"
	ArtifactBundleZIP     ArtifactKind = "bundle-zip"
)

// RotaJob is persisted background generation job metadata.
type RotaJob struct {
	ID           string        `db:"id" json:"id"`
	Digest       string        `db:"digest" json:"digest"`
	Params       RotaJobParams `db:"params" json:"params"`
	Status       RotaJobStatus `db:"status" json:"status"`
	Progress     int           `db:"progress" json:"progress"`
	Result       RotaJobResult `db:"result" json:"result"`
	Artifacts    ArtifactList  `db:"artifacts" json:"artifacts"`
	CreatedBy    *string       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
}

// RotaJobParams stores the full generation request persisted as JSONB,
// enough to re-run the job after a restart.
type RotaJobParams struct {
	Personnel     []Person                `json:"personnel"`
	Options       *EngineOptions          `json:"options,omitempty"`
	R1Assignments map[string]R1Assignment `json:"r1_assignments,omitempty"`
	WeekLabel     string                  `json:"week_label,omitempty"`
}

// R1Assignment pins one R1 resident to a pre-resolved clinic day and room.
// R1 clinics are always afternoon sessions.
type R1Assignment struct {
	Day  Day    `json:"day"`
	Room string `json:"room"`
}

// Value marshals params to JSON for persistence.
func (p RotaJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal rota job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RotaJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = RotaJobParams{}
		return nil
	}
	data, err := coerceJSONB(value)
	if err != nil {
		return fmt.Errorf("scan rota job params: %w", err)
	}
	if len(data) == 0 {
		*p = RotaJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal rota job params: %w", err)
	}
	return nil
}

// RotaJobResult wraps the persisted run outcome as JSONB. The zero value
// means the job has not produced a result yet.
type RotaJobResult struct {
	RunResult
}

// IsZero reports whether the job has a stored result.
func (r RotaJobResult) IsZero() bool { return r.Schedule == nil }

// Value marshals the result to JSON, NULL when empty.
func (r RotaJobResult) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(r.RunResult)
	if err != nil {
		return nil, fmt.Errorf("marshal rota job result: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the result struct.
func (r *RotaJobResult) Scan(value interface{}) error {
	if value == nil {
		*r = RotaJobResult{}
		return nil
	}
	data, err := coerceJSONB(value)
	if err != nil {
		return fmt.Errorf("scan rota job result: %w", err)
	}
	if len(data) == 0 {
		*r = RotaJobResult{}
		return nil
	}
	if err := json.Unmarshal(data, &r.RunResult); err != nil {
		return fmt.Errorf("unmarshal rota job result: %w", err)
	}
	return nil
}

// Artifact is one rendered file attached to a finished job. Path is
// relative to the artifact storage root; download URLs are signed at
// read time and never persisted.
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Filename string       `json:"filename"`
	Path     string       `json:"path"`
}

// ArtifactList persists the artifact set as JSONB.
type ArtifactList []Artifact

// Value marshals the list to JSON, NULL when empty.
func (l ArtifactList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact list: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the list.
func (l *ArtifactList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	data, err := coerceJSONB(value)
	if err != nil {
		return fmt.Errorf("scan artifact list: %w", err)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshal artifact list: %w", err)
	}
	return nil
}

// Find returns the artifact with the given storage path.
func (l ArtifactList) Find(path string) (Artifact, bool) {
	for _, a := range l {
		if a.Path == path {
			return a, true
		}
	}
	return Artifact{}, false
}

func coerceJSONB(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSONB source type %T", value)
	}
}
