// Package store persists run history so API consumers can retrieve past
// analysis results.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	RunID      string                 `json:"run_id"`
	PatientID  string                 `json:"patient_id,omitempty"`
	Genes      []string               `json:"genes"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Variants   int                    `json:"variants"`
	Conflicts  int                    `json:"conflicts"`
	Document   map[string]interface{} `json:"document,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	CreatedAt  time.Time              `json:"created_at"`
}

// RecordFromRun converts a pipeline result into its persisted form.
func RecordFromRun(patientID string, genes []string, run *domain.RunResult) *RunRecord {
	record := &RunRecord{
		RunID:      run.RunID,
		PatientID:  patientID,
		Genes:      genes,
		Success:    run.Success,
		Error:      run.Error,
		Variants:   len(run.Variants),
		Document:   run.Document,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Linking != nil {
		record.Conflicts = len(run.Linking.Conflicts)
	}
	return record
}

// Store is the run-history contract implemented by the SQLite and Postgres
// backends.
type Store interface {
	// Save inserts a run record; saving an existing run id updates it.
	Save(ctx context.Context, record *RunRecord) error

	// Get retrieves one run by id; nil when absent.
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// List returns runs newest-first with pagination.
	List(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// Count returns the total number of persisted runs.
	Count(ctx context.Context) (int64, error)

	// Delete removes a run by id.
	Delete(ctx context.Context, runID string) error

	// Close releases store resources.
	Close() error
}

// New opens the configured store backend.
func New(config domain.StoreConfig) (Store, error) {
	switch config.Driver {
	case "", "sqlite":
		path := config.SQLitePath
		if path == "" {
			path = "data/runs.db"
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStoreFromURL(config.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", config.Driver)
	}
}

// marshalJSON serialises the nullable JSON columns.
func marshalJSON(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal record field: %w", err)
	}
	return string(data), nil
}
