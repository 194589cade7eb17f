package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a SQLite run-history store, creating the database
// file and schema when absent.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		patient_id TEXT DEFAULT '',
		genes TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		error TEXT DEFAULT '',
		variants INTEGER NOT NULL DEFAULT 0,
		conflicts INTEGER NOT NULL DEFAULT 0,
		document TEXT DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_patient_id ON runs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a RunRecord.
func scanRecord(s scanner) (*RunRecord, error) {
	record := &RunRecord{}
	var genes, document string

	err := s.Scan(
		&record.RunID, &record.PatientID, &genes,
		&record.Success, &record.Error, &record.Variants, &record.Conflicts,
		&document, &record.StartedAt, &record.FinishedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if genes != "" {
		if err := json.Unmarshal([]byte(genes), &record.Genes); err != nil {
			return nil, fmt.Errorf("failed to decode genes: %w", err)
		}
	}
	if document != "" {
		if err := json.Unmarshal([]byte(document), &record.Document); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}
	return record, nil
}

// Save inserts a run record, replacing any record with the same run id.
func (s *SQLiteStore) Save(ctx context.Context, record *RunRecord) error {
	genes, err := marshalJSON(record.Genes)
	if err != nil {
		return err
	}
	document, err := marshalJSON(record.Document)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID, record.PatientID, genes, record.Success, record.Error,
		record.Variants, record.Conflicts, document,
		record.StartedAt, record.FinishedAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves one run by id; nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		FROM runs WHERE run_id = ?
	`, runID)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return record, nil
}

// List returns runs newest-first with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the total number of persisted runs.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run by id.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
