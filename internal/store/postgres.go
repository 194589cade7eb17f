package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL run-history store over an existing
// connection. The schema is created when absent.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return store, nil
}

// NewPostgresStoreFromURL creates a PostgreSQL run-history store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		patient_id TEXT DEFAULT '',
		genes JSONB NOT NULL,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT DEFAULT '',
		variants INTEGER NOT NULL DEFAULT 0,
		conflicts INTEGER NOT NULL DEFAULT 0,
		document JSONB,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_runs_patient_id ON runs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a run record by run id.
func (s *PostgresStore) Save(ctx context.Context, record *RunRecord) error {
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

	var doc interface{}
	if document != "" {
		doc = document
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			genes = EXCLUDED.genes,
			success = EXCLUDED.success,
			error = EXCLUDED.error,
			variants = EXCLUDED.variants,
			conflicts = EXCLUDED.conflicts,
			document = EXCLUDED.document,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`,
		record.RunID, record.PatientID, genes, record.Success, record.Error,
		record.Variants, record.Conflicts, doc,
		record.StartedAt, record.FinishedAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}
	return nil
}

// scanPostgresRecord scans a row with nullable JSONB columns.
func scanPostgresRecord(s scanner) (*RunRecord, error) {
	record := &RunRecord{}
	var genes string
	var document sql.NullString

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
	if document.Valid && document.String != "" {
		if err := json.Unmarshal([]byte(document.String), &record.Document); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}
	return record, nil
}

// Get retrieves one run by id; nil when absent.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		FROM runs WHERE run_id = $1
	`, runID)

	record, err := scanPostgresRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return record, nil
}

// List returns runs newest-first with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, patient_id, genes, success, error,
			variants, conflicts, document, started_at, finished_at, created_at
		FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the total number of persisted runs.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run by id.
func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = $1", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
