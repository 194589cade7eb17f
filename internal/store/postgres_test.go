package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mock
}

func postgresColumns() []string {
	return []string{
		"run_id", "patient_id", "genes", "success", "error",
		"variants", "conflicts", "document", "started_at", "finished_at", "created_at",
	}
}

func TestNewPostgresStore_RequiresConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			"run-1", "PT-001", `["CYP2C19"]`, true, "",
			5, 1, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &RunRecord{
		RunID:     "run-1",
		PatientID: "PT-001",
		Genes:     []string{"CYP2C19"},
		Success:   true,
		Variants:  5,
		Conflicts: 1,
		Document:  map[string]interface{}{"patient_id": "PT-001"},
	}
	require.NoError(t, s.Save(context.Background(), record))
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(postgresColumns()).AddRow(
		"run-1", "PT-001", `["CYP2C19","CYP2D6"]`, true, "",
		7, 2, `{"patient_id":"PT-001"}`,
		now.Add(-time.Minute), now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM runs WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(rows)

	record, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []string{"CYP2C19", "CYP2D6"}, record.Genes)
	assert.Equal(t, 7, record.Variants)
	assert.Equal(t, "PT-001", record.Document["patient_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NullDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(postgresColumns()).AddRow(
		"run-2", "", `[]`, false, "all genes failed",
		0, 0, nil, now, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM runs WHERE run_id").
		WithArgs("run-2").
		WillReturnRows(rows)

	record, err := s.Get(context.Background(), "run-2")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Nil(t, record.Document)
	assert.Equal(t, "all genes failed", record.Error)
}

func TestPostgresStore_Get_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE run_id").
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	record, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(postgresColumns()).
		AddRow("run-new", "", `["CYP2C19"]`, true, "", 3, 0, nil, now, now, now).
		AddRow("run-old", "", `["CYP2D6"]`, true, "", 1, 0, nil, now, now, now.Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM runs ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(rows)

	records, err := s.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM runs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec("DELETE FROM runs WHERE run_id").
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, s.Delete(context.Background(), "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
