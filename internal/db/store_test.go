package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"), nil), mock
}

func TestUpsertRun(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO research_runs").
		WithArgs("run-1", "explain the krebs cycle", "done", "parallel", 5, 1, 7,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertRun(context.Background(), RunRecord{
		ID: "run-1", Query: "explain the krebs cycle", Status: "done", Mode: "parallel",
		TotalTopics: 5, FailedTopics: 1, SourceCount: 7, StartedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, query, status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRun(t *testing.T) {
	store, mock := newMockStore(t)

	started := time.Now().Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"id", "query", "status", "mode", "total_topics", "failed_topics", "source_count", "started_at", "completed_at"}).
		AddRow("run-1", "q", "done", "sequential", 3, 0, 4, started, time.Now())
	mock.ExpectQuery("SELECT id, query, status").WithArgs("run-1").WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 3, run.TotalTopics)
	assert.True(t, run.CompletedAt.Valid)
}

func TestSaveAndGetReport(t *testing.T) {
	store, mock := newMockStore(t)

	table, err := MarshalCitationTable([]map[string]string{{"key": "S1"}})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO research_reports").
		WithArgs("run-1", "# Report", table, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SaveReport(context.Background(), ReportRecord{
		RunID: "run-1", Markdown: "# Report", CitationTable: table, CreatedAt: time.Now(),
	}))

	rows := sqlmock.NewRows([]string{"run_id", "markdown", "citation_table", "created_at"}).
		AddRow("run-1", "# Report", table, time.Now())
	mock.ExpectQuery("SELECT run_id, markdown").WithArgs("run-1").WillReturnRows(rows)

	rep, err := store.GetReport(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "# Report", rep.Markdown)
	assert.NoError(t, mock.ExpectationsWereMet())
}
