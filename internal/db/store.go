package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a run or report does not exist.
var ErrNotFound = errors.New("record not found")

// RunRecord is the persisted metadata for one research run.
type RunRecord struct {
	ID           string       `db:"id"`
	Query        string       `db:"query"`
	Status       string       `db:"status"`
	Mode         string       `db:"mode"`
	TotalTopics  int          `db:"total_topics"`
	FailedTopics int          `db:"failed_topics"`
	SourceCount  int          `db:"source_count"`
	StartedAt    time.Time    `db:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
}

// ReportRecord is the persisted final artifact for a run.
type ReportRecord struct {
	RunID         string    `db:"run_id"`
	Markdown      string    `db:"markdown"`
	CitationTable []byte    `db:"citation_table"` // JSON array of sources
	CreatedAt     time.Time `db:"created_at"`
}

// Store persists runs and reports to Postgres. The engine core never touches
// it directly; the PersistReport activity is the only writer.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects and pings.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: database, logger: logger}, nil
}

// NewStoreWithDB wraps an existing connection (tests).
func NewStoreWithDB(database *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: database, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertRun inserts or updates run metadata.
func (s *Store) UpsertRun(ctx context.Context, run RunRecord) error {
	const q = `
		INSERT INTO research_runs (id, query, status, mode, total_topics, failed_topics, source_count, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_topics = EXCLUDED.total_topics,
			failed_topics = EXCLUDED.failed_topics,
			source_count = EXCLUDED.source_count,
			completed_at = EXCLUDED.completed_at`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Query, run.Status, run.Mode,
		run.TotalTopics, run.FailedTopics, run.SourceCount,
		run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches run metadata.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var run RunRecord
	err := s.db.GetContext(ctx, &run,
		`SELECT id, query, status, mode, total_topics, failed_topics, source_count, started_at, completed_at
		 FROM research_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// SaveReport stores the final report for a run, replacing any earlier copy.
func (s *Store) SaveReport(ctx context.Context, rep ReportRecord) error {
	const q = `
		INSERT INTO research_reports (run_id, markdown, citation_table, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE SET
			markdown = EXCLUDED.markdown,
			citation_table = EXCLUDED.citation_table,
			created_at = EXCLUDED.created_at`
	_, err := s.db.ExecContext(ctx, q, rep.RunID, rep.Markdown, rep.CitationTable, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rep.RunID, err)
	}
	return nil
}

// GetReport fetches the final report for a run.
func (s *Store) GetReport(ctx context.Context, runID string) (ReportRecord, error) {
	var rep ReportRecord
	err := s.db.GetContext(ctx, &rep,
		`SELECT run_id, markdown, citation_table, created_at FROM research_reports WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, fmt.Errorf("report %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return ReportRecord{}, fmt.Errorf("get report %s: %w", runID, err)
	}
	return rep, nil
}

// MarshalCitationTable renders any citation table value as JSON for storage.
func MarshalCitationTable(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal citation table: %w", err)
	}
	return b, nil
}
