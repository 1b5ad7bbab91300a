package activities

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/metrics"
	"go.uber.org/zap"
)

func runRecord(in PersistRunInput) db.RunRecord {
	rec := db.RunRecord{
		ID:           in.RunID,
		Query:        in.Query,
		Status:       in.Status,
		Mode:         in.Mode,
		TotalTopics:  in.TotalTopics,
		FailedTopics: in.FailedTopics,
		SourceCount:  in.SourceCount,
		StartedAt:    in.StartedAt,
	}
	if in.CompletedAt != nil {
		rec.CompletedAt = sql.NullTime{Time: *in.CompletedAt, Valid: true}
	}
	return rec
}

// PersistRun upserts run metadata so readers see the run while it is still
// in flight. A nil store makes this a no-op.
func observeRunStatus(in PersistRunInput) {
	switch in.Status {
	case "running":
		metrics.RunsStarted.WithLabelValues(in.Mode).Inc()
	case "done", "failed", "cancelled":
		metrics.RunsCompleted.WithLabelValues(in.Mode, in.Status).Inc()
		if in.CompletedAt != nil {
			metrics.RunDuration.WithLabelValues(in.Mode).Observe(in.CompletedAt.Sub(in.StartedAt).Seconds())
		}
	}
}

func (a *Activities) PersistRun(ctx context.Context, in PersistRunInput) error {
	observeRunStatus(in)

	if a.store == nil {
		a.logger.Debug("persistence disabled, skipping run upsert", zap.String("run_id", in.RunID))
		return nil
	}
	if err := a.store.UpsertRun(ctx, runRecord(in)); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	return nil
}

// PersistReport stores the final artifact and the terminal run row.
func (a *Activities) PersistReport(ctx context.Context, in PersistReportInput) error {
	observeRunStatus(in.Run)
	metrics.CitationSources.Observe(float64(len(in.CitationTable)))

	if a.store == nil {
		a.logger.Debug("persistence disabled, skipping report", zap.String("run_id", in.Run.RunID))
		return nil
	}

	table, err := db.MarshalCitationTable(in.CitationTable)
	if err != nil {
		return err
	}
	if err := a.store.UpsertRun(ctx, runRecord(in.Run)); err != nil {
		return fmt.Errorf("persist report run row: %w", err)
	}
	createdAt := in.Run.StartedAt
	if in.Run.CompletedAt != nil {
		createdAt = *in.Run.CompletedAt
	}
	if err := a.store.SaveReport(ctx, db.ReportRecord{
		RunID:         in.Run.RunID,
		Markdown:      in.Markdown,
		CitationTable: table,
		CreatedAt:     createdAt,
	}); err != nil {
		return err
	}
	a.logger.Info("report persisted",
		zap.String("run_id", in.Run.RunID),
		zap.Int("sources", len(in.CitationTable)))
	return nil
}
