// Package activities holds the worker-side operations the research workflow
// schedules: topic planning, per-topic research, progress events and report
// persistence. Activities are stateless with respect to the run; everything
// a call needs arrives in its input, and run state lives in the workflow.
package activities

import (
	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/llm"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"github.com/mentorlabs/deepresearch/internal/tools"
	"go.uber.org/zap"
)

// Activity names as registered on the worker. Workflows reference activities
// by these strings so workflow code never imports activity implementations.
const (
	NamePlanTopics    = "PlanTopics"
	NameExecuteTopic  = "ExecuteTopic"
	NameEmitRunEvent  = "EmitRunEvent"
	NamePersistRun    = "PersistRun"
	NamePersistReport = "PersistReport"
)

// Activities bundles the process-wide collaborators activity functions need.
type Activities struct {
	llm     llm.Invoker
	tools   *tools.Registry
	streams *streaming.Manager
	store   *db.Store // nil disables persistence
	logger  *zap.Logger
}

// NewActivities wires the activity set. store may be nil; persistence calls
// become no-ops and are logged at debug level.
func NewActivities(invoker llm.Invoker, registry *tools.Registry, streams *streaming.Manager, store *db.Store, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Activities{
		llm:     invoker,
		tools:   registry,
		streams: streams,
		store:   store,
		logger:  logger,
	}
}
