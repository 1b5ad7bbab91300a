package workflows

import (
	"time"

	"github.com/mentorlabs/deepresearch/internal/citations"
)

// ResearchInput starts one deep research run. Zero values fall back to the
// engine defaults so callers only set what they want to override.
type ResearchInput struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`

	// MaxParallelTopics bounds concurrent topic workers. Sequential forces
	// one at a time regardless of the bound.
	MaxParallelTopics int  `json:"max_parallel_topics,omitempty"`
	Sequential        bool `json:"sequential,omitempty"`

	TopicTimeout   time.Duration `json:"topic_timeout,omitempty"`
	MaxDepth       int           `json:"max_depth,omitempty"`
	MaxTotalTopics int           `json:"max_total_topics,omitempty"`
	MaxPlanTopics  int           `json:"max_plan_topics,omitempty"`

	SeparatePlanningNumbering bool `json:"separate_planning_numbering,omitempty"`
}

// ResearchResult is the terminal state of a run.
type ResearchResult struct {
	RunID         string             `json:"run_id"`
	Phase         string             `json:"phase"`
	Markdown      string             `json:"markdown"`
	CitationTable []citations.Source `json:"citation_table,omitempty"`
	TotalTopics   int                `json:"total_topics"`
	FailedTopics  int                `json:"failed_topics"`
	SourceCount   int                `json:"source_count"`
	Cancelled     bool               `json:"cancelled,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
}

// StatusSnapshot answers the run status query while a run is in flight.
type StatusSnapshot struct {
	Phase     string `json:"phase"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Sources   int    `json:"sources"`
	Cancelled bool   `json:"cancelled"`
}

// QueryResearchStatus is the query name for StatusSnapshot.
const QueryResearchStatus = "research_status_v1"

// WorkflowName is the registered name of DeepResearchWorkflow.
const WorkflowName = "DeepResearchWorkflow"
