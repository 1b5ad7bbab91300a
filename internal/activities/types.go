package activities

import (
	"time"

	"github.com/mentorlabs/deepresearch/internal/citations"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"github.com/mentorlabs/deepresearch/internal/topics"
)

// PlanInput asks the planner for root topics covering a query.
type PlanInput struct {
	RunID     string `json:"run_id"`
	Query     string `json:"query"`
	MaxTopics int    `json:"max_topics"`
}

// PlanResult carries the proposed root topics plus any sources consulted
// while planning. Topics are in presentation order.
type PlanResult struct {
	Topics     []string              `json:"topics"`
	SourceUses []citations.SourceUse `json:"source_uses,omitempty"`
	TokensUsed int                   `json:"tokens_used,omitempty"`
}

// ExecuteTopicInput is one unit of research work for a worker.
type ExecuteTopicInput struct {
	RunID string       `json:"run_id"`
	Query string       `json:"query"` // the original run query, for context
	Topic topics.Topic `json:"topic"`

	// AllowSubTopics is false when the topic sits at the depth limit; the
	// worker then skips asking for follow-ups entirely.
	AllowSubTopics bool `json:"allow_sub_topics"`
	MaxSubTopics   int  `json:"max_sub_topics"`
}

// ExecuteTopicResult is a worker's finding for one topic. Note text cites
// consulted sources with local [src:N] markers, N being the 1-based index
// into SourceUses; the workflow rewrites them into run-wide citation blocks.
type ExecuteTopicResult struct {
	TopicID    string                `json:"topic_id"`
	Note       string                `json:"note"`
	SourceUses []citations.SourceUse `json:"source_uses,omitempty"`
	SubTopics  []string              `json:"sub_topics,omitempty"`
	TokensUsed int                   `json:"tokens_used,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

// EmitEventInput publishes one progress event on the run's stream.
type EmitEventInput struct {
	RunID string          `json:"run_id"`
	Event streaming.Event `json:"event"`
}

// PersistRunInput upserts run metadata. Used at run start and on every
// status change so readers can see in-flight runs.
type PersistRunInput struct {
	RunID        string     `json:"run_id"`
	Query        string     `json:"query"`
	Status       string     `json:"status"`
	Mode         string     `json:"mode"`
	TotalTopics  int        `json:"total_topics"`
	FailedTopics int        `json:"failed_topics"`
	SourceCount  int        `json:"source_count"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// PersistReportInput stores the final report artifact alongside the run row.
type PersistReportInput struct {
	Run           PersistRunInput    `json:"run"`
	Markdown      string             `json:"markdown"`
	CitationTable []citations.Source `json:"citation_table"`
}
