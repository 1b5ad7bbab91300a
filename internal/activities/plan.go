package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mentorlabs/deepresearch/internal/citations"
	"github.com/mentorlabs/deepresearch/internal/llm"
	"github.com/mentorlabs/deepresearch/internal/metrics"
	"go.uber.org/zap"
)

const defaultMaxPlanTopics = 6

// PlanTopics decomposes the run query into root research topics. When a
// search adapter is available the planner first gathers a quick overview so
// the decomposition reflects what actually exists; those hits come back as
// planning-phase source uses.
func (a *Activities) PlanTopics(ctx context.Context, in PlanInput) (PlanResult, error) {
	if in.MaxTopics <= 0 {
		in.MaxTopics = defaultMaxPlanTopics
	}

	var uses []citations.SourceUse
	var overview strings.Builder
	if search, ok := a.tools.Get("web_search"); ok {
		hits, err := search.Run(ctx, in.Query)
		if err != nil {
			// Planning works without an overview; decompose from the query alone.
			metrics.ToolInvocations.WithLabelValues(search.Name(), "error").Inc()
			a.logger.Warn("planning overview search failed",
				zap.String("run_id", in.RunID), zap.Error(err))
		} else {
			metrics.ToolInvocations.WithLabelValues(search.Name(), "ok").Inc()
			for _, hit := range hits {
				uses = append(uses, citations.SourceUse{
					SourceKey: hit.SourceKey,
					Title:     hit.Title,
					URL:       hit.URL,
					Snippet:   hit.Snippet,
				})
				fmt.Fprintf(&overview, "- %s: %s\n", hit.Title, hit.Snippet)
			}
		}
	}

	prompt := buildPlanPrompt(in.Query, overview.String(), in.MaxTopics)
	llmStart := time.Now()
	raw, err := a.llm.Invoke(ctx, prompt, llm.Params{
		AgentID:     "planner-" + in.RunID,
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	metrics.LLMLatency.Observe(time.Since(llmStart).Seconds())
	if err != nil {
		metrics.LLMInvocations.WithLabelValues("error").Inc()
		return PlanResult{}, fmt.Errorf("plan topics for run %s: %w", in.RunID, err)
	}
	metrics.LLMInvocations.WithLabelValues("ok").Inc()

	topicsOut := parseTopicList(raw, in.MaxTopics)
	metrics.CitationsRecorded.WithLabelValues(string(citations.PhasePlanning)).Add(float64(len(uses)))
	a.logger.Info("planning complete",
		zap.String("run_id", in.RunID),
		zap.Int("topics", len(topicsOut)),
		zap.Int("planning_sources", len(uses)))

	return PlanResult{Topics: topicsOut, SourceUses: uses}, nil
}

func buildPlanPrompt(query, overview string, maxTopics int) string {
	var sb strings.Builder
	sb.WriteString("You are planning a deep research run.\n\n")
	sb.WriteString("Research query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	if overview != "" {
		sb.WriteString("Search overview of the area:\n")
		sb.WriteString(overview)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Decompose the query into at most %d focused research topics that together cover it. ", maxTopics)
	sb.WriteString("Respond with a JSON array of topic strings and nothing else.\n")
	sb.WriteString(`Example: ["history of X", "current approaches to X", "open problems in X"]`)
	return sb.String()
}
