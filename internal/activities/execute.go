package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mentorlabs/deepresearch/internal/citations"
	"github.com/mentorlabs/deepresearch/internal/llm"
	"github.com/mentorlabs/deepresearch/internal/metrics"
	"github.com/mentorlabs/deepresearch/internal/tools"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"
)

const (
	// maxToolContent caps how much of one source's content reaches the
	// synthesis prompt.
	maxToolContent = 2000

	defaultMaxSubTopics = 3
)

// ExecuteTopic researches one topic: gather evidence through the registered
// tool adapters, then synthesize a note citing the gathered sources with
// [src:N] markers. Tool failures are non-fatal; the note is written from
// whatever survived. A model failure fails the whole topic.
func (a *Activities) ExecuteTopic(ctx context.Context, in ExecuteTopicInput) (ExecuteTopicResult, error) {
	started := time.Now()
	log := a.logger.With(
		zap.String("run_id", in.RunID),
		zap.String("topic_id", in.Topic.ID))

	if in.MaxSubTopics <= 0 {
		in.MaxSubTopics = defaultMaxSubTopics
	}

	evidence := a.gatherEvidence(ctx, in, log)

	prompt := buildTopicPrompt(in, evidence)
	llmStart := time.Now()
	raw, err := a.llm.Invoke(ctx, prompt, llm.Params{
		AgentID:     fmt.Sprintf("researcher-%s", in.Topic.ID),
		MaxTokens:   2048,
		Temperature: 0.5,
	})
	metrics.LLMLatency.Observe(time.Since(llmStart).Seconds())
	if err != nil {
		metrics.LLMInvocations.WithLabelValues("error").Inc()
		return ExecuteTopicResult{}, fmt.Errorf("research topic %s: %w", in.Topic.ID, err)
	}
	metrics.LLMInvocations.WithLabelValues("ok").Inc()

	parsed := parseWorkerOutput(raw)
	if !in.AllowSubTopics {
		parsed.SubTopics = nil
	} else if len(parsed.SubTopics) > in.MaxSubTopics {
		parsed.SubTopics = parsed.SubTopics[:in.MaxSubTopics]
	}

	uses := make([]citations.SourceUse, 0, len(evidence))
	for _, r := range evidence {
		uses = append(uses, citations.SourceUse{
			SourceKey: r.SourceKey,
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Snippet,
		})
	}
	metrics.CitationsRecorded.WithLabelValues(string(citations.PhaseResearching)).Add(float64(len(uses)))

	elapsed := time.Since(started)
	metrics.TopicDuration.Observe(elapsed.Seconds())
	log.Info("topic researched",
		zap.Int("sources", len(uses)),
		zap.Int("sub_topics", len(parsed.SubTopics)),
		zap.Duration("took", elapsed))

	return ExecuteTopicResult{
		TopicID:    in.Topic.ID,
		Note:       parsed.Note,
		SourceUses: uses,
		SubTopics:  parsed.SubTopics,
		DurationMs: elapsed.Milliseconds(),
	}, nil
}

// gatherEvidence fans the topic text through every registered adapter.
// Heartbeats between adapters keep long tool chains visible to the server.
func (a *Activities) gatherEvidence(ctx context.Context, in ExecuteTopicInput, log *zap.Logger) []tools.Result {
	var evidence []tools.Result
	for _, name := range a.tools.Names() {
		adapter, ok := a.tools.Get(name)
		if !ok {
			continue
		}
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, name)
		}
		results, err := adapter.Run(ctx, in.Topic.Text)
		if err != nil {
			metrics.ToolInvocations.WithLabelValues(name, "error").Inc()
			log.Warn("tool failed, continuing without it",
				zap.String("tool", name), zap.Error(err))
			continue
		}
		metrics.ToolInvocations.WithLabelValues(name, "ok").Inc()
		evidence = append(evidence, results...)
	}
	return evidence
}

func buildTopicPrompt(in ExecuteTopicInput, evidence []tools.Result) string {
	var sb strings.Builder
	sb.WriteString("You are researching one topic within a larger report.\n\n")
	fmt.Fprintf(&sb, "Overall research query: %s\n", in.Query)
	fmt.Fprintf(&sb, "Your topic: %s\n\n", in.Topic.Text)

	if len(evidence) > 0 {
		sb.WriteString("Sources:\n")
		for i, r := range evidence {
			content := r.Content
			if len(content) > maxToolContent {
				content = content[:maxToolContent]
			}
			fmt.Fprintf(&sb, "[src:%d] %s\n%s\n\n", i+1, r.Title, content)
		}
		sb.WriteString("Cite sources inline with their [src:N] marker wherever a claim rests on them.\n")
	}

	sb.WriteString("Write a focused markdown section on your topic.\n")
	if in.AllowSubTopics {
		fmt.Fprintf(&sb, "If the sources reveal sub-questions worth a dedicated follow-up, propose up to %d.\n", in.MaxSubTopics)
		sb.WriteString(`Respond as JSON: {"note": "<markdown section>", "sub_topics": ["..."]}`)
	} else {
		sb.WriteString(`Respond as JSON: {"note": "<markdown section>", "sub_topics": []}`)
	}
	return sb.String()
}
