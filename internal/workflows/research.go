// Package workflows contains the deep research orchestration workflow. All
// run state (phase, topic queue, citation table) lives in workflow memory
// under single-writer discipline: workers are activities that report results
// back over a channel, and only the scheduler coroutine mutates state.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"github.com/mentorlabs/deepresearch/internal/activities"
	"github.com/mentorlabs/deepresearch/internal/citations"
	"github.com/mentorlabs/deepresearch/internal/phase"
	"github.com/mentorlabs/deepresearch/internal/report"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"github.com/mentorlabs/deepresearch/internal/topics"
	"github.com/mentorlabs/deepresearch/internal/workflows/control"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	defaultMaxParallelTopics = 4
	defaultTopicTimeout      = 5 * time.Minute
	defaultMaxDepth          = 2
	defaultMaxTotalTopics    = 40
	defaultMaxPlanTopics     = 6
)

func applyDefaults(in *ResearchInput) {
	if in.MaxParallelTopics <= 0 {
		in.MaxParallelTopics = defaultMaxParallelTopics
	}
	if in.TopicTimeout <= 0 {
		in.TopicTimeout = defaultTopicTimeout
	}
	if in.MaxDepth < 0 {
		in.MaxDepth = 0
	} else if in.MaxDepth == 0 {
		in.MaxDepth = defaultMaxDepth
	}
	if in.MaxTotalTopics <= 0 {
		in.MaxTotalTopics = defaultMaxTotalTopics
	}
	if in.MaxPlanTopics <= 0 {
		in.MaxPlanTopics = defaultMaxPlanTopics
	}
}

// topicCompletion flows from worker coroutines back to the scheduler.
type topicCompletion struct {
	Topic  topics.Topic
	Result activities.ExecuteTopicResult
	ErrMsg string
}

// DeepResearchWorkflow runs one research query through Planning,
// Researching and Reporting.
//
// Planning decomposes the query into root topics; an empty plan fails the
// run. Researching drains the topic queue with a bounded worker pool;
// workers may spawn sub-topics, which enter the same queue until depth and
// volume limits cut them off. Reporting freezes the queue, finalizes
// citations against the rendered document and persists the artifact.
func DeepResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	applyDefaults(&input)
	if input.RunID == "" {
		input.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	mode := "parallel"
	parallelism := input.MaxParallelTopics
	if input.Sequential {
		mode = "sequential"
		parallelism = 1
	}
	startedAt := workflow.Now(ctx)

	phases := phase.NewController()
	queue := topics.NewQueue()
	cm := citations.NewManager()
	var created []topics.Topic
	completedCount, failedCount := 0, 0

	emitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	emit := func(eventType, topicID, message string) {
		err := workflow.ExecuteActivity(emitCtx, activities.NameEmitRunEvent, activities.EmitEventInput{
			RunID: input.RunID,
			Event: streaming.Event{
				RunID:     input.RunID,
				Type:      eventType,
				Phase:     string(phases.Current()),
				TopicID:   topicID,
				Message:   message,
				Timestamp: workflow.Now(ctx),
				Payload: map[string]interface{}{
					"pending": queue.PendingLen(),
					"active":  queue.ActiveLen(),
				},
			},
		}).Get(ctx, nil)
		if err != nil {
			logger.Debug("Event emission failed", "type", eventType, "error", err)
		}
	}

	persistCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	persistRun := func(status string, completedAt *time.Time) {
		err := workflow.ExecuteActivity(persistCtx, activities.NamePersistRun, activities.PersistRunInput{
			RunID:        input.RunID,
			Query:        input.Query,
			Status:       status,
			Mode:         mode,
			TotalTopics:  len(created),
			FailedTopics: failedCount,
			SourceCount:  cm.SourceCount(),
			StartedAt:    startedAt,
			CompletedAt:  completedAt,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("Run persistence failed", "status", status, "error", err)
		}
	}

	ctl := &control.Handler{RunID: input.RunID, Logger: logger, EmitCtx: emitCtx}
	ctl.Setup(ctx)

	_ = workflow.SetQueryHandler(ctx, QueryResearchStatus, func() (StatusSnapshot, error) {
		return StatusSnapshot{
			Phase:     string(phases.Current()),
			Pending:   queue.PendingLen(),
			Active:    queue.ActiveLen(),
			Completed: completedCount,
			Failed:    failedCount,
			Sources:   cm.SourceCount(),
			Cancelled: ctl.IsCancelled(),
		}, nil
	})

	result := ResearchResult{RunID: input.RunID}
	fail := func(cause error, message string) (ResearchResult, error) {
		_ = phases.Fail()
		result.Phase = string(phases.Current())
		emit(streaming.EventRunFailed, "", message)
		now := workflow.Now(ctx)
		persistRun("failed", &now)
		return result, cause
	}

	logger.Info("Research run starting",
		"run_id", input.RunID, "mode", mode, "parallelism", parallelism)
	persistRun("running", nil)
	emit(streaming.EventPhaseStarted, "", "planning research topics")

	// Planning
	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var plan activities.PlanResult
	if err := workflow.ExecuteActivity(planCtx, activities.NamePlanTopics, activities.PlanInput{
		RunID:     input.RunID,
		Query:     input.Query,
		MaxTopics: input.MaxPlanTopics,
	}).Get(ctx, &plan); err != nil {
		return fail(fmt.Errorf("planning: %w", err), "planning failed")
	}
	for _, use := range plan.SourceUses {
		if _, err := cm.Record(use, citations.PhasePlanning); err != nil {
			logger.Warn("Planning citation dropped", "source", use.SourceKey, "error", err)
		}
	}
	cm.CompletePhase(citations.PhasePlanning)

	if len(plan.Topics) == 0 {
		return fail(
			temporal.NewNonRetryableApplicationError("planning produced no topics", "PlanningEmpty", phase.ErrPlanningEmpty),
			"planning produced no topics")
	}

	topicSeq := 0
	newTopicID := func() string {
		topicSeq++
		return fmt.Sprintf("t-%03d", topicSeq)
	}
	track := func(t topics.Topic) bool {
		if err := queue.Enqueue(t); err != nil {
			logger.Warn("Topic rejected", "topic_id", t.ID, "error", err)
			return false
		}
		created = append(created, t)
		return true
	}
	for _, text := range plan.Topics {
		if len(created) >= input.MaxTotalTopics {
			break
		}
		track(topics.Topic{ID: newTopicID(), Text: text, Depth: 0})
	}

	// Researching
	if err := phases.Advance(phase.Researching); err != nil {
		return fail(err, "phase transition failed")
	}
	emit(streaming.EventPhaseStarted, "", fmt.Sprintf("researching %d topics", len(created)))

	results := workflow.NewChannel(ctx)
	inFlight := 0
	launch := func(t topics.Topic) {
		inFlight++
		emit(streaming.EventTopicStarted, t.ID, t.Text)
		workflow.Go(ctx, func(gCtx workflow.Context) {
			actCtx := workflow.WithActivityOptions(gCtx, workflow.ActivityOptions{
				StartToCloseTimeout: input.TopicTimeout,
				HeartbeatTimeout:    input.TopicTimeout,
				RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
			})
			var res activities.ExecuteTopicResult
			err := workflow.ExecuteActivity(actCtx, activities.NameExecuteTopic, activities.ExecuteTopicInput{
				RunID:          input.RunID,
				Query:          input.Query,
				Topic:          t,
				AllowSubTopics: t.Depth < input.MaxDepth,
			}).Get(gCtx, &res)
			comp := topicCompletion{Topic: t, Result: res}
			if err != nil {
				comp.ErrMsg = err.Error()
			}
			results.Send(gCtx, comp)
		})
	}

	var notes []report.Note
	for !queue.IsDrained() {
		if err := ctl.CheckPausePoint(ctx, "dispatch"); err != nil {
			return fail(err, "pause checkpoint failed")
		}
		if ctl.IsCancelled() {
			// Never-started topics resolve as failed so the queue drains
			// and the report can say what is missing.
			for {
				t, ok := queue.Dequeue()
				if !ok {
					break
				}
				_ = queue.Complete(t.ID, topics.OutcomeFailed)
				failedCount++
				emit(streaming.EventTopicFailed, t.ID, "cancelled before start")
			}
		} else {
			for inFlight < parallelism {
				t, ok := queue.Dequeue()
				if !ok {
					break
				}
				launch(t)
			}
		}
		if inFlight == 0 {
			continue // re-checks IsDrained
		}

		var comp topicCompletion
		results.Receive(ctx, &comp)
		inFlight--

		if comp.ErrMsg != "" {
			failedCount++
			if err := queue.Complete(comp.Topic.ID, topics.OutcomeFailed); err != nil {
				return fail(err, "queue corruption")
			}
			emit(streaming.EventTopicFailed, comp.Topic.ID, comp.ErrMsg)
			logger.Warn("Topic failed", "topic_id", comp.Topic.ID, "error", comp.ErrMsg)
			continue
		}

		note := comp.Result.Note
		var blockIDs []string
		for i, use := range comp.Result.SourceUses {
			blockID, err := cm.Record(use, citations.PhaseResearching)
			if err != nil {
				logger.Warn("Citation dropped", "source", use.SourceKey, "error", err)
				continue
			}
			marker := fmt.Sprintf("[src:%d]", i+1)
			note = strings.ReplaceAll(note, marker, "[cite:"+blockID+"]")
			blockIDs = append(blockIDs, blockID)
		}
		notes = append(notes, report.Note{TopicID: comp.Topic.ID, Content: note, BlockIDs: blockIDs})

		// Sub-topics enter the queue before the parent resolves so a
		// drained check between the two can never end the phase early.
		if !ctl.IsCancelled() {
			for _, text := range comp.Result.SubTopics {
				if comp.Topic.Depth+1 > input.MaxDepth {
					break
				}
				if len(created) >= input.MaxTotalTopics {
					logger.Info("Topic budget reached, dropping sub-topics", "parent", comp.Topic.ID)
					break
				}
				child := comp.Topic.Child(newTopicID(), text)
				if track(child) {
					emit(streaming.EventSubTopicSpawned, child.ID, text)
				}
			}
		}

		completedCount++
		if err := queue.Complete(comp.Topic.ID, topics.OutcomeDone); err != nil {
			return fail(err, "queue corruption")
		}
		emit(streaming.EventTopicCompleted, comp.Topic.ID, "")
	}

	// Reporting
	queue.Freeze()
	cm.CompletePhase(citations.PhaseResearching)
	if err := phases.Advance(phase.Reporting); err != nil {
		return fail(err, "phase transition failed")
	}
	emit(streaming.EventPhaseStarted, "", "assembling report")

	finalTopics := make([]topics.Topic, 0, len(created))
	for _, t := range created {
		if cur, ok := queue.Get(t.ID); ok {
			finalTopics = append(finalTopics, cur)
		}
	}
	rep, err := report.Assemble(finalTopics, notes, cm, report.Options{
		SeparatePlanningNumbering: input.SeparatePlanningNumbering,
	})
	if err != nil {
		return fail(fmt.Errorf("reporting: %w", err), "report assembly failed")
	}

	if err := phases.Advance(phase.Done); err != nil {
		return fail(err, "phase transition failed")
	}

	result.Phase = string(phases.Current())
	result.Markdown = rep.Markdown
	result.CitationTable = rep.CitationTable
	result.TotalTopics = rep.TotalTopics
	result.FailedTopics = rep.FailedTopics
	result.SourceCount = len(rep.CitationTable)
	result.Cancelled = ctl.IsCancelled()
	result.CancelReason = ctl.CancelReason()

	status := "done"
	finalEvent := streaming.EventRunCompleted
	if result.Cancelled {
		status = "cancelled"
		finalEvent = streaming.EventRunCancelled
	}
	completedAt := workflow.Now(ctx)
	if err := workflow.ExecuteActivity(persistCtx, activities.NamePersistReport, activities.PersistReportInput{
		Run: activities.PersistRunInput{
			RunID:        input.RunID,
			Query:        input.Query,
			Status:       status,
			Mode:         mode,
			TotalTopics:  result.TotalTopics,
			FailedTopics: result.FailedTopics,
			SourceCount:  result.SourceCount,
			StartedAt:    startedAt,
			CompletedAt:  &completedAt,
		},
		Markdown:      rep.Markdown,
		CitationTable: rep.CitationTable,
	}).Get(ctx, nil); err != nil {
		// The run result still carries the report; losing the row is
		// recoverable from workflow history.
		logger.Error("Report persistence failed", "run_id", input.RunID, "error", err)
	}

	emit(finalEvent, "", fmt.Sprintf("%d topics, %d sources", result.TotalTopics, result.SourceCount))
	logger.Info("Research run finished",
		"run_id", input.RunID,
		"status", status,
		"topics", result.TotalTopics,
		"failed", result.FailedTopics,
		"sources", result.SourceCount)
	return result, nil
}
