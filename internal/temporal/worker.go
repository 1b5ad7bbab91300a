package temporal

import (
	"fmt"

	"github.com/mentorlabs/deepresearch/internal/activities"
	"github.com/mentorlabs/deepresearch/internal/config"
	"github.com/mentorlabs/deepresearch/internal/workflows"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// Dial connects to the Temporal cluster.
func Dial(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger.Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// NewWorker builds a worker on the research task queue with the workflow and
// every activity registered under the names the workflow references.
func NewWorker(c client.Client, taskQueue string, acts *activities.Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflowWithOptions(workflows.DeepResearchWorkflow,
		workflow.RegisterOptions{Name: workflows.WorkflowName})

	w.RegisterActivityWithOptions(acts.PlanTopics, activity.RegisterOptions{Name: activities.NamePlanTopics})
	w.RegisterActivityWithOptions(acts.ExecuteTopic, activity.RegisterOptions{Name: activities.NameExecuteTopic})
	w.RegisterActivityWithOptions(acts.EmitRunEvent, activity.RegisterOptions{Name: activities.NameEmitRunEvent})
	w.RegisterActivityWithOptions(acts.PersistRun, activity.RegisterOptions{Name: activities.NamePersistRun})
	w.RegisterActivityWithOptions(acts.PersistReport, activity.RegisterOptions{Name: activities.NamePersistReport})

	return w
}
