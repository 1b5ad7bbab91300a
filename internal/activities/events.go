package activities

import (
	"context"

	"github.com/mentorlabs/deepresearch/internal/metrics"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"go.uber.org/zap"
)

// numericPayload reads a numeric payload field; values arrive as float64
// after the activity input's JSON round trip but may be ints in-process.
func numericPayload(payload map[string]interface{}, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// EmitRunEvent publishes one progress event on the run's stream. Delivery is
// best-effort by design; the workflow ignores the error and carries on.
func (a *Activities) EmitRunEvent(ctx context.Context, in EmitEventInput) error {
	switch in.Event.Type {
	case streaming.EventSubTopicSpawned:
		metrics.SubTopicsSpawned.Inc()
	case streaming.EventTopicCompleted:
		metrics.TopicsCompleted.WithLabelValues("done").Inc()
	case streaming.EventTopicFailed:
		metrics.TopicsCompleted.WithLabelValues("failed").Inc()
	}
	if pending, ok := numericPayload(in.Event.Payload, "pending"); ok {
		metrics.QueuePending.Set(pending)
	}
	if active, ok := numericPayload(in.Event.Payload, "active"); ok {
		metrics.QueueActive.Set(active)
	}

	if a.streams == nil {
		return nil
	}
	a.streams.Publish(in.RunID, in.Event)
	metrics.EventsPublished.WithLabelValues(in.Event.Type).Inc()
	a.logger.Debug("run event",
		zap.String("run_id", in.RunID),
		zap.String("type", in.Event.Type),
		zap.String("topic_id", in.Event.TopicID))
	return nil
}
