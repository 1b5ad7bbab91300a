package streaming

// Event types emitted over a run's stream.
const (
	EventPhaseStarted    = "phase_started"
	EventTopicStarted    = "topic_started"
	EventTopicCompleted  = "topic_completed"
	EventTopicFailed     = "topic_failed"
	EventSubTopicSpawned = "subtopic_spawned"
	EventRunCompleted    = "run_completed"
	EventRunCancelled    = "run_cancelled"
	EventRunFailed       = "run_failed"
	EventRunPaused       = "run_paused"
	EventRunResumed      = "run_resumed"
	EventRunCancelling   = "run_cancelling"
)
