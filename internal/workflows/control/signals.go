// Package control implements pause/resume/cancel signalling for research
// runs. Cancellation is graceful: the scheduler stops dispatching topics,
// lets in-flight work finish, and still assembles a report from whatever
// completed.
package control

import "time"

// Signal and query names. Versioned so future shape changes can coexist
// with in-flight runs.
const (
	SignalPause       = "pause_v1"
	SignalResume      = "resume_v1"
	SignalCancel      = "cancel_v1"
	QueryControlState = "control_state_v1"
)

// PauseRequest halts topic dispatch at the next checkpoint.
type PauseRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// ResumeRequest lifts a pause.
type ResumeRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// CancelRequest asks the run to wind down gracefully.
type CancelRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// State is the queryable control state of a run.
type State struct {
	IsPaused     bool      `json:"is_paused"`
	IsCancelled  bool      `json:"is_cancelled"`
	PausedAt     time.Time `json:"paused_at,omitempty"`
	PauseReason  string    `json:"pause_reason,omitempty"`
	PausedBy     string    `json:"paused_by,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CancelledBy  string    `json:"cancelled_by,omitempty"`
}
