package control

import (
	"time"

	"github.com/mentorlabs/deepresearch/internal/activities"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"
)

// Handler owns a run's control state. The state slice is safe without locks
// because Temporal workflows are cooperatively scheduled; only one coroutine
// runs at a time.
type Handler struct {
	State  *State
	RunID  string
	Logger log.Logger

	// EmitCtx, when set, is used to publish control events on the run's
	// stream. Nil suppresses emission (tests, embedded use).
	EmitCtx workflow.Context
}

// Setup installs the query handler and starts the signal listener.
func (h *Handler) Setup(ctx workflow.Context) {
	h.State = &State{}

	_ = workflow.SetQueryHandler(ctx, QueryControlState, func() (State, error) {
		return *h.State, nil
	})

	pauseCh := workflow.GetSignalChannel(ctx, SignalPause)
	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			sel := workflow.NewSelector(gCtx)
			sel.AddReceive(pauseCh, func(c workflow.ReceiveChannel, more bool) {
				var req PauseRequest
				c.Receive(gCtx, &req)
				h.handlePause(gCtx, req)
			})
			sel.AddReceive(resumeCh, func(c workflow.ReceiveChannel, more bool) {
				var req ResumeRequest
				c.Receive(gCtx, &req)
				h.handleResume(gCtx, req)
			})
			sel.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
				var req CancelRequest
				c.Receive(gCtx, &req)
				h.handleCancel(gCtx, req)
			})
			sel.Select(gCtx)
		}
	})
}

func (h *Handler) handlePause(ctx workflow.Context, req PauseRequest) {
	if h.State.IsPaused {
		h.Logger.Debug("Already paused, ignoring")
		return
	}
	h.State.IsPaused = true
	h.State.PausedAt = workflow.Now(ctx)
	h.State.PauseReason = req.Reason
	h.State.PausedBy = req.RequestedBy
	h.emit(ctx, streaming.EventRunPaused, req.Reason)
}

func (h *Handler) handleResume(ctx workflow.Context, req ResumeRequest) {
	if !h.State.IsPaused {
		h.Logger.Debug("Not paused, ignoring resume")
		return
	}
	h.State.IsPaused = false
	h.State.PausedAt = time.Time{}
	h.State.PauseReason = ""
	h.State.PausedBy = ""
	h.emit(ctx, streaming.EventRunResumed, req.Reason)
}

func (h *Handler) handleCancel(ctx workflow.Context, req CancelRequest) {
	if h.State.IsCancelled {
		return
	}
	h.State.IsCancelled = true
	h.State.CancelReason = req.Reason
	h.State.CancelledBy = req.RequestedBy
	h.emit(ctx, streaming.EventRunCancelling, req.Reason)
}

func (h *Handler) emit(ctx workflow.Context, eventType, message string) {
	if h.EmitCtx == nil {
		return
	}
	_ = workflow.ExecuteActivity(h.EmitCtx, activities.NameEmitRunEvent, activities.EmitEventInput{
		RunID: h.RunID,
		Event: streaming.Event{
			RunID:     h.RunID,
			Type:      eventType,
			Message:   message,
			Timestamp: workflow.Now(ctx),
		},
	}).Get(ctx, nil)
}

// CheckPausePoint yields so pending signals land, then blocks while the run
// is paused. Cancellation lifts the pause so the scheduler can wind down.
func (h *Handler) CheckPausePoint(ctx workflow.Context, checkpoint string) error {
	if h.State == nil {
		return nil
	}
	_ = workflow.Sleep(ctx, 0)

	if h.State.IsPaused && !h.State.IsCancelled {
		h.Logger.Info("Run paused", "checkpoint", checkpoint, "reason", h.State.PauseReason)
		if err := workflow.Await(ctx, func() bool {
			return !h.State.IsPaused || h.State.IsCancelled
		}); err != nil {
			return err
		}
		h.Logger.Info("Run resumed", "checkpoint", checkpoint)
	}
	return nil
}

// IsCancelled reports whether a cancel signal has been processed.
func (h *Handler) IsCancelled() bool {
	return h.State != nil && h.State.IsCancelled
}

// CancelReason returns the reason from the cancel request, if any.
func (h *Handler) CancelReason() string {
	if h.State == nil {
		return ""
	}
	return h.State.CancelReason
}
