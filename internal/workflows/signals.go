package workflows

import (
	"github.com/mentorlabs/deepresearch/internal/workflows/control"
)

// Signal names and request shapes, re-exported so API callers don't import
// the control package directly.
const (
	SignalPause       = control.SignalPause
	SignalResume      = control.SignalResume
	SignalCancel      = control.SignalCancel
	QueryControlState = control.QueryControlState
)

type (
	PauseRequest  = control.PauseRequest
	ResumeRequest = control.ResumeRequest
	CancelRequest = control.CancelRequest
	ControlState  = control.State
)
