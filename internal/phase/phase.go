package phase

import (
	"errors"
	"fmt"
)

// Phase is one stage of a deep research run. Progression is strictly
// forward: Planning -> Researching -> Reporting -> Done, with Failed
// reachable from any non-terminal state. Resuming a run restarts at the
// beginning of the current phase, never rewinds a completed one.
type Phase string

const (
	Planning    Phase = "planning"
	Researching Phase = "researching"
	Reporting   Phase = "reporting"
	Done        Phase = "done"
	Failed      Phase = "failed"
)

var (
	// ErrInvalidTransition signals a backward or skipped transition.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrPlanningEmpty aborts a run whose Planning produced zero root topics.
	ErrPlanningEmpty = errors.New("planning produced no topics")
)

var next = map[Phase]Phase{
	Planning:    Researching,
	Researching: Reporting,
	Reporting:   Done,
}

// Controller tracks the current phase and enforces forward-only movement.
type Controller struct {
	current Phase
}

// NewController starts a run in Planning.
func NewController() *Controller {
	return &Controller{current: Planning}
}

// Current returns the phase the run is in.
func (c *Controller) Current() Phase { return c.current }

// Advance moves to the next phase in order. It rejects movement out of a
// terminal state and anything that is not the immediate successor.
func (c *Controller) Advance(to Phase) error {
	if c.current == Done || c.current == Failed {
		return fmt.Errorf("advance from terminal %s: %w", c.current, ErrInvalidTransition)
	}
	if next[c.current] != to {
		return fmt.Errorf("advance %s -> %s: %w", c.current, to, ErrInvalidTransition)
	}
	c.current = to
	return nil
}

// Fail moves to Failed from any non-terminal state.
func (c *Controller) Fail() error {
	if c.current == Done || c.current == Failed {
		return fmt.Errorf("fail from terminal %s: %w", c.current, ErrInvalidTransition)
	}
	c.current = Failed
	return nil
}

// Terminal reports whether the run can no longer move.
func (c *Controller) Terminal() bool {
	return c.current == Done || c.current == Failed
}
