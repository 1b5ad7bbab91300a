package topics

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidState indicates a topic lifecycle violation: a duplicate
	// enqueue, or completing a topic that is not active. It points at a
	// scheduler bug and is treated as fatal by callers.
	ErrInvalidState = errors.New("invalid topic state")

	// ErrQueueFrozen is returned when enqueueing after the queue was frozen
	// for the Reporting phase.
	ErrQueueFrozen = errors.New("topic queue is frozen")
)

// Queue holds pending topics plus the set of currently active ones. It is the
// single shared structure workers drain from; every operation is an exclusive
// section so concurrent dequeues never hand out the same topic.
//
// There is no priority: Dequeue returns the first available pending topic.
type Queue struct {
	mu      sync.Mutex
	pending []string
	byID    map[string]*Topic
	active  int
	frozen  bool
}

// NewQueue returns an empty, unfrozen queue.
func NewQueue() *Queue {
	return &Queue{byID: make(map[string]*Topic)}
}

// Enqueue adds a topic in state pending. The topic's ID must be new to the
// queue, and the queue must not be frozen.
func (q *Queue) Enqueue(t Topic) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.frozen {
		return fmt.Errorf("enqueue %q: %w", t.ID, ErrQueueFrozen)
	}
	if _, exists := q.byID[t.ID]; exists {
		return fmt.Errorf("enqueue %q: already tracked: %w", t.ID, ErrInvalidState)
	}
	t.Status = StatusPending
	q.byID[t.ID] = &t
	q.pending = append(q.pending, t.ID)
	return nil
}

// Dequeue atomically moves one pending topic to active and returns it.
// The second return is false when nothing is pending.
func (q *Queue) Dequeue() (Topic, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Topic{}, false
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	t := q.byID[id]
	t.Status = StatusActive
	q.active++
	return *t, true
}

// Complete moves an active topic to done or failed. Failure is terminal for
// the topic; nothing is requeued.
func (q *Queue) Complete(id string, outcome Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("complete %q: unknown topic: %w", id, ErrInvalidState)
	}
	if t.Status != StatusActive {
		return fmt.Errorf("complete %q: status %s: %w", id, t.Status, ErrInvalidState)
	}
	switch outcome {
	case OutcomeDone:
		t.Status = StatusDone
	case OutcomeFailed:
		t.Status = StatusFailed
	default:
		return fmt.Errorf("complete %q: outcome %q: %w", id, outcome, ErrInvalidState)
	}
	q.active--
	return nil
}

// IsDrained reports true iff pending is empty and no topic is active.
// This is the sole termination signal for the Researching phase.
func (q *Queue) IsDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && q.active == 0
}

// Freeze rejects all further enqueues. Called once when the run transitions
// to Reporting; there is no unfreeze.
func (q *Queue) Freeze() {
	q.mu.Lock()
	q.frozen = true
	q.mu.Unlock()
}

// Get returns a copy of the tracked topic, if any.
func (q *Queue) Get(id string) (Topic, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[id]
	if !ok {
		return Topic{}, false
	}
	return *t, true
}

// Counts returns how many tracked topics are in each status.
func (q *Queue) Counts() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[Status]int, 4)
	for _, t := range q.byID {
		counts[t.Status]++
	}
	return counts
}

// PendingLen returns the number of pending topics (for metrics/gauges).
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ActiveLen returns the number of active topics.
func (q *Queue) ActiveLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}
