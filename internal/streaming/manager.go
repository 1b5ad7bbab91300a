package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is one progress notification for a research run: a phase transition,
// a topic completion, or a worker-level update. Delivery is best-effort and
// must never block the scheduler.
type Event struct {
	RunID     string                 `json:"run_id"`
	Type      string                 `json:"type"`
	Phase     string                 `json:"phase,omitempty"`
	TopicID   string                 `json:"topic_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
}

// Marshal returns the event as JSON for SSE frames and stream entries.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager is an in-memory pub/sub for run events with a per-run ring buffer
// for replay (Last-Event-ID support). When a Redis client is attached,
// published events are mirrored to a Redis Stream so external consumers can
// tail runs; the mirror is best-effort and never blocks publishing.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int

	redis  *redis.Client
	logger *zap.Logger
}

const defaultCapacity = 256

// NewManager returns a manager with the given replay capacity per run.
// redisClient and logger may be nil.
func NewManager(capacity int, redisClient *redis.Client, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
		redis:       redisClient,
		logger:      logger,
	}
}

// Subscribe adds a subscriber channel for a run; the caller must drain it
// and call Unsubscribe when done.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[runID]; ok {
		if _, member := subs[ch]; member {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, runID)
		}
	}
}

// Publish delivers the event to all subscribers of the run. Slow subscribers
// are skipped rather than blocked on.
func (m *Manager) Publish(runID string, evt Event) {
	m.mu.Lock()
	rg := m.history[runID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[runID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	rg.push(evt)
	subs := m.subscribers[runID]
	targets := make([]chan Event, 0, len(subs))
	for ch := range subs {
		targets = append(targets, ch)
	}
	m.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			// drop for slow subscriber
		}
	}

	m.mirrorToRedis(runID, evt)
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// ring capacity. The lock is held across the ring scan; since() copies the
// events out, so Publish never mutates what the caller holds.
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[runID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// StreamKey is the Redis Stream key for a run's mirrored events.
func StreamKey(runID string) string { return "deepresearch:events:" + runID }

func (m *Manager) mirrorToRedis(runID string, evt Event) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(runID),
		MaxLen: int64(m.capacity),
		Approx: true,
		Values: map[string]interface{}{"event": string(evt.Marshal())},
	}).Err()
	if err != nil {
		m.logger.Debug("redis event mirror failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
