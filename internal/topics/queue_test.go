package topics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := NewQueue()
	orig := Topic{ID: "t1", Text: "photosynthesis basics", Depth: 0}
	require.NoError(t, q.Enqueue(orig))

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Text, got.Text)
	assert.Equal(t, orig.Depth, got.Depth)
	assert.Equal(t, StatusActive, got.Status)
}

func TestEnqueueDuplicateIsInvalidState(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Topic{ID: "t1", Text: "a"}))
	err := q.Enqueue(Topic{ID: "t1", Text: "b"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEnqueueAfterFreeze(t *testing.T) {
	q := NewQueue()
	q.Freeze()
	err := q.Enqueue(Topic{ID: "t1", Text: "late arrival"})
	assert.ErrorIs(t, err, ErrQueueFrozen)
}

func TestDequeueEmpty(t *testing.T) {
	q := NewQueue()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestCompleteLifecycle(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Topic{ID: "t1", Text: "a"}))
	require.NoError(t, q.Enqueue(Topic{ID: "t2", Text: "b"}))

	assert.False(t, q.IsDrained())

	t1, _ := q.Dequeue()
	t2, _ := q.Dequeue()
	require.NoError(t, q.Complete(t1.ID, OutcomeDone))
	require.NoError(t, q.Complete(t2.ID, OutcomeFailed))

	assert.True(t, q.IsDrained())
	counts := q.Counts()
	assert.Equal(t, 1, counts[StatusDone])
	assert.Equal(t, 1, counts[StatusFailed])
}

func TestCompleteNonActiveIsInvalidState(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Topic{ID: "t1", Text: "a"}))

	// Still pending, not active.
	assert.ErrorIs(t, q.Complete("t1", OutcomeDone), ErrInvalidState)
	// Unknown topic.
	assert.ErrorIs(t, q.Complete("nope", OutcomeDone), ErrInvalidState)

	got, _ := q.Dequeue()
	require.NoError(t, q.Complete(got.ID, OutcomeDone))
	// Already terminal.
	assert.ErrorIs(t, q.Complete("t1", OutcomeDone), ErrInvalidState)
}

func TestFailureIsTerminalNoRequeue(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Topic{ID: "t1", Text: "a"}))
	got, _ := q.Dequeue()
	require.NoError(t, q.Complete(got.ID, OutcomeFailed))

	_, ok := q.Dequeue()
	assert.False(t, ok, "failed topic must not reappear")
	assert.True(t, q.IsDrained())
}

func TestConcurrentDequeueNeverDuplicates(t *testing.T) {
	q := NewQueue()
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(Topic{ID: fmt.Sprintf("t%03d", i), Text: "x"}))
	}

	var mu sync.Mutex
	seen := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				topic, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[topic.ID]++
				mu.Unlock()
				_ = q.Complete(topic.ID, OutcomeDone)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "topic %s dequeued %d times", id, count)
	}
	assert.True(t, q.IsDrained())
}

func TestSubTopicDepthInvariant(t *testing.T) {
	parent := Topic{ID: "t1", Text: "cell biology", Depth: 2}
	child := parent.Child("t1a", "mitochondria")
	assert.Equal(t, 3, child.Depth)
	assert.Equal(t, "t1", child.ParentID)
	assert.False(t, child.IsRoot())
	assert.True(t, parent.IsRoot() == false || parent.ParentID == "")
}

func TestEveryTopicEndsInExactlyOneTerminalState(t *testing.T) {
	q := NewQueue()
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(Topic{ID: id, Text: id}))
	}
	for i := 0; ; i++ {
		topic, ok := q.Dequeue()
		if !ok {
			break
		}
		outcome := OutcomeDone
		if i%2 == 1 {
			outcome = OutcomeFailed
		}
		require.NoError(t, q.Complete(topic.ID, outcome))
	}
	counts := q.Counts()
	assert.Equal(t, 0, counts[StatusPending])
	assert.Equal(t, 0, counts[StatusActive])
	assert.Equal(t, len(ids), counts[StatusDone]+counts[StatusFailed])
}
