package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-notifier/internal/queue"
)

type stubQueue struct {
	mu         sync.Mutex
	deliveries chan queue.Delivery
	delayed    []queue.Message
	delayedErr error
}

func newStubQueue() *stubQueue {
	return &stubQueue{deliveries: make(chan queue.Delivery, 64)}
}

func (q *stubQueue) Enqueue(context.Context, queue.Message) error { return nil }

func (q *stubQueue) EnqueueDelayed(_ context.Context, msg queue.Message, _ time.Duration) error {
	if q.delayedErr != nil {
		return q.delayedErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, msg)
	return nil
}

func (q *stubQueue) Consume(context.Context) (<-chan queue.Delivery, error) {
	return q.deliveries, nil
}

func (q *stubQueue) Close() error { return nil }

func delivery(id, recipient string, acked, nacked *bool) queue.Delivery {
	return queue.Delivery{
		Message: queue.Message{NotificationID: id, RecipientID: recipient},
		Ack: func() error {
			if acked != nil {
				*acked = true
			}
			return nil
		},
		Nack: func() error {
			if nacked != nil {
				*nacked = true
			}
			return nil
		},
	}
}

func TestLaneForIsStable(t *testing.T) {
	lane := laneFor("alice", 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, lane, laneFor("alice", 8))
	}
	assert.GreaterOrEqual(t, lane, 0)
	assert.Less(t, lane, 8)
}

func TestHandleAcksOnSuccess(t *testing.T) {
	q := newStubQueue()
	w := New(q, func(context.Context, queue.Message) error { return nil }, func(context.Context) {}, Options{Lanes: 1, SweepInterval: time.Hour, RetryDelay: time.Second})

	var acked, nacked bool
	w.handle(context.Background(), delivery("n1", "alice", &acked, &nacked))
	assert.True(t, acked)
	assert.False(t, nacked)
	assert.Empty(t, q.delayed)
}

func TestHandleRetriesThroughDelayedEnqueue(t *testing.T) {
	q := newStubQueue()
	w := New(q, func(context.Context, queue.Message) error { return errors.New("boom") }, func(context.Context) {}, Options{Lanes: 1, SweepInterval: time.Hour, RetryDelay: time.Second})

	var acked, nacked bool
	w.handle(context.Background(), delivery("n1", "alice", &acked, &nacked))
	// the original message is acked; the retry rides the delayed exchange
	assert.True(t, acked)
	assert.False(t, nacked)
	require.Len(t, q.delayed, 1)
	assert.Equal(t, "n1", q.delayed[0].NotificationID)
}

func TestHandleSurvivesFailedAck(t *testing.T) {
	q := newStubQueue()
	w := New(q, func(context.Context, queue.Message) error { return nil }, func(context.Context) {}, Options{Lanes: 1, SweepInterval: time.Hour, RetryDelay: time.Second})

	d := queue.Delivery{
		Message: queue.Message{NotificationID: "n1", RecipientID: "alice"},
		Ack:     func() error { return errors.New("channel closed") },
		Nack:    func() error { return nil },
	}
	// a broken broker channel must not panic the lane; the broker
	// redelivers and processing is idempotent
	assert.NotPanics(t, func() { w.handle(context.Background(), d) })
	assert.Empty(t, q.delayed)
}

func TestHandleNacksWhenRetryEnqueueFails(t *testing.T) {
	q := newStubQueue()
	q.delayedErr = errors.New("broker down")
	w := New(q, func(context.Context, queue.Message) error { return errors.New("boom") }, func(context.Context) {}, Options{Lanes: 1, SweepInterval: time.Hour, RetryDelay: time.Second})

	var acked, nacked bool
	w.handle(context.Background(), delivery("n1", "alice", &acked, &nacked))
	assert.False(t, acked)
	assert.True(t, nacked)
}

func TestPerRecipientOrderingAcrossLanes(t *testing.T) {
	q := newStubQueue()

	var mu sync.Mutex
	order := make(map[string][]string)
	processed := make(chan struct{}, 64)
	process := func(_ context.Context, msg queue.Message) error {
		mu.Lock()
		order[msg.RecipientID] = append(order[msg.RecipientID], msg.NotificationID)
		mu.Unlock()
		processed <- struct{}{}
		return nil
	}

	w := New(q, process, func(context.Context) {}, Options{Lanes: 4, SweepInterval: time.Hour, RetryDelay: time.Second})
	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	recipients := []string{"alice", "bob", "carol"}
	total := 0
	for i := 0; i < 5; i++ {
		for _, r := range recipients {
			q.deliveries <- delivery(r+"-"+string(rune('0'+i)), r, nil, nil)
			total++
		}
	}

	for i := 0; i < total; i++ {
		select {
		case <-processed:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	for _, r := range recipients {
		want := []string{r + "-0", r + "-1", r + "-2", r + "-3", r + "-4"}
		assert.Equal(t, want, order[r], "deliveries for %s reordered", r)
	}
}

func TestSweepRunsOnTicker(t *testing.T) {
	q := newStubQueue()

	var mu sync.Mutex
	sweeps := 0
	sweep := func(context.Context) {
		mu.Lock()
		sweeps++
		mu.Unlock()
	}

	w := New(q, func(context.Context, queue.Message) error { return nil }, sweep, Options{Lanes: 1, SweepInterval: 10 * time.Millisecond, RetryDelay: time.Second})
	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sweeps >= 2
	}, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
