package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

// fakeMatcher fails the first failures calls, then succeeds.
type fakeMatcher struct {
	mu       sync.Mutex
	failures int
	calls    int
	done     chan struct{}
}

func (f *fakeMatcher) Match(ctx context.Context, requestID string) (*models.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	return &models.MatchResult{Kind: models.MatchCreated, PoolID: "p1"}, nil
}

func (f *fakeMatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, models.MatchJob{RequestID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if job.RequestID != want {
			t.Fatalf("expected %s, got %s", want, job.RequestID)
		}
	}
}

func TestMemoryQueueDequeueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	q := NewMemoryQueue(8)
	done := make(chan struct{})
	m := &fakeMatcher{failures: 2, done: done}
	w := &Worker{Queue: q, Matcher: m, Logger: discard(), MaxAttempts: 5, Backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Enqueue(ctx, models.MatchJob{RequestID: "r1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached a successful attempt")
	}
	cancel()
	if got := m.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if failed := q.Failed(); len(failed) != 0 {
		t.Fatalf("expected empty failure log, got %d entries", len(failed))
	}
}

func TestWorkerExhaustsAttemptsIntoFailureLog(t *testing.T) {
	q := NewMemoryQueue(8)
	m := &fakeMatcher{failures: 100}
	w := &Worker{Queue: q, Matcher: m, Logger: discard(), MaxAttempts: 3, Backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Enqueue(ctx, models.MatchJob{RequestID: "r1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	go w.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if failed := q.Failed(); len(failed) == 1 {
			if failed[0].RequestID != "r1" || failed[0].Attempt != 3 {
				t.Fatalf("bad failure entry %+v", failed[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached the failure log")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if got := m.callCount(); got != 3 {
		t.Fatalf("expected exactly MaxAttempts calls, got %d", got)
	}
}

// trackingQueue records acks so tests can verify a job is only removed
// once its attempt is resolved.
type trackingQueue struct {
	jobs chan models.MatchJob

	mu     sync.Mutex
	acked  []models.MatchJob
	failed []models.MatchJob
}

func newTrackingQueue() *trackingQueue {
	return &trackingQueue{jobs: make(chan models.MatchJob, 16)}
}

func (q *trackingQueue) Enqueue(ctx context.Context, job models.MatchJob) error {
	q.jobs <- job
	return nil
}

func (q *trackingQueue) Dequeue(ctx context.Context) (models.MatchJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return models.MatchJob{}, ctx.Err()
	}
}

func (q *trackingQueue) Ack(ctx context.Context, job models.MatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, job)
	return nil
}

func (q *trackingQueue) Fail(ctx context.Context, job models.MatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, job)
	return nil
}

func (q *trackingQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

func TestWorkerAcksEveryResolvedAttempt(t *testing.T) {
	q := newTrackingQueue()
	done := make(chan struct{})
	m := &fakeMatcher{failures: 2, done: done}
	w := &Worker{Queue: q, Matcher: m, Logger: discard(), MaxAttempts: 5, Backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Enqueue(ctx, models.MatchJob{RequestID: "r1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached a successful attempt")
	}
	// two failed attempts re-enqueued and acked, one success acked
	deadline := time.Now().Add(time.Second)
	for q.ackCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 acks, got %d", q.ackCount())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.acked) != 3 {
		t.Fatalf("expected 3 acks, got %d", len(q.acked))
	}
	// the acked payload is the one dequeued, not the bumped re-enqueue
	if q.acked[0].Attempt != 0 || q.acked[1].Attempt != 1 || q.acked[2].Attempt != 2 {
		t.Fatalf("acked wrong payloads: %+v", q.acked)
	}
	if len(q.failed) != 0 {
		t.Fatalf("expected no failure log entries, got %d", len(q.failed))
	}
}

func TestFailureLogBounded(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	for i := 0; i < FailedLogSize+20; i++ {
		if err := q.Fail(ctx, models.MatchJob{RequestID: "r", Attempt: i}); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}
	failed := q.Failed()
	if len(failed) != FailedLogSize {
		t.Fatalf("expected log capped at %d, got %d", FailedLogSize, len(failed))
	}
	// oldest entries are evicted first
	if failed[0].Attempt != 20 {
		t.Fatalf("expected oldest surviving attempt 20, got %d", failed[0].Attempt)
	}
}
