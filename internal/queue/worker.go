package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/observability"
)

// Matcher is what a worker invokes once per job attempt.
type Matcher interface {
	Match(ctx context.Context, requestID string) (*models.MatchResult, error)
}

// Worker drains the queue. A job that errors (conflict, repository down)
// is re-enqueued with its attempt count bumped, after an exponential
// backoff, until MaxAttempts; then it lands in the failure log. A nil
// result with nil error means "no match yet" and is a successful no-op.
type Worker struct {
	Queue       Queue
	Matcher     Matcher
	Logger      *slog.Logger
	MaxAttempts int
	Backoff     time.Duration
}

const maxBackoff = 30 * time.Second

func (w *Worker) Run(ctx context.Context) {
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	for {
		job, err := w.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Error("dequeue failed", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		w.process(ctx, job, maxAttempts, backoff)
	}
}

func (w *Worker) process(ctx context.Context, job models.MatchJob, maxAttempts int, backoff time.Duration) {
	// the payload as dequeued; acked only once this attempt is resolved,
	// so a crash here leaves the job reclaimable
	dequeued := job

	start := time.Now()
	res, err := w.Matcher.Match(ctx, job.RequestID)
	observability.MatchLatency.Observe(time.Since(start).Seconds())

	if err == nil {
		if res == nil {
			w.Logger.Info("no match yet", "request_id", job.RequestID)
		} else {
			w.Logger.Info("matched", "request_id", job.RequestID, "kind", res.Kind, "pool_id", res.PoolID, "driver_id", res.DriverID, "fare", res.Fare)
		}
		w.ack(ctx, dequeued)
		return
	}

	job.Attempt++
	if job.Attempt >= maxAttempts {
		observability.JobsFailed.Inc()
		w.Logger.Error("job failed, attempts exhausted", "request_id", job.RequestID, "attempts", job.Attempt, "error", err)
		if ferr := w.Queue.Fail(ctx, job); ferr != nil {
			w.Logger.Error("failure log write failed", "request_id", job.RequestID, "error", ferr)
		}
		w.ack(ctx, dequeued)
		return
	}

	observability.JobRetries.Inc()
	delay := backoff << (job.Attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	w.Logger.Warn("job attempt failed, re-enqueueing", "request_id", job.RequestID, "attempt", job.Attempt, "delay", delay, "error", err)
	if !sleepCtx(ctx, delay) {
		return
	}
	if qerr := w.Queue.Enqueue(ctx, job); qerr != nil {
		w.Logger.Error("re-enqueue failed", "request_id", job.RequestID, "error", qerr)
		return
	}
	w.ack(ctx, dequeued)
}

func (w *Worker) ack(ctx context.Context, job models.MatchJob) {
	if err := w.Queue.Ack(ctx, job); err != nil {
		w.Logger.Error("ack failed", "request_id", job.RequestID, "error", err)
	}
}

// RunPool starts n goroutines draining the worker's queue and blocks
// until all exit.
func RunPool(ctx context.Context, n int, w *Worker) {
	if n <= 0 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
