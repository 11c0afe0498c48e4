// Package queue carries match jobs from the ingestion facade to the
// workers. The redis implementation is durable across process restarts;
// the memory implementation serves tests and single-process runs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

const (
	// FailedLogSize bounds the retained failure log.
	FailedLogSize = 100

	jobsKey       = "pooling:match:jobs"
	processingKey = "pooling:match:processing"
	failedKey     = "pooling:match:failed"
)

type Queue interface {
	Enqueue(ctx context.Context, job models.MatchJob) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (models.MatchJob, error)
	// Ack removes a dequeued job for good once its attempt is resolved:
	// matched, re-enqueued with a bumped attempt, or written to the
	// failure log.
	Ack(ctx context.Context, job models.MatchJob) error
	// Fail records a job that exhausted its attempts.
	Fail(ctx context.Context, job models.MatchJob) error
}

// RedisQueue is a FIFO list in redis: producers LPUSH, workers BLMOVE
// into a processing list. A job sits in the processing list until the
// worker acks it, so a worker dying mid-match leaves the job behind for
// Reclaim instead of losing it.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(addr, password string) *RedisQueue {
	return &RedisQueue{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

func (q *RedisQueue) Close() error { return q.client.Close() }

func (q *RedisQueue) Enqueue(ctx context.Context, job models.MatchJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, jobsKey, b).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (models.MatchJob, error) {
	for {
		res, err := q.client.BLMove(ctx, jobsKey, processingKey, "RIGHT", "LEFT", 5*time.Second).Result()
		if err == redis.Nil {
			continue // timed out empty, poll again
		}
		if err != nil {
			return models.MatchJob{}, err
		}
		var job models.MatchJob
		if err := json.Unmarshal([]byte(res), &job); err != nil {
			return models.MatchJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, job models.MatchJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LRem(ctx, processingKey, 1, b).Err()
}

// Reclaim moves jobs a dead worker left in the processing list back onto
// the queue. Run once at startup, before workers begin.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := q.client.LMove(ctx, processingKey, jobsKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *RedisQueue) Fail(ctx context.Context, job models.MatchJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, failedKey, b)
	pipe.LTrim(ctx, failedKey, 0, FailedLogSize-1)
	_, err = pipe.Exec(ctx)
	return err
}

// MemoryQueue is a channel-backed stand-in with the same contract.
type MemoryQueue struct {
	jobs chan models.MatchJob

	mu     sync.Mutex
	failed []models.MatchJob
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{jobs: make(chan models.MatchJob, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job models.MatchJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (models.MatchJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return models.MatchJob{}, ctx.Err()
	}
}

// Ack is a no-op: the channel receive in Dequeue already removed the job.
func (q *MemoryQueue) Ack(ctx context.Context, job models.MatchJob) error { return nil }

func (q *MemoryQueue) Fail(ctx context.Context, job models.MatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, job)
	if len(q.failed) > FailedLogSize {
		q.failed = q.failed[len(q.failed)-FailedLogSize:]
	}
	return nil
}

// Failed returns a copy of the failure log.
func (q *MemoryQueue) Failed() []models.MatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.MatchJob(nil), q.failed...)
}
