package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyJudgeJobs is the Redis list holding pending judge jobs.
	KeyJudgeJobs = "judge:jobs"
	// KeyJudgeDLQ receives jobs that exhausted their retries.
	KeyJudgeDLQ = "judge:dlq"
)

// RedisQueue is a Redis list queue (RPUSH / BLPOP) with a dead-letter list.
type RedisQueue struct {
	client      *redis.Client
	logger      *slog.Logger
	pollTimeout time.Duration
}

func NewRedisQueue(client *redis.Client, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{client: client, logger: logger, pollTimeout: 2 * time.Second}
}

func (q *RedisQueue) DispatchJudge(ctx context.Context, payload JudgePayload) error {
	job, err := newJudgeJob(payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, KeyJudgeJobs, job); err != nil {
		return err
	}
	q.logger.Debug("Enqueued judge job",
		"job_id", job.ID,
		"attempt_id", payload.AttemptID,
		"answer_id", payload.AnswerID)
	return nil
}

// Next blocks up to the poll timeout so that ctx cancellation is observed promptly.
func (q *RedisQueue) Next(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, q.pollTimeout, KeyJudgeJobs).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("Invalid job payload dropped", "error", err)
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues with an incremented attempt, or dead-letters after MaxRetries.
func (q *RedisQueue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, KeyJudgeDLQ, job); err != nil {
			q.logger.Error("DLQ push failed", "job_id", job.ID, "error", err)
			return err
		}
		q.logger.Warn("Judge job moved to DLQ, answer left for manual grading", "job_id", job.ID, "attempt", job.Attempt)
		return nil
	}
	if err := q.push(ctx, KeyJudgeJobs, job); err != nil {
		return err
	}
	q.logger.Info("Judge job retried", "job_id", job.ID, "attempt", job.Attempt)
	return nil
}

// Len reports the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, KeyJudgeJobs).Result()
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

func (q *RedisQueue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}
