package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TopicJudgeJobs = "judge.jobs"
	TopicJudgeDLQ  = "judge.dlq"
)

// LocalQueue is an in-process queue over watermill's gochannel pub/sub, used when
// the API and the judge worker run in the same process without Redis. Nothing
// subscribes to the DLQ topic, so dead-lettered jobs are only logged.
type LocalQueue struct {
	pubSub      *gochannel.GoChannel
	messages    <-chan *message.Message
	logger      *slog.Logger
	pollTimeout time.Duration
}

func NewLocalQueue(logger *slog.Logger) (*LocalQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		Persistent:          false,
	}, watermill.NewSlogLogger(logger))

	messages, err := pubSub.Subscribe(context.Background(), TopicJudgeJobs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicJudgeJobs, err)
	}
	return &LocalQueue{
		pubSub:      pubSub,
		messages:    messages,
		logger:      logger,
		pollTimeout: 2 * time.Second,
	}, nil
}

func (q *LocalQueue) DispatchJudge(ctx context.Context, payload JudgePayload) error {
	job, err := newJudgeJob(payload)
	if err != nil {
		return err
	}
	return q.publish(TopicJudgeJobs, job)
}

func (q *LocalQueue) Next(ctx context.Context) (*Job, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg, ok := <-q.messages:
		if !ok {
			return nil, fmt.Errorf("local queue closed")
		}
		msg.Ack()
		var job Job
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			q.logger.Warn("Invalid job payload dropped", "message_uuid", msg.UUID, "error", err)
			return nil, nil
		}
		return &job, nil
	}
}

func (q *LocalQueue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		q.logger.Warn("Judge job moved to DLQ, answer left for manual grading", "job_id", job.ID, "attempt", job.Attempt)
		return q.publish(TopicJudgeDLQ, job)
	}
	return q.publish(TopicJudgeJobs, job)
}

func (q *LocalQueue) Close() error {
	return q.pubSub.Close()
}

func (q *LocalQueue) publish(topic string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.pubSub.Publish(topic, message.NewMessage(job.ID, raw)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
