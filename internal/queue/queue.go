// Package queue carries judge jobs from the submission path to the judge worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxRetries is the number of deliveries before a job is dead-lettered.
	MaxRetries = 3
	// RetryBackoff is the pause after a failed job before the worker continues.
	RetryBackoff = 10 * time.Second
)

type JobType string

const JobTypeJudgeAnswer JobType = "judge_answer"

// JudgePayload identifies one CODING answer awaiting execution.
type JudgePayload struct {
	AttemptID  uint `json:"attempt_id"`
	AnswerID   uint `json:"answer_id"`
	QuestionID uint `json:"question_id"`
}

// Job is the envelope stored on the queue.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Judge decodes a judge payload.
func (j *Job) Judge() (JudgePayload, error) {
	var p JudgePayload
	if j.Type != JobTypeJudgeAnswer {
		return p, fmt.Errorf("unknown job type: %s", j.Type)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

// Dispatcher is used by the submission path after commit.
type Dispatcher interface {
	DispatchJudge(ctx context.Context, payload JudgePayload) error
}

// Consumer is used by the judge worker. Next returns (nil, nil) when no job arrived in time.
type Consumer interface {
	Next(ctx context.Context) (*Job, error)
	Retry(ctx context.Context, job *Job) error
}

// JobQueue is both ends of a queue.
type JobQueue interface {
	Dispatcher
	Consumer
	Close() error
}

func newJudgeJob(payload JudgePayload) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeJudgeAnswer,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}
