package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
)

type fakeJudger struct {
	mu       sync.Mutex
	calls    map[uint]int
	outcomes func(payload queue.JudgePayload, call int) (*services.JudgeOutcome, error)
}

func (f *fakeJudger) RunJudge(ctx context.Context, payload queue.JudgePayload) (*services.JudgeOutcome, error) {
	f.mu.Lock()
	f.calls[payload.AnswerID]++
	call := f.calls[payload.AnswerID]
	f.mu.Unlock()
	return f.outcomes(payload, call)
}

func (f *fakeJudger) callCount(answerID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[answerID]
}

// recordingConsumer captures retries instead of requeueing
type recordingConsumer struct {
	mu      sync.Mutex
	retried []*queue.Job
}

func (c *recordingConsumer) Next(ctx context.Context) (*queue.Job, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *recordingConsumer) Retry(ctx context.Context, job *queue.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	job.Attempt++
	c.retried = append(c.retried, job)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func judgeJob(t *testing.T, answerID uint) *queue.Job {
	t.Helper()
	q, err := queue.NewLocalQueue(testLogger())
	if err != nil {
		t.Fatalf("NewLocalQueue: %v", err)
	}
	defer q.Close()
	if err := q.DispatchJudge(context.Background(), queue.JudgePayload{AttemptID: 1, AnswerID: answerID, QuestionID: 3}); err != nil {
		t.Fatalf("DispatchJudge: %v", err)
	}
	job, err := q.Next(context.Background())
	if err != nil || job == nil {
		t.Fatalf("Next: %v %v", job, err)
	}
	return job
}

func TestProcess_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		outcome   *services.JudgeOutcome
		err       error
		wantDone  bool
		wantRetry int
	}{
		{name: "graded", outcome: &services.JudgeOutcome{Status: models.GradingGraded}, wantDone: true},
		{name: "skipped", outcome: &services.JudgeOutcome{Skipped: true}, wantDone: true},
		{name: "indeterminate", outcome: &services.JudgeOutcome{Status: models.GradingPending, Retryable: true}, wantRetry: 1},
		{name: "pending without retry", outcome: &services.JudgeOutcome{Status: models.GradingPending}, wantDone: true},
		{name: "error", err: errors.New("database unavailable"), wantRetry: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &recordingConsumer{}
			judger := &fakeJudger{calls: map[uint]int{}, outcomes: func(queue.JudgePayload, int) (*services.JudgeOutcome, error) {
				return tt.outcome, tt.err
			}}
			w := NewJudgeWorker(consumer, judger, 1, testLogger())

			done := w.Process(context.Background(), judgeJob(t, 7))
			if done != tt.wantDone {
				t.Errorf("done = %v, want %v", done, tt.wantDone)
			}
			if len(consumer.retried) != tt.wantRetry {
				t.Errorf("retries = %d, want %d", len(consumer.retried), tt.wantRetry)
			}
		})
	}
}

func TestProcess_MalformedJobDropped(t *testing.T) {
	consumer := &recordingConsumer{}
	judger := &fakeJudger{calls: map[uint]int{}}
	w := NewJudgeWorker(consumer, judger, 1, testLogger())

	done := w.Process(context.Background(), &queue.Job{ID: "x", Type: "unknown"})
	if !done || len(consumer.retried) != 0 {
		t.Errorf("malformed job: done=%v retries=%d", done, len(consumer.retried))
	}
}

func TestRun_RetriesUntilGraded(t *testing.T) {
	q, err := queue.NewLocalQueue(testLogger())
	if err != nil {
		t.Fatalf("NewLocalQueue: %v", err)
	}
	defer q.Close()

	judger := &fakeJudger{calls: map[uint]int{}, outcomes: func(p queue.JudgePayload, call int) (*services.JudgeOutcome, error) {
		if call == 1 {
			return &services.JudgeOutcome{AnswerID: p.AnswerID, Status: models.GradingPending, Retryable: true}, nil
		}
		return &services.JudgeOutcome{AnswerID: p.AnswerID, Status: models.GradingGraded}, nil
	}}
	w := NewJudgeWorker(q, judger, 2, testLogger()).WithBackoff(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	for _, id := range []uint{11, 12} {
		if err := q.DispatchJudge(ctx, queue.JudgePayload{AttemptID: 1, AnswerID: id, QuestionID: 3}); err != nil {
			t.Fatalf("DispatchJudge: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for judger.callCount(11) < 2 || judger.callCount(12) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("calls = %d/%d, want 2 each", judger.callCount(11), judger.callCount(12))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	if judger.callCount(11) != 2 || judger.callCount(12) != 2 {
		t.Errorf("graded jobs were run again: %d/%d", judger.callCount(11), judger.callCount(12))
	}
}
