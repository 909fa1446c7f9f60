// Package worker runs queued judge jobs against the grading service.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
)

// Judger applies judge verdicts for one answer.
type Judger interface {
	RunJudge(ctx context.Context, payload queue.JudgePayload) (*services.JudgeOutcome, error)
}

type JudgeWorker struct {
	consumer    queue.Consumer
	judger      Judger
	logger      *slog.Logger
	concurrency int
	backoff     time.Duration
}

func NewJudgeWorker(consumer queue.Consumer, judger Judger, concurrency int, logger *slog.Logger) *JudgeWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JudgeWorker{
		consumer:    consumer,
		judger:      judger,
		logger:      logger,
		concurrency: concurrency,
		backoff:     queue.RetryBackoff,
	}
}

// WithBackoff sets the pause after a failed job or dequeue error.
func (w *JudgeWorker) WithBackoff(d time.Duration) *JudgeWorker {
	w.backoff = d
	return w
}

// Run starts concurrency loops and blocks until ctx is cancelled.
func (w *JudgeWorker) Run(ctx context.Context) error {
	w.logger.Info("Judge worker started", "concurrency", w.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		loop := i
		g.Go(func() error {
			w.loop(gctx, loop)
			return nil
		})
	}
	err := g.Wait()

	w.logger.Info("Judge worker stopped")
	return err
}

func (w *JudgeWorker) loop(ctx context.Context, id int) {
	logger := w.logger.With("loop", id)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.consumer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Warn("Dequeue failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		if !w.Process(ctx, job) {
			w.sleep(ctx)
		}
	}
}

// Process handles one job and reports whether it finished without needing a retry.
// Jobs that keep failing end on the dead-letter queue and their answers stay PENDING
// for manual grading.
func (w *JudgeWorker) Process(ctx context.Context, job *queue.Job) bool {
	logger := w.logger.With("job_id", job.ID, "delivery", job.Attempt+1)

	payload, err := job.Judge()
	if err != nil {
		logger.Error("Dropping malformed judge job", "error", err)
		return true
	}
	logger = logger.With("attempt_id", payload.AttemptID, "answer_id", payload.AnswerID)

	outcome, err := w.judger.RunJudge(ctx, payload)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			// shutting down; the job is requeued for the next worker
			w.retry(context.WithoutCancel(ctx), logger, job)
			return true
		}
		logger.Error("Judge job failed", "error", err)
	case outcome.Retryable:
		logger.Warn("Judge returned indeterminate results, retrying")
	default:
		logger.Debug("Judge job done",
			"status", outcome.Status,
			"skipped", outcome.Skipped)
		return true
	}

	w.retry(ctx, logger, job)
	return false
}

func (w *JudgeWorker) retry(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if err := w.consumer.Retry(ctx, job); err != nil {
		logger.Error("Retry enqueue failed", "error", err)
	}
}

func (w *JudgeWorker) sleep(ctx context.Context) {
	if w.backoff <= 0 {
		return
	}
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
