package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/grading"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/judge"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

// reaggregate recomputes the score of a finalized attempt after an answer was graded.
// It reports whether grading completed with this call. SUBMITTED becomes GRADED once
// nothing is pending; TIMED_OUT keeps its status and only gains a completion time.
func reaggregate(ctx context.Context, tx repositories.Repository, attempt *models.Attempt, quiz *models.Quiz, now time.Time) (bool, error) {
	answers, err := tx.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return false, fmt.Errorf("failed to get answers: %w", err)
	}

	timedOut := attempt.Status == models.AttemptTimedOut
	outcome := grading.Aggregate(attempt.PresentedQuestionIDs, quiz.QuestionMap(), answers, timedOut, now)

	attempt.Score = frozenScore(outcome.Score, attempt.MaxScorePossible)

	completed := false
	switch attempt.Status {
	case models.AttemptSubmitted:
		if outcome.Status == models.AttemptGraded {
			attempt.Status = models.AttemptGraded
			attempt.GradingCompletedAt = outcome.GradingCompletedAt
			completed = true
		}
	case models.AttemptTimedOut:
		if outcome.FullyGraded() && attempt.GradingCompletedAt == nil {
			attempt.GradingCompletedAt = outcome.GradingCompletedAt
			completed = true
		}
	}

	if err := tx.Attempt().Update(ctx, nil, attempt); err != nil {
		return false, fmt.Errorf("failed to update attempt score: %w", err)
	}
	return completed, nil
}

func applyManualGrade(answer *models.Answer, q *models.Question, req *GradeAnswerRequest, graderID string, now time.Time) {
	correct := req.Points >= float64(q.Points)
	answer.IsCorrect = &correct
	answer.PointsAwarded = req.Points
	answer.GradingStatus = models.GradingGraded
	answer.GradedBy = &graderID
	answer.GradedAt = &now
	if req.Feedback != nil {
		answer.Feedback = req.Feedback
	}
}

// applyJudgeResults stores the per-case outcomes. An answer that is still PENDING keeps
// zero points and only records the judge feedback.
func applyJudgeResults(answer *models.Answer, eval grading.Evaluation, results []models.JudgeCaseResult, now time.Time) {
	answer.JudgeResults = results
	if eval.Status == models.GradingGraded {
		eval.Apply(answer)
		answer.GradedAt = &now
		return
	}
	answer.PointsAwarded = 0
	answer.IsCorrect = nil
	answer.Feedback = eval.Feedback
}

func hasIndeterminate(results []models.JudgeCaseResult) bool {
	for _, r := range results {
		if judge.Verdict(r.Verdict) == judge.VerdictIndeterminate {
			return true
		}
	}
	return false
}
