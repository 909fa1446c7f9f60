package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/grading"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
)

type gradingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	runner    *grading.CodingRunner
	publisher events.EventPublisher
	now       func() time.Time
}

func NewGradingService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, runner *grading.CodingRunner, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		runner:    runner,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ===== MANUAL GRADING =====

func (s *gradingService) GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, grader *models.User) (*AttemptResponse, error) {
	s.logger.Info("Grading answer manually",
		"answer_id", answerID,
		"grader_id", grader.ID)

	if !grader.IsReviewer() {
		return nil, NewPermissionError(grader.ID, answerID, "answer", "grade", "reviewer role required")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	answer, err := s.repo.Answer().GetByID(ctx, nil, answerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	attempt, err := s.getAttempt(ctx, answer.AttemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := loadQuiz(ctx, s.repo, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	question, ok := quiz.QuestionByID(answer.QuestionID)
	if !ok {
		return nil, ErrQuestionNotPresented
	}
	if errs := s.validator.GetBusinessValidator().ValidateManualGrade(req.Points, question); len(errs) > 0 {
		return nil, errs
	}

	now := s.now()
	var completed bool

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetForUpdate(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		attempt = locked

		if locked.Status.IsActive() {
			return NewBusinessRuleError(
				"GRADE-ATTEMPT-ACTIVE",
				"Answers can only be graded after the attempt is submitted",
				map[string]interface{}{
					"attempt_id": locked.ID,
					"status":     locked.Status,
				},
			)
		}

		current, err := tx.Answer().GetByID(ctx, nil, answerID)
		if err != nil {
			return fmt.Errorf("failed to reload answer: %w", err)
		}
		if current.GradingStatus == models.GradingGraded {
			return ErrAnswerNotPending
		}

		applyManualGrade(current, question, req, grader.ID, now)
		if err := tx.Answer().Update(ctx, nil, current); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}

		completed, err = reaggregate(ctx, tx, locked, quiz, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Answer graded manually",
		"answer_id", answerID,
		"attempt_id", attempt.ID,
		"points", req.Points,
		"attempt_status", attempt.Status)

	if completed {
		s.publishGraded(ctx, attempt)
	}

	answers, err := s.repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return newAttemptResponse(attempt, quiz, answers, grader, now, false), nil
}

// ===== JUDGE GRADING =====

// RunJudge runs a CODING answer against the judge outside any lock, then applies the
// verdicts under the attempt lock. Missing records and already graded answers are skipped.
func (s *gradingService) RunJudge(ctx context.Context, payload queue.JudgePayload) (*JudgeOutcome, error) {
	if s.runner == nil {
		return nil, ErrJudgeNotConfigured
	}
	outcome := &JudgeOutcome{AnswerID: payload.AnswerID}

	answer, err := s.repo.Answer().GetByID(ctx, nil, payload.AnswerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Warn("Judge job for unknown answer, skipping", "answer_id", payload.AnswerID)
			outcome.Skipped = true
			return outcome, nil
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	if answer.GradingStatus != models.GradingPending {
		outcome.Status = answer.GradingStatus
		outcome.Skipped = true
		return outcome, nil
	}

	attempt, err := s.getAttempt(ctx, answer.AttemptID)
	if err != nil {
		if isRecordMissing(err) {
			outcome.Skipped = true
			return outcome, nil
		}
		return nil, err
	}
	quiz, err := loadQuiz(ctx, s.repo, attempt.QuizID)
	if err != nil {
		if isRecordMissing(err) {
			outcome.Skipped = true
			return outcome, nil
		}
		return nil, err
	}
	question, ok := quiz.QuestionByID(answer.QuestionID)
	if !ok || question.Type != models.QuestionCoding {
		s.logger.Warn("Judge job for non-coding question, skipping",
			"answer_id", answer.ID,
			"question_id", answer.QuestionID)
		outcome.Skipped = true
		return outcome, nil
	}

	started := time.Now()
	results := s.runner.Run(ctx, question, answer)
	eval := grading.ScoreCoding(question, results)

	s.logger.Info("Judge run finished",
		"answer_id", answer.ID,
		"attempt_id", attempt.ID,
		"test_cases", len(results),
		"status", eval.Status,
		"points", eval.Points,
		"duration", time.Since(started))

	now := s.now()
	var completed bool

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetForUpdate(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		attempt = locked

		current, err := tx.Answer().GetByID(ctx, nil, answer.ID)
		if err != nil {
			return fmt.Errorf("failed to reload answer: %w", err)
		}
		// Graded manually while the judge was running
		if current.GradingStatus != models.GradingPending {
			outcome.Skipped = true
			outcome.Status = current.GradingStatus
			return nil
		}

		applyJudgeResults(current, eval, results, now)
		if err := tx.Answer().Update(ctx, nil, current); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}
		outcome.Status = current.GradingStatus

		if current.GradingStatus != models.GradingGraded {
			outcome.Retryable = hasIndeterminate(results)
			return nil
		}
		completed, err = reaggregate(ctx, tx, locked, quiz, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.publishGraded(ctx, attempt)
	}
	return outcome, nil
}

func (s *gradingService) getAttempt(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (s *gradingService) publishGraded(ctx context.Context, attempt *models.Attempt) {
	s.logger.Info("Attempt grading completed",
		"attempt_id", attempt.ID,
		"status", attempt.Status,
		"score", attempt.Score)
	publishEvent(context.WithoutCancel(ctx), s.publisher, s.logger, events.AttemptGraded, attemptEventData(attempt, attempt.Status == models.AttemptTimedOut))
}
