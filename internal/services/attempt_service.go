package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/selector"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
)

// errConcurrentStart marks a lost race on attempt creation inside the transaction
var errConcurrentStart = errors.New("concurrent attempt start")

type attemptService struct {
	repo       repositories.Repository
	logger     *slog.Logger
	validator  *validator.Validator
	selector   *selector.Selector
	dispatcher queue.Dispatcher
	publisher  events.EventPublisher
	now        func() time.Time
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, sel *selector.Selector, dispatcher queue.Dispatcher, publisher events.EventPublisher) AttemptService {
	if sel == nil {
		sel = selector.New(nil)
	}
	return &attemptService{
		repo:       repo,
		logger:     logger,
		validator:  validator,
		selector:   sel,
		dispatcher: dispatcher,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) StartOrResume(ctx context.Context, req *StartAttemptRequest, user *models.User) (*AttemptResponse, error) {
	s.logger.Info("Starting or resuming quiz attempt",
		"quiz_id", req.QuizID,
		"user_id", user.ID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	quiz, err := s.loadQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		attempt   *models.Attempt
		created   bool
		finalized *finalization
	)

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Attempt().LockUserQuiz(ctx, nil, user.ID, quiz.ID); err != nil {
			return fmt.Errorf("failed to lock attempt creation: %w", err)
		}

		active, err := tx.Attempt().GetActive(ctx, nil, user.ID, quiz.ID)
		if err == nil {
			attempt = active
			if !active.IsExpired(now) {
				return nil
			}
			locked, err := tx.Attempt().GetForUpdate(ctx, nil, active.ID)
			if err != nil {
				return fmt.Errorf("failed to lock attempt: %w", err)
			}
			attempt = locked
			// A concurrent submit or sweep finalized it after the unlocked read
			if !locked.Status.IsActive() {
				return nil
			}
			finalized, err = s.finalize(ctx, tx, locked, quiz, nil, true, now)
			return err
		}
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get active attempt: %w", err)
		}

		if err := checkAvailability(quiz, now); err != nil {
			return err
		}

		count, err := tx.Attempt().CountByUserAndQuiz(ctx, nil, user.ID, quiz.ID)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if quiz.MaxAttempts > 0 && count >= quiz.MaxAttempts {
			return ErrAttemptLimitExceeded
		}

		presented, err := s.selector.Select(quiz)
		if err != nil {
			return err
		}

		number, err := tx.Attempt().NextAttemptNumber(ctx, nil, user.ID, quiz.ID)
		if err != nil {
			return fmt.Errorf("failed to get attempt number: %w", err)
		}

		attempt = &models.Attempt{
			QuizID:               quiz.ID,
			UserID:               user.ID,
			AttemptNumber:        number,
			Status:               models.AttemptStarted,
			StartTime:            now,
			PresentedQuestionIDs: presented,
			MaxScorePossible:     maxScore(quiz, presented),
			IPAddress:            req.IPAddress,
			UserAgent:            req.UserAgent,
		}
		if d := quiz.Duration(); d > 0 {
			deadline := now.Add(d)
			attempt.Deadline = &deadline
		}

		if err := tx.Attempt().Create(ctx, nil, attempt); err != nil {
			if repositories.IsUniqueViolation(err) {
				return errConcurrentStart
			}
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		created = true
		return nil
	})

	if errors.Is(err, errConcurrentStart) {
		s.logger.Warn("Attempt creation raced, returning existing attempt",
			"quiz_id", quiz.ID,
			"user_id", user.ID)
		attempt, err = s.repo.Attempt().GetActive(ctx, nil, user.ID, quiz.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get active attempt after conflict: %w", err)
		}
		created = false
	} else if err != nil {
		return nil, err
	}

	switch {
	case created:
		s.logger.Info("Quiz attempt started",
			"attempt_id", attempt.ID,
			"quiz_id", quiz.ID,
			"user_id", user.ID,
			"attempt_number", attempt.AttemptNumber,
			"questions", len(attempt.PresentedQuestionIDs))
		publishEvent(ctx, s.publisher, s.logger, events.AttemptStarted, attemptEventData(attempt, false))
	case finalized != nil:
		s.afterFinalize(ctx, finalized)
	default:
		s.logger.Info("Resuming quiz attempt",
			"attempt_id", attempt.ID,
			"user_id", user.ID)
	}

	return s.buildResponse(ctx, attempt, quiz, user)
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, user *models.User) (*AnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, user, "save_answer")
	if err != nil {
		return nil, err
	}
	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInputs(attempt, quiz, []AnswerInput{*req}); err != nil {
		return nil, err
	}

	now := s.now()
	var (
		saved     *models.Answer
		finalized *finalization
	)

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetForUpdate(ctx, nil, attemptID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		if !locked.Status.IsActive() {
			return ErrAttemptNotActive
		}
		if locked.IsExpired(now) {
			finalized, err = s.finalize(ctx, tx, locked, quiz, nil, true, now)
			return err
		}

		answer, err := tx.Answer().GetByAttemptAndQuestion(ctx, nil, attemptID, req.QuestionID)
		if err != nil {
			if !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to get answer: %w", err)
			}
			answer = &models.Answer{AttemptID: attemptID, QuestionID: req.QuestionID}
		}
		applyInput(answer, *req, now)

		if err := tx.Answer().Upsert(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to save answer: %w", err)
		}
		saved = answer

		if locked.Status == models.AttemptStarted {
			locked.Status = models.AttemptInProgress
			if err := tx.Attempt().Update(ctx, nil, locked); err != nil {
				return fmt.Errorf("failed to update attempt status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finalized != nil {
		s.afterFinalize(ctx, finalized)
		return nil, ErrAttemptTimeExpired
	}

	s.logger.Debug("Answer saved",
		"attempt_id", attemptID,
		"question_id", req.QuestionID)

	resp := answerResponse(saved, false, false)
	return &resp, nil
}

func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, user *models.User) (*AttemptResponse, error) {
	s.logger.Info("Submitting quiz attempt",
		"attempt_id", attemptID,
		"user_id", user.ID,
		"forced", req.Forced)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, user, "submit")
	if err != nil {
		return nil, err
	}
	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	// Already finalized: return the stored result without validating or re-evaluating
	if !attempt.Status.IsActive() {
		s.logger.Info("Attempt already finalized, returning existing result",
			"attempt_id", attemptID,
			"status", attempt.Status)
		return s.buildResponse(ctx, attempt, quiz, user)
	}

	now := s.now()
	inputs := req.Answers
	if attempt.IsExpired(now) {
		// The attempt times out regardless; only well-formed answers are kept
		inputs = s.wellFormedInputs(attempt, quiz, req.Answers)
	} else if err := s.validateInputs(attempt, quiz, req.Answers); err != nil {
		return nil, err
	}

	var finalized *finalization

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetForUpdate(ctx, nil, attemptID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		attempt = locked

		// Lost the race to a concurrent submit or timeout
		if !locked.Status.IsActive() {
			return nil
		}

		forced := req.Forced || locked.IsExpired(now)
		finalized, err = s.finalize(ctx, tx, locked, quiz, inputs, forced, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	if finalized != nil {
		s.afterFinalize(ctx, finalized)
	} else {
		s.logger.Info("Concurrent submission detected, returning existing result",
			"attempt_id", attemptID,
			"status", attempt.Status)
	}

	return s.buildResponse(ctx, attempt, quiz, user)
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetAttempt(ctx context.Context, attemptID uint, user *models.User) (*AttemptResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, user, "view")
	if err != nil {
		return nil, err
	}
	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if attempt.Status.IsActive() && attempt.IsExpired(now) {
		attempt, err = s.timeOut(ctx, attemptID, quiz, now)
		if err != nil {
			return nil, err
		}
	}

	return s.buildResponse(ctx, attempt, quiz, user)
}

func (s *attemptService) ListQuizAttempts(ctx context.Context, quizID uint, filters repositories.AttemptFilters, user *models.User) (*AttemptListResponse, error) {
	if !user.IsReviewer() {
		return nil, NewPermissionError(user.ID, quizID, "quiz", "list_attempts", "reviewer role required")
	}

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	attempts, total, err := s.repo.Attempt().ListByQuiz(ctx, nil, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	resp := &AttemptListResponse{
		Attempts: make([]*AttemptResponse, 0, len(attempts)),
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}
	now := s.now()
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, newAttemptResponse(attempt, quiz, attempt.Answers, user, now, false))
	}
	return resp, nil
}

// ===== MAINTENANCE =====

// SweepExpired finalizes up to limit active attempts whose deadline has passed
func (s *attemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.repo.Attempt().ListExpiredActive(ctx, nil, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired attempts: %w", err)
	}

	swept := 0
	var errs []error
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		quiz, err := s.loadQuiz(ctx, candidate.QuizID)
		if err != nil {
			errs = append(errs, fmt.Errorf("attempt %d: %w", candidate.ID, err))
			continue
		}
		attempt, err := s.timeOut(ctx, candidate.ID, quiz, now)
		if err != nil {
			s.logger.Error("Failed to time out attempt",
				"attempt_id", candidate.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("attempt %d: %w", candidate.ID, err))
			continue
		}
		if attempt.Status == models.AttemptTimedOut {
			swept++
		}
	}

	s.logger.Info("Expired attempt sweep finished",
		"candidates", len(expired),
		"timed_out", swept,
		"failures", len(errs))

	return swept, errors.Join(errs...)
}
