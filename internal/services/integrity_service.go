package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
)

type integrityService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	now       func() time.Time
}

func NewIntegrityService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) IntegrityService {
	return &integrityService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordEvent appends an event and bumps the attempt's violation count. It does not take
// the attempt lock, so events are accepted while a submission is being processed.
func (s *integrityService) RecordEvent(ctx context.Context, req *RecordIntegrityEventRequest, user *models.User) (*IntegrityEventResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if errs := s.validator.GetBusinessValidator().ValidateIntegrityDetail(req.Detail); len(errs) > 0 {
		return nil, errs
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != user.ID {
		return nil, NewPermissionError(user.ID, attempt.ID, "attempt", "record_integrity_event", "not owned by user")
	}
	if attempt.QuizID != req.QuizID {
		return nil, validator.ValidationErrors{{
			Field:   "quiz_id",
			Message: "does not match the attempt",
			Value:   req.QuizID,
			Rule:    "attempt_quiz",
		}}
	}

	event := &models.IntegrityEvent{
		AttemptID:  attempt.ID,
		QuizID:     attempt.QuizID,
		UserID:     user.ID,
		EventType:  req.EventType,
		Detail:     req.Detail,
		OccurredAt: s.now(),
	}

	var count int
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Integrity().Create(ctx, nil, event); err != nil {
			return fmt.Errorf("failed to create integrity event: %w", err)
		}
		count, err = tx.Attempt().IncrementViolations(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to increment violation count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Integrity event recorded",
		"attempt_id", attempt.ID,
		"user_id", user.ID,
		"event_type", req.EventType,
		"violation_count", count)

	publishEvent(context.WithoutCancel(ctx), s.publisher, s.logger, events.IntegrityEventRecorded, events.IntegrityEventData{
		EventID:        event.ID,
		AttemptID:      event.AttemptID,
		QuizID:         event.QuizID,
		UserID:         event.UserID,
		EventType:      string(event.EventType),
		ViolationCount: count,
		OccurredAt:     event.OccurredAt,
	})

	return &IntegrityEventResponse{Event: event, ViolationCount: count}, nil
}

func (s *integrityService) ListEvents(ctx context.Context, attemptID uint, user *models.User) ([]*models.IntegrityEvent, error) {
	if !user.IsReviewer() {
		return nil, NewPermissionError(user.ID, attemptID, "attempt", "list_integrity_events", "reviewer role required")
	}

	if _, err := s.repo.Attempt().GetByID(ctx, nil, attemptID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	list, err := s.repo.Integrity().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrity events: %w", err)
	}
	return list, nil
}
