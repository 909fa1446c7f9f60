package services

import (
	"context"
	"errors"
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

// finalization carries what must happen after a finalizing transaction commits
type finalization struct {
	attempt *models.Attempt
	jobs    []queue.JudgePayload
	forced  bool
}

// ===== FINALIZATION =====

// finalize evaluates every answered presented question, aggregates and moves the attempt
// out of the active states. It must run inside a transaction holding the attempt lock.
func (s *attemptService) finalize(ctx context.Context, tx repositories.Repository, attempt *models.Attempt, quiz *models.Quiz, inputs []AnswerInput, forced bool, now time.Time) (*finalization, error) {
	stored, err := tx.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}

	byQuestion := make(map[uint]*models.Answer, len(stored)+len(inputs))
	for i := range stored {
		byQuestion[stored[i].QuestionID] = &stored[i]
	}
	for _, in := range inputs {
		answer, ok := byQuestion[in.QuestionID]
		if !ok {
			answer = &models.Answer{AttemptID: attempt.ID, QuestionID: in.QuestionID}
			byQuestion[in.QuestionID] = answer
		}
		applyInput(answer, in, now)
	}

	questions := quiz.QuestionMap()
	result := &finalization{attempt: attempt, forced: forced}
	evaluated := make([]models.Answer, 0, len(byQuestion))

	for _, questionID := range attempt.PresentedQuestionIDs {
		answer, ok := byQuestion[questionID]
		if !ok {
			continue
		}

		needsJudge := false
		if q, ok := questions[questionID]; ok {
			eval := grading.Evaluate(q, answer)
			eval.Apply(answer)
			if eval.Status == models.GradingGraded {
				answer.GradedAt = &now
			}
			needsJudge = eval.NeedsJudge
		} else {
			feedback := "Question is no longer linked to the quiz"
			answer.GradingStatus = models.GradingError
			answer.Feedback = &feedback
		}

		if err := tx.Answer().Upsert(ctx, nil, answer); err != nil {
			return nil, fmt.Errorf("failed to save answer for question %d: %w", questionID, err)
		}
		if needsJudge {
			result.jobs = append(result.jobs, queue.JudgePayload{
				AttemptID:  attempt.ID,
				AnswerID:   answer.ID,
				QuestionID: questionID,
			})
		}
		evaluated = append(evaluated, *answer)
	}

	outcome := grading.Aggregate(attempt.PresentedQuestionIDs, questions, evaluated, forced, now)
	attempt.Status = outcome.Status
	attempt.Score = frozenScore(outcome.Score, attempt.MaxScorePossible)
	attempt.SubmitTime = &now
	attempt.GradingCompletedAt = outcome.GradingCompletedAt

	if err := tx.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	return result, nil
}

// afterFinalize dispatches judge jobs and publishes events once the transaction committed.
// Failures are logged; the attempt stays consistent and pending answers can be graded manually.
func (s *attemptService) afterFinalize(ctx context.Context, f *finalization) {
	ctx = context.WithoutCancel(ctx)
	attempt := f.attempt

	s.logger.Info("Quiz attempt finalized",
		"attempt_id", attempt.ID,
		"status", attempt.Status,
		"score", attempt.Score,
		"max_score", attempt.MaxScorePossible,
		"forced", f.forced,
		"judge_jobs", len(f.jobs))

	for _, job := range f.jobs {
		if s.dispatcher == nil {
			s.logger.Warn("No judge dispatcher configured, answer left for manual grading",
				"attempt_id", job.AttemptID,
				"answer_id", job.AnswerID)
			continue
		}
		if err := s.dispatcher.DispatchJudge(ctx, job); err != nil {
			s.logger.Error("Failed to dispatch judge job",
				"attempt_id", job.AttemptID,
				"answer_id", job.AnswerID,
				"error", err)
		}
	}

	publishEvent(ctx, s.publisher, s.logger, events.AttemptFinalized, attemptEventData(attempt, f.forced))
	if attempt.GradingCompletedAt != nil {
		publishEvent(ctx, s.publisher, s.logger, events.AttemptGraded, attemptEventData(attempt, f.forced))
	}
}

// timeOut force-finalizes an attempt if it is still active and past its deadline
func (s *attemptService) timeOut(ctx context.Context, attemptID uint, quiz *models.Quiz, now time.Time) (*models.Attempt, error) {
	var (
		attempt   *models.Attempt
		finalized *finalization
	)
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetForUpdate(ctx, nil, attemptID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		attempt = locked
		if !locked.Status.IsActive() || !locked.IsExpired(now) {
			return nil
		}
		finalized, err = s.finalize(ctx, tx, locked, quiz, nil, true, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if finalized != nil {
		s.afterFinalize(ctx, finalized)
	}
	return attempt, nil
}

// ===== LOOKUPS AND CHECKS =====

func (s *attemptService) loadQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	return loadQuiz(ctx, s.repo, quizID)
}

func loadQuiz(ctx context.Context, repo repositories.Repository, quizID uint) (*models.Quiz, error) {
	quiz, err := repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// loadOwnedAttempt reads an attempt the user owns. Reviewers may only view.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, attemptID uint, user *models.User, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.UserID != user.ID && !(action == "view" && user.IsReviewer()) {
		return nil, NewPermissionError(user.ID, attemptID, "attempt", action, "not owned by user")
	}
	return attempt, nil
}

// validateInputs rejects answers for questions outside the attempt and malformed payloads
func (s *attemptService) validateInputs(attempt *models.Attempt, quiz *models.Quiz, inputs []AnswerInput) error {
	bv := s.validator.GetBusinessValidator()
	seen := make(map[uint]bool, len(inputs))
	var errs validator.ValidationErrors

	for i, in := range inputs {
		if !attempt.Presents(in.QuestionID) {
			return fmt.Errorf("%w: question %d", ErrQuestionNotPresented, in.QuestionID)
		}
		q, ok := quiz.QuestionByID(in.QuestionID)
		if !ok {
			return fmt.Errorf("%w: question %d", ErrQuestionNotPresented, in.QuestionID)
		}
		if seen[in.QuestionID] {
			errs = append(errs, validator.ValidationError{
				Field:   fmt.Sprintf("answers[%d].question_id", i),
				Message: "duplicate answer for question",
				Value:   in.QuestionID,
				Rule:    "unique",
			})
			continue
		}
		seen[in.QuestionID] = true

		errs = append(errs, bv.ValidateAnswerPayload(q, validator.AnswerPayload{
			SelectedOptionID: in.SelectedOptionID,
			AnswerText:       in.AnswerText,
			SubmittedCode:    in.SubmittedCode,
			CodeLanguage:     in.CodeLanguage,
		})...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// wellFormedInputs keeps the inputs that would pass validateInputs on their own,
// dropping later duplicates.
func (s *attemptService) wellFormedInputs(attempt *models.Attempt, quiz *models.Quiz, inputs []AnswerInput) []AnswerInput {
	seen := make(map[uint]bool, len(inputs))
	kept := make([]AnswerInput, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.QuestionID] {
			continue
		}
		if err := s.validateInputs(attempt, quiz, []AnswerInput{in}); err != nil {
			s.logger.Warn("Dropping invalid answer from expired submission",
				"attempt_id", attempt.ID,
				"question_id", in.QuestionID,
				"error", err)
			continue
		}
		seen[in.QuestionID] = true
		kept = append(kept, in)
	}
	return kept
}

// frozenScore caps a score at the maximum recorded when the attempt started.
func frozenScore(score, limit float64) float64 {
	if score > limit {
		return limit
	}
	return score
}

func checkAvailability(quiz *models.Quiz, now time.Time) error {
	if quiz.Status != models.QuizPublished {
		return fmt.Errorf("%w: quiz is %s", ErrQuizNotAvailable, quiz.Status)
	}
	if quiz.StartTime != nil && now.Before(*quiz.StartTime) {
		return fmt.Errorf("%w: quiz opens at %s", ErrQuizNotAvailable, quiz.StartTime.Format(time.RFC3339))
	}
	if quiz.EndTime != nil && now.After(*quiz.EndTime) {
		return fmt.Errorf("%w: quiz closed at %s", ErrQuizNotAvailable, quiz.EndTime.Format(time.RFC3339))
	}
	return nil
}

// applyInput overwrites the payload and resets grading so the answer is evaluated afresh
func applyInput(answer *models.Answer, in AnswerInput, now time.Time) {
	answer.SelectedOptionID = in.SelectedOptionID
	answer.AnswerText = in.AnswerText
	answer.SubmittedCode = in.SubmittedCode
	answer.CodeLanguage = in.CodeLanguage
	if in.TimeSpentSeconds != nil {
		answer.TimeSpentSeconds = in.TimeSpentSeconds
	}
	answer.AnsweredAt = &now

	answer.IsCorrect = nil
	answer.PointsAwarded = 0
	answer.GradingStatus = models.GradingPending
	answer.Feedback = nil
	answer.JudgeResults = nil
}

func maxScore(quiz *models.Quiz, presented []uint) float64 {
	questions := quiz.QuestionMap()
	var total float64
	for _, id := range presented {
		if q, ok := questions[id]; ok {
			total += float64(q.Points)
		}
	}
	return total
}

// ===== EVENTS =====

func attemptEventData(a *models.Attempt, forced bool) events.AttemptEventData {
	return events.AttemptEventData{
		AttemptID:        a.ID,
		QuizID:           a.QuizID,
		UserID:           a.UserID,
		AttemptNumber:    a.AttemptNumber,
		Status:           string(a.Status),
		Score:            a.Score,
		MaxScorePossible: a.MaxScorePossible,
		Forced:           forced,
		SubmitTime:       a.SubmitTime,
		GradedAt:         a.GradingCompletedAt,
	}
}

// publishEvent never fails the caller; events are best effort after commit
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType string, data any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		logger.Warn("Failed to publish event",
			"event_type", eventType,
			"error", err)
	}
}

// ===== RESPONSE BUILDING =====

func (s *attemptService) buildResponse(ctx context.Context, attempt *models.Attempt, quiz *models.Quiz, viewer *models.User) (*AttemptResponse, error) {
	answers, err := s.repo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return newAttemptResponse(attempt, quiz, answers, viewer, s.now(), true), nil
}

// resultsVisible applies the quiz results policy. Reviewers always see results.
func resultsVisible(quiz *models.Quiz, attempt *models.Attempt, viewer *models.User) bool {
	if viewer.IsReviewer() {
		return true
	}
	if attempt.Status.IsActive() {
		return false
	}
	switch quiz.ResultsVisibility {
	case models.ResultsImmediate, "":
		return true
	case models.ResultsAfterGrading:
		return attempt.Status == models.AttemptGraded ||
			(attempt.Status == models.AttemptTimedOut && attempt.GradingCompletedAt != nil)
	default:
		return false
	}
}

func newAttemptResponse(attempt *models.Attempt, quiz *models.Quiz, answers []models.Answer, viewer *models.User, now time.Time, withQuestions bool) *AttemptResponse {
	visible := resultsVisible(quiz, attempt, viewer)
	reviewer := viewer.IsReviewer()

	resp := &AttemptResponse{
		ID:                 attempt.ID,
		QuizID:             attempt.QuizID,
		UserID:             attempt.UserID,
		AttemptNumber:      attempt.AttemptNumber,
		Status:             attempt.Status,
		StartTime:          attempt.StartTime,
		Deadline:           attempt.Deadline,
		SubmitTime:         attempt.SubmitTime,
		GradingCompletedAt: attempt.GradingCompletedAt,
		ProctoringEnabled:  quiz.ProctoringEnabled,
		ViolationCount:     attempt.ViolationCount,
		ResultsVisible:     visible,
		MaxScorePossible:   attempt.MaxScorePossible,
		Answers:            make([]AnswerResponse, 0, len(answers)),
	}

	if attempt.Status.IsActive() && attempt.Deadline != nil {
		remaining := max(int(attempt.Deadline.Sub(now).Seconds()), 0)
		resp.TimeRemaining = &remaining
	}
	if visible {
		score := attempt.Score
		resp.Score = &score
	}

	byQuestion := make(map[uint]*models.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
		if !attempt.Status.IsActive() && answers[i].GradingStatus == models.GradingPending {
			resp.PendingAnswers++
		}
	}

	questions := quiz.QuestionMap()
	for _, id := range attempt.PresentedQuestionIDs {
		if withQuestions {
			if q, ok := questions[id]; ok {
				resp.Questions = append(resp.Questions, questionView(q))
			}
		}
		if a, ok := byQuestion[id]; ok {
			resp.Answers = append(resp.Answers, answerResponse(a, visible, reviewer))
		}
	}

	return resp
}

func questionView(q *models.Question) QuestionView {
	view := QuestionView{
		ID:     q.ID,
		Type:   q.Type,
		Text:   q.Text,
		Points: q.Points,
	}
	for _, o := range q.Options {
		view.Options = append(view.Options, OptionView{ID: o.ID, Text: o.Text, DisplayOrder: o.DisplayOrder})
	}
	if q.Type == models.QuestionCoding {
		view.CodeTemplates = q.CodeTemplates
		for _, tc := range q.TestCases {
			if !tc.IsHidden {
				view.Examples = append(view.Examples, TestCaseView{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
			}
		}
	}
	return view
}

func answerResponse(a *models.Answer, visible, reviewer bool) AnswerResponse {
	resp := AnswerResponse{
		ID:               a.ID,
		QuestionID:       a.QuestionID,
		SelectedOptionID: a.SelectedOptionID,
		AnswerText:       a.AnswerText,
		SubmittedCode:    a.SubmittedCode,
		CodeLanguage:     a.CodeLanguage,
		AnsweredAt:       a.AnsweredAt,
		TimeSpentSeconds: a.TimeSpentSeconds,
	}
	if !visible {
		return resp
	}

	points := a.PointsAwarded
	resp.GradingStatus = a.GradingStatus
	resp.IsCorrect = a.IsCorrect
	resp.PointsAwarded = &points
	resp.Feedback = a.Feedback
	if reviewer {
		resp.GradedBy = a.GradedBy
		resp.JudgeResults = a.JudgeResults
		return resp
	}

	for _, r := range a.JudgeResults {
		if r.Hidden {
			// Hidden cases expose the verdict only
			r = models.JudgeCaseResult{TestCaseID: r.TestCaseID, Hidden: true, Points: r.Points, Verdict: r.Verdict}
		}
		resp.JudgeResults = append(resp.JudgeResults, r)
	}
	return resp
}

func isRecordMissing(err error) bool {
	return errors.Is(err, ErrAttemptNotFound) || errors.Is(err, ErrAnswerNotFound) || errors.Is(err, ErrQuizNotFound)
}
