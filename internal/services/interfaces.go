package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`

	// Captured by the handler from the request
	IPAddress *string `json:"-"`
	UserAgent *string `json:"-"`
}

// AnswerInput is one answer as sent by the test-taker. Only the fields matching the
// question type are read.
type AnswerInput struct {
	QuestionID       uint    `json:"question_id" validate:"required"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	AnswerText       *string `json:"answer_text"`
	SubmittedCode    *string `json:"submitted_code"`
	CodeLanguage     *string `json:"code_language" validate:"omitempty,max=50"`
	TimeSpentSeconds *int    `json:"time_spent_seconds" validate:"omitempty,min=0"`
}

type SaveAnswerRequest = AnswerInput

type SubmitAttemptRequest struct {
	Answers []AnswerInput `json:"answers" validate:"omitempty,dive"`
	// Forced is set by the client when its own timer ran out
	Forced bool `json:"forced"`
}

// AttemptResponse is the attempt as shown to a viewer. Score and per-answer grading
// are only filled when ResultsVisible is true.
type AttemptResponse struct {
	ID                 uint                 `json:"id"`
	QuizID             uint                 `json:"quiz_id"`
	UserID             string               `json:"user_id"`
	AttemptNumber      int                  `json:"attempt_number"`
	Status             models.AttemptStatus `json:"status"`
	StartTime          time.Time            `json:"start_time"`
	Deadline           *time.Time           `json:"deadline"`
	SubmitTime         *time.Time           `json:"submit_time"`
	GradingCompletedAt *time.Time           `json:"grading_completed_at"`
	TimeRemaining      *int                 `json:"time_remaining_seconds,omitempty"`

	ProctoringEnabled bool `json:"proctoring_enabled"`
	ViolationCount    int  `json:"violation_count"`

	ResultsVisible   bool     `json:"results_visible"`
	Score            *float64 `json:"score,omitempty"`
	MaxScorePossible float64  `json:"max_score_possible"`
	PendingAnswers   int      `json:"pending_answers"`

	Questions []QuestionView   `json:"questions,omitempty"`
	Answers   []AnswerResponse `json:"answers"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// QuestionView is a presented question without its answer key
type QuestionView struct {
	ID            uint                  `json:"id"`
	Type          models.QuestionType   `json:"type"`
	Text          string                `json:"text"`
	Points        int                   `json:"points"`
	Options       []OptionView          `json:"options,omitempty"`
	CodeTemplates []models.CodeTemplate `json:"code_templates,omitempty"`
	Examples      []TestCaseView        `json:"examples,omitempty"`
}

type OptionView struct {
	ID           uint   `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}

// TestCaseView exposes a visible test case as a worked example
type TestCaseView struct {
	Input          *string `json:"input,omitempty"`
	ExpectedOutput string  `json:"expected_output"`
}

type AnswerResponse struct {
	ID               uint       `json:"id"`
	QuestionID       uint       `json:"question_id"`
	SelectedOptionID *uint      `json:"selected_option_id"`
	AnswerText       *string    `json:"answer_text"`
	SubmittedCode    *string    `json:"submitted_code"`
	CodeLanguage     *string    `json:"code_language"`
	AnsweredAt       *time.Time `json:"answered_at"`
	TimeSpentSeconds *int       `json:"time_spent_seconds"`

	// Grading, only when results are visible
	GradingStatus models.GradingStatus     `json:"grading_status,omitempty"`
	IsCorrect     *bool                    `json:"is_correct,omitempty"`
	PointsAwarded *float64                 `json:"points_awarded,omitempty"`
	Feedback      *string                  `json:"feedback,omitempty"`
	GradedBy      *string                  `json:"graded_by,omitempty"`
	JudgeResults  []models.JudgeCaseResult `json:"judge_results,omitempty"`
}

// ===== GRADING RELATED DTOs =====

type GradeAnswerRequest struct {
	Points   float64 `json:"points" validate:"min=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}

// JudgeOutcome is what one judge job achieved
type JudgeOutcome struct {
	AnswerID  uint                 `json:"answer_id"`
	Status    models.GradingStatus `json:"status"`
	Skipped   bool                 `json:"skipped"`
	Retryable bool                 `json:"retryable"`
}

// ===== INTEGRITY RELATED DTOs =====

type RecordIntegrityEventRequest struct {
	QuizID    uint                      `json:"quiz_id" validate:"required"`
	AttemptID uint                      `json:"attempt_id" validate:"required"`
	EventType models.IntegrityEventType `json:"event_type" validate:"required,integrity_event_type"`
	Detail    *string                   `json:"detail"`
}

type IntegrityEventResponse struct {
	Event          *models.IntegrityEvent `json:"event"`
	ViolationCount int                    `json:"violation_count"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// Core attempt operations
	StartOrResume(ctx context.Context, req *StartAttemptRequest, user *models.User) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, user *models.User) (*AnswerResponse, error)
	Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, user *models.User) (*AttemptResponse, error)

	// Get operations, lazily timing out expired attempts
	GetAttempt(ctx context.Context, attemptID uint, user *models.User) (*AttemptResponse, error)
	ListQuizAttempts(ctx context.Context, quizID uint, filters repositories.AttemptFilters, user *models.User) (*AttemptListResponse, error)

	// Maintenance
	SweepExpired(ctx context.Context, limit int) (int, error)
}

type GradingService interface {
	// Manual grading of answers left PENDING
	GradeAnswer(ctx context.Context, answerID uint, req *GradeAnswerRequest, grader *models.User) (*AttemptResponse, error)

	// RunJudge executes one queued CODING answer and applies the verdicts
	RunJudge(ctx context.Context, payload queue.JudgePayload) (*JudgeOutcome, error)
}

type IntegrityService interface {
	RecordEvent(ctx context.Context, req *RecordIntegrityEventRequest, user *models.User) (*IntegrityEventResponse, error)
	ListEvents(ctx context.Context, attemptID uint, user *models.User) ([]*models.IntegrityEvent, error)
}

type ExportService interface {
	// ExportQuizResults renders finalized attempts as an XLSX workbook and returns its file name
	ExportQuizResults(ctx context.Context, quizID uint, user *models.User) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Attempt() AttemptService
	Grading() GradingService
	Integrity() IntegrityService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
