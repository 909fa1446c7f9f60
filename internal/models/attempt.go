package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptStarted    AttemptStatus = "STARTED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptGraded     AttemptStatus = "GRADED"
	AttemptTimedOut   AttemptStatus = "TIMED_OUT"
)

// IsActive reports whether the test-taker may still answer.
func (s AttemptStatus) IsActive() bool {
	return s == AttemptStarted || s == AttemptInProgress
}

// IsTerminal reports whether no further student-initiated mutation is allowed.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptGraded || s == AttemptTimedOut
}

type Attempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_attempt_user_quiz_number"`
	UserID        string        `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_attempt_user_quiz_number"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempt_user_quiz_number"`
	Status        AttemptStatus `json:"status" gorm:"size:20;not null;default:STARTED;index"`

	// Timing
	StartTime          time.Time  `json:"start_time" gorm:"not null"`
	Deadline           *time.Time `json:"deadline" gorm:"index"`
	SubmitTime         *time.Time `json:"submit_time"`
	GradingCompletedAt *time.Time `json:"grading_completed_at"`

	// Frozen at creation, never rewritten
	PresentedQuestionIDs datatypes.JSONSlice[uint] `json:"presented_question_ids" gorm:"type:jsonb;not null"`

	// Scoring
	Score            float64 `json:"score"`
	MaxScorePossible float64 `json:"max_score_possible"`

	// Proctoring
	ViolationCount int `json:"violation_count" gorm:"not null;default:0"`

	// Client metadata
	IPAddress *string `json:"ip_address" gorm:"size:45"`
	UserAgent *string `json:"user_agent" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

// IsExpired reports whether the deadline has passed at now.
func (a *Attempt) IsExpired(now time.Time) bool {
	return a.Deadline != nil && now.After(*a.Deadline)
}

// Presents reports whether the question is part of this attempt.
func (a *Attempt) Presents(questionID uint) bool {
	for _, id := range a.PresentedQuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

type GradingStatus string

const (
	GradingPending GradingStatus = "PENDING"
	GradingGraded  GradingStatus = "GRADED"
	GradingError   GradingStatus = "ERROR"
)

type Answer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question;index"`

	// Submitted payload, one of these depending on question type
	SelectedOptionID *uint   `json:"selected_option_id"`
	AnswerText       *string `json:"answer_text" gorm:"type:text"`
	SubmittedCode    *string `json:"submitted_code" gorm:"type:text"`
	CodeLanguage     *string `json:"code_language" gorm:"size:50"`

	// Grading
	IsCorrect     *bool         `json:"is_correct"` // null until decided
	PointsAwarded float64       `json:"points_awarded"`
	GradingStatus GradingStatus `json:"grading_status" gorm:"size:20;not null;default:PENDING;index"`
	Feedback      *string       `json:"feedback" gorm:"type:text"`
	GradedBy      *string       `json:"graded_by" gorm:"size:255"`
	GradedAt      *time.Time    `json:"graded_at"`

	// Per-test-case judge outcomes for CODING answers
	JudgeResults datatypes.JSONSlice[JudgeCaseResult] `json:"judge_results" gorm:"type:jsonb"`

	// Timing
	AnsweredAt       *time.Time `json:"answered_at"`
	TimeSpentSeconds *int       `json:"time_spent_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JudgeCaseResult is the recorded outcome of one test case run.
type JudgeCaseResult struct {
	TestCaseID    uint     `json:"test_case_id"`
	Hidden        bool     `json:"hidden"`
	Points        int      `json:"points"`
	Verdict       string   `json:"verdict"`
	StatusID      int      `json:"status_id"`
	Description   string   `json:"description,omitempty"`
	Stdout        string   `json:"stdout,omitempty"`
	Stderr        string   `json:"stderr,omitempty"`
	CompileOutput string   `json:"compile_output,omitempty"`
	Message       string   `json:"message,omitempty"`
	Time          *float64 `json:"time,omitempty"`
	Memory        *int     `json:"memory,omitempty"`
	Token         string   `json:"token,omitempty"`
}
