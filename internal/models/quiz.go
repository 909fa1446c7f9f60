package models

import (
	"time"
)

type SelectionStrategy string

const (
	SelectionFixed  SelectionStrategy = "FIXED"
	SelectionRandom SelectionStrategy = "RANDOM"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "DRAFT"
	QuizPublished QuizStatus = "PUBLISHED"
	QuizArchived  QuizStatus = "ARCHIVED"
)

// ResultsVisibility controls when a test-taker may see score and per-answer correctness.
type ResultsVisibility string

const (
	ResultsImmediate    ResultsVisibility = "IMMEDIATE"
	ResultsAfterGrading ResultsVisibility = "AFTER_GRADING"
	ResultsHidden       ResultsVisibility = "HIDDEN"
)

// Quiz is owned by the authoring subsystem and is read-only here.
type Quiz struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	OrganizationID *uint   `json:"organization_id" gorm:"index"`
	Title          string  `json:"title" gorm:"not null;size:100"`
	Description    *string `json:"description" gorm:"type:text"`

	// Availability window
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	DurationMinutes   int               `json:"duration_minutes" gorm:"not null;default:0"` // <= 0 means unlimited
	SelectionStrategy SelectionStrategy `json:"selection_strategy" gorm:"size:20;not null;default:FIXED"`
	PoolSize          *int              `json:"pool_size"` // required iff RANDOM
	MaxAttempts       int               `json:"max_attempts" gorm:"not null;default:1"` // 0 means unlimited
	ShuffleQuestions  bool              `json:"shuffle_questions" gorm:"default:false"`
	ResultsVisibility ResultsVisibility `json:"results_visibility" gorm:"size:20;not null;default:IMMEDIATE"`
	ProctoringEnabled bool              `json:"proctoring_enabled" gorm:"default:false"`
	Status            QuizStatus        `json:"status" gorm:"size:20;not null;default:DRAFT;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

// QuizQuestion links a question to a quiz with its authored position.
type QuizQuestion struct {
	QuizID     uint `json:"quiz_id" gorm:"primaryKey"`
	QuestionID uint `json:"question_id" gorm:"primaryKey"`
	Order      int  `json:"order" gorm:"column:position;not null;default:0"`

	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

// Duration returns the time limit, zero when unlimited.
func (q *Quiz) Duration() time.Duration {
	if q.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(q.DurationMinutes) * time.Minute
}

// QuestionByID finds a linked question.
func (q *Quiz) QuestionByID(id uint) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].QuestionID == id {
			return &q.Questions[i].Question, true
		}
	}
	return nil, false
}

// QuestionMap indexes linked questions by id.
func (q *Quiz) QuestionMap() map[uint]*Question {
	m := make(map[uint]*Question, len(q.Questions))
	for i := range q.Questions {
		m[q.Questions[i].QuestionID] = &q.Questions[i].Question
	}
	return m
}
