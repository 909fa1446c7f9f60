package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Statuses  []models.AttemptStatus `json:"statuses"`
	UserID    *string                `json:"user_id"`
	DateFrom  *time.Time             `json:"date_from"`
	DateTo    *time.Time             `json:"date_to"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
	SortBy    string                 `json:"sort_by"`    // "created_at", "start_time", "score"
	SortOrder string                 `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

// QuizRepository reads quiz definitions with their linked questions
type QuizRepository interface {
	// GetByID loads the quiz with questions, options, test cases and templates
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	// GetForUpdate locks the attempt row until the transaction ends
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error

	// LockUserQuiz takes a transaction-scoped advisory lock on (user, quiz)
	LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error
	GetActive(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.Attempt, error)
	CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error)
	NextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error)

	ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters AttemptFilters) ([]*models.Attempt, int64, error)
	ListExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Attempt, error)

	// IncrementViolations atomically adds one to violation_count and returns the new value
	IncrementViolations(ctx context.Context, tx *gorm.DB, id uint) (int, error)
}

type AnswerRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error)
	// Upsert inserts or overwrites the answer for (attempt, question)
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
}

type IntegrityRepository interface {
	Create(ctx context.Context, tx *gorm.DB, event *models.IntegrityEvent) error
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.IntegrityEvent, error)
}
