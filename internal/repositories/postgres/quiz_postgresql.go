package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/cache"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

// GetByID loads a quiz definition, served from cache when possible
func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := getDB(q.db, tx)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cache.QuizKey(id), &quiz, q.cacheManager.QuizTTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, question_id ASC")
			}).
			Preload("Questions.Question").
			Preload("Questions.Question.Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("display_order ASC, id ASC")
			}).
			Preload("Questions.Question.TestCases", func(db *gorm.DB) *gorm.DB {
				return db.Order("id ASC")
			}).
			Preload("Questions.Question.CodeTemplates").
			First(&dbQuiz, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get quiz %d: %w", id, err)
		}
		return &dbQuiz, nil
	})
	if err != nil {
		return nil, err
	}

	return &quiz, nil
}
