package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// Migrate creates or updates the schema
func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&models.Question{},
		&models.QuestionOption{},
		&models.TestCase{},
		&models.CodeTemplate{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.Attempt{},
		&models.Answer{},
		&models.IntegrityEvent{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	// At most one active attempt per (user, quiz)
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_one_active
		ON attempts (user_id, quiz_id) WHERE status IN ('STARTED', 'IN_PROGRESS')`).Error; err != nil {
		return fmt.Errorf("failed to create active attempt index: %w", err)
	}

	return nil
}
