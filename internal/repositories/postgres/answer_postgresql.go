package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

// AnswerPostgreSQL implements the AnswerRepository interface
type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

// upsertColumns are overwritten when an answer for the same question is saved again
var upsertColumns = []string{
	"selected_option_id", "answer_text", "submitted_code", "code_language",
	"is_correct", "points_awarded", "grading_status", "feedback",
	"graded_by", "graded_at", "judge_results", "answered_at",
	"time_spent_seconds", "updated_at",
}

func (ar *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	db := getDB(ar.db, tx)
	var answer models.Answer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get answer %d: %w", id, err)
	}
	return &answer, nil
}

func (ar *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) {
	db := getDB(ar.db, tx)
	var answers []models.Answer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

func (ar *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	db := getDB(ar.db, tx)
	var answer models.Answer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// Upsert relies on idx_answer_attempt_question so two writers never create two rows
func (ar *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := getDB(ar.db, tx)
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(answer).Error; err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

func (ar *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	db := getDB(ar.db, tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer %d: %w", answer.ID, err)
	}
	return nil
}
