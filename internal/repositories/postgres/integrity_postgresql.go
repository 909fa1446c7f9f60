package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

type IntegrityPostgreSQL struct {
	db *gorm.DB
}

func NewIntegrityPostgreSQL(db *gorm.DB) repositories.IntegrityRepository {
	return &IntegrityPostgreSQL{db: db}
}

func (i *IntegrityPostgreSQL) Create(ctx context.Context, tx *gorm.DB, event *models.IntegrityEvent) error {
	db := getDB(i.db, tx)
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create integrity event: %w", err)
	}
	return nil
}

func (i *IntegrityPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.IntegrityEvent, error) {
	db := getDB(i.db, tx)
	var events []*models.IntegrityEvent
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrity events: %w", err)
	}
	return events, nil
}
