package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

// ===== BASIC CRUD OPERATIONS =====

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := getDB(a.db, tx)
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := getDB(a.db, tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt %d: %w", id, err)
	}
	return &attempt, nil
}

// GetForUpdate must run inside a transaction for the row lock to hold
func (a *AttemptPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := getDB(a.db, tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to lock attempt %d: %w", id, err)
	}
	return &attempt, nil
}

// Update never writes violation_count; only IncrementViolations changes it
func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := getDB(a.db, tx)
	if err := db.WithContext(ctx).Omit(clause.Associations, "violation_count").Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt %d: %w", attempt.ID, err)
	}
	return nil
}

// ===== START SERIALIZATION =====

func (a *AttemptPostgreSQL) LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error {
	db := getDB(a.db, tx)
	key := fmt.Sprintf("attempt:%s:%d", userID, quizID)
	if err := db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
		return fmt.Errorf("failed to acquire attempt lock: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.Attempt, error) {
	db := getDB(a.db, tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND status IN ?", userID, quizID, activeStatuses).
		Order("attempt_number DESC").
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	db := getDB(a.db, tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return int(count), nil
}

func (a *AttemptPostgreSQL) NextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	db := getDB(a.db, tx)
	var maxNumber int
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Select("COALESCE(MAX(attempt_number), 0)").
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Scan(&maxNumber).Error; err != nil {
		return 0, fmt.Errorf("failed to get next attempt number: %w", err)
	}
	return maxNumber + 1, nil
}

// ===== QUERY OPERATIONS =====

// ListByQuiz returns attempts with their answers
func (a *AttemptPostgreSQL) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := getDB(a.db, tx)
	var attempts []*models.Attempt
	var total int64

	query := db.WithContext(ctx).Model(&models.Attempt{}).Where("quiz_id = ?", quizID)
	query = applyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Preload("Answers").Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) ListExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Attempt, error) {
	db := getDB(a.db, tx)
	var attempts []*models.Attempt
	query := db.WithContext(ctx).
		Where("status IN ? AND deadline IS NOT NULL AND deadline < ?", activeStatuses, now).
		Order("deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired attempts: %w", err)
	}
	return attempts, nil
}

// ===== PROCTORING =====

func (a *AttemptPostgreSQL) IncrementViolations(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	db := getDB(a.db, tx)
	var counts []int
	if err := db.WithContext(ctx).
		Raw("UPDATE attempts SET violation_count = violation_count + 1, updated_at = ? WHERE id = ? RETURNING violation_count", time.Now().UTC(), id).
		Scan(&counts).Error; err != nil {
		return 0, fmt.Errorf("failed to increment violation count: %w", err)
	}
	if len(counts) == 0 {
		return 0, fmt.Errorf("failed to increment violation count for attempt %d: %w", id, gorm.ErrRecordNotFound)
	}
	return counts[0], nil
}
