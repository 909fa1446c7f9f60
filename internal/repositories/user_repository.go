package repositories

import (
	"context"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// UserRepository resolves display data for user ids. The identity system owns users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDs skips ids that cannot be resolved
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}
