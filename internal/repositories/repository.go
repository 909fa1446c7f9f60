package repositories

import "context"

// Repository aggregates the service's data access
type Repository interface {
	// Quiz definitions (read-only, owned by authoring)
	Quiz() QuizRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// Proctoring
	Integrity() IntegrityRepository

	// User directory (external, read-only)
	User() UserRepository

	// Transaction support. fn receives a Repository bound to the transaction.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
