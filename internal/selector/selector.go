// Package selector chooses the ordered question set presented for one attempt.
package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

var (
	ErrNoQuestions      = errors.New("quiz has no linked questions")
	ErrPoolSizeRequired = errors.New("random selection requires a positive pool size")
	ErrUnknownStrategy  = errors.New("unknown selection strategy")
)

// InsufficientPoolError is returned when a RANDOM quiz links fewer questions than its pool size.
type InsufficientPoolError struct {
	QuizID    uint
	PoolSize  int
	Available int
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("quiz %d needs %d questions for its random pool, only %d linked", e.QuizID, e.PoolSize, e.Available)
}

// Selector is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Selector. A nil source uses the runtime's global generator.
func New(src rand.Source) *Selector {
	s := &Selector{}
	if src != nil {
		s.rng = rand.New(src)
	}
	return s
}

// Select returns the deduplicated, ordered question ids for a new attempt.
// It performs no writes; callers persist the result exactly once.
func (s *Selector) Select(quiz *models.Quiz) ([]uint, error) {
	ids := authoredOrder(quiz.Questions)
	if len(ids) == 0 {
		return nil, ErrNoQuestions
	}

	switch quiz.SelectionStrategy {
	case models.SelectionFixed, "":
		if quiz.ShuffleQuestions {
			s.shuffle(ids)
		}
		return ids, nil

	case models.SelectionRandom:
		if quiz.PoolSize == nil || *quiz.PoolSize <= 0 {
			return nil, ErrPoolSizeRequired
		}
		size := *quiz.PoolSize
		if size > len(ids) {
			return nil, &InsufficientPoolError{QuizID: quiz.ID, PoolSize: size, Available: len(ids)}
		}
		return s.sample(ids, size), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, quiz.SelectionStrategy)
	}
}

// authoredOrder sorts by (order, question id) and drops duplicate links.
func authoredOrder(links []models.QuizQuestion) []uint {
	sorted := make([]models.QuizQuestion, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].QuestionID < sorted[j].QuestionID
	})

	seen := make(map[uint]struct{}, len(sorted))
	ids := make([]uint, 0, len(sorted))
	for _, link := range sorted {
		if _, dup := seen[link.QuestionID]; dup {
			continue
		}
		seen[link.QuestionID] = struct{}{}
		ids = append(ids, link.QuestionID)
	}
	return ids
}

// sample draws k ids uniformly without replacement (partial Fisher-Yates).
func (s *Selector) sample(ids []uint, k int) []uint {
	pool := make([]uint, len(ids))
	copy(pool, ids)
	for i := 0; i < k; i++ {
		j := i + s.intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

func (s *Selector) shuffle(ids []uint) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.intN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func (s *Selector) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
