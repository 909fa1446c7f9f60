package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

// MockRepository is an in-memory Repository. Transactions are serialized and roll back
// the whole store when fn fails.
type MockRepository struct {
	txMu sync.Mutex
	mu   sync.Mutex

	quizzes  map[uint]*models.Quiz
	attempts map[uint]*models.Attempt
	answers  map[uint]*models.Answer
	events   []*models.IntegrityEvent
	users    map[string]*models.User

	nextAttemptID uint
	nextAnswerID  uint
	nextEventID   uint

	// conflictWith is committed by a "concurrent" transaction on the next attempt
	// insert, which then fails with a duplicate key error
	conflictWith *models.Attempt
	committed    []*models.Attempt

	// afterActiveRead runs once GetActive has copied the row, standing in for a
	// writer that commits between an unlocked read and the row lock
	afterActiveRead func(a *models.Attempt)
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		quizzes:  make(map[uint]*models.Quiz),
		attempts: make(map[uint]*models.Attempt),
		answers:  make(map[uint]*models.Answer),
		users:    make(map[string]*models.User),
	}
}

func (m *MockRepository) Quiz() repositories.QuizRepository           { return &mockQuizRepo{m} }
func (m *MockRepository) Attempt() repositories.AttemptRepository     { return &mockAttemptRepo{m} }
func (m *MockRepository) Answer() repositories.AnswerRepository       { return &mockAnswerRepo{m} }
func (m *MockRepository) Integrity() repositories.IntegrityRepository { return &mockIntegrityRepo{m} }
func (m *MockRepository) User() repositories.UserRepository           { return &mockUserRepo{m} }
func (m *MockRepository) Ping(ctx context.Context) error              { return nil }
func (m *MockRepository) Close() error                                { return nil }

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type mockSnapshot struct {
	attempts map[uint]*models.Attempt
	answers  map[uint]*models.Answer
	events   []*models.IntegrityEvent
}

func (m *MockRepository) snapshot() mockSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := mockSnapshot{
		attempts: make(map[uint]*models.Attempt, len(m.attempts)),
		answers:  make(map[uint]*models.Answer, len(m.answers)),
		events:   append([]*models.IntegrityEvent(nil), m.events...),
	}
	for id, a := range m.attempts {
		s.attempts[id] = copyAttempt(a)
	}
	for id, a := range m.answers {
		s.answers[id] = copyAnswer(a)
	}
	return s
}

func (m *MockRepository) restore(s mockSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = s.attempts
	m.answers = s.answers
	m.events = s.events
	for _, a := range m.committed {
		m.attempts[a.ID] = copyAttempt(a)
	}
}

// ===== TEST HELPERS =====

func (m *MockRepository) addQuiz(q *models.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

func (m *MockRepository) addUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockRepository) storedAttempt(id uint) *models.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[id]; ok {
		return copyAttempt(a)
	}
	return nil
}

// setStored overwrites a stored attempt outside any transaction
func (m *MockRepository) setStored(a *models.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = copyAttempt(a)
}

func (m *MockRepository) storedAnswers(attemptID uint) []models.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answersFor(attemptID)
}

func (m *MockRepository) answersFor(attemptID uint) []models.Answer {
	var out []models.Answer
	for _, a := range m.answers {
		if a.AttemptID == attemptID {
			out = append(out, *copyAnswer(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// conflictWithID is the id the simulated concurrent transaction committed
func (m *MockRepository) conflictWithID() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.committed) == 0 {
		return 0
	}
	return m.committed[len(m.committed)-1].ID
}

func (m *MockRepository) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func copyAttempt(a *models.Attempt) *models.Attempt {
	c := *a
	c.PresentedQuestionIDs = append([]uint(nil), a.PresentedQuestionIDs...)
	c.Answers = nil
	return &c
}

func copyAnswer(a *models.Answer) *models.Answer {
	c := *a
	c.JudgeResults = append([]models.JudgeCaseResult(nil), a.JudgeResults...)
	return &c
}

// ===== QUIZ =====

type mockQuizRepo struct{ m *MockRepository }

func (r *mockQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q, ok := r.m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %d: %w", id, gorm.ErrRecordNotFound)
	}
	return q, nil
}

// ===== ATTEMPT =====

type mockAttemptRepo struct{ m *MockRepository }

func (r *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if other := r.m.conflictWith; other != nil {
		r.m.conflictWith = nil
		r.m.nextAttemptID++
		other.ID = r.m.nextAttemptID
		r.m.attempts[other.ID] = copyAttempt(other)
		r.m.committed = append(r.m.committed, copyAttempt(other))
		return gorm.ErrDuplicatedKey
	}
	for _, a := range r.m.attempts {
		if a.UserID != attempt.UserID || a.QuizID != attempt.QuizID {
			continue
		}
		if a.AttemptNumber == attempt.AttemptNumber || (a.Status.IsActive() && attempt.Status.IsActive()) {
			return gorm.ErrDuplicatedKey
		}
	}

	r.m.nextAttemptID++
	attempt.ID = r.m.nextAttemptID
	attempt.CreatedAt = time.Now()
	attempt.UpdatedAt = attempt.CreatedAt
	r.m.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (r *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %d: %w", id, gorm.ErrRecordNotFound)
	}
	return copyAttempt(a), nil
}

func (r *mockAttemptRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.attempts[attempt.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c := copyAttempt(attempt)
	// violation_count is owned by IncrementViolations
	c.ViolationCount = stored.ViolationCount
	c.UpdatedAt = time.Now()
	r.m.attempts[attempt.ID] = c
	return nil
}

func (r *mockAttemptRepo) LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error {
	return nil
}

func (r *mockAttemptRepo) GetActive(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.Attempt, error) {
	r.m.mu.Lock()
	var found *models.Attempt
	for _, a := range r.m.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status.IsActive() {
			found = copyAttempt(a)
			break
		}
	}
	hook := r.m.afterActiveRead
	r.m.mu.Unlock()

	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if hook != nil {
		hook(found)
	}
	return found, nil
}

func (r *mockAttemptRepo) CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, a := range r.m.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (r *mockAttemptRepo) NextAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	highest := 0
	for _, a := range r.m.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.AttemptNumber > highest {
			highest = a.AttemptNumber
		}
	}
	return highest + 1, nil
}

func (r *mockAttemptRepo) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	statuses := make(map[models.AttemptStatus]bool, len(filters.Statuses))
	for _, s := range filters.Statuses {
		statuses[s] = true
	}

	var out []*models.Attempt
	for _, a := range r.m.attempts {
		if a.QuizID != quizID {
			continue
		}
		if len(statuses) > 0 && !statuses[a.Status] {
			continue
		}
		if filters.UserID != nil && a.UserID != *filters.UserID {
			continue
		}
		c := copyAttempt(a)
		c.Answers = r.m.answersFor(a.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := int64(len(out))
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			out = nil
		} else {
			out = out[filters.Offset:]
		}
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *mockAttemptRepo) ListExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Attempt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Attempt
	for _, a := range r.m.attempts {
		if a.Status.IsActive() && a.Deadline != nil && a.Deadline.Before(now) {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockAttemptRepo) IncrementViolations(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.attempts[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	a.ViolationCount++
	return a.ViolationCount, nil
}

// ===== ANSWER =====

type mockAnswerRepo struct{ m *MockRepository }

func (r *mockAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.answers[id]
	if !ok {
		return nil, fmt.Errorf("answer %d: %w", id, gorm.ErrRecordNotFound)
	}
	return copyAnswer(a), nil
}

func (r *mockAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.answersFor(attemptID), nil
}

func (r *mockAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return copyAnswer(a), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.answers {
		if a.AttemptID == answer.AttemptID && a.QuestionID == answer.QuestionID {
			answer.ID = id
			answer.CreatedAt = a.CreatedAt
			r.m.answers[id] = copyAnswer(answer)
			return nil
		}
	}
	r.m.nextAnswerID++
	answer.ID = r.m.nextAnswerID
	answer.CreatedAt = time.Now()
	r.m.answers[answer.ID] = copyAnswer(answer)
	return nil
}

func (r *mockAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.answers[answer.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.m.answers[answer.ID] = copyAnswer(answer)
	return nil
}

// ===== INTEGRITY =====

type mockIntegrityRepo struct{ m *MockRepository }

func (r *mockIntegrityRepo) Create(ctx context.Context, tx *gorm.DB, event *models.IntegrityEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.nextEventID++
	event.ID = r.m.nextEventID
	c := *event
	r.m.events = append(r.m.events, &c)
	return nil
}

func (r *mockIntegrityRepo) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.IntegrityEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.IntegrityEvent
	for _, e := range r.m.events {
		if e.AttemptID == attemptID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// ===== USER =====

type mockUserRepo struct{ m *MockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := r.m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// ===== DISPATCHER =====

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []queue.JudgePayload
	err  error
}

func (d *fakeDispatcher) DispatchJudge(ctx context.Context, payload queue.JudgePayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, payload)
	return nil
}

func (d *fakeDispatcher) dispatched() []queue.JudgePayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]queue.JudgePayload(nil), d.jobs...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
