package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/grading"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/judge"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/selector"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
)

var (
	student  = &models.User{ID: "student-1", Role: models.RoleStudent}
	student2 = &models.User{ID: "student-2", Role: models.RoleStudent}
	teacher  = &models.User{ID: "teacher-1", FullName: "Ada Teacher", Role: models.RoleTeacher}
	proctor  = &models.User{ID: "proctor-1", Role: models.RoleProctor}
)

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	repo       *MockRepository
	clock      *testClock
	publisher  *events.MockEventPublisher
	dispatcher *fakeDispatcher
	attempts   *attemptService
	grading    *gradingService
	integrity  *integrityService
	export     *exportService
	executor   *scriptedExecutor
}

func newTestEnv() *testEnv {
	logger := testLogger()
	repo := NewMockRepository()
	clock := newTestClock()
	publisher := events.NewMockEventPublisher(logger)
	dispatcher := &fakeDispatcher{}
	executor := &scriptedExecutor{verdicts: make(map[string]judge.Verdict)}
	v := validator.New()

	attempts := NewAttemptService(repo, logger, v, selector.New(rand.NewPCG(7, 11)), dispatcher, publisher).(*attemptService)
	attempts.now = clock.Now

	runner := newTestRunner(executor)
	gradingSvc := NewGradingService(repo, logger, v, runner, publisher).(*gradingService)
	gradingSvc.now = clock.Now

	integrity := NewIntegrityService(repo, logger, v, publisher).(*integrityService)
	integrity.now = clock.Now

	export := NewExportService(repo, logger).(*exportService)
	export.now = clock.Now

	return &testEnv{
		repo:       repo,
		clock:      clock,
		publisher:  publisher,
		dispatcher: dispatcher,
		attempts:   attempts,
		grading:    gradingSvc,
		integrity:  integrity,
		export:     export,
		executor:   executor,
	}
}

// ===== QUIZ BUILDERS =====

func publishedQuiz(id uint, questions ...models.Question) *models.Quiz {
	quiz := &models.Quiz{
		ID:                id,
		Title:             "Quiz",
		SelectionStrategy: models.SelectionFixed,
		MaxAttempts:       1,
		ResultsVisibility: models.ResultsImmediate,
		Status:            models.QuizPublished,
	}
	for i, q := range questions {
		quiz.Questions = append(quiz.Questions, models.QuizQuestion{
			QuizID:     id,
			QuestionID: q.ID,
			Order:      i + 1,
			Question:   q,
		})
	}
	return quiz
}

func mcqQuestion(id uint, points int, correctOptionID uint, otherOptionIDs ...uint) models.Question {
	q := models.Question{ID: id, Type: models.QuestionMCQ, Text: "Pick one", Points: points}
	q.Options = append(q.Options, models.QuestionOption{ID: correctOptionID, QuestionID: id, Text: "right", IsCorrect: true})
	for i, other := range otherOptionIDs {
		q.Options = append(q.Options, models.QuestionOption{ID: other, QuestionID: id, Text: "wrong", DisplayOrder: i + 1})
	}
	return q
}

func fillInQuestion(id uint, points int, accepted string) models.Question {
	return models.Question{ID: id, Type: models.QuestionFillInBlanks, Text: "Fill in", Points: points, CorrectAnswerText: &accepted}
}

func shortAnswerQuestion(id uint, points int) models.Question {
	return models.Question{ID: id, Type: models.QuestionShortAnswer, Text: "Explain", Points: points}
}

// codingQuestion has one 1-point test case per input; the last one is hidden
func codingQuestion(id uint, inputs ...string) models.Question {
	template := "def solve():\n    pass\n"
	q := models.Question{
		ID:            id,
		Type:          models.QuestionCoding,
		Text:          "Write a program",
		Points:        len(inputs),
		CodeTemplates: []models.CodeTemplate{{ID: id*10 + 1, QuestionID: id, Language: "python", TemplateCode: &template}},
	}
	for i, in := range inputs {
		input := in
		q.TestCases = append(q.TestCases, models.TestCase{
			ID:             id*100 + uint(i) + 1,
			QuestionID:     id,
			Input:          &input,
			ExpectedOutput: "ok",
			IsHidden:       i == len(inputs)-1,
			Points:         1,
		})
	}
	return q
}

func uintPtr(v uint) *uint       { return &v }
func stringPtr(s string) *string { return &s }

func containsEvent(list []*events.Event, eventType string) bool {
	for _, e := range list {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// ===== JUDGE DOUBLES =====

func newTestRunner(executor judge.Executor) *grading.CodingRunner {
	return grading.NewCodingRunner(executor, 2, testLogger())
}

// scriptedExecutor answers each run by its stdin
type scriptedExecutor struct {
	mu       sync.Mutex
	verdicts map[string]judge.Verdict
	calls    int
}

func (e *scriptedExecutor) set(stdin string, v judge.Verdict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verdicts[stdin] = v
}

func (e *scriptedExecutor) LanguageID(language string) (int, error) {
	if language == "python" {
		return 71, nil
	}
	return 0, judge.ErrUnsupportedLanguage
}

func (e *scriptedExecutor) Execute(ctx context.Context, sub judge.Submission) *judge.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	verdict := judge.VerdictIndeterminate
	if sub.Stdin != nil {
		if v, ok := e.verdicts[*sub.Stdin]; ok {
			verdict = v
		}
	}
	status := 13
	switch verdict {
	case judge.VerdictAccepted:
		status = judge.StatusAccepted
	case judge.VerdictRejected:
		status = judge.StatusWrongAnswer
	}
	return &judge.Result{Verdict: verdict, StatusID: status, Stdout: "program output", Token: "tok"}
}
