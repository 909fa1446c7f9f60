package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/selector"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
)

// quiz 1: MCQ worth 2 (option 11 correct) and FILL_IN_BLANKS worth 1 ("42|forty-two")
func scenarioQuiz() *models.Quiz {
	return publishedQuiz(1,
		mcqQuestion(101, 2, 11, 12, 13),
		fillInQuestion(102, 1, "42|forty-two"),
	)
}

func start(t *testing.T, env *testEnv, quizID uint, user *models.User) *AttemptResponse {
	t.Helper()
	resp, err := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{QuizID: quizID}, user)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	return resp
}

func TestSubmit_FixedQuizAllCorrect(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	ctx := context.Background()

	attempt := start(t, env, 1, student)
	if attempt.Status != models.AttemptStarted {
		t.Fatalf("status = %s, want STARTED", attempt.Status)
	}
	if got := attempt.Questions; len(got) != 2 || got[0].ID != 101 || got[1].ID != 102 {
		t.Fatalf("questions not in authored order: %+v", got)
	}

	resp, err := env.attempts.Submit(ctx, attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(11)},
		{QuestionID: 102, AnswerText: stringPtr(" 42 ")},
	}}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if resp.Status != models.AttemptGraded {
		t.Errorf("status = %s, want GRADED", resp.Status)
	}
	if resp.Score == nil || *resp.Score != 3 || resp.MaxScorePossible != 3 {
		t.Errorf("score = %v/%v, want 3/3", resp.Score, resp.MaxScorePossible)
	}
	if resp.GradingCompletedAt == nil || resp.SubmitTime == nil {
		t.Error("expected submit and grading completion times")
	}
	for _, a := range resp.Answers {
		if a.IsCorrect == nil || !*a.IsCorrect {
			t.Errorf("answer for question %d not marked correct", a.QuestionID)
		}
	}

	published := env.publisher.GetPublishedEvents()
	for _, want := range []string{events.AttemptStarted, events.AttemptFinalized, events.AttemptGraded} {
		if !containsEvent(published, want) {
			t.Errorf("missing %s event", want)
		}
	}
}

func TestStartOrResume_RandomPoolDrawsFreshSubset(t *testing.T) {
	env := newTestEnv()
	var questions []models.Question
	for i := uint(1); i <= 10; i++ {
		questions = append(questions, mcqQuestion(200+i, 1, 2000+i, 3000+i))
	}
	quiz := publishedQuiz(2, questions...)
	quiz.SelectionStrategy = models.SelectionRandom
	quiz.PoolSize = func() *int { n := 5; return &n }()
	quiz.MaxAttempts = 2
	env.repo.addQuiz(quiz)
	ctx := context.Background()

	first := start(t, env, 2, student)
	firstIDs := append([]uint(nil), env.repo.storedAttempt(first.ID).PresentedQuestionIDs...)
	if _, err := env.attempts.Submit(ctx, first.ID, &SubmitAttemptRequest{}, student); err != nil {
		t.Fatalf("Submit first: %v", err)
	}

	second := start(t, env, 2, student)
	if second.ID == first.ID || second.AttemptNumber != 2 {
		t.Fatalf("second attempt = %+v, want a new attempt number 2", second)
	}

	for _, resp := range []*AttemptResponse{first, second} {
		stored := env.repo.storedAttempt(resp.ID)
		if len(stored.PresentedQuestionIDs) != 5 {
			t.Fatalf("attempt %d presents %d questions, want 5", resp.ID, len(stored.PresentedQuestionIDs))
		}
		seen := map[uint]bool{}
		for _, id := range stored.PresentedQuestionIDs {
			if id < 201 || id > 210 || seen[id] {
				t.Errorf("attempt %d: bad or duplicate question id %d", resp.ID, id)
			}
			seen[id] = true
		}
		if stored.MaxScorePossible != 5 {
			t.Errorf("attempt %d max score = %v, want 5", resp.ID, stored.MaxScorePossible)
		}
	}

	// The first attempt's frozen set is untouched by the second draw
	after := env.repo.storedAttempt(first.ID).PresentedQuestionIDs
	for i := range firstIDs {
		if after[i] != firstIDs[i] {
			t.Fatalf("presented ids changed: %v -> %v", firstIDs, after)
		}
	}

	if _, err := env.attempts.Submit(ctx, second.ID, &SubmitAttemptRequest{}, student); err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	_, err := env.attempts.StartOrResume(ctx, &StartAttemptRequest{QuizID: 2}, student)
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third start err = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestSubmit_AfterDeadlineTimesOut(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	ctx := context.Background()

	attempt := start(t, env, 1, student)
	if attempt.Deadline == nil || !attempt.Deadline.Equal(env.clock.Now().Add(10*time.Minute)) {
		t.Fatalf("deadline = %v, want start + 10m", attempt.Deadline)
	}

	env.clock.Advance(2 * time.Minute)
	if _, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 101, SelectedOptionID: uintPtr(11)}, student); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	env.clock.Advance(9 * time.Minute)
	resp, err := env.attempts.Submit(ctx, attempt.ID, &SubmitAttemptRequest{}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if resp.Status != models.AttemptTimedOut {
		t.Fatalf("status = %s, want TIMED_OUT", resp.Status)
	}
	if resp.Score == nil || *resp.Score != 2 || resp.MaxScorePossible != 3 {
		t.Errorf("score = %v/%v, want 2/3 with the unanswered question at 0", resp.Score, resp.MaxScorePossible)
	}
	finalized := env.publisher.EventsOfType(events.AttemptFinalized)
	if len(finalized) != 1 || !finalized[0].Data.(events.AttemptEventData).Forced {
		t.Errorf("expected one forced finalized event, got %+v", finalized)
	}
}

func TestSubmit_ClientForcedBeforeDeadline(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)

	attempt := start(t, env, 1, student)
	resp, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{
		Answers: []AnswerInput{{QuestionID: 102, AnswerText: stringPtr("forty-two")}},
		Forced:  true,
	}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Status != models.AttemptTimedOut || *resp.Score != 1 {
		t.Errorf("got %s with score %v, want TIMED_OUT with 1", resp.Status, *resp.Score)
	}
}

func TestSubmit_RepeatedReturnsFirstResult(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	ctx := context.Background()
	attempt := start(t, env, 1, student)

	first, err := env.attempts.Submit(ctx, attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(11)},
	}}, student)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// A second submission with different answers must not re-evaluate
	second, err := env.attempts.Submit(ctx, attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(12)},
		{QuestionID: 102, AnswerText: stringPtr("42")},
	}}, student)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if *second.Score != *first.Score || second.Status != first.Status || !second.SubmitTime.Equal(*first.SubmitTime) {
		t.Errorf("second result %+v differs from first %+v", second, first)
	}
	if n := len(env.repo.storedAnswers(attempt.ID)); n != 1 {
		t.Errorf("stored answers = %d, want 1", n)
	}
	if n := len(env.publisher.EventsOfType(events.AttemptFinalized)); n != 1 {
		t.Errorf("finalized events = %d, want 1", n)
	}
}

func TestSubmit_ConcurrentCallsFinalizeOnce(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	attempt := start(t, env, 1, student)

	req := &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(11)},
		{QuestionID: 102, AnswerText: stringPtr("42")},
	}}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*AttemptResponse, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.attempts.Submit(context.Background(), attempt.ID, req, student)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Status != models.AttemptGraded || *results[i].Score != 3 {
			t.Errorf("caller %d got %s/%v", i, results[i].Status, *results[i].Score)
		}
	}
	if n := len(env.repo.storedAnswers(attempt.ID)); n != 2 {
		t.Errorf("stored answers = %d, want 2", n)
	}
	if n := len(env.publisher.EventsOfType(events.AttemptFinalized)); n != 1 {
		t.Errorf("finalized events = %d, want 1", n)
	}
}

func TestSubmit_RejectsQuestionOutsideAttempt(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	attempt := start(t, env, 1, student)

	_, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 999, AnswerText: stringPtr("x")},
	}}, student)
	if !errors.Is(err, ErrQuestionNotPresented) {
		t.Fatalf("err = %v, want ErrQuestionNotPresented", err)
	}
	if got := env.repo.storedAttempt(attempt.ID).Status; got != models.AttemptStarted {
		t.Errorf("attempt mutated to %s", got)
	}
}

func TestSubmit_MalformedPayload(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	attempt := start(t, env, 1, student)

	_, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(55)},
	}}, student)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "selected_option_id" {
		t.Fatalf("err = %v, want selected_option_id validation error", err)
	}
}

func TestSubmit_ExpiredWithMalformedAnswerTimesOut(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	attempt := start(t, env, 1, student)

	env.clock.Advance(11 * time.Minute)
	resp, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(55)},
		{QuestionID: 102, AnswerText: stringPtr("42")},
	}}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Status != models.AttemptTimedOut {
		t.Fatalf("status = %s, want TIMED_OUT", resp.Status)
	}
	if resp.Score == nil || *resp.Score != 1 {
		t.Errorf("score = %v, want 1 from the well-formed answer only", resp.Score)
	}
	for _, a := range env.repo.storedAnswers(attempt.ID) {
		if a.QuestionID == 101 {
			t.Errorf("malformed answer was stored: %+v", a)
		}
	}
}

func TestSubmit_MaxScoreFrozenAfterQuestionUnlinked(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	attempt := start(t, env, 1, student)
	if attempt.MaxScorePossible != 3 {
		t.Fatalf("max score = %v, want 3", attempt.MaxScorePossible)
	}

	// Question 102 is removed from the quiz while the attempt is open
	env.repo.addQuiz(publishedQuiz(1, mcqQuestion(101, 2, 11, 12, 13)))

	resp, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 101, SelectedOptionID: uintPtr(11)},
	}}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.MaxScorePossible != 3 || resp.Score == nil || *resp.Score != 2 {
		t.Errorf("score = %v/%v, want 2/3", resp.Score, resp.MaxScorePossible)
	}
	if stored := env.repo.storedAttempt(attempt.ID); stored.MaxScorePossible != 3 {
		t.Errorf("stored max score = %v, want 3", stored.MaxScorePossible)
	}
}

func TestSubmit_OtherUsersAttempt(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	attempt := start(t, env, 1, student)

	_, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{}, student2)
	var perr *PermissionError
	if !errors.As(err, &perr) || !errors.Is(err, ErrInsufficientPermissions) {
		t.Fatalf("err = %v, want PermissionError", err)
	}
}

func TestSubmit_CodingAnswerDispatchesJudgeJob(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(publishedQuiz(4, codingQuestion(401, "a", "b")))
	attempt := start(t, env, 4, student)

	resp, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 401, SubmittedCode: stringPtr("print('ok')"), CodeLanguage: stringPtr("python")},
	}}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Status != models.AttemptSubmitted || resp.PendingAnswers != 1 {
		t.Fatalf("got %s with %d pending, want SUBMITTED with 1", resp.Status, resp.PendingAnswers)
	}

	jobs := env.dispatcher.dispatched()
	if len(jobs) != 1 || jobs[0].AttemptID != attempt.ID || jobs[0].QuestionID != 401 || jobs[0].AnswerID == 0 {
		t.Fatalf("dispatched = %+v", jobs)
	}
	if env.executor.calls != 0 {
		t.Error("judge must not run on the submission path")
	}
}

func TestSubmit_DispatchFailureKeepsSubmission(t *testing.T) {
	env := newTestEnv()
	env.dispatcher.err = errors.New("queue down")
	env.repo.addQuiz(publishedQuiz(4, codingQuestion(401, "a")))
	attempt := start(t, env, 4, student)

	resp, err := env.attempts.Submit(context.Background(), attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
		{QuestionID: 401, SubmittedCode: stringPtr("print(1)"), CodeLanguage: stringPtr("python")},
	}}, student)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Status != models.AttemptSubmitted {
		t.Errorf("status = %s, want SUBMITTED", resp.Status)
	}
}

func TestStartOrResume_ReturnsActiveAttempt(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())

	first := start(t, env, 1, student)
	env.clock.Advance(time.Minute)
	second := start(t, env, 1, student)

	if first.ID != second.ID {
		t.Fatalf("resume created a new attempt: %d vs %d", first.ID, second.ID)
	}
	if env.repo.attemptCount() != 1 {
		t.Errorf("attempts = %d, want 1", env.repo.attemptCount())
	}
	if n := len(env.publisher.EventsOfType(events.AttemptStarted)); n != 1 {
		t.Errorf("started events = %d, want 1", n)
	}
}

func TestStartOrResume_ExpiredActiveIsTimedOut(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	ctx := context.Background()

	first := start(t, env, 1, student)
	env.clock.Advance(11 * time.Minute)

	resp := start(t, env, 1, student)
	if resp.ID != first.ID || resp.Status != models.AttemptTimedOut {
		t.Fatalf("got attempt %d in %s, want %d TIMED_OUT", resp.ID, resp.Status, first.ID)
	}

	_, err := env.attempts.StartOrResume(ctx, &StartAttemptRequest{QuizID: 1}, student)
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("err = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestStartOrResume_ExpiredAttemptFinalizedConcurrently(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)

	first := start(t, env, 1, student)
	env.clock.Advance(11 * time.Minute)

	// A sweep commits between the unlocked read and the row lock
	env.repo.afterActiveRead = func(a *models.Attempt) {
		env.repo.afterActiveRead = nil
		done := env.repo.storedAttempt(a.ID)
		submitted := env.clock.Now()
		done.Status = models.AttemptTimedOut
		done.Score = 1
		done.SubmitTime = &submitted
		env.repo.setStored(done)
	}

	resp := start(t, env, 1, student)
	if resp.ID != first.ID || resp.Status != models.AttemptTimedOut {
		t.Fatalf("got attempt %d in %s, want %d TIMED_OUT", resp.ID, resp.Status, first.ID)
	}
	if stored := env.repo.storedAttempt(first.ID); stored.Score != 1 {
		t.Errorf("score = %v, want the concurrent result kept", stored.Score)
	}
	if n := len(env.publisher.EventsOfType(events.AttemptFinalized)); n != 0 {
		t.Errorf("finalized events = %d, want none from the resumed call", n)
	}
}

func TestStartOrResume_Refusals(t *testing.T) {
	past := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(q *models.Quiz)
		check  func(error) bool
	}{
		{
			name:   "draft quiz",
			mutate: func(q *models.Quiz) { q.Status = models.QuizDraft },
			check:  func(err error) bool { return errors.Is(err, ErrQuizNotAvailable) },
		},
		{
			name:   "not yet open",
			mutate: func(q *models.Quiz) { q.StartTime = &future },
			check:  func(err error) bool { return errors.Is(err, ErrQuizNotAvailable) },
		},
		{
			name:   "closed",
			mutate: func(q *models.Quiz) { q.EndTime = &past },
			check:  func(err error) bool { return errors.Is(err, ErrQuizNotAvailable) },
		},
		{
			name: "insufficient pool",
			mutate: func(q *models.Quiz) {
				n := 5
				q.SelectionStrategy = models.SelectionRandom
				q.PoolSize = &n
			},
			check: func(err error) bool {
				var perr *selector.InsufficientPoolError
				return errors.As(err, &perr) && perr.Available == 2
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			quiz := scenarioQuiz()
			tt.mutate(quiz)
			env.repo.addQuiz(quiz)

			_, err := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{QuizID: 1}, student)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.repo.attemptCount() != 0 {
				t.Error("no attempt may be created on refusal")
			}
		})
	}
}

func TestStartOrResume_UnknownQuiz(t *testing.T) {
	env := newTestEnv()
	_, err := env.attempts.StartOrResume(context.Background(), &StartAttemptRequest{QuizID: 42}, student)
	if !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("err = %v, want ErrQuizNotFound", err)
	}
}

func TestStartOrResume_CreationConflictReturnsWinner(t *testing.T) {
	env := newTestEnv()
	env.repo.addQuiz(scenarioQuiz())
	env.repo.conflictWith = &models.Attempt{
		QuizID:               1,
		UserID:               student.ID,
		AttemptNumber:        1,
		Status:               models.AttemptStarted,
		StartTime:            env.clock.Now(),
		PresentedQuestionIDs: []uint{101, 102},
		MaxScorePossible:     3,
	}

	resp := start(t, env, 1, student)
	if resp.ID != env.repo.conflictWithID() {
		t.Fatalf("got attempt %d, want the concurrently created one", resp.ID)
	}
	if env.repo.attemptCount() != 1 {
		t.Errorf("attempts = %d, want 1", env.repo.attemptCount())
	}
	if n := len(env.publisher.EventsOfType(events.AttemptStarted)); n != 0 {
		t.Errorf("the loser must not publish a started event, got %d", n)
	}
}

func TestSaveAnswer(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	ctx := context.Background()
	attempt := start(t, env, 1, student)

	saved, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 102, AnswerText: stringPtr("41")}, student)
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if saved.IsCorrect != nil || saved.PointsAwarded != nil {
		t.Error("draft answers must not expose grading")
	}
	if got := env.repo.storedAttempt(attempt.ID).Status; got != models.AttemptInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got)
	}

	// Overwrite keeps a single row
	if _, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 102, AnswerText: stringPtr("42")}, student); err != nil {
		t.Fatalf("SaveAnswer overwrite: %v", err)
	}
	answers := env.repo.storedAnswers(attempt.ID)
	if len(answers) != 1 || *answers[0].AnswerText != "42" || answers[0].GradingStatus != models.GradingPending {
		t.Fatalf("stored answers = %+v", answers)
	}

	t.Run("question not presented", func(t *testing.T) {
		_, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 7}, student)
		if !errors.Is(err, ErrQuestionNotPresented) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("wrong payload type", func(t *testing.T) {
		_, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 101, AnswerText: stringPtr("A")}, student)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("err = %v, want ValidationErrors", err)
		}
	})

	t.Run("after deadline", func(t *testing.T) {
		env.clock.Advance(11 * time.Minute)
		_, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 101, SelectedOptionID: uintPtr(11)}, student)
		if !errors.Is(err, ErrAttemptTimeExpired) {
			t.Fatalf("err = %v, want ErrAttemptTimeExpired", err)
		}
		stored := env.repo.storedAttempt(attempt.ID)
		if stored.Status != models.AttemptTimedOut || stored.Score != 1 {
			t.Errorf("attempt = %s/%v, want TIMED_OUT with the saved draft graded", stored.Status, stored.Score)
		}
	})

	t.Run("finalized attempt", func(t *testing.T) {
		_, err := env.attempts.SaveAnswer(ctx, attempt.ID, &SaveAnswerRequest{QuestionID: 101, SelectedOptionID: uintPtr(11)}, student)
		if !errors.Is(err, ErrAttemptNotActive) {
			t.Fatalf("err = %v, want ErrAttemptNotActive", err)
		}
	})
}

func TestGetAttempt_LazilyTimesOut(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	ctx := context.Background()
	attempt := start(t, env, 1, student)

	env.clock.Advance(4 * time.Minute)
	resp, err := env.attempts.GetAttempt(ctx, attempt.ID, student)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if resp.Status != models.AttemptStarted || resp.TimeRemaining == nil || *resp.TimeRemaining != 360 {
		t.Fatalf("got %s with %v remaining, want STARTED with 360s", resp.Status, resp.TimeRemaining)
	}

	env.clock.Advance(7 * time.Minute)
	resp, err = env.attempts.GetAttempt(ctx, attempt.ID, student)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if resp.Status != models.AttemptTimedOut || resp.TimeRemaining != nil {
		t.Errorf("got %s, want TIMED_OUT without time remaining", resp.Status)
	}
}

func TestGetAttempt_ResultsVisibility(t *testing.T) {
	tests := []struct {
		name        string
		visibility  models.ResultsVisibility
		studentSees bool
	}{
		{name: "immediate", visibility: models.ResultsImmediate, studentSees: true},
		{name: "after grading with pending answer", visibility: models.ResultsAfterGrading, studentSees: false},
		{name: "hidden", visibility: models.ResultsHidden, studentSees: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			quiz := publishedQuiz(5, mcqQuestion(501, 1, 51, 52), shortAnswerQuestion(502, 4))
			quiz.ResultsVisibility = tt.visibility
			env.repo.addQuiz(quiz)
			ctx := context.Background()
			attempt := start(t, env, 5, student)

			if _, err := env.attempts.Submit(ctx, attempt.ID, &SubmitAttemptRequest{Answers: []AnswerInput{
				{QuestionID: 501, SelectedOptionID: uintPtr(51)},
				{QuestionID: 502, AnswerText: stringPtr("because")},
			}}, student); err != nil {
				t.Fatalf("Submit: %v", err)
			}

			resp, err := env.attempts.GetAttempt(ctx, attempt.ID, student)
			if err != nil {
				t.Fatalf("GetAttempt: %v", err)
			}
			if resp.ResultsVisible != tt.studentSees || (resp.Score != nil) != tt.studentSees {
				t.Errorf("student visibility = %v (score %v), want %v", resp.ResultsVisible, resp.Score, tt.studentSees)
			}
			for _, a := range resp.Answers {
				if !tt.studentSees && (a.IsCorrect != nil || a.PointsAwarded != nil) {
					t.Errorf("answer %d leaks grading", a.QuestionID)
				}
			}

			review, err := env.attempts.GetAttempt(ctx, attempt.ID, teacher)
			if err != nil {
				t.Fatalf("GetAttempt as teacher: %v", err)
			}
			if !review.ResultsVisible || review.Score == nil || *review.Score != 1 || review.Status != models.AttemptSubmitted {
				t.Errorf("teacher view = %+v", review)
			}
		})
	}
}

func TestListQuizAttempts(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.MaxAttempts = 0
	env.repo.addQuiz(quiz)
	ctx := context.Background()

	for _, u := range []*models.User{student, student2} {
		a := start(t, env, 1, u)
		if _, err := env.attempts.Submit(ctx, a.ID, &SubmitAttemptRequest{}, u); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := env.attempts.ListQuizAttempts(ctx, 1, repositories.AttemptFilters{}, student); !errors.Is(err, ErrInsufficientPermissions) {
		t.Fatalf("student list err = %v", err)
	}

	list, err := env.attempts.ListQuizAttempts(ctx, 1, repositories.AttemptFilters{Limit: 1}, teacher)
	if err != nil {
		t.Fatalf("ListQuizAttempts: %v", err)
	}
	if list.Total != 2 || len(list.Attempts) != 1 {
		t.Errorf("total=%d page=%d, want 2/1", list.Total, len(list.Attempts))
	}
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv()
	quiz := scenarioQuiz()
	quiz.DurationMinutes = 10
	env.repo.addQuiz(quiz)
	unlimited := publishedQuiz(6, mcqQuestion(601, 1, 61))
	env.repo.addQuiz(unlimited)

	expiredA := start(t, env, 1, student)
	expiredB := start(t, env, 1, student2)
	open := start(t, env, 6, student)

	env.clock.Advance(15 * time.Minute)
	swept, err := env.attempts.SweepExpired(context.Background(), 10)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 2 {
		t.Errorf("swept = %d, want 2", swept)
	}
	for _, id := range []uint{expiredA.ID, expiredB.ID} {
		if got := env.repo.storedAttempt(id).Status; got != models.AttemptTimedOut {
			t.Errorf("attempt %d status = %s", id, got)
		}
	}
	if got := env.repo.storedAttempt(open.ID).Status; got != models.AttemptStarted {
		t.Errorf("unlimited attempt status = %s", got)
	}

	again, err := env.attempts.SweepExpired(context.Background(), 10)
	if err != nil || again != 0 {
		t.Errorf("second sweep = %d, %v", again, err)
	}
}
