// Package grading scores individual answers and aggregates them into attempt results.
package grading

import (
	"strings"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/judge"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// Evaluation is the verdict for one answer.
type Evaluation struct {
	IsCorrect  *bool
	Points     float64
	Status     models.GradingStatus
	Feedback   *string
	NeedsJudge bool // CODING answer must be sent to the judge
}

// Evaluate scores one answer against its question. It never blocks; CODING answers
// that need execution come back PENDING with NeedsJudge set.
func Evaluate(q *models.Question, a *models.Answer) Evaluation {
	switch q.Type {
	case models.QuestionMCQ:
		return evaluateMCQ(q, a)
	case models.QuestionFillInBlanks:
		return evaluateFillInBlanks(q, a)
	case models.QuestionShortAnswer:
		return pending("Awaiting manual grading")
	case models.QuestionCoding:
		return evaluateCodingSubmission(q, a)
	default:
		return Evaluation{Status: models.GradingError, Feedback: strPtr("Unsupported question type")}
	}
}

func evaluateMCQ(q *models.Question, a *models.Answer) Evaluation {
	if a.SelectedOptionID == nil {
		return incorrect()
	}
	correct, ok := q.CorrectOption()
	if !ok {
		return Evaluation{Status: models.GradingError, Feedback: strPtr("Question has no single correct option")}
	}
	if *a.SelectedOptionID == correct.ID {
		return Evaluation{IsCorrect: boolPtr(true), Points: float64(q.Points), Status: models.GradingGraded}
	}
	return incorrect()
}

// Matching is exact and case-sensitive after trimming the submission.
func evaluateFillInBlanks(q *models.Question, a *models.Answer) Evaluation {
	if a.AnswerText == nil {
		return incorrect()
	}
	text := strings.TrimSpace(*a.AnswerText)
	if text == "" {
		return incorrect()
	}
	for _, accepted := range q.AcceptedAnswers() {
		if text == accepted {
			return Evaluation{IsCorrect: boolPtr(true), Points: float64(q.Points), Status: models.GradingGraded}
		}
	}
	return incorrect()
}

func evaluateCodingSubmission(q *models.Question, a *models.Answer) Evaluation {
	if a.SubmittedCode == nil || strings.TrimSpace(*a.SubmittedCode) == "" {
		return incorrect()
	}
	if a.CodeLanguage == nil || !q.SupportsLanguage(*a.CodeLanguage) {
		return pending("Language not supported for automatic grading")
	}
	if len(q.TestCases) == 0 {
		return pending("No test cases configured")
	}
	return Evaluation{Status: models.GradingPending, NeedsJudge: true}
}

// ScoreCoding turns per-test-case judge outcomes into an answer verdict.
// Credit is proportional: the weights of accepted cases, capped at the question's points.
// Any indeterminate case leaves the whole answer PENDING with 0 points.
func ScoreCoding(q *models.Question, results []models.JudgeCaseResult) Evaluation {
	if len(results) == 0 {
		return pending("No judge results")
	}

	var earned float64
	passed := 0
	for _, r := range results {
		switch judge.Verdict(r.Verdict) {
		case judge.VerdictAccepted:
			earned += float64(r.Points)
			passed++
		case judge.VerdictRejected:
		default:
			return pending("Judge could not evaluate every test case")
		}
	}

	if limit := float64(q.Points); earned > limit {
		earned = limit
	}
	allPassed := passed == len(results)
	return Evaluation{
		IsCorrect: boolPtr(allPassed),
		Points:    earned,
		Status:    models.GradingGraded,
	}
}

// Apply copies an evaluation onto the answer row.
func (e Evaluation) Apply(a *models.Answer) {
	a.IsCorrect = e.IsCorrect
	a.GradingStatus = e.Status
	a.Feedback = e.Feedback
	if e.Status == models.GradingGraded {
		a.PointsAwarded = e.Points
	} else {
		a.PointsAwarded = 0
	}
}

func incorrect() Evaluation {
	return Evaluation{IsCorrect: boolPtr(false), Points: 0, Status: models.GradingGraded}
}

func pending(feedback string) Evaluation {
	return Evaluation{Status: models.GradingPending, Feedback: strPtr(feedback)}
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
