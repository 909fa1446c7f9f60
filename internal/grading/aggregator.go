package grading

import (
	"time"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

// Outcome is the attempt-level result of aggregation.
type Outcome struct {
	Score              float64
	MaxScore           float64
	Status             models.AttemptStatus
	PendingAnswers     int
	GradingCompletedAt *time.Time
}

// FullyGraded reports whether no answer is still waiting on a grader or the judge.
func (o Outcome) FullyGraded() bool {
	return o.PendingAnswers == 0
}

// Aggregate sums GRADED answers for the presented questions only. The max score is the
// sum of presented question points. PENDING and ERROR answers both wait for review, so
// either keeps the attempt SUBMITTED. Forced submissions always end TIMED_OUT.
func Aggregate(presented []uint, questions map[uint]*models.Question, answers []models.Answer, forced bool, now time.Time) Outcome {
	var out Outcome
	inAttempt := make(map[uint]*models.Question, len(presented))
	for _, id := range presented {
		if _, dup := inAttempt[id]; dup {
			continue
		}
		// nil when the question was unlinked after the attempt started
		q := questions[id]
		inAttempt[id] = q
		if q != nil {
			out.MaxScore += float64(q.Points)
		}
	}

	for i := range answers {
		a := &answers[i]
		q, ok := inAttempt[a.QuestionID]
		if !ok {
			continue
		}
		switch a.GradingStatus {
		case models.GradingGraded:
			if q == nil {
				continue
			}
			points := a.PointsAwarded
			if limit := float64(q.Points); points > limit {
				points = limit
			}
			if points > 0 {
				out.Score += points
			}
		case models.GradingPending, models.GradingError:
			out.PendingAnswers++
		}
	}

	if out.Score > out.MaxScore {
		out.Score = out.MaxScore
	}

	switch {
	case forced:
		out.Status = models.AttemptTimedOut
		if out.FullyGraded() {
			out.GradingCompletedAt = &now
		}
	case out.FullyGraded():
		out.Status = models.AttemptGraded
		out.GradingCompletedAt = &now
	default:
		out.Status = models.AttemptSubmitted
	}
	return out
}
