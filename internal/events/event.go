// Package events publishes attempt lifecycle events for downstream consumers
// (results display, certificates, gamification, notifications).
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "quiz-attempt-service"
	EventVersion = "1.0"
)

// Event types
const (
	AttemptStarted         = "attempt.started"
	AttemptFinalized       = "attempt.finalized"
	AttemptGraded          = "attempt.graded"
	IntegrityEventRecorded = "integrity.event_recorded"
)

// Topics
const (
	TopicAttempts  = "quiz.attempts"
	TopicIntegrity = "quiz.integrity"
)

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewEvent(eventType string, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	if eventType == IntegrityEventRecorded {
		return TopicIntegrity
	}
	return TopicAttempts
}

type AttemptEventData struct {
	AttemptID        uint       `json:"attempt_id"`
	QuizID           uint       `json:"quiz_id"`
	UserID           string     `json:"user_id"`
	AttemptNumber    int        `json:"attempt_number"`
	Status           string     `json:"status"`
	Score            float64    `json:"score"`
	MaxScorePossible float64    `json:"max_score_possible"`
	Forced           bool       `json:"forced,omitempty"`
	SubmitTime       *time.Time `json:"submit_time,omitempty"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
}

type IntegrityEventData struct {
	EventID        uint      `json:"event_id"`
	AttemptID      uint      `json:"attempt_id"`
	QuizID         uint      `json:"quiz_id"`
	UserID         string    `json:"user_id"`
	EventType      string    `json:"event_type"`
	ViolationCount int       `json:"violation_count"`
	OccurredAt     time.Time `json:"occurred_at"`
}
