package models

import "time"

type IntegrityEventType string

const (
	IntegrityTabSwitch      IntegrityEventType = "TAB_SWITCH"
	IntegrityFocusLost      IntegrityEventType = "FOCUS_LOST"
	IntegrityFullscreenExit IntegrityEventType = "FULLSCREEN_EXIT"
	IntegrityCopyPaste      IntegrityEventType = "COPY_PASTE"
	IntegrityRightClick     IntegrityEventType = "RIGHT_CLICK"
	IntegrityOther          IntegrityEventType = "OTHER"
)

// IntegrityEventTypes lists the accepted event types.
var IntegrityEventTypes = []IntegrityEventType{
	IntegrityTabSwitch,
	IntegrityFocusLost,
	IntegrityFullscreenExit,
	IntegrityCopyPaste,
	IntegrityRightClick,
	IntegrityOther,
}

// IntegrityEvent is append-only; rows are never updated.
type IntegrityEvent struct {
	ID         uint               `json:"id" gorm:"primaryKey"`
	AttemptID  uint               `json:"attempt_id" gorm:"not null;index"`
	QuizID     uint               `json:"quiz_id" gorm:"not null;index"`
	UserID     string             `json:"user_id" gorm:"not null;size:255;index"`
	EventType  IntegrityEventType `json:"event_type" gorm:"size:50;not null"`
	Detail     *string            `json:"detail" gorm:"type:text"`
	OccurredAt time.Time          `json:"occurred_at" gorm:"not null;index"`
	CreatedAt  time.Time          `json:"created_at"`
}
