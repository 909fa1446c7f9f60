package services

import (
	"errors"
	"fmt"
)

// Attempt errors
var (
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotActive     = errors.New("attempt is not active")
	ErrAttemptTimeExpired   = errors.New("attempt time has expired")
	ErrAttemptLimitExceeded = errors.New("maximum number of attempts reached")
	ErrAttemptAccessDenied  = errors.New("access to attempt denied")
)

// Quiz errors
var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotAvailable = errors.New("quiz is not available for attempts")
)

// Answer errors
var (
	ErrQuestionNotPresented = errors.New("question is not part of this attempt")
	ErrAnswerNotFound       = errors.New("answer not found")
	ErrAnswerNotPending     = errors.New("answer is not awaiting grading")
)

var (
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrJudgeNotConfigured      = errors.New("judge runner not configured")
)

// BusinessRuleError reports a request that is well formed but not allowed in the current state
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation [%s]: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// PermissionError reports that a user may not perform an action on a resource
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

// Unwrap lets errors.Is match ErrInsufficientPermissions
func (e *PermissionError) Unwrap() error {
	return ErrInsufficientPermissions
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
