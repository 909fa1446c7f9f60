package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
)

const (
	MaxAnswerTextLength = 10000
	MaxSourceCodeBytes  = 64 * 1024
	MaxDetailLength     = 2000
)

// BusinessValidator handles payload rules that depend on the question being answered
type BusinessValidator struct {
	validate *validator.Validate
}

func newBusinessValidator(validate *validator.Validate) *BusinessValidator {
	return &BusinessValidator{validate: validate}
}

// AnswerPayload is the type-specific part of a submitted answer
type AnswerPayload struct {
	SelectedOptionID *uint
	AnswerText       *string
	SubmittedCode    *string
	CodeLanguage     *string
}

// ValidateAnswerPayload checks that the payload fits the question type. An empty
// payload is valid: it is graded as unanswered.
func (bv *BusinessValidator) ValidateAnswerPayload(q *models.Question, p AnswerPayload) ValidationErrors {
	var errors ValidationErrors

	switch q.Type {
	case models.QuestionMCQ:
		if p.AnswerText != nil || p.SubmittedCode != nil {
			errors = append(errors, ValidationError{
				Field:   "answer",
				Message: "multiple choice answers accept only selected_option_id",
				Rule:    "payload_type",
			})
		}
		if p.SelectedOptionID != nil && !hasOption(q, *p.SelectedOptionID) {
			errors = append(errors, ValidationError{
				Field:   "selected_option_id",
				Message: "option does not belong to the question",
				Value:   *p.SelectedOptionID,
				Rule:    "option_exists",
			})
		}

	case models.QuestionFillInBlanks, models.QuestionShortAnswer:
		if p.SelectedOptionID != nil || p.SubmittedCode != nil {
			errors = append(errors, ValidationError{
				Field:   "answer",
				Message: "text answers accept only answer_text",
				Rule:    "payload_type",
			})
		}
		if p.AnswerText != nil && utf8.RuneCountInString(*p.AnswerText) > MaxAnswerTextLength {
			errors = append(errors, ValidationError{
				Field:   "answer_text",
				Message: fmt.Sprintf("must be at most %d characters", MaxAnswerTextLength),
				Rule:    "max",
			})
		}

	case models.QuestionCoding:
		if p.SelectedOptionID != nil || p.AnswerText != nil {
			errors = append(errors, ValidationError{
				Field:   "answer",
				Message: "coding answers accept only submitted_code and code_language",
				Rule:    "payload_type",
			})
		}
		if p.SubmittedCode != nil {
			if len(*p.SubmittedCode) > MaxSourceCodeBytes {
				errors = append(errors, ValidationError{
					Field:   "submitted_code",
					Message: fmt.Sprintf("must be at most %d bytes", MaxSourceCodeBytes),
					Rule:    "max",
				})
			}
			if strings.TrimSpace(*p.SubmittedCode) != "" && (p.CodeLanguage == nil || strings.TrimSpace(*p.CodeLanguage) == "") {
				errors = append(errors, ValidationError{
					Field:   "code_language",
					Message: "is required when code is submitted",
					Rule:    "required_with",
				})
			}
		}

	default:
		errors = append(errors, ValidationError{
			Field:   "question_type",
			Message: "must be a valid question type",
			Value:   q.Type,
			Rule:    "question_type",
		})
	}

	return errors
}

// ValidateManualGrade checks a reviewer-assigned score.
func (bv *BusinessValidator) ValidateManualGrade(points float64, q *models.Question) ValidationErrors {
	if points < 0 || points > float64(q.Points) {
		return ValidationErrors{{
			Field:   "points",
			Message: fmt.Sprintf("must be between 0 and %d", q.Points),
			Value:   points,
			Rule:    "points_range",
		}}
	}
	return nil
}

// ValidateIntegrityDetail bounds free-form client-supplied detail.
func (bv *BusinessValidator) ValidateIntegrityDetail(detail *string) ValidationErrors {
	if detail != nil && utf8.RuneCountInString(*detail) > MaxDetailLength {
		return ValidationErrors{{
			Field:   "detail",
			Message: fmt.Sprintf("must be at most %d characters", MaxDetailLength),
			Rule:    "max",
		}}
	}
	return nil
}

func hasOption(q *models.Question, optionID uint) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}
