package models

import (
	"strings"
	"time"
)

type QuestionType string

const (
	QuestionMCQ          QuestionType = "MCQ"
	QuestionFillInBlanks QuestionType = "FILL_IN_BLANKS"
	QuestionShortAnswer  QuestionType = "SHORT_ANSWER"
	QuestionCoding       QuestionType = "CODING"
)

func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMCQ, QuestionFillInBlanks, QuestionShortAnswer, QuestionCoding:
		return true
	}
	return false
}

type Question struct {
	ID             uint         `json:"id" gorm:"primaryKey"`
	OrganizationID *uint        `json:"organization_id" gorm:"index"`
	Type           QuestionType `json:"type" gorm:"size:32;not null;index"`
	Text           string       `json:"text" gorm:"type:text;not null"`
	Difficulty     *string      `json:"difficulty" gorm:"size:20"`
	Points         int          `json:"points" gorm:"not null;default:1"`

	// FILL_IN_BLANKS: pipe-delimited acceptable answers, e.g. "42|forty-two"
	CorrectAnswerText *string `json:"correct_answer_text" gorm:"type:text"`
	Explanation       *string `json:"explanation,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Options       []QuestionOption `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
	TestCases     []TestCase       `json:"test_cases,omitempty" gorm:"foreignKey:QuestionID"`
	CodeTemplates []CodeTemplate   `json:"code_templates,omitempty" gorm:"foreignKey:QuestionID"`
}

type QuestionOption struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	QuestionID   uint    `json:"question_id" gorm:"not null;index"`
	Text         string  `json:"text" gorm:"type:text;not null"`
	IsCorrect    bool    `json:"is_correct" gorm:"not null;default:false"`
	DisplayOrder int     `json:"display_order" gorm:"not null;default:0"`
	Feedback     *string `json:"feedback" gorm:"type:text"`
}

type TestCase struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	QuestionID     uint    `json:"question_id" gorm:"not null;index"`
	Input          *string `json:"input,omitempty" gorm:"type:text"`
	ExpectedOutput string  `json:"expected_output,omitempty" gorm:"type:text;not null"`
	IsHidden       bool    `json:"is_hidden" gorm:"not null;default:false"`
	Points         int     `json:"points" gorm:"not null;default:1"`
}

// CodeTemplate is starter code for one language of a CODING question.
type CodeTemplate struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	QuestionID   uint    `json:"question_id" gorm:"not null;index"`
	Language     string  `json:"language" gorm:"size:50;not null;index"`
	TemplateCode *string `json:"template_code" gorm:"type:text"`
}

// CorrectOption returns the single flagged-correct option of an MCQ.
func (q *Question) CorrectOption() (*QuestionOption, bool) {
	var found *QuestionOption
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			if found != nil {
				return nil, false
			}
			found = &q.Options[i]
		}
	}
	return found, found != nil
}

// AcceptedAnswers splits the FILL_IN_BLANKS answer list, dropping empty entries.
func (q *Question) AcceptedAnswers() []string {
	if q.CorrectAnswerText == nil {
		return nil
	}
	var out []string
	for _, a := range strings.Split(*q.CorrectAnswerText, "|") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// SupportsLanguage reports whether a CODING question accepts the language.
// Questions without templates accept any language the judge knows.
func (q *Question) SupportsLanguage(language string) bool {
	if len(q.CodeTemplates) == 0 {
		return true
	}
	for _, t := range q.CodeTemplates {
		if strings.EqualFold(t.Language, language) {
			return true
		}
	}
	return false
}
