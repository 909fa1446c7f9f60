package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
)

const (
	resultsSheet = "Results"
	answersSheet = "Answers"
)

var (
	resultsHeader = []interface{}{
		"Attempt ID", "User ID", "Name", "Email", "Attempt #", "Status",
		"Started At", "Submitted At", "Graded At", "Score", "Max Score", "Percentage",
		"Violations", "Pending Answers",
	}
	answersHeader = []interface{}{
		"Attempt ID", "User ID", "Question ID", "Question Type", "Grading Status",
		"Points Awarded", "Max Points", "Correct", "Graded By",
	}
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *exportService) ExportQuizResults(ctx context.Context, quizID uint, user *models.User) ([]byte, string, error) {
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return nil, "", NewPermissionError(user.ID, quizID, "quiz", "export_results", "teacher or admin role required")
	}

	quiz, err := loadQuiz(ctx, s.repo, quizID)
	if err != nil {
		return nil, "", err
	}

	attempts, _, err := s.repo.Attempt().ListByQuiz(ctx, nil, quizID, repositories.AttemptFilters{
		Statuses:  []models.AttemptStatus{models.AttemptSubmitted, models.AttemptGraded, models.AttemptTimedOut},
		SortBy:    "start_time",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list attempts: %w", err)
	}

	users := s.resolveUsers(ctx, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := writeResultsSheet(f, quiz, attempts, users); err != nil {
		return nil, "", fmt.Errorf("failed to write results sheet: %w", err)
	}
	if err := writeAnswersSheet(f, quiz, attempts); err != nil {
		return nil, "", fmt.Errorf("failed to write answers sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("quiz-%d-results-%s.xlsx", quiz.ID, s.now().Format("20060102-150405"))
	s.logger.Info("Quiz results exported",
		"quiz_id", quiz.ID,
		"attempts", len(attempts),
		"requested_by", user.ID)

	return buf.Bytes(), filename, nil
}

// resolveUsers looks up display names; the export still succeeds without them
func (s *exportService) resolveUsers(ctx context.Context, attempts []*models.Attempt) map[string]*models.User {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			ids = append(ids, a.UserID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve users for export", "error", err)
		return nil
	}
	return users
}

func writeResultsSheet(f *excelize.File, quiz *models.Quiz, attempts []*models.Attempt, users map[string]*models.User) error {
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}
	if err := writeHeader(f, resultsSheet, resultsHeader); err != nil {
		return err
	}

	for i, a := range attempts {
		name, email := "", ""
		if u, ok := users[a.UserID]; ok {
			name, email = u.FullName, u.Email
		}
		pending := 0
		for _, ans := range a.Answers {
			if ans.GradingStatus == models.GradingPending {
				pending++
			}
		}

		row := []interface{}{
			a.ID, a.UserID, name, email, a.AttemptNumber, string(a.Status),
			formatTime(&a.StartTime), formatTime(a.SubmitTime), formatTime(a.GradingCompletedAt),
			a.Score, a.MaxScorePossible, percentage(a.Score, a.MaxScorePossible),
			a.ViolationCount, pending,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(resultsSheet, "A", "N", 18)
}

func writeAnswersSheet(f *excelize.File, quiz *models.Quiz, attempts []*models.Attempt) error {
	if _, err := f.NewSheet(answersSheet); err != nil {
		return err
	}
	if err := writeHeader(f, answersSheet, answersHeader); err != nil {
		return err
	}

	questions := quiz.QuestionMap()
	rowNum := 2
	for _, a := range attempts {
		for _, ans := range a.Answers {
			questionType, maxPoints := "", 0
			if q, ok := questions[ans.QuestionID]; ok {
				questionType, maxPoints = string(q.Type), q.Points
			}
			correct := ""
			if ans.IsCorrect != nil {
				correct = fmt.Sprintf("%t", *ans.IsCorrect)
			}
			gradedBy := ""
			if ans.GradedBy != nil {
				gradedBy = *ans.GradedBy
			}

			row := []interface{}{
				a.ID, a.UserID, ans.QuestionID, questionType, string(ans.GradingStatus),
				ans.PointsAwarded, maxPoints, correct, gradedBy,
			}
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(answersSheet, cell, &row); err != nil {
				return err
			}
			rowNum++
		}
	}

	return f.SetColWidth(answersSheet, "A", "I", 16)
}

func writeHeader(f *excelize.File, sheet string, header []interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(score/maxScore*10000) / 100
}
