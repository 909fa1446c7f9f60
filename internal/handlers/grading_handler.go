package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	exportService  services.ExportService
}

func NewGradingHandler(gradingService services.GradingService, exportService services.ExportService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		exportService:  exportService,
	}
}

// GradeAnswer grades a PENDING answer manually
// @Summary Grade answer manually
// @Tags grading
// @Accept json
// @Produce json
// @Param answer_id path uint true "Answer ID"
// @Param grade body services.GradeAnswerRequest true "Grade"
// @Success 200 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /grading/answers/{answer_id} [post]
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req services.GradeAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Grading answer", "answer_id", answerID, "points", req.Points)

	attempt, err := h.gradingService.GradeAnswer(c.Request.Context(), answerID, &req, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ExportQuizResults downloads finalized attempts of a quiz as XLSX
// @Summary Export quiz results
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param quiz_id path uint true "Quiz ID"
// @Success 200 {file} file
// @Failure 403 {object} ErrorResponse
// @Router /grading/quizzes/{quiz_id}/export [get]
func (h *GradingHandler) ExportQuizResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "quiz_id")
	if quizID == 0 {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	data, filename, err := h.exportService.ExportQuizResults(c.Request.Context(), quizID, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
