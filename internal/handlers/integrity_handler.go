package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/utils"
)

type IntegrityHandler struct {
	BaseHandler
	integrityService services.IntegrityService
}

func NewIntegrityHandler(integrityService services.IntegrityService, logger utils.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		BaseHandler:      NewBaseHandler(logger),
		integrityService: integrityService,
	}
}

// RecordEvent ingests one client-reported integrity event
// @Summary Record integrity event
// @Tags integrity
// @Accept json
// @Produce json
// @Param event body services.RecordIntegrityEventRequest true "Event"
// @Success 201 {object} services.IntegrityEventResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /integrity/events [post]
func (h *IntegrityHandler) RecordEvent(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req services.RecordIntegrityEventRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.integrityService.RecordEvent(c.Request.Context(), &req, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListEvents returns the integrity log of an attempt
// @Summary List integrity events
// @Tags integrity
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {array} models.IntegrityEvent
// @Failure 403 {object} ErrorResponse
// @Router /attempts/{id}/integrity-events [get]
func (h *IntegrityHandler) ListEvents(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	list, err := h.integrityService.ListEvents(c.Request.Context(), id, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id": id,
		"events":     list,
		"total":      len(list),
	})
}
