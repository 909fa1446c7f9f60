package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/models"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/utils"
)

type HandlerManager struct {
	attemptHandler   *AttemptHandler
	gradingHandler   *GradingHandler
	integrityHandler *IntegrityHandler
	authMiddleware   *CasdoorAuthMiddleware
	serviceManager   services.ServiceManager
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger, authMiddleware *CasdoorAuthMiddleware) *HandlerManager {
	return &HandlerManager{
		attemptHandler:   NewAttemptHandler(serviceManager.Attempt(), logger),
		gradingHandler:   NewGradingHandler(serviceManager.Grading(), serviceManager.Export(), logger),
		integrityHandler: NewIntegrityHandler(serviceManager.Integrity(), logger),
		authMiddleware:   authMiddleware,
		serviceManager:   serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	reviewers := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleProctor)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("/:quiz_id/attempts", hm.attemptHandler.StartOrResume)
			quizzes.GET("/:quiz_id/attempts", reviewers, hm.attemptHandler.ListQuizAttempts)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.Submit)
			attempts.GET("/:id/integrity-events", reviewers, hm.integrityHandler.ListEvents)
		}

		v1.POST("/integrity/events", hm.integrityHandler.RecordEvent)

		// Grading routes - Teachers, Proctors and Admins only
		grading := v1.Group("/grading")
		grading.Use(reviewers)
		{
			grading.POST("/answers/:answer_id", hm.gradingHandler.GradeAnswer)
			grading.GET("/quizzes/:quiz_id/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher), hm.gradingHandler.ExportQuizResults)
		}
	}

	router.GET("/health", hm.health)
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "quiz-attempt-service",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quiz-attempt-service",
	})
}
