package controllers

import (
	"errors"
	"net/http"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/internal/services"
	"github.com/admarket/moderation/pkg/domain"

	"github.com/gin-gonic/gin"
)

type asyncPredictController struct{ svc services.EnqueueService }

func NewAsyncPredictController(svc services.EnqueueService) *asyncPredictController {
	return &asyncPredictController{svc}
}

func (h *asyncPredictController) Handle(c *gin.Context) {
	var req domain.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	task, err := h.svc.Enqueue(c.Request.Context(), req.ListingID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, services.ErrQueueUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "moderation queue unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, domain.AsyncPredictResponse{
		TaskID:  task.TaskID,
		Status:  task.Status,
		Message: "Task enqueued for processing",
	})
}
