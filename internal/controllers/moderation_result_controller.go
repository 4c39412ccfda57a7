package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/internal/services"

	"github.com/gin-gonic/gin"
)

type moderationResultController struct{ svc services.StatusService }

func NewModerationResultController(svc services.StatusService) *moderationResultController {
	return &moderationResultController{svc}
}

func (h *moderationResultController) Handle(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	res, err := h.svc.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, res)
}
