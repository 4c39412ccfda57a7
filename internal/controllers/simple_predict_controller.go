package controllers

import (
	"errors"
	"net/http"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/internal/services"
	"github.com/admarket/moderation/pkg/domain"

	"github.com/gin-gonic/gin"
)

type simplePredictController struct{ svc services.PredictService }

func NewSimplePredictController(svc services.PredictService) *simplePredictController {
	return &simplePredictController{svc}
}

func (h *simplePredictController) Handle(c *gin.Context) {
	var req domain.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	p, err := h.svc.PredictListing(c.Request.Context(), req.ListingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, p)
}
