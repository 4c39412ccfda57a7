package controllers

import (
	"net/http"

	"github.com/admarket/moderation/internal/services"
	"github.com/admarket/moderation/pkg/domain"

	"github.com/gin-gonic/gin"
)

// predictController scores inline attributes without touching storage; useful
// for model smoke checks and callers that hold the features already.
type predictController struct{ svc services.PredictService }

func NewPredictController(svc services.PredictService) *predictController {
	return &predictController{svc}
}

func (h *predictController) Handle(c *gin.Context) {
	var req domain.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	p := h.svc.Predict(domain.ListingFeatures{
		ListingID:        req.ListingID,
		IsVerifiedSeller: req.IsVerifiedSeller,
		ImagesQty:        req.ImagesQty,
		Description:      req.Description,
		Category:         req.Category,
	})
	c.JSON(http.StatusOK, p)
}
