package controllers

import (
	"errors"
	"net/http"

	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/internal/services"
	"github.com/admarket/moderation/pkg/domain"

	"github.com/gin-gonic/gin"
)

type closeListingController struct{ svc services.CloseService }

func NewCloseListingController(svc services.CloseService) *closeListingController {
	return &closeListingController{svc}
}

func (h *closeListingController) Handle(c *gin.Context) {
	var req domain.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	closedNow, err := h.svc.Close(c.Request.Context(), req.ListingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	msg := "Listing closed"
	if !closedNow {
		msg = "Listing was already closed"
	}
	c.JSON(http.StatusOK, domain.CloseListingResponse{
		Success:   true,
		Message:   msg,
		ListingID: req.ListingID,
	})
}
