package controllers

import (
	"errors"
	"net/http"

	"github.com/transitlab/sirihub/internal/services"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/gin-gonic/gin"
)

type startSubscriptionController struct{ manager services.SubscriptionManager }

func NewStartSubscriptionController(manager services.SubscriptionManager) *startSubscriptionController {
	return &startSubscriptionController{manager}
}

// Handle marks the subscription as wanted; the lifecycle loop on the leader
// node performs the actual start on its next tick.
func (h *startSubscriptionController) Handle(c *gin.Context) {
	subscriptionID := c.Param("subscriptionId")
	if !h.manager.IsRegistered(c.Request.Context(), subscriptionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := h.manager.SetActive(c.Request.Context(), subscriptionID, true); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
