package controllers

import (
	"net/http"

	"github.com/transitlab/sirihub/internal/services"

	"github.com/gin-gonic/gin"
)

type stopSubscriptionController struct{ manager services.SubscriptionManager }

func NewStopSubscriptionController(manager services.SubscriptionManager) *stopSubscriptionController {
	return &stopSubscriptionController{manager}
}

func (h *stopSubscriptionController) Handle(c *gin.Context) {
	subscriptionID := c.Param("subscriptionId")
	if !h.manager.IsRegistered(c.Request.Context(), subscriptionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := h.manager.SetActive(c.Request.Context(), subscriptionID, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
