package controllers

import (
	"net/http"
	"strings"

	"github.com/transitlab/sirihub/internal/services"

	"github.com/gin-gonic/gin"
)

type removeSubscriptionController struct{ manager services.SubscriptionManager }

func NewRemoveSubscriptionController(manager services.SubscriptionManager) *removeSubscriptionController {
	return &removeSubscriptionController{manager}
}

// Handle deactivates a subscription; with ?force=true the record and all its
// tracking state are purged.
func (h *removeSubscriptionController) Handle(c *gin.Context) {
	subscriptionID := c.Param("subscriptionId")
	force := strings.EqualFold(c.Query("force"), "true")

	if err := h.manager.Remove(c.Request.Context(), subscriptionID, force); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
