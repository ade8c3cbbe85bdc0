package controllers

import (
	"errors"
	"net/http"

	"github.com/transitlab/sirihub/internal/services"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/gin-gonic/gin"
)

type subscriptionStatusController struct {
	manager services.SubscriptionManager
	started StartedReporter
}

func NewSubscriptionStatusController(manager services.SubscriptionManager, started StartedReporter) *subscriptionStatusController {
	return &subscriptionStatusController{manager, started}
}

func (h *subscriptionStatusController) Handle(c *gin.Context) {
	subscriptionID := c.Param("subscriptionId")
	st, err := h.manager.Status(c.Request.Context(), subscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.started != nil {
		st.Started = h.started.Started(subscriptionID)
	}
	c.JSON(http.StatusOK, st)
}
