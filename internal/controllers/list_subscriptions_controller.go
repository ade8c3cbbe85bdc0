package controllers

import (
	"net/http"

	"github.com/transitlab/sirihub/internal/services"

	"github.com/gin-gonic/gin"
)

// StartedReporter exposes the process-local lifecycle flag for admin views.
type StartedReporter interface {
	Started(subscriptionID string) bool
}

type listSubscriptionsController struct {
	manager services.SubscriptionManager
	started StartedReporter
}

func NewListSubscriptionsController(manager services.SubscriptionManager, started StartedReporter) *listSubscriptionsController {
	return &listSubscriptionsController{manager, started}
}

func (h *listSubscriptionsController) Handle(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.started != nil {
		for _, st := range stats {
			st.Started = h.started.Started(st.Subscription.SubscriptionID)
		}
	}
	c.JSON(http.StatusOK, stats)
}
