package controllers

import (
	"errors"
	"net/http"

	"github.com/transitlab/sirihub/internal/services"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/gin-gonic/gin"
)

type inboundMessageController struct{ dispatcher services.Dispatcher }

func NewInboundMessageController(dispatcher services.Dispatcher) *inboundMessageController {
	return &inboundMessageController{dispatcher}
}

// Handle receives messages pushed by a provider to this subscription's
// consumer address.
func (h *inboundMessageController) Handle(c *gin.Context) {
	subscriptionID := c.Param("subscriptionId")

	env, err := readSiri(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err = h.dispatcher.Process(c.Request.Context(), subscriptionID, env)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, domain.ErrServiceNotSupported):
		// A pushed variant we cannot handle is acknowledged and dropped;
		// failing the request would only make the provider retry it.
		c.Status(http.StatusOK)
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown subscription"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
