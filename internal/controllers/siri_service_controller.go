package controllers

import (
	"errors"
	"net/http"

	"github.com/transitlab/sirihub/internal/services"
	"github.com/transitlab/sirihub/internal/transformer"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/gin-gonic/gin"
)

type siriServiceController struct{ dispatcher services.Dispatcher }

func NewSiriServiceController(dispatcher services.Dispatcher) *siriServiceController {
	return &siriServiceController{dispatcher}
}

// Handle serves clients that have no established subscription: subscription
// and termination requests, status probes, and synchronous data requests.
// The id form of the response is chosen by query parameter.
func (h *siriServiceController) Handle(c *gin.Context) {
	env, err := readSiri(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	policy := transformer.PolicyFromQuery(c.Request.URL.Query())
	resp, err := h.dispatcher.ServeAnonymous(c.Request.Context(), env, policy)
	switch {
	case err == nil:
		resp.Version = env.Version
		writeSiri(c, http.StatusOK, resp)
	case errors.Is(err, domain.ErrServiceNotSupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
