package app

import (
	"net/http"

	"github.com/transitlab/sirihub/internal/controllers"
	"github.com/transitlab/sirihub/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	siri := app.Engine.Group("/siri", middleware.RateLimitInbound(app.Limiter, app.Config.InboundRateLimit))
	{
		// Anonymous consumer endpoint: subscription, termination, status and
		// data requests arrive here without a pre-registered subscription.
		siri.POST("", controllers.NewSiriServiceController(app.Dispatcher).Handle)
		// Push endpoint for a registered subscription: heartbeats,
		// confirmations and deliveries from the provider side.
		siri.POST("/:subscriptionId", controllers.NewInboundMessageController(app.Dispatcher).Handle)
	}

	admin := app.Engine.Group("/admin",
		middleware.AdminAuthMiddleware(app.Config),
		middleware.RequireAdminScope(),
	)
	{
		admin.GET("/subscriptions", controllers.NewListSubscriptionsController(app.Manager, app.Trigger).Handle)
		admin.GET("/subscriptions/:subscriptionId", controllers.NewSubscriptionStatusController(app.Manager, app.Trigger).Handle)
		admin.POST("/subscriptions/:subscriptionId/start", controllers.NewStartSubscriptionController(app.Manager).Handle)
		admin.POST("/subscriptions/:subscriptionId/stop", controllers.NewStopSubscriptionController(app.Manager).Handle)
		admin.DELETE("/subscriptions/:subscriptionId", controllers.NewRemoveSubscriptionController(app.Manager).Handle)
	}

	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	app.Engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
