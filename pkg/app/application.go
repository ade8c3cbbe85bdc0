package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/transitlab/sirihub/internal/collections"
	"github.com/transitlab/sirihub/internal/leader"
	"github.com/transitlab/sirihub/internal/metrics"
	"github.com/transitlab/sirihub/internal/middleware"
	"github.com/transitlab/sirihub/internal/providers"
	"github.com/transitlab/sirihub/internal/ratelimit"
	"github.com/transitlab/sirihub/internal/repository"
	"github.com/transitlab/sirihub/internal/services"
	"github.com/transitlab/sirihub/internal/transformer"
	"github.com/transitlab/sirihub/pkg/config"

	"github.com/gin-gonic/gin"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Logger      *slog.Logger
	TZ          *time.Location
	Manager     services.SubscriptionManager
	Initializer services.InitializerService
	Dispatcher  *services.DispatcherService
	Requester   services.Requester
	Trigger     *services.TriggerService
	Limiter     ratelimit.Limiter
	Stores      *collections.Stores
	Registry    *transformer.Registry
}

// ApplicationOption configures the Application before wiring completes.
type ApplicationOption func(*Application) error

// WithAdapterFactory registers an extra value-adapter factory under the given
// id, so deployments can plug vendor-specific mapping chains without forking.
func WithAdapterFactory(id string, f transformer.Factory) ApplicationOption {
	return func(app *Application) error {
		return app.Registry.Register(id, f)
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(redisClient)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "sirihub", "env", cfg.Env)
	slog.SetDefault(logger)

	metrics.RegisterRedisCollector(redisClient, logger)

	subRepo := repository.NewSubscriptionRepository(redisClient)
	activityRepo := repository.NewActivityRepository(redisClient)
	stores := collections.NewStores(redisClient)

	registry := transformer.NewRegistry()
	if err := registry.Register("prefix", transformer.PrefixChain); err != nil {
		return nil, err
	}

	manager := services.NewSubscriptionManager(subRepo, activityRepo, cfg.HealthCheckFactor, logger)
	initializer := services.NewInitializerService(subRepo, activityRepo, registry, logger)
	dispatcher := services.NewDispatcher(manager, stores, logger)
	requester := services.NewRequester(manager, dispatcher, cfg.InboundURL, logger)

	gate := leader.NewRedisLeaseGate(redisClient, cfg.NodeID, time.Duration(cfg.LeaderLeaseSeconds)*time.Second)
	trigger := services.NewTriggerService(
		manager,
		requester,
		gate,
		time.Duration(cfg.TriggerIntervalSeconds)*time.Second,
		cfg.HealthCheckFactor,
		logger,
	)
	dispatcher.SetPullTrigger(trigger)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware("sirihub"),
	)

	app := &Application{
		Config:      cfg,
		Engine:      engine,
		Logger:      logger,
		TZ:          loc,
		Manager:     manager,
		Initializer: initializer,
		Dispatcher:  dispatcher,
		Requester:   requester,
		Trigger:     trigger,
		Limiter:     limiter,
		Stores:      stores,
		Registry:    registry,
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Boot loads the configured subscription set, reconciles it against the shared
// store, wires the resolved value-adapter chains into the dispatcher and
// starts the trigger engine. It must run exactly once, after NewApplication
// and before the HTTP server accepts traffic.
func (a *Application) Boot(ctx context.Context) error {
	configured, err := config.LoadSubscriptions(a.Config.SubscriptionsFile)
	if err != nil {
		return err
	}
	chains, err := a.Initializer.Reconcile(ctx, configured)
	if err != nil {
		return err
	}
	a.Dispatcher.SetChains(chains)
	return a.Trigger.Run(ctx)
}

// Shutdown stops the trigger engine and waits for its loops to drain.
func (a *Application) Shutdown() {
	a.Trigger.Stop()
}
