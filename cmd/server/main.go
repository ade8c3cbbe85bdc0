package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transitlab/sirihub/internal/tracing"
	"github.com/transitlab/sirihub/pkg/app"
	"github.com/transitlab/sirihub/pkg/config"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfgPath := getenv("SIRIHUB_CONFIG_PATH", "")

	cfg, err := config.LoadConfigOptional(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] invalid config:", err)
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init app:", err)
		os.Exit(1)
	}
	app.SetupMappings(application)

	tracingShutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      getenv("TRACING_ENABLED", "") == "true",
		ServiceName:  "sirihub",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: getenv("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		SampleRatio:  tracing.ParseSampleRatio(os.Getenv("TRACING_SAMPLE_RATIO")),
	}, application.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init tracing:", err)
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithCancel(context.Background())
	defer bootCancel()
	if err := application.Boot(bootCtx); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] boot:", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           application.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "[ERROR] http server:", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Stop the trigger loops first so no outbound protocol call races the
	// server teardown, then drain in-flight HTTP requests.
	bootCancel()
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = tracingShutdown(ctx)
}
