package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/di"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	if cfg.ConfigFile != "" {
		watcher, err := config.NewWatcher(cfg.ConfigFile, logger)
		if err != nil {
			logger.Fatal("Failed to watch configuration", zap.Error(err))
		}
		defer watcher.Close()
		watcher.Subscribe(func(next *config.Config) {
			logger.Info("Configuration changed, restart to apply",
				zap.String("log_level", next.LogLevel),
				zap.Int("rate_limit_max", next.RateLimit.Max),
				zap.Duration("rate_limit_window", next.RateLimit.Window),
			)
		})
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      newRouter(container),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.Strings("middleware", container.Pipeline.Steps()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// newRouter mounts every subscriber route on chi. chi patterns use the same
// {param} syntax as API Gateway resources, so the matched pattern doubles as
// the event resource.
func newRouter(c *di.Container) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Heartbeat("/health"))
	r.Handle("/metrics", c.Collector.Handler())

	for _, route := range c.Router.Routes() {
		r.Method(route.Method, route.Resource, c.Pipeline.HTTP(route.Handler, chiRoute))
	}

	// Unmatched requests still run the pipeline so CORS preflights and the
	// 404 envelope behave as they do behind API Gateway.
	fallback := c.Pipeline.HTTP(c.Router.Handle, nil)
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)
	return r
}

func chiRoute(req *http.Request) (string, map[string]string) {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		return "", nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		params[key] = rctx.URLParams.Values[i]
	}
	return rctx.RoutePattern(), params
}
