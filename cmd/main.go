package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/axiesales/internal/adapters/http/api"
	"github.com/okian/axiesales/internal/adapters/http/swagger"
	service "github.com/okian/axiesales/internal/app"
	"github.com/okian/axiesales/internal/config"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get().Named("main")

	svc := service.New(cfg, service.WithLogger(logger.Get().Named("service")))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return 1
	}

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	code := 0
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
		code = 1
	}

	// Graceful shutdown with timeout. Stop ingress first so nothing is
	// accepted while the workers drain the queue.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown incomplete", logger.Error(err))
		code = 1
	}

	log.Info(shutdownCtx, "server stopped")
	return code
}

// newMux registers the API and documentation routes.
func newMux(ctx context.Context, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// startServiceMetricsUpdater periodically publishes gauges that are not
// updated on the hot path.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if parts, ok := stats["catalogParts"].(int); ok {
		metrics.UpdateCatalogParts(parts)
	}
}
