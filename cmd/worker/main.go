package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/edital-watch/internal/adapters/http"
	"github.com/kirillkom/edital-watch/internal/bootstrap"
	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/observability/logging"
	"github.com/kirillkom/edital-watch/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("EDITAL_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(os.Stdout, "worker", cfg.Log.Level, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg, logger, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer worker.Close()

	router := httpadapter.NewRouter(worker.Tracker, worker.Store, metrics.Handler(worker.Registry), logger)
	server := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_http_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	worker.Sweep(ctx)
	scheduler, err := worker.StartScheduler(ctx)
	if err != nil {
		log.Fatalf("scheduler error: %v", err)
	}

	<-ctx.Done()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
	logger.Info("worker_stopped")
}
