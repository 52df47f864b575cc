package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scenario-server/internal/app"
	"scenario-server/internal/config"
	"scenario-server/internal/logger"
	"scenario-server/internal/messaging"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required for the batch worker")
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Service: "scenario-worker"})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Starting batch worker...", zap.Int("concurrency", cfg.WorkerConcurrency))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer core.Close()

	// метрики воркера
	metricsServer := &http.Server{Addr: ":" + cfg.ServerPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	consumer := messaging.NewBatchTaskConsumer(core.Rabbit, cfg.BatchTaskQueue, core.Orchestrator, cfg.WorkerConcurrency, appLogger)
	if err := consumer.Start(ctx); err != nil {
		appLogger.Error("Batch consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	appLogger.Info("Batch worker stopped")
}
