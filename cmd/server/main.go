package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scenario-server/internal/app"
	"scenario-server/internal/config"
	"scenario-server/internal/handler"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/logger"
	"scenario-server/internal/messaging"
	"scenario-server/internal/middleware"
	"scenario-server/internal/oracle"
	"scenario-server/internal/service"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск scenario-server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Service: "scenario-server"})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось инициализировать компоненты", zap.Error(err))
	}
	defer core.Close()

	aiClient, err := oracle.NewClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось создать AI клиент", zap.Error(err))
	}

	// Без RabbitMQ асинхронные батчи выполняются в этом же процессе.
	var tasks interfaces.TaskPublisher
	var localTasks *messaging.LocalTaskPublisher
	if core.Rabbit != nil {
		publisher, err := messaging.NewBatchTaskPublisher(core.Rabbit, cfg.BatchTaskQueue, appLogger)
		if err != nil {
			appLogger.Fatal("Не удалось создать BatchTaskPublisher", zap.Error(err))
		}
		defer func() { _ = publisher.Close() }()
		tasks = publisher
	} else {
		localTasks = messaging.NewLocalTaskPublisher(core.Orchestrator, 0, appLogger)
		tasks = localTasks
	}

	var verifier *middleware.InterServiceVerifier
	if cfg.InterServiceSecret != "" {
		if verifier, err = middleware.NewInterServiceVerifier(cfg.InterServiceSecret, appLogger); err != nil {
			appLogger.Fatal("Не удалось создать InterServiceVerifier", zap.Error(err))
		}
	}

	stores := core.Stores
	selector := service.NewPathSelector(aiClient, cfg.SelectorFallbackOnInvalid, appLogger)
	scenarioService := service.NewScenarioService(stores.Graphs, stores.Credits, stores.Slots, aiClient, selector, core.Updates, appLogger)
	creditService := service.NewCreditService(stores.Credits, appLogger)
	scenarioHandler := handler.NewScenarioHandler(scenarioService, creditService, core.Orchestrator, core.Generator, tasks, verifier, appLogger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.RequestID())
	e.Use(middleware.EchoZapLogger(appLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	scenarioHandler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static("/assets", cfg.BlobStorageDir)

	go func() {
		appLogger.Info("HTTP сервер слушает", zap.String("port", cfg.ServerPort))
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Ошибка при graceful shutdown Echo", zap.Error(err))
	}
	if localTasks != nil {
		appLogger.Info("Ожидание завершения локальных батч-задач...")
		localTasks.Wait()
	}

	appLogger.Info("scenario-server остановлен")
}
