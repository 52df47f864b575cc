// Package app собирает компоненты scenario-server из конфигурации. Используется cmd/server и cmd/worker.
package app

import (
	"context"
	"fmt"

	"scenario-server/internal/config"
	"scenario-server/internal/database"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/messaging"
	"scenario-server/internal/provider"
	"scenario-server/internal/service"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Core - хранилища, конвейер генерации и публикация событий.
type Core struct {
	Stores       *database.Stores
	Pipeline     *service.AssetPipeline
	Orchestrator *service.BatchAssetOrchestrator
	Generator    *service.AssetGenerator
	Updates      interfaces.ClientUpdatePublisher
	// nil, если RABBITMQ_URL не задан
	Rabbit *amqp.Connection

	closers []func()
}

// StoresOptions переводит конфигурацию в параметры хранилищ.
func StoresOptions(cfg *config.Config) database.StoresOptions {
	return database.StoresOptions{
		Backend: cfg.StorageBackend,
		Redis: database.RedisOptions{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.ConnectMaxRetries,
			RetryDelay: cfg.ConnectRetryDelay,
		},
		Postgres: database.PostgresOptions{
			DSN:         cfg.GetDSN(),
			MaxConns:    cfg.DBMaxConns,
			IdleTimeout: cfg.DBIdleTimeout,
			MaxRetries:  cfg.ConnectMaxRetries,
			RetryDelay:  cfg.ConnectRetryDelay,
		},
		SlotClaimTTL:  cfg.SlotClaimTTL,
		RunMigrations: cfg.DBRunMigrations,
	}
}

// NewCore подключает хранилища и RabbitMQ (если задан) и собирает сервисы генерации.
func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	c := &Core{}

	stores, err := database.OpenStores(ctx, StoresOptions(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}
	c.Stores = stores
	c.closers = append(c.closers, stores.Close)

	blobs, err := provider.NewLocalBlobStorage(cfg.BlobStorageDir, cfg.BlobPublicBaseURL, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	videoProvider := provider.NewVideoProvider(cfg, logger)
	downloader := provider.NewHTTPDownloader(cfg.GenerationTimeout, logger)
	c.Pipeline = service.NewAssetPipeline(videoProvider, downloader, blobs, cfg, logger)

	if cfg.RabbitMQURL != "" {
		conn, err := messaging.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, cfg.ConnectMaxRetries, cfg.ConnectRetryDelay, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Rabbit = conn
		c.closers = append(c.closers, func() { _ = conn.Close() })

		updates, err := messaging.NewClientUpdatePublisher(conn, cfg.ClientUpdatesQueueName, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = updates.Close() })
		c.Updates = updates
	} else {
		c.Updates = messaging.NewLogClientUpdatePublisher(logger)
	}

	c.Orchestrator = service.NewBatchAssetOrchestrator(stores.Graphs, stores.Credits, stores.Slots, c.Pipeline, c.Updates, cfg.BatchMaxParallel, cfg.SlotClaimTTL, logger)
	c.Generator = service.NewAssetGenerator(stores.Graphs, stores.Credits, stores.Slots, c.Pipeline, c.Updates, logger)
	return c, nil
}

// Close освобождает ресурсы в обратном порядке.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
