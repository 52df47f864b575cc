package database

import (
	"context"
	"fmt"
	"time"

	"scenario-server/internal/interfaces"

	"go.uber.org/zap"
)

// Storage backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type StoresOptions struct {
	Backend       string
	Redis         RedisOptions
	Postgres      PostgresOptions
	SlotClaimTTL  time.Duration
	RunMigrations bool
}

// Stores - три хранилища сценария на одном бэкенде.
type Stores struct {
	Graphs  interfaces.GraphStore
	Credits interfaces.CreditLedger
	Slots   interfaces.SlotRegistry
	closers []func()
}

// OpenStores подключается к выбранному бэкенду и собирает хранилища.
func OpenStores(ctx context.Context, opts StoresOptions, logger *zap.Logger) (*Stores, error) {
	switch opts.Backend {
	case BackendRedis, "":
		client, err := ConnectRedis(ctx, opts.Redis, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Graphs:  NewRedisGraphStore(client, logger),
			Credits: NewRedisCreditLedger(client, logger),
			Slots:   NewRedisSlotRegistry(client, opts.SlotClaimTTL, logger),
			closers: []func(){func() { _ = client.Close() }},
		}, nil

	case BackendPostgres:
		pool, err := ConnectPostgres(ctx, opts.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if opts.RunMigrations {
			if err := NewMigrator(pool, logger).Up(); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Stores{
			Graphs:  NewPgGraphStore(pool, logger),
			Credits: NewPgCreditLedger(pool, logger),
			Slots:   NewPgSlotRegistry(pool, opts.SlotClaimTTL, logger),
			closers: []func(){pool.Close},
		}, nil

	case BackendMemory:
		logger.Warn("Using in-memory storage, state is lost on restart and not shared between processes")
		return &Stores{
			Graphs:  NewMemoryGraphStore(),
			Credits: NewMemoryCreditLedger(),
			Slots:   NewMemorySlotRegistry(opts.SlotClaimTTL),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func (s *Stores) Close() {
	for _, c := range s.closers {
		c()
	}
}
