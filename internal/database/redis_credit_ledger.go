package database

import (
	"context"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.CreditLedger = (*redisCreditLedger)(nil)

type redisCreditLedger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCreditLedger создает ледгер поверх счетчика Redis (GET / INCRBY).
func NewRedisCreditLedger(client *redis.Client, logger *zap.Logger) interfaces.CreditLedger {
	return &redisCreditLedger{
		client: client,
		logger: logger.Named("RedisCreditLedger"),
	}
}

func (r *redisCreditLedger) GetBalance(ctx context.Context, scenarioID string) (int64, error) {
	balance, err := r.client.Get(ctx, creditsKey(scenarioID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		r.logger.Error("Failed to read credit balance", zap.String("scenarioID", scenarioID), zap.Error(err))
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}
	return balance, nil
}

// Adjust - один INCRBY, атомарен относительно любых конкурентных вызовов.
func (r *redisCreditLedger) Adjust(ctx context.Context, scenarioID string, delta int64) (int64, error) {
	balance, err := r.client.IncrBy(ctx, creditsKey(scenarioID), delta).Result()
	if err != nil {
		r.logger.Error("Failed to adjust credit balance",
			zap.String("scenarioID", scenarioID),
			zap.Int64("delta", delta),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to adjust credit balance: %w", err)
	}
	r.logger.Debug("Credit balance adjusted", zap.String("scenarioID", scenarioID), zap.Int64("delta", delta), zap.Int64("balance", balance))
	return balance, nil
}
