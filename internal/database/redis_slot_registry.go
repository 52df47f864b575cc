package database

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"scenario-server/internal/interfaces"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.SlotRegistry = (*redisSlotRegistry)(nil)

// claimSlotScript: ZSET member = ключ слота, score = время захвата (мс); HASH KEYS[2] хранит токен владельца.
// Слот свободен, если его нет или захват старше ARGV[3] (ARGV[3] = -1 отключает перехват).
var claimSlotScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and (tonumber(ARGV[3]) < 0 or tonumber(score) > tonumber(ARGV[3])) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
return 1
`)

var refreshSlotScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
return 1
`)

var releaseSlotScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

type redisSlotRegistry struct {
	client   *redis.Client
	claimTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewRedisSlotRegistry создает реестр слотов поверх sorted set.
// claimTTL > 0 позволяет перехватить слот, захваченный раньше now-claimTTL (упавший процесс).
func NewRedisSlotRegistry(client *redis.Client, claimTTL time.Duration, logger *zap.Logger) interfaces.SlotRegistry {
	return &redisSlotRegistry{
		client:   client,
		claimTTL: claimTTL,
		now:      time.Now,
		logger:   logger.Named("RedisSlotRegistry"),
	}
}

func (r *redisSlotRegistry) staleCutoff(now time.Time) int64 {
	if r.claimTTL <= 0 {
		return -1
	}
	return now.Add(-r.claimTTL).UnixMilli()
}

func (r *redisSlotRegistry) keys(scenarioID string) []string {
	return []string{generatingKey(scenarioID), slotOwnersKey(scenarioID)}
}

func (r *redisSlotRegistry) Claim(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	now := r.now()
	res, err := claimSlotScript.Run(ctx, r.client, r.keys(scenarioID),
		slotKey, now.UnixMilli(), r.staleCutoff(now), token,
	).Int()
	if err != nil {
		r.logger.Error("Failed to claim generation slot",
			zap.String("scenarioID", scenarioID),
			zap.String("slot", slotKey),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to claim slot %s: %w", slotKey, err)
	}
	return res == 1, nil
}

func (r *redisSlotRegistry) Refresh(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	res, err := refreshSlotScript.Run(ctx, r.client, r.keys(scenarioID),
		slotKey, token, r.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh slot %s: %w", slotKey, err)
	}
	return res == 1, nil
}

func (r *redisSlotRegistry) Release(ctx context.Context, scenarioID, slotKey, token string) error {
	if err := releaseSlotScript.Run(ctx, r.client, r.keys(scenarioID), slotKey, token).Err(); err != nil {
		r.logger.Error("Failed to release generation slot",
			zap.String("scenarioID", scenarioID),
			zap.String("slot", slotKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to release slot %s: %w", slotKey, err)
	}
	return nil
}

func (r *redisSlotRegistry) ListInFlight(ctx context.Context, scenarioID string) ([]string, error) {
	minScore := "-inf"
	if cutoff := r.staleCutoff(r.now()); cutoff >= 0 {
		minScore = "(" + strconv.FormatInt(cutoff, 10)
	}
	slots, err := r.client.ZRangeByScore(ctx, generatingKey(scenarioID), &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list generating slots: %w", err)
	}
	sort.Strings(slots)
	return slots, nil
}
