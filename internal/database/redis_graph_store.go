package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxGraphUpdateRetries = 5

var _ interfaces.GraphStore = (*redisGraphStore)(nil)

type redisGraphStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisGraphStore хранит граф JSON-строкой по ключу scenario:{id}:graph,
// id сценариев дополнительно лежат в множестве "scenarios".
func NewRedisGraphStore(client *redis.Client, logger *zap.Logger) interfaces.GraphStore {
	return &redisGraphStore{
		client: client,
		logger: logger.Named("RedisGraphStore"),
	}
}

func decodeGraph(data []byte) (*models.Graph, error) {
	var g models.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode stored graph: %w", err)
	}
	if g.Nodes == nil {
		g.Nodes = []models.Node{}
	}
	return &g, nil
}

func (s *redisGraphStore) Load(ctx context.Context, scenarioID string) (*models.Graph, error) {
	data, err := s.client.Get(ctx, graphKey(scenarioID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrGraphNotFound
		}
		s.logger.Error("Failed to load graph", zap.String("scenarioID", scenarioID), zap.Error(err))
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	return decodeGraph(data)
}

func (s *redisGraphStore) Save(ctx context.Context, scenarioID string, g *models.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, graphKey(scenarioID), data, 0)
	pipe.SAdd(ctx, scenarioIndexKey, scenarioID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to save graph", zap.String("scenarioID", scenarioID), zap.Error(err))
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// Update - read-modify-write под WATCH: если ключ изменили между чтением и записью,
// транзакция отменяется и повторяется.
func (s *redisGraphStore) Update(ctx context.Context, scenarioID string, fn interfaces.GraphUpdateFunc) (*models.Graph, error) {
	key := graphKey(scenarioID)
	var updated *models.Graph

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return models.ErrGraphNotFound
			}
			return err
		}
		g, err := decodeGraph(data)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		encoded, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("failed to encode graph: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err == nil {
			updated = g
		}
		return err
	}

	for attempt := 1; attempt <= maxGraphUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Warn("Graph modified concurrently, retrying update",
				zap.String("scenarioID", scenarioID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: scenario %s", models.ErrConcurrentUpdate, scenarioID)
}

func (s *redisGraphStore) List(ctx context.Context) ([]*models.Graph, error) {
	ids, err := s.client.SMembers(ctx, scenarioIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Graph{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = graphKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario graphs: %w", err)
	}

	graphs := make([]*models.Graph, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		g, err := decodeGraph([]byte(raw))
		if err != nil {
			s.logger.Warn("Skipping undecodable graph", zap.String("scenarioID", ids[i]), zap.Error(err))
			continue
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
