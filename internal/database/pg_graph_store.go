package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ interfaces.GraphStore = (*pgGraphStore)(nil)

type pgGraphStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgGraphStore(pool *pgxpool.Pool, logger *zap.Logger) interfaces.GraphStore {
	return &pgGraphStore{
		pool:   pool,
		logger: logger.Named("PgGraphStore"),
	}
}

const getGraphQuery = `SELECT data, version FROM scenario_graphs WHERE scenario_id = $1`

const saveGraphQuery = `
INSERT INTO scenario_graphs (scenario_id, data, version, created_at, updated_at)
VALUES ($1, $2, 1, NOW(), NOW())
ON CONFLICT (scenario_id) DO UPDATE SET
    data = EXCLUDED.data,
    version = scenario_graphs.version + 1,
    updated_at = NOW()`

// Запись проходит только если версия не изменилась с момента чтения.
const updateGraphQuery = `
UPDATE scenario_graphs
SET data = $2, version = version + 1, updated_at = NOW()
WHERE scenario_id = $1 AND version = $3`

const listGraphsQuery = `SELECT data FROM scenario_graphs ORDER BY created_at, scenario_id`

func (s *pgGraphStore) load(ctx context.Context, scenarioID string) (*models.Graph, int64, error) {
	var data []byte
	var version int64
	err := s.pool.QueryRow(ctx, getGraphQuery, scenarioID).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, models.ErrGraphNotFound
		}
		s.logger.Error("Failed to load graph", zap.String("scenarioID", scenarioID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to load graph: %w", err)
	}
	g, err := decodeGraph(data)
	if err != nil {
		return nil, 0, err
	}
	return g, version, nil
}

func (s *pgGraphStore) Load(ctx context.Context, scenarioID string) (*models.Graph, error) {
	g, _, err := s.load(ctx, scenarioID)
	return g, err
}

func (s *pgGraphStore) Save(ctx context.Context, scenarioID string, g *models.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	if _, err := s.pool.Exec(ctx, saveGraphQuery, scenarioID, data); err != nil {
		s.logger.Error("Failed to save graph", zap.String("scenarioID", scenarioID), zap.Error(err))
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

func (s *pgGraphStore) Update(ctx context.Context, scenarioID string, fn interfaces.GraphUpdateFunc) (*models.Graph, error) {
	for attempt := 1; attempt <= maxGraphUpdateRetries; attempt++ {
		g, version, err := s.load(ctx, scenarioID)
		if err != nil {
			return nil, err
		}
		if err := fn(g); err != nil {
			return nil, err
		}
		data, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}

		tag, err := s.pool.Exec(ctx, updateGraphQuery, scenarioID, data, version)
		if err != nil {
			s.logger.Error("Failed to update graph", zap.String("scenarioID", scenarioID), zap.Error(err))
			return nil, fmt.Errorf("failed to update graph: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return g, nil
		}
		s.logger.Warn("Graph version changed, retrying update",
			zap.String("scenarioID", scenarioID),
			zap.Int64("version", version),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w: scenario %s", models.ErrConcurrentUpdate, scenarioID)
}

func (s *pgGraphStore) List(ctx context.Context) ([]*models.Graph, error) {
	rows, err := s.pool.Query(ctx, listGraphsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	graphs := make([]*models.Graph, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}
		g, err := decodeGraph(data)
		if err != nil {
			s.logger.Warn("Skipping undecodable graph", zap.Error(err))
			continue
		}
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate graphs: %w", err)
	}
	return graphs, nil
}
