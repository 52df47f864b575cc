package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scenario-server/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ interfaces.SlotRegistry = (*pgSlotRegistry)(nil)

type pgSlotRegistry struct {
	pool     *pgxpool.Pool
	claimTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewPgSlotRegistry - реестр слотов на уникальном ключе (scenario_id, slot_key).
func NewPgSlotRegistry(pool *pgxpool.Pool, claimTTL time.Duration, logger *zap.Logger) interfaces.SlotRegistry {
	return &pgSlotRegistry{
		pool:     pool,
		claimTTL: claimTTL,
		now:      time.Now,
		logger:   logger.Named("PgSlotRegistry"),
	}
}

// Строка возвращается только если слот вставлен или перехвачен устаревший захват.
// $4 IS NULL - перехват отключен.
const claimSlotQuery = `
INSERT INTO generation_slots (scenario_id, slot_key, claimed_at, claim_token)
VALUES ($1, $2, $3, $5)
ON CONFLICT (scenario_id, slot_key) DO UPDATE
SET claimed_at = EXCLUDED.claimed_at, claim_token = EXCLUDED.claim_token
WHERE $4::timestamptz IS NOT NULL AND generation_slots.claimed_at < $4::timestamptz
RETURNING slot_key`

const refreshSlotQuery = `
UPDATE generation_slots SET claimed_at = $4
WHERE scenario_id = $1 AND slot_key = $2 AND claim_token = $3`

const releaseSlotQuery = `
DELETE FROM generation_slots
WHERE scenario_id = $1 AND slot_key = $2 AND claim_token = $3`

const listSlotsQuery = `
SELECT slot_key FROM generation_slots
WHERE scenario_id = $1 AND ($2::timestamptz IS NULL OR claimed_at >= $2::timestamptz)
ORDER BY slot_key`

func (r *pgSlotRegistry) staleCutoff(now time.Time) *time.Time {
	if r.claimTTL <= 0 {
		return nil
	}
	cutoff := now.Add(-r.claimTTL)
	return &cutoff
}

func (r *pgSlotRegistry) Claim(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	now := r.now()
	var claimed string
	err := r.pool.QueryRow(ctx, claimSlotQuery, scenarioID, slotKey, now, r.staleCutoff(now), token).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("Failed to claim generation slot",
			zap.String("scenarioID", scenarioID),
			zap.String("slot", slotKey),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to claim slot %s: %w", slotKey, err)
	}
	return true, nil
}

func (r *pgSlotRegistry) Refresh(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, refreshSlotQuery, scenarioID, slotKey, token, r.now())
	if err != nil {
		return false, fmt.Errorf("failed to refresh slot %s: %w", slotKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgSlotRegistry) Release(ctx context.Context, scenarioID, slotKey, token string) error {
	if _, err := r.pool.Exec(ctx, releaseSlotQuery, scenarioID, slotKey, token); err != nil {
		r.logger.Error("Failed to release generation slot",
			zap.String("scenarioID", scenarioID),
			zap.String("slot", slotKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to release slot %s: %w", slotKey, err)
	}
	return nil
}

func (r *pgSlotRegistry) ListInFlight(ctx context.Context, scenarioID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, listSlotsQuery, scenarioID, r.staleCutoff(r.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to list generating slots: %w", err)
	}
	slots, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan generating slots: %w", err)
	}
	return slots, nil
}
