package database

import (
	"context"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ interfaces.CreditLedger = (*pgCreditLedger)(nil)

type pgCreditLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgCreditLedger(pool *pgxpool.Pool, logger *zap.Logger) interfaces.CreditLedger {
	return &pgCreditLedger{
		pool:   pool,
		logger: logger.Named("PgCreditLedger"),
	}
}

const getBalanceQuery = `SELECT balance FROM scenario_credits WHERE scenario_id = $1`

// Один оператор: строка создается при первом изменении, прибавление выполняется под блокировкой строки.
const adjustBalanceQuery = `
INSERT INTO scenario_credits (scenario_id, balance, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (scenario_id) DO UPDATE SET
    balance = scenario_credits.balance + EXCLUDED.balance,
    updated_at = NOW()
RETURNING balance`

func (r *pgCreditLedger) GetBalance(ctx context.Context, scenarioID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, getBalanceQuery, scenarioID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		r.logger.Error("Failed to read credit balance", zap.String("scenarioID", scenarioID), zap.Error(err))
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}
	return balance, nil
}

func (r *pgCreditLedger) Adjust(ctx context.Context, scenarioID string, delta int64) (int64, error) {
	logFields := []zap.Field{zap.String("scenarioID", scenarioID), zap.Int64("delta", delta)}

	var balance int64
	if err := r.pool.QueryRow(ctx, adjustBalanceQuery, scenarioID, delta).Scan(&balance); err != nil {
		r.logger.Error("Failed to adjust credit balance", append(logFields, zap.Error(err))...)
		return 0, fmt.Errorf("failed to adjust credit balance: %w", err)
	}
	r.logger.Debug("Credit balance adjusted", append(logFields, zap.Int64("balance", balance))...)
	return balance, nil
}
