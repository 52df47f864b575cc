package service

import (
	"context"
	"fmt"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"go.uber.org/zap"
)

// CreditService - пополнение и чтение баланса. Оплата как таковая вне сервиса:
// пополнение приходит по внутреннему API.
type CreditService struct {
	credits interfaces.CreditLedger
	logger  *zap.Logger
}

func NewCreditService(credits interfaces.CreditLedger, logger *zap.Logger) *CreditService {
	return &CreditService{credits: credits, logger: logger.Named("CreditService")}
}

func (s *CreditService) GetCredits(ctx context.Context, scenarioID string) (int64, error) {
	return s.credits.GetBalance(ctx, scenarioID)
}

// AddCredits зачисляет amount (> 0) и возвращает новый баланс.
func (s *CreditService) AddCredits(ctx context.Context, scenarioID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", models.ErrInvalidInput, amount)
	}
	balance, err := s.credits.Adjust(ctx, scenarioID, amount)
	if err != nil {
		s.logger.Error("Failed to add credits", zap.String("scenarioID", scenarioID), zap.Error(err))
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}
	creditsTotal.WithLabelValues("topup").Add(float64(amount))
	s.logger.Info("Credits added", zap.String("scenarioID", scenarioID), zap.Int64("amount", amount), zap.Int64("balance", balance))
	return balance, nil
}
