package service

import (
	"context"
	"errors"
	"fmt"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AssetGenerator генерирует один слот (узел или idle) вне батча.
// Каждый слот платный и обрабатывается независимо: claim, проверка баланса, списание, генерация,
// сохранение в граф, возврат при неудаче, release всегда.
type AssetGenerator struct {
	graphs   interfaces.GraphStore
	credits  interfaces.CreditLedger
	slots    interfaces.SlotRegistry
	pipeline *AssetPipeline
	updates  interfaces.ClientUpdatePublisher
	newToken func() string
	logger   *zap.Logger
}

func NewAssetGenerator(
	graphs interfaces.GraphStore,
	credits interfaces.CreditLedger,
	slots interfaces.SlotRegistry,
	pipeline *AssetPipeline,
	updates interfaces.ClientUpdatePublisher,
	logger *zap.Logger,
) *AssetGenerator {
	return &AssetGenerator{
		graphs:   graphs,
		credits:  credits,
		slots:    slots,
		pipeline: pipeline,
		updates:  updates,
		newToken: uuid.NewString,
		logger:   logger.Named("AssetGenerator"),
	}
}

// GenerateSlot. slotKey - id узла или models.IdleSlotKey.
func (a *AssetGenerator) GenerateSlot(ctx context.Context, scenarioID, slotKey string) models.SlotResult {
	res := a.generateSlot(ctx, scenarioID, slotKey)

	updateType := models.UpdateSlotCompleted
	if !res.Success {
		updateType = models.UpdateSlotFailed
	}
	slot := res
	publishUpdate(ctx, a.updates, models.ClientUpdate{Type: updateType, ScenarioID: scenarioID, Slot: &slot}, a.logger)
	return res
}

func (a *AssetGenerator) generateSlot(ctx context.Context, scenarioID, slotKey string) models.SlotResult {
	log := a.logger.With(zap.String("scenarioID", scenarioID), zap.String("slot", slotKey))
	cleanupCtx := context.WithoutCancel(ctx)

	g, err := a.graphs.Load(ctx, scenarioID)
	if err != nil {
		return slotFailed(slotKey, err)
	}
	if !g.IsReady() {
		return slotFailed(slotKey, fmt.Errorf("%w: scenario %q has no playable nodes yet", models.ErrGraphNotFound, scenarioID))
	}
	if slotKey != idleSlot && !g.HasNode(slotKey) {
		return slotFailed(slotKey, fmt.Errorf("%w: %q", models.ErrNodeNotFound, slotKey))
	}
	if g.StartImageURL == "" {
		return slotFailed(slotKey, models.ErrMissingStartImage)
	}

	token := a.newToken()
	ok, err := a.slots.Claim(ctx, scenarioID, slotKey, token)
	if err != nil {
		log.Error("Slot claim failed", zap.Error(err))
		return slotFailed(slotKey, fmt.Errorf("failed to claim slot %q: %w", slotKey, err))
	}
	if !ok {
		slotsTotal.WithLabelValues("skipped").Inc()
		return slotFailed(slotKey, models.ErrSlotBusy)
	}
	defer func() {
		if err := a.slots.Release(cleanupCtx, scenarioID, slotKey, token); err != nil {
			log.Error("Failed to release slot", zap.Error(err))
		}
	}()

	balance, err := a.credits.GetBalance(ctx, scenarioID)
	if err != nil {
		return slotFailed(slotKey, fmt.Errorf("failed to read credit balance: %w", err))
	}
	if balance < slotCost {
		return slotFailed(slotKey, &models.InsufficientCreditsError{Required: slotCost, Available: balance})
	}
	if _, err := a.credits.Adjust(ctx, scenarioID, -slotCost); err != nil {
		return slotFailed(slotKey, fmt.Errorf("failed to debit credits: %w", err))
	}
	creditsTotal.WithLabelValues("debit").Add(float64(slotCost))

	url, err := a.pipeline.Produce(ctx, g, slotKey)
	if err != nil {
		slotsTotal.WithLabelValues("failure").Inc()
		refundCredits(cleanupCtx, a.credits, log, scenarioID, slotCost)
		res := slotFailed(slotKey, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err))
		res.Error = fmt.Sprintf("%s: %v", slotLabel(g, slotKey), err)
		return res
	}
	slotsTotal.WithLabelValues("success").Inc()

	if _, err := a.graphs.Update(cleanupCtx, scenarioID, func(fresh *models.Graph) error {
		applyAssets(fresh, map[string]string{slotKey: url})
		return nil
	}); err != nil {
		refundCredits(cleanupCtx, a.credits, log, scenarioID, slotCost)
		log.Error("Failed to persist slot asset", zap.Error(err))
		if errors.Is(err, models.ErrGraphNotFound) {
			return slotFailed(slotKey, err)
		}
		return slotFailed(slotKey, fmt.Errorf("%w: %w", models.ErrPersistFailed, err))
	}

	log.Info("Slot generated", zap.String("url", url))
	return models.SlotResult{Success: true, SlotKey: slotKey, AssetURL: url}
}

// GenerateNodeAssets генерирует основное видео узла и, если узел не терминальный, idle-видео.
// Слоты запускаются параллельно и оплачиваются по отдельности.
func (a *AssetGenerator) GenerateNodeAssets(ctx context.Context, scenarioID, nodeID string) models.NodeAssetsResult {
	g, err := a.graphs.Load(ctx, scenarioID)
	if err != nil {
		return models.NodeAssetsResult{Error: err.Error(), Kind: models.KindOf(err)}
	}
	node := g.NodeByID(nodeID)
	if node == nil {
		err := fmt.Errorf("%w: %q", models.ErrNodeNotFound, nodeID)
		return models.NodeAssetsResult{Error: err.Error(), Kind: models.KindOf(err)}
	}
	withIdle := !node.IsTerminal()

	var (
		eg   errgroup.Group
		main models.SlotResult
		idle models.SlotResult
	)
	eg.Go(func() error {
		main = a.GenerateSlot(ctx, scenarioID, nodeID)
		return nil
	})
	if withIdle {
		eg.Go(func() error {
			idle = a.GenerateSlot(ctx, scenarioID, idleSlot)
			return nil
		})
	}
	_ = eg.Wait()

	res := models.NodeAssetsResult{Success: main.Success, Main: main}
	if withIdle {
		res.Idle = &idle
		res.Success = res.Success && idle.Success
	}
	switch {
	case !main.Success:
		res.Error, res.Kind = main.Error, main.ErrorKind
	case withIdle && !idle.Success:
		res.Error, res.Kind = idle.Error, idle.ErrorKind
	}
	return res
}

func slotFailed(slotKey string, err error) models.SlotResult {
	return models.SlotResult{SlotKey: slotKey, Error: err.Error(), ErrorKind: models.KindOf(err)}
}
