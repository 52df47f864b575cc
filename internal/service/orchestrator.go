package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchAssetOrchestrator генерирует основное видео каждого узла и общее idle-видео.
// Видимый эффект батча - все или ничего: при любой неудаче списание возвращается, URL не сохраняются.
// Пока батч идет, его claim'ы продлеваются каждые claimTTL/3, поэтому слоты в очереди не считаются брошенными.
type BatchAssetOrchestrator struct {
	graphs      interfaces.GraphStore
	credits     interfaces.CreditLedger
	slots       interfaces.SlotRegistry
	pipeline    *AssetPipeline
	updates     interfaces.ClientUpdatePublisher
	maxParallel int
	heartbeat   time.Duration
	newToken    func() string
	logger      *zap.Logger
}

func NewBatchAssetOrchestrator(
	graphs interfaces.GraphStore,
	credits interfaces.CreditLedger,
	slots interfaces.SlotRegistry,
	pipeline *AssetPipeline,
	updates interfaces.ClientUpdatePublisher,
	maxParallel int,
	claimTTL time.Duration,
	logger *zap.Logger,
) *BatchAssetOrchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &BatchAssetOrchestrator{
		graphs:      graphs,
		credits:     credits,
		slots:       slots,
		pipeline:    pipeline,
		updates:     updates,
		maxParallel: maxParallel,
		heartbeat:   claimTTL / 3,
		newToken:    uuid.NewString,
		logger:      logger.Named("BatchOrchestrator"),
	}
}

// GenerateAll запускает батч синхронно.
func (o *BatchAssetOrchestrator) GenerateAll(ctx context.Context, scenarioID string) models.BatchResult {
	return o.run(ctx, scenarioID, "")
}

// RunTask выполняет задачу из очереди; TaskID попадает в событие для клиента.
func (o *BatchAssetOrchestrator) RunTask(ctx context.Context, task models.BatchGenerationTask) models.BatchResult {
	return o.run(ctx, task.ScenarioID, task.TaskID)
}

func (o *BatchAssetOrchestrator) run(ctx context.Context, scenarioID, taskID string) models.BatchResult {
	result := o.generate(ctx, scenarioID)

	outcome := "success"
	updateType := models.UpdateBatchCompleted
	if !result.Success {
		outcome = string(result.ErrorKind)
		updateType = models.UpdateBatchFailed
	}
	batchesTotal.WithLabelValues(outcome).Inc()

	res := result
	publishUpdate(ctx, o.updates, models.ClientUpdate{
		Type:       updateType,
		ScenarioID: scenarioID,
		TaskID:     taskID,
		Batch:      &res,
	}, o.logger)
	return result
}

type slotOutcome struct {
	url string
	err error
	// lost: claim перехвачен до старта попытки, слот не генерировался
	lost bool
}

func (o *BatchAssetOrchestrator) generate(ctx context.Context, scenarioID string) models.BatchResult {
	log := o.logger.With(zap.String("scenarioID", scenarioID))
	// очистка (release, refund) не должна отменяться вместе с запросом
	cleanupCtx := context.WithoutCancel(ctx)

	g, err := o.graphs.Load(ctx, scenarioID)
	if err != nil {
		log.Warn("Failed to load graph", zap.Error(err))
		return failed(err)
	}
	if !g.IsReady() {
		return failed(fmt.Errorf("%w: scenario %q has no playable nodes yet", models.ErrGraphNotFound, scenarioID))
	}
	if g.StartImageURL == "" {
		return failed(models.ErrMissingStartImage)
	}

	candidates := append(g.NodeIDs(), idleSlot)
	token := o.newToken()
	log = log.With(zap.String("claimToken", token))

	claimed := make([]string, 0, len(candidates))
	var skipped []string
	for _, slotKey := range candidates {
		ok, err := o.slots.Claim(ctx, scenarioID, slotKey, token)
		if err != nil {
			log.Error("Slot claim failed", zap.String("slot", slotKey), zap.Error(err))
			o.releaseAll(cleanupCtx, log, scenarioID, token, claimed)
			return failed(fmt.Errorf("failed to claim slot %q: %w", slotKey, err))
		}
		if ok {
			claimed = append(claimed, slotKey)
		} else {
			skipped = append(skipped, slotKey)
		}
	}
	slotsTotal.WithLabelValues("skipped").Add(float64(len(skipped)))
	if len(claimed) == 0 {
		log.Info("All slots are busy", zap.Strings("skipped", skipped))
		res := failed(models.ErrAllSlotsBusy)
		res.SkippedSlots = skipped
		return res
	}
	log = log.With(zap.Strings("claimed", claimed), zap.Strings("skipped", skipped))

	cost := int64(len(claimed)) * slotCost
	balance, err := o.credits.GetBalance(ctx, scenarioID)
	if err != nil {
		log.Error("Failed to read credit balance", zap.Error(err))
		o.releaseAll(cleanupCtx, log, scenarioID, token, claimed)
		return failed(fmt.Errorf("failed to read credit balance: %w", err))
	}
	if balance < cost {
		o.releaseAll(cleanupCtx, log, scenarioID, token, claimed)
		log.Info("Insufficient credits for batch", zap.Int64("required", cost), zap.Int64("available", balance))
		res := failed(&models.InsufficientCreditsError{Required: cost, Available: balance})
		res.Required = cost
		res.Available = balance
		res.SkippedSlots = skipped
		return res
	}

	if _, err := o.credits.Adjust(ctx, scenarioID, -cost); err != nil {
		log.Error("Failed to debit credits", zap.Error(err))
		o.releaseAll(cleanupCtx, log, scenarioID, token, claimed)
		return failed(fmt.Errorf("failed to debit credits: %w", err))
	}
	creditsTotal.WithLabelValues("debit").Add(float64(cost))
	log.Info("Batch started", zap.Int64("debited", cost))

	stopHeartbeat := o.startHeartbeat(cleanupCtx, log, scenarioID, token, claimed)
	outcomes := make([]slotOutcome, len(claimed))
	var eg errgroup.Group
	eg.SetLimit(o.maxParallel)
	for i, slotKey := range claimed {
		eg.Go(func() error {
			defer o.release(cleanupCtx, log, scenarioID, token, slotKey)
			held, err := o.slots.Refresh(ctx, scenarioID, slotKey, token)
			if err != nil {
				outcomes[i] = slotOutcome{err: fmt.Errorf("failed to refresh slot claim: %w", err)}
				return nil
			}
			if !held {
				log.Warn("Slot claim lost before generation", zap.String("slot", slotKey))
				outcomes[i] = slotOutcome{lost: true}
				return nil
			}
			url, err := o.pipeline.Produce(ctx, g, slotKey)
			outcomes[i] = slotOutcome{url: url, err: err}
			return nil
		})
	}
	_ = eg.Wait()
	stopHeartbeat()

	urls := make(map[string]string, len(claimed))
	var lost []string
	var firstFailure string
	var firstErr error
	for i, slotKey := range claimed {
		out := outcomes[i]
		if out.lost {
			lost = append(lost, slotKey)
			continue
		}
		if out.err != nil {
			slotsTotal.WithLabelValues("failure").Inc()
			if firstErr == nil {
				firstFailure, firstErr = slotKey, out.err
			}
			continue
		}
		slotsTotal.WithLabelValues("success").Inc()
		urls[slotKey] = out.url
	}

	if firstErr != nil {
		o.refund(cleanupCtx, log, scenarioID, cost)
		log.Warn("Batch failed, partial results discarded", zap.String("failedSlot", firstFailure), zap.Error(firstErr))
		res := failed(fmt.Errorf("%w: %w", models.ErrGenerationFailed, firstErr))
		res.Error = fmt.Sprintf("%s: %v", slotLabel(g, firstFailure), firstErr)
		res.FailedSlot = firstFailure
		res.SkippedSlots = append(skipped, lost...)
		return res
	}

	// Перехваченные слоты генерирует другой владелец; их стоимость возвращается.
	if len(lost) > 0 {
		slotsTotal.WithLabelValues("skipped").Add(float64(len(lost)))
		skipped = append(skipped, lost...)
		if len(urls) == 0 {
			o.refund(cleanupCtx, log, scenarioID, cost)
			res := failed(models.ErrAllSlotsBusy)
			res.SkippedSlots = skipped
			return res
		}
		lostCost := int64(len(lost)) * slotCost
		o.refund(cleanupCtx, log, scenarioID, lostCost)
		cost -= lostCost
	}

	if _, err := o.graphs.Update(cleanupCtx, scenarioID, func(fresh *models.Graph) error {
		applyAssets(fresh, urls)
		return nil
	}); err != nil {
		o.refund(cleanupCtx, log, scenarioID, cost)
		log.Error("Failed to persist generated assets", zap.Error(err))
		if errors.Is(err, models.ErrGraphNotFound) {
			return failed(err)
		}
		return failed(fmt.Errorf("%w: %w", models.ErrPersistFailed, err))
	}

	res := models.BatchResult{Success: true, SkippedSlots: skipped}
	for slotKey := range urls {
		if slotKey == idleSlot {
			res.IdleGenerated = true
		} else {
			res.NodesGenerated++
		}
	}
	log.Info("Batch completed", zap.Int("nodesGenerated", res.NodesGenerated), zap.Bool("idleGenerated", res.IdleGenerated))
	return res
}

// startHeartbeat продлевает claim'ы батча, пока не вызвана возвращенная функция.
// Отпущенные слоты Refresh не воссоздает, поэтому список не нужно сокращать.
func (o *BatchAssetOrchestrator) startHeartbeat(ctx context.Context, log *zap.Logger, scenarioID, token string, slotKeys []string) func() {
	if o.heartbeat <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, slotKey := range slotKeys {
					if _, err := o.slots.Refresh(ctx, scenarioID, slotKey, token); err != nil && ctx.Err() == nil {
						log.Warn("Failed to refresh slot claim", zap.String("slot", slotKey), zap.Error(err))
					}
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (o *BatchAssetOrchestrator) release(ctx context.Context, log *zap.Logger, scenarioID, token, slotKey string) {
	if err := o.slots.Release(ctx, scenarioID, slotKey, token); err != nil {
		log.Error("Failed to release slot", zap.String("slot", slotKey), zap.Error(err))
	}
}

func (o *BatchAssetOrchestrator) releaseAll(ctx context.Context, log *zap.Logger, scenarioID, token string, slotKeys []string) {
	var wg sync.WaitGroup
	for _, slotKey := range slotKeys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.release(ctx, log, scenarioID, token, slotKey)
		}()
	}
	wg.Wait()
}

func (o *BatchAssetOrchestrator) refund(ctx context.Context, log *zap.Logger, scenarioID string, amount int64) {
	refundCredits(ctx, o.credits, log, scenarioID, amount)
}

// refundCredits возвращает списанное. Неудачный возврат логируется как критическая ошибка.
func refundCredits(ctx context.Context, credits interfaces.CreditLedger, log *zap.Logger, scenarioID string, amount int64) {
	if _, err := credits.Adjust(ctx, scenarioID, amount); err != nil {
		log.Error("CRITICAL: failed to refund credits", zap.Int64("amount", amount), zap.Error(err))
		return
	}
	creditsTotal.WithLabelValues("refund").Add(float64(amount))
}

// failed строит неуспешный BatchResult из ошибки.
func failed(err error) models.BatchResult {
	return models.BatchResult{Success: false, Error: err.Error(), ErrorKind: models.KindOf(err)}
}
