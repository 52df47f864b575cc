package service

import (
	"context"
	"fmt"
	"time"

	"scenario-server/internal/config"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"go.uber.org/zap"
)

const (
	idleSlot = models.IdleSlotKey

	videoContentType = "video/mp4"
	// стоимость одного слота (основное видео и idle стоят одинаково)
	slotCost int64 = 1
)

// nodePrompt - промт основного видео узла.
func nodePrompt(g *models.Graph, n *models.Node) string {
	return fmt.Sprintf("%s. Scene: %s", g.Prompt, n.Script)
}

func idlePrompt(g *models.Graph) string {
	return g.Prompt + ". The character sits quietly, listening. Subtle natural movements: blinking, slight breathing. No speaking."
}

func blobPath(scenarioID, slotKey string) string {
	if slotKey == idleSlot {
		return fmt.Sprintf("scenarios/%s/videos/idle.mp4", scenarioID)
	}
	return fmt.Sprintf("scenarios/%s/videos/%s-main.mp4", scenarioID, slotKey)
}

// slotLabel - как слот называется в сообщениях об ошибке.
func slotLabel(g *models.Graph, slotKey string) string {
	if slotKey == idleSlot {
		return "Idle video"
	}
	title := slotKey
	if n := g.NodeByID(slotKey); n != nil && n.Title != "" {
		title = n.Title
	}
	return fmt.Sprintf("Node %q", title)
}

// AssetPipeline - одна попытка генерации слота: провайдер, скачивание, сохранение в blob storage.
// Кредиты и слоты здесь не трогаются.
type AssetPipeline struct {
	provider        interfaces.AssetProvider
	downloader      interfaces.Downloader
	blobs           interfaces.BlobStorage
	durationSeconds int
	cameraFixed     bool
	timeout         time.Duration
	logger          *zap.Logger
}

func NewAssetPipeline(
	provider interfaces.AssetProvider,
	downloader interfaces.Downloader,
	blobs interfaces.BlobStorage,
	cfg *config.Config,
	logger *zap.Logger,
) *AssetPipeline {
	return &AssetPipeline{
		provider:        provider,
		downloader:      downloader,
		blobs:           blobs,
		durationSeconds: cfg.VideoDurationSeconds,
		cameraFixed:     cfg.VideoCameraFixed,
		timeout:         cfg.GenerationTimeout,
		logger:          logger.Named("AssetPipeline"),
	}
}

// Produce генерирует ассет слота и возвращает его публичный URL.
// Таймаут GENERATION_TIMEOUT считается обычной неудачей.
func (p *AssetPipeline) Produce(ctx context.Context, g *models.Graph, slotKey string) (string, error) {
	log := p.logger.With(zap.String("scenarioID", g.ID), zap.String("slot", slotKey))
	start := time.Now()
	defer func() {
		generationDuration.WithLabelValues(slotType(slotKey)).Observe(time.Since(start).Seconds())
	}()

	req := interfaces.AssetRequest{
		SeedImageURL:    g.StartImageURL,
		DurationSeconds: p.durationSeconds,
		CameraFixed:     p.cameraFixed,
	}
	if slotKey == idleSlot {
		req.Prompt = idlePrompt(g)
		req.CameraFixed = true
	} else {
		n := g.NodeByID(slotKey)
		if n == nil {
			return "", fmt.Errorf("%w: %q", models.ErrNodeNotFound, slotKey)
		}
		req.Prompt = nodePrompt(g, n)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.provider.Generate(ctx, req)
	if err != nil {
		log.Warn("Provider generation failed", zap.Error(err))
		return "", err
	}
	data, err := p.downloader.Download(ctx, res.AssetURL)
	if err != nil {
		log.Warn("Asset download failed", zap.String("assetURL", res.AssetURL), zap.Error(err))
		return "", err
	}
	url, err := p.blobs.Put(ctx, blobPath(g.ID, slotKey), data, videoContentType)
	if err != nil {
		log.Error("Failed to store asset", zap.Error(err))
		return "", err
	}
	log.Info("Slot asset produced", zap.String("url", url), zap.Duration("took", time.Since(start)))
	return url, nil
}

// applyAssets записывает URL ассетов в граф. Узлы, удаленные конкурентно, пропускаются.
func applyAssets(g *models.Graph, urls map[string]string) {
	for slotKey, url := range urls {
		if slotKey == idleSlot {
			g.IdleVideoURL = url
			continue
		}
		if n := g.NodeByID(slotKey); n != nil {
			n.VideoURL = url
		}
	}
}

// publishUpdate - best effort, ошибка только логируется.
func publishUpdate(ctx context.Context, publisher interfaces.ClientUpdatePublisher, update models.ClientUpdate, logger *zap.Logger) {
	if publisher == nil {
		return
	}
	update.Timestamp = time.Now().UTC()
	if err := publisher.PublishClientUpdate(context.WithoutCancel(ctx), update); err != nil {
		logger.Error("Failed to publish client update",
			zap.String("type", update.Type),
			zap.String("scenarioID", update.ScenarioID),
			zap.Error(err),
		)
	}
}
