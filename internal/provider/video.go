package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scenario-server/internal/config"
	"scenario-server/internal/interfaces"

	"go.uber.org/zap"
)

// ErrVideoGenerationFailed - провайдер вернул ошибку или завершил задачу не успешно.
var ErrVideoGenerationFailed = errors.New("video generation failed")

// Статусы предсказания провайдера.
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

type predictionInput struct {
	Image         string `json:"image"`
	Prompt        string `json:"prompt"`
	Duration      int    `json:"duration"`
	CameraFixed   bool   `json:"camera_fixed"`
	FPS           int    `json:"fps"`
	Resolution    string `json:"resolution"`
	AspectRatio   string `json:"aspect_ratio"`
	GenerateAudio bool   `json:"generate_audio"`
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// outputURL достает ссылку на результат: output бывает строкой или массивом строк.
func (p prediction) outputURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", errors.New("prediction has no output")
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", fmt.Errorf("unexpected prediction output: %s", string(p.Output))
}

// VideoProvider - клиент HTTP API предсказаний (image-to-video): создает задачу и опрашивает ее до завершения.
type VideoProvider struct {
	baseURL      string
	model        string
	token        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ interfaces.AssetProvider = (*VideoProvider)(nil)

func NewVideoProvider(cfg *config.Config, logger *zap.Logger) *VideoProvider {
	pollInterval := cfg.VideoPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &VideoProvider{
		baseURL:      strings.TrimSuffix(cfg.VideoProviderURL, "/"),
		model:        cfg.VideoProviderModel,
		token:        cfg.VideoProviderToken,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger.Named("VideoProvider"),
	}
}

// Generate блокируется до завершения задачи или отмены ctx.
func (p *VideoProvider) Generate(ctx context.Context, req interfaces.AssetRequest) (interfaces.AssetResult, error) {
	log := p.logger.With(zap.String("model", p.model), zap.Int("duration", req.DurationSeconds))

	body, err := json.Marshal(predictionRequest{Input: predictionInput{
		Image:         req.SeedImageURL,
		Prompt:        req.Prompt,
		Duration:      req.DurationSeconds,
		CameraFixed:   req.CameraFixed,
		FPS:           24,
		Resolution:    "1080p",
		AspectRatio:   "16:9",
		GenerateAudio: true,
	}})
	if err != nil {
		return interfaces.AssetResult{}, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	var pred prediction
	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", p.baseURL, p.model)
	if err := p.do(ctx, http.MethodPost, endpoint, body, &pred); err != nil {
		log.Error("Failed to create prediction", zap.Error(err))
		return interfaces.AssetResult{}, err
	}
	log = log.With(zap.String("predictionID", pred.ID))
	log.Info("Prediction created", zap.String("status", pred.Status))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		switch pred.Status {
		case statusSucceeded:
			url, err := pred.outputURL()
			if err != nil {
				log.Error("Prediction succeeded without usable output", zap.Error(err))
				return interfaces.AssetResult{}, fmt.Errorf("%w: %v", ErrVideoGenerationFailed, err)
			}
			log.Info("Prediction succeeded", zap.String("outputURL", url))
			return interfaces.AssetResult{AssetURL: url}, nil
		case statusFailed, statusCanceled:
			log.Warn("Prediction did not succeed", zap.String("status", pred.Status), zap.Any("error", pred.Error))
			return interfaces.AssetResult{}, fmt.Errorf("%w: prediction %s: %v", ErrVideoGenerationFailed, pred.Status, pred.Error)
		case statusStarting, statusProcessing, "":
		default:
			log.Warn("Unknown prediction status, continue polling", zap.String("status", pred.Status))
		}

		select {
		case <-ctx.Done():
			return interfaces.AssetResult{}, ctx.Err()
		case <-ticker.C:
		}

		if err := p.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/predictions/%s", p.baseURL, pred.ID), nil, &pred); err != nil {
			log.Error("Failed to poll prediction", zap.Error(err))
			return interfaces.AssetResult{}, err
		}
	}
}

func (p *VideoProvider) do(ctx context.Context, method, url string, body []byte, out *prediction) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http request failed: %w", ErrVideoGenerationFailed, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: API returned status %d: %s", ErrVideoGenerationFailed, resp.StatusCode, string(respBody))
	}
	if readErr != nil {
		return fmt.Errorf("failed to read response body: %w", readErr)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to decode prediction: %v", ErrVideoGenerationFailed, err)
	}
	return nil
}
