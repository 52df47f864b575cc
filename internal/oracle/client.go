package oracle

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"scenario-server/internal/config"
	"scenario-server/internal/interfaces"

	"github.com/ollama/ollama/api"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client объединяет оба контракта: выбор пути и генерацию графа.
type Client interface {
	interfaces.SelectionOracle
	interfaces.GraphGenerator
}

var (
	_ Client = (*openAIClient)(nil)
	_ Client = (*ollamaClient)(nil)
)

const defaultOllamaURL = "http://localhost:11434"

// NewClient создает AI-клиента в зависимости от AI_CLIENT_TYPE.
func NewClient(cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case config.AIClientOpenAI:
		openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
		if cfg.AIBaseURL != "" {
			openaiConfig.BaseURL = cfg.AIBaseURL
		}
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}
		logger.Info("OpenAI client created",
			zap.String("baseURL", openaiConfig.BaseURL),
			zap.String("model", cfg.AIModel),
			zap.Duration("timeout", cfg.AITimeout),
		)
		return &openAIClient{
			client:     openaigo.NewClientWithConfig(openaiConfig),
			model:      cfg.AIModel,
			graphModel: cfg.GraphModel(),
			logger:     logger.Named("OpenAIOracle"),
		}, nil

	case config.AIClientOllama:
		baseURL := cfg.AIBaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		// api.NewClient ждет URL без /v1
		baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid Ollama base URL '%s': %w", baseURL, err)
		}
		logger.Info("Ollama client created",
			zap.String("baseURL", baseURL),
			zap.String("model", cfg.AIModel),
			zap.Duration("timeout", cfg.AITimeout),
		)
		return &ollamaClient{
			client:     api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
			model:      cfg.AIModel,
			graphModel: cfg.GraphModel(),
			timeout:    cfg.AITimeout,
			logger:     logger.Named("OllamaOracle"),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported AI client type: %s", cfg.AIClientType)
	}
}
