package interfaces

import (
	"context"
	"fmt"

	"scenario-server/internal/models"
)

// SelectionRequest - все, что оракул знает о текущем шаге.
type SelectionRequest struct {
	GraphTitle        string
	GraphPrompt       string
	CurrentNodeID     string
	CurrentNodeTitle  string
	CurrentNodeScript string
	Options           []models.Option
	FallbackNodeID    string
	History           []string
	UserInput         string
	EmotionContext    string
}

// SelectionResponse - строго типизированный ответ оракула.
type SelectionResponse struct {
	NodeID string `json:"nodeId"`
}

// SelectionOracle - внешний сервис семантического сопоставления (LLM).
// Должен вернуть nodeId одной из опций запроса.
type SelectionOracle interface {
	Select(ctx context.Context, req SelectionRequest) (SelectionResponse, error)
}

// GraphGenerator генерирует JSON графа сценария по текстовому premise.
type GraphGenerator interface {
	GenerateGraph(ctx context.Context, prompt string) ([]byte, error)
}

// AssetRequest - параметры генерации одного видео.
type AssetRequest struct {
	SeedImageURL    string
	Prompt          string
	DurationSeconds int
	CameraFixed     bool
}

type AssetResult struct {
	AssetURL string
}

// AssetProvider - внешний провайдер генерации видео.
type AssetProvider interface {
	Generate(ctx context.Context, req AssetRequest) (AssetResult, error)
}

// DownloadError - ответ не 2xx при скачивании ассета.
type DownloadError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download asset: %d %s", e.StatusCode, e.Status)
}

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// BlobStorage сохраняет байты по пути и возвращает публичный URL.
type BlobStorage interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// TaskPublisher отправляет задачи пакетной генерации воркеру.
type TaskPublisher interface {
	PublishBatchTask(ctx context.Context, task models.BatchGenerationTask) error
}

// ClientUpdatePublisher отправляет события клиентам.
type ClientUpdatePublisher interface {
	PublishClientUpdate(ctx context.Context, update models.ClientUpdate) error
}
