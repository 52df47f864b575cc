package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"scenario-server/internal/interfaces"

	"go.uber.org/zap"
)

// HTTPDownloader скачивает готовые ассеты по временным ссылкам провайдера.
type HTTPDownloader struct {
	httpClient *http.Client
	logger     *zap.Logger
}

var _ interfaces.Downloader = (*HTTPDownloader)(nil)

func NewHTTPDownloader(timeout time.Duration, logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("Downloader"),
	}
}

// Download возвращает *interfaces.DownloadError для ответа не 2xx.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("Download request failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// StatusText без кода, как в http.Response.Status
		return nil, &interfaces.DownloadError{URL: url, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset body: %w", err)
	}
	d.logger.Debug("Asset downloaded", zap.String("url", url), zap.Int("size_bytes", len(data)))
	return data, nil
}
