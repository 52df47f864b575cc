package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scenario-server/internal/interfaces"

	"go.uber.org/zap"
)

// ErrBlobSaveFailed - ошибка при сохранении файла.
var ErrBlobSaveFailed = errors.New("blob save failed")

// LocalBlobStorage хранит ассеты на диске; публичный URL = baseURL + "/" + path.
// Каталог раздается сервером как статика (/assets).
type LocalBlobStorage struct {
	rootDir string
	baseURL string
	logger  *zap.Logger
}

var _ interfaces.BlobStorage = (*LocalBlobStorage)(nil)

func NewLocalBlobStorage(rootDir, publicBaseURL string, logger *zap.Logger) (*LocalBlobStorage, error) {
	if rootDir == "" {
		return nil, errors.New("blob storage dir (BLOB_STORAGE_DIR) is not configured")
	}
	if publicBaseURL == "" {
		return nil, errors.New("blob public base URL (BLOB_PUBLIC_BASE_URL) is not configured")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob storage dir %s: %w", rootDir, err)
	}
	return &LocalBlobStorage{
		rootDir: rootDir,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:  logger.Named("BlobStorage"),
	}, nil
}

func (s *LocalBlobStorage) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.ToSlash(filepath.Clean("/" + path))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("%w: empty path", ErrBlobSaveFailed)
	}

	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}
	// запись через временный файл + rename
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}

	url := s.baseURL + "/" + clean
	s.logger.Info("Blob stored",
		zap.String("path", fullPath),
		zap.String("contentType", contentType),
		zap.Int("size_bytes", len(data)),
		zap.String("url", url),
	)
	return url, nil
}
