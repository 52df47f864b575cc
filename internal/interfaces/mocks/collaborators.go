package mocks

import (
	"context"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock SelectionOracle
type SelectionOracle struct {
	mock.Mock
}

func (m *SelectionOracle) Select(ctx context.Context, req interfaces.SelectionRequest) (interfaces.SelectionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(interfaces.SelectionResponse), args.Error(1)
}

// Mock GraphGenerator
type GraphGenerator struct {
	mock.Mock
}

func (m *GraphGenerator) GenerateGraph(ctx context.Context, prompt string) ([]byte, error) {
	args := m.Called(ctx, prompt)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

// Mock AssetProvider
type AssetProvider struct {
	mock.Mock
}

func (m *AssetProvider) Generate(ctx context.Context, req interfaces.AssetRequest) (interfaces.AssetResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(interfaces.AssetResult), args.Error(1)
}

// Mock Downloader
type Downloader struct {
	mock.Mock
}

func (m *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

// Mock BlobStorage
type BlobStorage struct {
	mock.Mock
}

func (m *BlobStorage) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, path, data, contentType)
	return args.String(0), args.Error(1)
}

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishBatchTask(ctx context.Context, task models.BatchGenerationTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// Mock ClientUpdatePublisher
type ClientUpdatePublisher struct {
	mock.Mock
}

func (m *ClientUpdatePublisher) PublishClientUpdate(ctx context.Context, update models.ClientUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

var (
	_ interfaces.SelectionOracle       = (*SelectionOracle)(nil)
	_ interfaces.GraphGenerator        = (*GraphGenerator)(nil)
	_ interfaces.AssetProvider         = (*AssetProvider)(nil)
	_ interfaces.Downloader            = (*Downloader)(nil)
	_ interfaces.BlobStorage           = (*BlobStorage)(nil)
	_ interfaces.TaskPublisher         = (*TaskPublisher)(nil)
	_ interfaces.ClientUpdatePublisher = (*ClientUpdatePublisher)(nil)
)
