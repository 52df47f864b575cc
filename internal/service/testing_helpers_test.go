package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"scenario-server/internal/config"
	"scenario-server/internal/database"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/interfaces/mocks"
	"scenario-server/internal/models"
	"scenario-server/internal/provider"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// assetEnv - in-memory хранилища + моки провайдера и загрузчика + настоящее blob storage в tmp.
type assetEnv struct {
	graphs     *database.MemoryGraphStore
	credits    *database.MemoryCreditLedger
	slots      *database.MemorySlotRegistry
	provider   *mocks.AssetProvider
	downloader *mocks.Downloader
	pipeline   *AssetPipeline
}

func newAssetEnv(t *testing.T) *assetEnv {
	t.Helper()
	blobs, err := provider.NewLocalBlobStorage(t.TempDir(), "http://assets.test", zap.NewNop())
	require.NoError(t, err)

	env := &assetEnv{
		graphs:     database.NewMemoryGraphStore(),
		credits:    database.NewMemoryCreditLedger(),
		slots:      database.NewMemorySlotRegistry(0),
		provider:   new(mocks.AssetProvider),
		downloader: new(mocks.Downloader),
	}
	env.pipeline = NewAssetPipeline(env.provider, env.downloader, blobs, &config.Config{
		VideoDurationSeconds: 6,
		GenerationTimeout:    time.Minute,
	}, zap.NewNop())
	env.downloader.On("Download", mock.Anything, mock.Anything).Return([]byte("mp4"), nil).Maybe()
	return env
}

// twoNodeGraph: node1 -> node2, оба со скриптами, есть стартовое изображение.
func twoNodeGraph(id string) *models.Graph {
	return &models.Graph{
		ID:            id,
		Title:         "Coffee date",
		Prompt:        "A coffee date",
		StartNodeID:   "node1",
		StartImageURL: "https://img.test/start.png",
		Nodes: []models.Node{
			{ID: "node1", Title: "First step", Script: "Hi there", Options: []models.Option{{Condition: "user says hi", NodeID: "node2"}}},
			{ID: "node2", Title: "Goodbye", Script: "See you", Options: []models.Option{}},
		},
	}
}

func (e *assetEnv) seed(t *testing.T, g *models.Graph, balance int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.graphs.Save(ctx, g.ID, g))
	if balance != 0 {
		_, err := e.credits.Adjust(ctx, g.ID, balance)
		require.NoError(t, err)
	}
}

func (e *assetEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := e.credits.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *assetEnv) inFlight(t *testing.T, id string) []string {
	t.Helper()
	s, err := e.slots.ListInFlight(context.Background(), id)
	require.NoError(t, err)
	return s
}

// promptFor матчит запрос провайдера по подстроке промта.
func promptFor(substr string) any {
	return mock.MatchedBy(func(req interfaces.AssetRequest) bool {
		return strings.Contains(req.Prompt, substr)
	})
}

// vanishingGraphStore отдает граф, но к моменту сохранения результатов он уже удален.
type vanishingGraphStore struct {
	interfaces.GraphStore
}

func (s *vanishingGraphStore) Update(context.Context, string, interfaces.GraphUpdateFunc) (*models.Graph, error) {
	return nil, models.ErrGraphNotFound
}

func okAsset(url string) interfaces.AssetResult {
	return interfaces.AssetResult{AssetURL: url}
}
