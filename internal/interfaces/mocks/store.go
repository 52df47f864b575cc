package mocks

import (
	"context"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock CreditLedger
type CreditLedger struct {
	mock.Mock
}

func (m *CreditLedger) GetBalance(ctx context.Context, scenarioID string) (int64, error) {
	args := m.Called(ctx, scenarioID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CreditLedger) Adjust(ctx context.Context, scenarioID string, delta int64) (int64, error) {
	args := m.Called(ctx, scenarioID, delta)
	return args.Get(0).(int64), args.Error(1)
}

// Mock SlotRegistry
type SlotRegistry struct {
	mock.Mock
}

func (m *SlotRegistry) Claim(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	args := m.Called(ctx, scenarioID, slotKey, token)
	return args.Bool(0), args.Error(1)
}

func (m *SlotRegistry) Refresh(ctx context.Context, scenarioID, slotKey, token string) (bool, error) {
	args := m.Called(ctx, scenarioID, slotKey, token)
	return args.Bool(0), args.Error(1)
}

func (m *SlotRegistry) Release(ctx context.Context, scenarioID, slotKey, token string) error {
	args := m.Called(ctx, scenarioID, slotKey, token)
	return args.Error(0)
}

func (m *SlotRegistry) ListInFlight(ctx context.Context, scenarioID string) ([]string, error) {
	args := m.Called(ctx, scenarioID)
	var slots []string
	if v := args.Get(0); v != nil {
		slots = v.([]string)
	}
	return slots, args.Error(1)
}

// Mock GraphStore. Update вызывает fn на графе, который вернул мок.
type GraphStore struct {
	mock.Mock
}

func (m *GraphStore) Load(ctx context.Context, scenarioID string) (*models.Graph, error) {
	args := m.Called(ctx, scenarioID)
	var g *models.Graph
	if v := args.Get(0); v != nil {
		g = v.(*models.Graph).Clone()
	}
	return g, args.Error(1)
}

func (m *GraphStore) Save(ctx context.Context, scenarioID string, g *models.Graph) error {
	args := m.Called(ctx, scenarioID, g)
	return args.Error(0)
}

func (m *GraphStore) Update(ctx context.Context, scenarioID string, fn interfaces.GraphUpdateFunc) (*models.Graph, error) {
	args := m.Called(ctx, scenarioID, fn)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	g := args.Get(0).(*models.Graph).Clone()
	if err := fn(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (m *GraphStore) List(ctx context.Context) ([]*models.Graph, error) {
	args := m.Called(ctx)
	var gs []*models.Graph
	if v := args.Get(0); v != nil {
		gs = v.([]*models.Graph)
	}
	return gs, args.Error(1)
}

var (
	_ interfaces.CreditLedger = (*CreditLedger)(nil)
	_ interfaces.SlotRegistry = (*SlotRegistry)(nil)
	_ interfaces.GraphStore   = (*GraphStore)(nil)
)
