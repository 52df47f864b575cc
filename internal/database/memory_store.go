package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/models"
)

// In-process реализации для STORAGE_BACKEND=memory (локальный запуск и тесты сервисов).
// Атомарность обеспечивается мьютексом, поэтому они корректны только в пределах одного процесса.

var (
	_ interfaces.CreditLedger = (*MemoryCreditLedger)(nil)
	_ interfaces.SlotRegistry = (*MemorySlotRegistry)(nil)
	_ interfaces.GraphStore   = (*MemoryGraphStore)(nil)
)

type MemoryCreditLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryCreditLedger() *MemoryCreditLedger {
	return &MemoryCreditLedger{balances: make(map[string]int64)}
}

func (l *MemoryCreditLedger) GetBalance(_ context.Context, scenarioID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[scenarioID], nil
}

func (l *MemoryCreditLedger) Adjust(_ context.Context, scenarioID string, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[scenarioID] += delta
	return l.balances[scenarioID], nil
}

type slotClaim struct {
	token     string
	claimedAt time.Time
}

type MemorySlotRegistry struct {
	mu       sync.Mutex
	slots    map[string]map[string]slotClaim
	claimTTL time.Duration
	now      func() time.Time
}

func NewMemorySlotRegistry(claimTTL time.Duration) *MemorySlotRegistry {
	return &MemorySlotRegistry{
		slots:    make(map[string]map[string]slotClaim),
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

func (r *MemorySlotRegistry) stale(claimedAt, now time.Time) bool {
	return r.claimTTL > 0 && claimedAt.Before(now.Add(-r.claimTTL))
}

func (r *MemorySlotRegistry) Claim(_ context.Context, scenarioID, slotKey, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	set, ok := r.slots[scenarioID]
	if !ok {
		set = make(map[string]slotClaim)
		r.slots[scenarioID] = set
	}
	if c, busy := set[slotKey]; busy && !r.stale(c.claimedAt, now) {
		return false, nil
	}
	set[slotKey] = slotClaim{token: token, claimedAt: now}
	return true, nil
}

func (r *MemorySlotRegistry) Refresh(_ context.Context, scenarioID, slotKey, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.slots[scenarioID][slotKey]
	if !ok || c.token != token {
		return false, nil
	}
	c.claimedAt = r.now()
	r.slots[scenarioID][slotKey] = c
	return true, nil
}

func (r *MemorySlotRegistry) Release(_ context.Context, scenarioID, slotKey, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.slots[scenarioID][slotKey]; ok && c.token == token {
		delete(r.slots[scenarioID], slotKey)
	}
	return nil
}

func (r *MemorySlotRegistry) ListInFlight(_ context.Context, scenarioID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]string, 0, len(r.slots[scenarioID]))
	for key, c := range r.slots[scenarioID] {
		if !r.stale(c.claimedAt, now) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

type MemoryGraphStore struct {
	mu     sync.Mutex
	graphs map[string]*models.Graph
	order  []string
}

func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{graphs: make(map[string]*models.Graph)}
}

func (s *MemoryGraphStore) Load(_ context.Context, scenarioID string) (*models.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[scenarioID]
	if !ok {
		return nil, models.ErrGraphNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryGraphStore) Save(_ context.Context, scenarioID string, g *models.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[scenarioID]; !ok {
		s.order = append(s.order, scenarioID)
	}
	s.graphs[scenarioID] = g.Clone()
	return nil
}

// Update выполняется целиком под мьютексом, конфликтов версий здесь не бывает.
func (s *MemoryGraphStore) Update(_ context.Context, scenarioID string, fn interfaces.GraphUpdateFunc) (*models.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.graphs[scenarioID]
	if !ok {
		return nil, models.ErrGraphNotFound
	}
	g := current.Clone()
	if err := fn(g); err != nil {
		return nil, err
	}
	s.graphs[scenarioID] = g.Clone()
	return g, nil
}

func (s *MemoryGraphStore) List(_ context.Context) ([]*models.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Graph, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.graphs[id].Clone())
	}
	return out, nil
}
