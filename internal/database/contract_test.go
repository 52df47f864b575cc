package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scenario-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// storeContractSuite - общие проверки для всех бэкендов. Конкретный набор задает newStores.
type storeContractSuite struct {
	suite.Suite
	ctx       context.Context
	newStores func(claimTTL time.Duration) (*Stores, func(time.Time))
	stores    *Stores
	setNow    func(time.Time)
}

func (s *storeContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.stores, s.setNow = s.newStores(time.Minute)
}

func (s *storeContractSuite) scenarioID() string {
	return "test-" + uuid.NewString()
}

func testGraph(id string) *models.Graph {
	return &models.Graph{
		ID:            id,
		Title:         "Door",
		Prompt:        "A locked door",
		StartNodeID:   "A",
		StartImageURL: "https://cdn.example/start.png",
		Nodes: []models.Node{
			{ID: "A", Title: "Start", Script: "Open?", Options: []models.Option{{Condition: "yes", NodeID: "B"}}},
			{ID: "B", Title: "End", Script: "Opened", Options: []models.Option{}},
		},
	}
}

func (s *storeContractSuite) TestLedger_AbsentReadsZero() {
	balance, err := s.stores.Credits.GetBalance(s.ctx, s.scenarioID())
	s.Require().NoError(err)
	s.Equal(int64(0), balance)
}

func (s *storeContractSuite) TestLedger_AdjustReturnsNewBalance() {
	id := s.scenarioID()
	balance, err := s.stores.Credits.Adjust(s.ctx, id, 5)
	s.Require().NoError(err)
	s.Equal(int64(5), balance)

	// Ледгер не запрещает уход в минус.
	balance, err = s.stores.Credits.Adjust(s.ctx, id, -7)
	s.Require().NoError(err)
	s.Equal(int64(-2), balance)

	balance, err = s.stores.Credits.GetBalance(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(int64(-2), balance)
}

func (s *storeContractSuite) TestLedger_ConcurrentAdjustNoLostUpdates() {
	id := s.scenarioID()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := int64(1)
			if i%2 == 0 {
				delta = 3
			}
			_, err := s.stores.Credits.Adjust(s.ctx, id, delta)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	balance, err := s.stores.Credits.GetBalance(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(int64(25*3+25*1), balance)
}

func (s *storeContractSuite) TestSlots_ClaimIsExclusive() {
	id := s.scenarioID()
	var wins atomic.Int32
	var winner atomic.Value
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := fmt.Sprintf("owner-%d", i)
			ok, err := s.stores.Slots.Claim(s.ctx, id, "node1", token)
			s.NoError(err)
			if ok {
				wins.Add(1)
				winner.Store(token)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())

	ok, err := s.stores.Slots.Claim(s.ctx, id, "node1", "late")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "node1", winner.Load().(string)))
	ok, err = s.stores.Slots.Claim(s.ctx, id, "node1", "late")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *storeContractSuite) TestSlots_ReleaseIsIdempotent() {
	id := s.scenarioID()
	_, err := s.stores.Slots.Claim(s.ctx, id, "a", "t1")
	s.Require().NoError(err)
	_, err = s.stores.Slots.Claim(s.ctx, id, models.IdleSlotKey, "t1")
	s.Require().NoError(err)

	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "a", "t1"))
	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "a", "t1"))
	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "never-claimed", "t1"))

	slots, err := s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{models.IdleSlotKey}, slots)
}

func (s *storeContractSuite) TestSlots_ReleaseKeepsForeignClaim() {
	id := s.scenarioID()
	ok, err := s.stores.Slots.Claim(s.ctx, id, "node1", "owner")
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "node1", "someone-else"))
	slots, err := s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{"node1"}, slots)

	ok, err = s.stores.Slots.Claim(s.ctx, id, "node1", "someone-else")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *storeContractSuite) TestSlots_ListInFlightSorted() {
	id := s.scenarioID()
	for _, k := range []string{"c", "a", "idle", "b"} {
		ok, err := s.stores.Slots.Claim(s.ctx, id, k, "t1")
		s.Require().NoError(err)
		s.Require().True(ok)
	}
	slots, err := s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c", "idle"}, slots)

	other, err := s.stores.Slots.ListInFlight(s.ctx, s.scenarioID())
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *storeContractSuite) TestSlots_StaleClaimCanBeTakenOver() {
	id := s.scenarioID()
	start := time.Now()
	s.setNow(start)
	ok, err := s.stores.Slots.Claim(s.ctx, id, "node1", "first")
	s.Require().NoError(err)
	s.Require().True(ok)

	// В пределах TTL слот занят.
	s.setNow(start.Add(30 * time.Second))
	ok, err = s.stores.Slots.Claim(s.ctx, id, "node1", "second")
	s.Require().NoError(err)
	s.False(ok)

	// Захват старше TTL считается брошенным.
	s.setNow(start.Add(2 * time.Minute))
	slots, err := s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(slots)

	ok, err = s.stores.Slots.Claim(s.ctx, id, "node1", "second")
	s.Require().NoError(err)
	s.True(ok)

	// Прежний владелец больше не может ни продлить, ни отпустить чужой слот.
	ok, err = s.stores.Slots.Refresh(s.ctx, id, "node1", "first")
	s.Require().NoError(err)
	s.False(ok)
	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "node1", "first"))
	slots, err = s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{"node1"}, slots)
}

func (s *storeContractSuite) TestSlots_RefreshKeepsClaimAlive() {
	id := s.scenarioID()
	start := time.Now()
	s.setNow(start)
	ok, err := s.stores.Slots.Claim(s.ctx, id, "node1", "owner")
	s.Require().NoError(err)
	s.Require().True(ok)

	s.setNow(start.Add(50 * time.Second))
	ok, err = s.stores.Slots.Refresh(s.ctx, id, "node1", "owner")
	s.Require().NoError(err)
	s.True(ok)

	// 100s после claim, но 50s после refresh: слот все еще занят.
	s.setNow(start.Add(100 * time.Second))
	ok, err = s.stores.Slots.Claim(s.ctx, id, "node1", "other")
	s.Require().NoError(err)
	s.False(ok)
	slots, err := s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{"node1"}, slots)

	s.Require().NoError(s.stores.Slots.Release(s.ctx, id, "node1", "owner"))
	ok, err = s.stores.Slots.Refresh(s.ctx, id, "node1", "owner")
	s.Require().NoError(err)
	s.False(ok, "released slot must not be recreated by refresh")
	slots, err = s.stores.Slots.ListInFlight(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(slots)
}

func (s *storeContractSuite) TestSlots_NoTakeoverWhenTTLDisabled() {
	stores, setNow := s.newStores(0)
	id := s.scenarioID()
	start := time.Now()
	setNow(start)
	ok, err := stores.Slots.Claim(s.ctx, id, "node1", "first")
	s.Require().NoError(err)
	s.Require().True(ok)

	setNow(start.Add(24 * time.Hour))
	ok, err = stores.Slots.Claim(s.ctx, id, "node1", "second")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *storeContractSuite) TestGraph_LoadMissing() {
	_, err := s.stores.Graphs.Load(s.ctx, s.scenarioID())
	s.True(errors.Is(err, models.ErrGraphNotFound))

	_, err = s.stores.Graphs.Update(s.ctx, s.scenarioID(), func(g *models.Graph) error { return nil })
	s.True(errors.Is(err, models.ErrGraphNotFound))
}

func (s *storeContractSuite) TestGraph_SaveLoadRoundTrip() {
	id := s.scenarioID()
	g := testGraph(id)
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, id, g))

	loaded, err := s.stores.Graphs.Load(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(g, loaded)

	placeholderID := s.scenarioID()
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, placeholderID, models.NewPlaceholderGraph(placeholderID, "p")))
	placeholder, err := s.stores.Graphs.Load(s.ctx, placeholderID)
	s.Require().NoError(err)
	s.NotNil(placeholder.Nodes)
	s.Empty(placeholder.Nodes)
}

func (s *storeContractSuite) TestGraph_UpdateAppliesChanges() {
	id := s.scenarioID()
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, id, testGraph(id)))

	updated, err := s.stores.Graphs.Update(s.ctx, id, func(g *models.Graph) error {
		g.NodeByID("B").VideoURL = "https://cdn.example/b.mp4"
		g.IdleVideoURL = "https://cdn.example/idle.mp4"
		return nil
	})
	s.Require().NoError(err)
	s.Equal("https://cdn.example/b.mp4", updated.NodeByID("B").VideoURL)

	loaded, err := s.stores.Graphs.Load(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("https://cdn.example/b.mp4", loaded.NodeByID("B").VideoURL)
	s.Equal("https://cdn.example/idle.mp4", loaded.IdleVideoURL)
}

func (s *storeContractSuite) TestGraph_UpdateAbortsOnCallbackError() {
	id := s.scenarioID()
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, id, testGraph(id)))

	boom := errors.New("boom")
	_, err := s.stores.Graphs.Update(s.ctx, id, func(g *models.Graph) error {
		g.Title = "changed"
		return boom
	})
	s.True(errors.Is(err, boom))

	loaded, err := s.stores.Graphs.Load(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Door", loaded.Title)
}

func (s *storeContractSuite) TestGraph_ConcurrentUpdatesAreNotLost() {
	id := s.scenarioID()
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, id, testGraph(id)))

	var wg sync.WaitGroup
	for _, nodeID := range []string{"A", "B"} {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			_, err := s.stores.Graphs.Update(s.ctx, id, func(g *models.Graph) error {
				g.NodeByID(nodeID).VideoURL = fmt.Sprintf("https://cdn.example/%s.mp4", nodeID)
				return nil
			})
			s.NoError(err)
		}(nodeID)
	}
	wg.Wait()

	loaded, err := s.stores.Graphs.Load(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("https://cdn.example/A.mp4", loaded.NodeByID("A").VideoURL)
	s.Equal("https://cdn.example/B.mp4", loaded.NodeByID("B").VideoURL)
}

func (s *storeContractSuite) TestGraph_ListContainsSaved() {
	id := s.scenarioID()
	s.Require().NoError(s.stores.Graphs.Save(s.ctx, id, testGraph(id)))

	graphs, err := s.stores.Graphs.List(s.ctx)
	s.Require().NoError(err)
	found := false
	for _, g := range graphs {
		if g.ID == id {
			found = true
		}
	}
	s.True(found)
}
