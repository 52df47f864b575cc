package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"scenario-server/internal/database"
	"scenario-server/internal/interfaces"
	"scenario-server/internal/interfaces/mocks"
	"scenario-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type ScenarioServiceSuite struct {
	suite.Suite
	ctx       context.Context
	graphs    *database.MemoryGraphStore
	credits   *database.MemoryCreditLedger
	slots     *database.MemorySlotRegistry
	generator *mocks.GraphGenerator
	oracle    *mocks.SelectionOracle
	service   *ScenarioService
}

func (s *ScenarioServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.graphs = database.NewMemoryGraphStore()
	s.credits = database.NewMemoryCreditLedger()
	s.slots = database.NewMemorySlotRegistry(0)
	s.generator = new(mocks.GraphGenerator)
	s.oracle = new(mocks.SelectionOracle)
	s.service = NewScenarioService(s.graphs, s.credits, s.slots, s.generator,
		NewPathSelector(s.oracle, false, zap.NewNop()), nil, zap.NewNop())
}

func TestScenarioServiceSuite(t *testing.T) {
	suite.Run(t, new(ScenarioServiceSuite))
}

func (s *ScenarioServiceSuite) addCredits(id string, n int64) {
	_, err := s.credits.Adjust(s.ctx, id, n)
	s.Require().NoError(err)
}

func (s *ScenarioServiceSuite) balance(id string) int64 {
	b, err := s.credits.GetBalance(s.ctx, id)
	s.Require().NoError(err)
	return b
}

func (s *ScenarioServiceSuite) TestCreateScenario() {
	g, err := s.service.CreateScenario(s.ctx, "  A haunted lighthouse ", "https://img.test/a.png")
	s.Require().NoError(err)
	_, parseErr := uuid.Parse(g.ID)
	s.NoError(parseErr)
	s.Equal("Untitled", g.Title)
	s.Equal("A haunted lighthouse", g.Prompt)
	s.Equal("start", g.StartNodeID)
	s.Equal("https://img.test/a.png", g.StartImageURL)
	s.Empty(g.Nodes)

	stored, err := s.graphs.Load(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(g, stored)
	s.Equal(int64(0), s.balance(g.ID))

	_, err = s.service.CreateScenario(s.ctx, "   ", "")
	s.ErrorIs(err, models.ErrInvalidInput)
}

func (s *ScenarioServiceSuite) TestGetScenario_PlaceholderForPaidScenario() {
	_, err := s.service.GetScenario(s.ctx, "unpaid")
	s.ErrorIs(err, models.ErrGraphNotFound)

	s.addCredits("paid", 2)
	g, err := s.service.GetScenario(s.ctx, "paid")
	s.Require().NoError(err)
	s.Equal("paid", g.ID)
	s.Equal("Untitled", g.Title)

	_, err = s.graphs.Load(s.ctx, "paid")
	s.NoError(err, "placeholder is persisted")
}

func (s *ScenarioServiceSuite) TestListScenarios_OnlyReady() {
	s.Require().NoError(s.graphs.Save(s.ctx, "draft", models.NewPlaceholderGraph("draft", "p")))
	s.Require().NoError(s.graphs.Save(s.ctx, "s1", twoNodeGraph("s1")))

	list, err := s.service.ListScenarios(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("s1", list[0].ID)
}

func (s *ScenarioServiceSuite) TestSetStartImage() {
	s.Require().NoError(s.graphs.Save(s.ctx, "s1", models.NewPlaceholderGraph("s1", "p")))
	g, err := s.service.SetStartImage(s.ctx, "s1", "https://img.test/new.png")
	s.Require().NoError(err)
	s.Equal("https://img.test/new.png", g.StartImageURL)

	_, err = s.service.SetStartImage(s.ctx, "missing", "https://img.test/new.png")
	s.ErrorIs(err, models.ErrGraphNotFound)
	_, err = s.service.SetStartImage(s.ctx, "s1", "")
	s.ErrorIs(err, models.ErrInvalidInput)
}

func generatedGraphJSON(startNodeID string, optionTarget string) []byte {
	doc := map[string]any{
		"id":          "llm-slug",
		"title":       "Lighthouse",
		"prompt":      "something else",
		"startNodeId": startNodeID,
		"nodes": []map[string]any{
			{"id": "intro", "title": "Intro", "script": "The light flickers.", "options": []map[string]any{
				{"condition": "user goes up", "nodeId": optionTarget},
			}},
			{"id": "top", "title": "Top", "script": "You see the sea.", "options": []map[string]any{}},
		},
	}
	data, _ := json.Marshal(doc)
	return data
}

func (s *ScenarioServiceSuite) TestGenerateGraph_Success() {
	placeholder := models.NewPlaceholderGraph("s1", "old")
	placeholder.StartImageURL = "https://img.test/seed.png"
	s.Require().NoError(s.graphs.Save(s.ctx, "s1", placeholder))
	s.addCredits("s1", 2)
	s.generator.On("GenerateGraph", s.ctx, "A haunted lighthouse").Return(generatedGraphJSON("", "top"), nil).Once()

	g, err := s.service.GenerateGraph(s.ctx, "s1", " A haunted lighthouse ")
	s.Require().NoError(err)
	s.Equal("s1", g.ID)
	s.Equal("A haunted lighthouse", g.Prompt)
	s.Equal("intro", g.StartNodeID, "empty startNodeId falls back to first node")
	s.Equal("https://img.test/seed.png", g.StartImageURL)
	s.Equal(int64(1), s.balance("s1"))

	stored, err := s.graphs.Load(s.ctx, "s1")
	s.Require().NoError(err)
	s.Len(stored.Nodes, 2)
	s.True(stored.IsReady())
}

func (s *ScenarioServiceSuite) TestGenerateGraph_InsufficientCredits() {
	_, err := s.service.GenerateGraph(s.ctx, "s1", "idea")
	var credErr *models.InsufficientCreditsError
	s.Require().ErrorAs(err, &credErr)
	s.Equal(int64(1), credErr.Required)
	s.Equal(int64(0), credErr.Available)
	s.generator.AssertNotCalled(s.T(), "GenerateGraph", mock.Anything, mock.Anything)
}

func (s *ScenarioServiceSuite) TestGenerateGraph_RefundsOnFailure() {
	s.addCredits("s1", 1)

	s.Run("generator error", func() {
		s.generator.On("GenerateGraph", s.ctx, "idea").Return(nil, errors.New("rate limited")).Once()
		_, err := s.service.GenerateGraph(s.ctx, "s1", "idea")
		s.ErrorIs(err, models.ErrGenerationFailed)
		s.Equal(int64(1), s.balance("s1"))
	})

	s.Run("dangling reference", func() {
		s.generator.On("GenerateGraph", s.ctx, "idea").Return(generatedGraphJSON("intro", "nowhere"), nil).Once()
		_, err := s.service.GenerateGraph(s.ctx, "s1", "idea")
		var refErr *models.ReferentialIntegrityError
		s.Require().ErrorAs(err, &refErr)
		s.Require().Len(refErr.References, 1)
		s.Equal("nowhere", refErr.References[0].Target)
		s.Equal(int64(1), s.balance("s1"))
	})

	s.Run("malformed json", func() {
		s.generator.On("GenerateGraph", s.ctx, "idea").Return([]byte(`{"title": 5}`), nil).Once()
		_, err := s.service.GenerateGraph(s.ctx, "s1", "idea")
		s.ErrorIs(err, models.ErrValidation)
		s.Equal(int64(1), s.balance("s1"))
	})

	_, err := s.graphs.Load(s.ctx, "s1")
	s.ErrorIs(err, models.ErrGraphNotFound, "nothing saved")
}

func (s *ScenarioServiceSuite) TestSelectPath() {
	s.Require().NoError(s.graphs.Save(s.ctx, "s1", doorGraph()))
	s.oracle.On("Select", s.ctx, mock.Anything).Return(interfaces.SelectionResponse{NodeID: "C"}, nil).Once()

	res, err := s.service.SelectPath(s.ctx, "s1", SelectPathInput{CurrentNodeID: "A", UserInput: "no"})
	s.Require().NoError(err)
	s.Equal("C", res.NextNode.ID)

	_, err = s.service.SelectPath(s.ctx, "missing", SelectPathInput{CurrentNodeID: "A"})
	s.ErrorIs(err, models.ErrGraphNotFound)
}

func (s *ScenarioServiceSuite) TestInFlightSlots() {
	slots, err := s.service.InFlightSlots(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal([]string{}, slots)

	_, err = s.slots.Claim(s.ctx, "s1", "idle", "worker-1")
	s.Require().NoError(err)
	slots, err = s.service.InFlightSlots(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal([]string{"idle"}, slots)
}

func TestCreditService(t *testing.T) {
	ctx := context.Background()
	svc := NewCreditService(database.NewMemoryCreditLedger(), zap.NewNop())

	balance, err := svc.AddCredits(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	got, err := svc.GetCredits(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	_, err = svc.AddCredits(ctx, "s1", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.AddCredits(ctx, "s1", -5)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
