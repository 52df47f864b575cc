package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scenario-server/internal/interfaces"
	"scenario-server/internal/interfaces/mocks"
	"scenario-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// doorGraph: A -> (B | C), fallback B; B и C терминальные.
func doorGraph() *models.Graph {
	return &models.Graph{
		ID:          "s1",
		Title:       "The Door",
		Prompt:      "A mysterious door",
		StartNodeID: "A",
		Nodes: []models.Node{
			{
				ID:     "A",
				Title:  "Hallway",
				Script: "Will you open the door?",
				Options: []models.Option{
					{Condition: "user agrees", NodeID: "B"},
					{Condition: "user refuses", NodeID: "C"},
				},
				FallbackNodeID: "B",
			},
			{ID: "B", Title: "Open", Script: "The door creaks open.", Options: []models.Option{}},
			{ID: "C", Title: "Walk away", Script: "You leave.", Options: []models.Option{}},
		},
	}
}

func TestSelectPath_ReturnsOracleChoice(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, false, zap.NewNop())

	oracle.On("Select", ctx, mock.MatchedBy(func(req interfaces.SelectionRequest) bool {
		return req.GraphTitle == "The Door" &&
			req.GraphPrompt == "A mysterious door" &&
			req.CurrentNodeScript == "Will you open the door?" &&
			len(req.Options) == 2 &&
			req.FallbackNodeID == "B" &&
			req.UserInput == "yes" &&
			assert.ObjectsAreEqual([]string{"hi"}, req.History) &&
			req.EmotionContext == "calm"
	})).Return(interfaces.SelectionResponse{NodeID: "B"}, nil).Once()

	res, err := selector.SelectPath(ctx, doorGraph(), SelectPathInput{
		CurrentNodeID:  "A",
		UserInput:      "yes",
		History:        []string{"hi"},
		EmotionContext: "calm",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", res.NextNode.ID)
	assert.Equal(t, models.Option{Condition: "user agrees", NodeID: "B"}, res.SelectedOption)
	assert.Equal(t, res.NextNode.ID, res.SelectedOption.NodeID)
	assert.False(t, res.UsedFallback)
	oracle.AssertExpectations(t)
}

func TestSelectPath_StrictPolicyRejectsNonOptionTarget(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, false, zap.NewNop())

	for _, answer := range []string{"Z", "A"} {
		t.Run(answer, func(t *testing.T) {
			oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{NodeID: answer}, nil).Once()

			res, err := selector.SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "A", UserInput: "maybe"})
			assert.Nil(t, res)
			assert.ErrorIs(t, err, models.ErrInvalidSelection)
			assert.Equal(t, models.KindInvalidSelection, models.KindOf(err))
		})
	}
}

func TestSelectPath_FallbackPolicy(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, true, zap.NewNop())

	oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{NodeID: "Z"}, nil).Once()

	res, err := selector.SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "A", UserInput: "banana"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "B", res.NextNode.ID)
	assert.Equal(t, models.Option{Condition: "fallback", NodeID: "B"}, res.SelectedOption)
}

func TestSelectPath_FallbackPolicyWithoutResolvableFallback(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, true, zap.NewNop())

	g := doorGraph()
	g.Nodes[0].FallbackNodeID = "missing"
	oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{NodeID: "Z"}, nil).Once()

	_, err := selector.SelectPath(ctx, g, SelectPathInput{CurrentNodeID: "A"})
	assert.ErrorIs(t, err, models.ErrInvalidSelection)
}

func TestSelectPath_DanglingOptionTarget(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, false, zap.NewNop())

	g := doorGraph()
	g.Nodes[0].Options = append(g.Nodes[0].Options, models.Option{Condition: "user jumps", NodeID: "X"})
	oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{NodeID: "X"}, nil).Once()

	_, err := selector.SelectPath(ctx, g, SelectPathInput{CurrentNodeID: "A"})
	assert.ErrorIs(t, err, models.ErrInvalidSelection)
}

func TestSelectPath_MalformedOracleResponse(t *testing.T) {
	ctx := context.Background()
	malformed := fmt.Errorf("%w: nodeId is empty", models.ErrMalformedOracleResponse)

	t.Run("strict", func(t *testing.T) {
		oracle := new(mocks.SelectionOracle)
		oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{}, malformed).Once()

		_, err := NewPathSelector(oracle, false, zap.NewNop()).SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "A"})
		assert.ErrorIs(t, err, models.ErrInvalidSelection)
		assert.ErrorIs(t, err, models.ErrMalformedOracleResponse)
	})

	t.Run("fallback", func(t *testing.T) {
		oracle := new(mocks.SelectionOracle)
		oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{}, malformed).Once()

		res, err := NewPathSelector(oracle, true, zap.NewNop()).SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "A"})
		require.NoError(t, err)
		assert.True(t, res.UsedFallback)
	})
}

func TestSelectPath_OracleFailure(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	oracle.On("Select", ctx, mock.Anything).Return(interfaces.SelectionResponse{}, errors.New("connection refused")).Once()

	// сбой оракула не маршрутизируется в fallback
	_, err := NewPathSelector(oracle, true, zap.NewNop()).SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "A"})
	assert.ErrorIs(t, err, models.ErrOracleFailed)
	assert.Equal(t, models.KindInvalidSelection, models.KindOf(err))
}

func TestSelectPath_PreconditionsSkipOracle(t *testing.T) {
	ctx := context.Background()
	oracle := new(mocks.SelectionOracle)
	selector := NewPathSelector(oracle, true, zap.NewNop())

	_, err := selector.SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "nope"})
	assert.ErrorIs(t, err, models.ErrNodeNotFound)

	_, err = selector.SelectPath(ctx, doorGraph(), SelectPathInput{CurrentNodeID: "B"})
	assert.ErrorIs(t, err, models.ErrInvalidSelection)

	oracle.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}
