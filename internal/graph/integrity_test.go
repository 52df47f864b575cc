package graph

import (
	"errors"
	"testing"

	"scenario-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, fallback string, targets ...string) models.Node {
	n := models.Node{ID: id, Title: "T" + id, Script: "script " + id, FallbackNodeID: fallback, Options: []models.Option{}}
	for _, t := range targets {
		n.Options = append(n.Options, models.Option{Condition: "go " + t, NodeID: t})
	}
	return n
}

func TestCheckReferentialIntegrity(t *testing.T) {
	t.Run("intact graph, cycles allowed", func(t *testing.T) {
		g := &models.Graph{StartNodeID: "A", Nodes: []models.Node{node("A", "C", "B"), node("B", "", "A"), node("C", "")}}
		assert.Empty(t, CheckReferentialIntegrity(g))
		assert.NoError(t, IntegrityError(g))
	})

	t.Run("dangling option, fallback and start", func(t *testing.T) {
		g := &models.Graph{StartNodeID: "X", Nodes: []models.Node{node("A", "Q", "B", "Z"), node("B", "")}}
		refs := CheckReferentialIntegrity(g)
		assert.Equal(t, []models.DanglingReference{
			{Field: "startNodeId", Target: "X"},
			{NodeID: "A", Field: "options[1].nodeId", Target: "Z"},
			{NodeID: "A", Field: "fallbackNodeId", Target: "Q"},
		}, refs)

		err := IntegrityError(g)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrReferentialIntegrity))
		var riErr *models.ReferentialIntegrityError
		require.True(t, errors.As(err, &riErr))
		assert.Len(t, riErr.References, 3)
		assert.Contains(t, err.Error(), `node "A" options[1].nodeId -> "Z"`)
	})

	t.Run("placeholder start is not checked", func(t *testing.T) {
		g := models.NewPlaceholderGraph("s", "p")
		assert.Empty(t, CheckReferentialIntegrity(g))
	})
}

func TestNeighborsAndTerminals(t *testing.T) {
	g := &models.Graph{StartNodeID: "A", Nodes: []models.Node{node("A", "", "B", "C", "ghost"), node("B", ""), node("C", "", "A")}}

	ns, err := Neighbors(g, "A")
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "B", ns[0].ID)
	assert.Equal(t, "C", ns[1].ID)

	_, err = Neighbors(g, "nope")
	assert.True(t, errors.Is(err, models.ErrNodeNotFound))

	terms := TerminalNodes(g)
	require.Len(t, terms, 1)
	assert.Equal(t, "B", terms[0].ID)
}
