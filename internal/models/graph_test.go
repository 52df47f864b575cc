package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() *Graph {
	return &Graph{
		ID:          "s1",
		Title:       "Door",
		Prompt:      "A locked door",
		StartNodeID: "A",
		Nodes: []Node{
			{ID: "A", Title: "Start", Script: "Open?", Toast: &Toast{Message: "hi", Type: ToastNeutral}, Options: []Option{{Condition: "yes", NodeID: "B"}, {Condition: "no", NodeID: "C"}}, FallbackNodeID: "B"},
			{ID: "B", Title: "Opened", Script: "It opens", Options: []Option{}},
			{ID: "C", Title: "Closed", Script: "It stays shut", Options: []Option{}},
		},
	}
}

func TestGraphLookups(t *testing.T) {
	g := sampleGraph()

	assert.True(t, g.HasNode("A"))
	assert.False(t, g.HasNode("Z"))
	assert.Nil(t, g.NodeByID("Z"))
	assert.Equal(t, []string{"A", "B", "C"}, g.NodeIDs())
	assert.True(t, g.IsReady())

	a := g.NodeByID("A")
	require.NotNil(t, a)
	assert.False(t, a.IsTerminal())
	assert.True(t, g.NodeByID("B").IsTerminal())

	opt, ok := a.OptionFor("C")
	assert.True(t, ok)
	assert.Equal(t, "no", opt.Condition)
	_, ok = a.OptionFor("A")
	assert.False(t, ok)
}

func TestPlaceholderIsNotReady(t *testing.T) {
	g := NewPlaceholderGraph("s2", "premise")
	assert.Equal(t, "Untitled", g.Title)
	assert.Equal(t, "start", g.StartNodeID)
	assert.NotNil(t, g.Nodes)
	assert.Empty(t, g.Nodes)
	assert.False(t, g.IsReady())
}

func TestCloneIsDeep(t *testing.T) {
	g := sampleGraph()
	c := g.Clone()

	c.Nodes[0].Options[0].NodeID = "C"
	c.Nodes[0].Toast.Message = "changed"
	c.Nodes[1].VideoURL = "x"

	assert.Equal(t, "B", g.Nodes[0].Options[0].NodeID)
	assert.Equal(t, "hi", g.Nodes[0].Toast.Message)
	assert.Empty(t, g.Nodes[1].VideoURL)
}

func TestKindOf(t *testing.T) {
	insufficient := &InsufficientCreditsError{Required: 3, Available: 1}
	assert.Equal(t, KindInsufficientCredits, KindOf(insufficient))
	assert.True(t, errors.Is(insufficient, ErrInsufficientCredits))
	assert.Equal(t, "insufficient credits: required 3, available 1", insufficient.Error())

	assert.Equal(t, KindAllSlotsBusy, KindOf(ErrAllSlotsBusy))
	assert.Equal(t, KindValidation, KindOf(&ValidationError{Issues: []FieldIssue{{Field: "title", Message: "required"}}}))
	assert.Equal(t, KindReferentialIntegrity, KindOf(&ReferentialIntegrityError{}))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
