package graph

import (
	"errors"
	"testing"

	"scenario-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doorGraph = `{
  "id": "s1",
  "title": "Door",
  "prompt": "A locked door",
  "startNodeId": "A",
  "startImageUrl": "https://cdn.example/start.png",
  "nodes": [
    {"id": "A", "title": "Start", "script": "Open it?", "toast": {"message": "Welcome", "type": "neutral"},
     "options": [{"condition": "agrees", "nodeId": "B"}, {"condition": "refuses", "nodeId": "C"}],
     "fallbackNodeId": "B"},
    {"id": "B", "title": "Opened", "script": "The door opens", "options": []},
    {"id": "C", "title": "Closed", "script": "The door stays shut", "options": []}
  ]
}`

func issueFields(t *testing.T, err error) []string {
	t.Helper()
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr), "expected *ValidationError, got %v", err)
	fields := make([]string, 0, len(vErr.Issues))
	for _, is := range vErr.Issues {
		fields = append(fields, is.Field)
	}
	return fields
}

func TestValidate_ValidGraph(t *testing.T) {
	g, err := Validate([]byte(doorGraph))
	require.NoError(t, err)

	assert.Equal(t, "s1", g.ID)
	assert.Equal(t, "A", g.StartNodeID)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, []models.Option{{Condition: "agrees", NodeID: "B"}, {Condition: "refuses", NodeID: "C"}}, g.Nodes[0].Options)
	assert.Equal(t, &models.Toast{Message: "Welcome", Type: models.ToastNeutral}, g.Nodes[0].Toast)
	assert.Equal(t, "B", g.Nodes[0].FallbackNodeID)
	assert.NotNil(t, g.Nodes[1].Options)
	assert.True(t, g.Nodes[1].IsTerminal())
}

func TestValidate_Placeholder(t *testing.T) {
	// Граф без узлов - допустимое состояние до генерации.
	g, err := Validate([]byte(`{"id":"s1","title":"Untitled","prompt":"p","startNodeId":"start","nodes":[]}`))
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.False(t, g.IsReady())
}

func TestValidate_EmptyStringsArePresent(t *testing.T) {
	_, err := Validate([]byte(`{"title":"","prompt":"","startNodeId":"","nodes":[]}`))
	assert.NoError(t, err)
}

func TestValidate_ShapeErrors(t *testing.T) {
	t.Run("missing top-level fields", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t"}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
		assert.ElementsMatch(t, []string{"prompt", "startNodeId", "nodes"}, issueFields(t, err))
	})

	t.Run("null nodes", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":null}`))
		assert.Equal(t, []string{"nodes"}, issueFields(t, err))
	})

	t.Run("node without options", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":[{"id":"a","title":"A","script":"s"}]}`))
		assert.Equal(t, []string{"nodes[0].options"}, issueFields(t, err))
	})

	t.Run("option without target", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":[
			{"id":"a","title":"A","script":"s","options":[{"condition":"c"}]}]}`))
		assert.Equal(t, []string{"nodes[0].options[0].nodeId"}, issueFields(t, err))
	})

	t.Run("unknown toast type", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":[
			{"id":"a","title":"A","script":"s","options":[],"toast":{"message":"m","type":"angry"}}]}`))
		assert.Equal(t, []string{"nodes[0].toast.type"}, issueFields(t, err))
	})

	t.Run("wrong JSON type", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":5,"prompt":"p","startNodeId":"a","nodes":[]}`))
		assert.Equal(t, []string{"title"}, issueFields(t, err))
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := Validate([]byte(`[1,2,3]`))
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("broken JSON", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":`))
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("duplicate node ids", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":[
			{"id":"a","title":"A","script":"s","options":[]},
			{"id":"a","title":"A2","script":"s","options":[]}]}`))
		assert.Equal(t, []string{"nodes[1].id"}, issueFields(t, err))
	})

	t.Run("reserved idle id", func(t *testing.T) {
		_, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"idle","nodes":[
			{"id":"idle","title":"I","script":"s","options":[]}]}`))
		assert.Equal(t, []string{"nodes[0].id"}, issueFields(t, err))
	})
}

func TestValidate_DoesNotCheckReferences(t *testing.T) {
	// Схемно валидный граф с висячей ссылкой проходит первую фазу.
	g, err := Validate([]byte(`{"title":"t","prompt":"p","startNodeId":"a","nodes":[
		{"id":"a","title":"A","script":"s","options":[{"condition":"c","nodeId":"ghost"}]}]}`))
	require.NoError(t, err)
	assert.Len(t, CheckReferentialIntegrity(g), 1)
}

func TestValidateValue(t *testing.T) {
	g, err := ValidateValue(map[string]any{
		"title":       "t",
		"prompt":      "p",
		"startNodeId": "a",
		"nodes": []map[string]any{
			{"id": "a", "title": "A", "script": "s", "options": []any{}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", g.Nodes[0].ID)

	_, err = ValidateValue(map[string]any{"title": "t"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = ValidateValue(make(chan int))
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestValidateReady(t *testing.T) {
	g, err := ValidateReady([]byte(doorGraph))
	require.NoError(t, err)
	assert.True(t, g.IsReady())

	_, err = ValidateReady([]byte(`{"title":"t","prompt":"p","startNodeId":"start","nodes":[]}`))
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = ValidateReady([]byte(`{"title":"t","prompt":"p","startNodeId":"zzz","nodes":[
		{"id":"a","title":"A","script":"s","options":[]}]}`))
	assert.True(t, errors.Is(err, models.ErrReferentialIntegrity))
}
