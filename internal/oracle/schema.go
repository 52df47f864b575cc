package oracle

import (
	"github.com/sashabaranov/go-openai/jsonschema"
)

// selectionSchema ограничивает ответ id одной из опций текущего узла.
func selectionSchema(optionIDs []string) jsonschema.Definition {
	nodeID := jsonschema.Definition{
		Type:        jsonschema.String,
		Description: "The ID of the next node to visit.",
	}
	if len(optionIDs) > 0 {
		nodeID.Enum = optionIDs
	}
	return jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           map[string]jsonschema.Definition{"nodeId": nodeID},
		Required:             []string{"nodeId"},
		AdditionalProperties: false,
	}
}

var graphSchema = func() jsonschema.Definition {
	str := jsonschema.Definition{Type: jsonschema.String}
	option := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"condition": str,
			"nodeId":    str,
		},
		Required: []string{"condition", "nodeId"},
	}
	toast := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"message": str,
			"type":    {Type: jsonschema.String, Enum: []string{"positive", "negative", "neutral"}},
		},
		Required: []string{"message", "type"},
	}
	node := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"id":             str,
			"title":          str,
			"script":         str,
			"options":        {Type: jsonschema.Array, Items: &option},
			"fallbackNodeId": str,
			"toast":          toast,
		},
		Required: []string{"id", "title", "script", "options"},
	}
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"id":          str,
			"title":       str,
			"prompt":      str,
			"startNodeId": str,
			"nodes":       {Type: jsonschema.Array, Items: &node},
		},
		Required: []string{"title", "prompt", "startNodeId", "nodes"},
	}
}()
