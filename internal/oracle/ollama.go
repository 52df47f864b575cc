package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scenario-server/internal/interfaces"

	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const backendOllama = "ollama"

// ollamaClient - тот же контракт поверх нативного API Ollama. Схема ответа передается в Format.
type ollamaClient struct {
	client     *api.Client
	model      string
	graphModel string
	timeout    time.Duration
	logger     *zap.Logger
}

func (c *ollamaClient) Select(ctx context.Context, req interfaces.SelectionRequest) (interfaces.SelectionResponse, error) {
	optionIDs := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		optionIDs = append(optionIDs, o.NodeID)
	}
	content, err := c.chat(ctx, opSelect, c.model, RenderSystemPrompt(req), req.UserInput, selectionSchema(optionIDs))
	if err != nil {
		return interfaces.SelectionResponse{}, err
	}
	return DecodeSelection(content)
}

func (c *ollamaClient) GenerateGraph(ctx context.Context, prompt string) ([]byte, error) {
	content, err := c.chat(ctx, opGraph, c.graphModel, graphSystemPrompt, renderGraphUserPrompt(prompt), graphSchema)
	if err != nil {
		return nil, err
	}
	return []byte(stripCodeFence(content)), nil
}

func (c *ollamaClient) chat(ctx context.Context, operation, model, systemPrompt, userInput string, schema jsonschema.Definition) (string, error) {
	log := c.logger.With(zap.String("operation", operation), zap.String("model", model))

	format, err := json.Marshal(&schema)
	if err != nil {
		return "", fmt.Errorf("failed to encode response schema: %w", err)
	}

	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp api.ChatResponse
	err = c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			log.Error("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		}
		observeRequest(backendOllama, operation, "error", duration.Seconds())
		return "", fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		log.Warn("Ollama returned empty response", zap.Duration("duration", duration))
		observeRequest(backendOllama, operation, "error_empty_response", duration.Seconds())
		return "", fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}
	observeRequest(backendOllama, operation, "success", duration.Seconds())

	promptTokens := resp.PromptEvalCount
	if promptTokens == 0 {
		promptTokens = estimateTokens(model, systemPrompt, userInput)
	}
	observeTokens(backendOllama, operation, promptTokens, resp.EvalCount)

	log.Debug("Ollama response received", zap.Duration("duration", duration), zap.Int("promptTokens", promptTokens))
	return resp.Message.Content, nil
}
