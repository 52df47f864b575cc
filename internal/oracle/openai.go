package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scenario-server/internal/interfaces"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const backendOpenAI = "openai"

// openAIClient - оракул и генератор графа поверх OpenAI-совместимого API.
type openAIClient struct {
	client     *openaigo.Client
	model      string
	graphModel string
	logger     *zap.Logger
}

func (c *openAIClient) Select(ctx context.Context, req interfaces.SelectionRequest) (interfaces.SelectionResponse, error) {
	optionIDs := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		optionIDs = append(optionIDs, o.NodeID)
	}

	schema := selectionSchema(optionIDs)
	content, err := c.complete(ctx, opSelect, c.model, RenderSystemPrompt(req), req.UserInput,
		&openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "path_selection",
				Schema: &schema,
				Strict: true,
			},
		})
	if err != nil {
		return interfaces.SelectionResponse{}, err
	}
	return DecodeSelection(content)
}

func (c *openAIClient) GenerateGraph(ctx context.Context, prompt string) ([]byte, error) {
	content, err := c.complete(ctx, opGraph, c.graphModel, graphSystemPrompt, renderGraphUserPrompt(prompt),
		&openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "scenario_graph",
				Schema: &graphSchema,
			},
		})
	if err != nil {
		return nil, err
	}
	return []byte(stripCodeFence(content)), nil
}

func (c *openAIClient) complete(ctx context.Context, operation, model, systemPrompt, userInput string, format *openaigo.ChatCompletionResponseFormat) (string, error) {
	log := c.logger.With(zap.String("operation", operation), zap.String("model", model))

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: userInput})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: format,
	})
	duration := time.Since(start)
	if err != nil {
		log.Error("AI request failed", zap.Duration("duration", duration), zap.Error(err))
		observeRequest(backendOpenAI, operation, "error", duration.Seconds())
		return "", fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Warn("AI returned empty response", zap.Duration("duration", duration))
		observeRequest(backendOpenAI, operation, "error_empty_response", duration.Seconds())
		return "", fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}
	observeRequest(backendOpenAI, operation, "success", duration.Seconds())

	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = estimateTokens(model, systemPrompt, userInput)
	}
	observeTokens(backendOpenAI, operation, promptTokens, resp.Usage.CompletionTokens)

	log.Debug("AI response received",
		zap.Duration("duration", duration),
		zap.Int("promptTokens", promptTokens),
		zap.Int("completionTokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
