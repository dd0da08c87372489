package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultCompletionModel = openai.GPT4oMini

var (
	errMissingAPIKey     = errors.New("insight: openai api key is required")
	errEmptyChoice       = errors.New("insight: completion response carried no choices")
	errEmptyResponseText = errors.New("insight: completion response text was empty")
)

// OpenAIClient calls the chat-completion API in JSON-object mode.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIClientConfig describes the settings for an OpenAIClient.
type OpenAIClientConfig struct {
	APIKey string
	Model  string
}

// NewOpenAIClient constructs an OpenAIClient.
func NewOpenAIClient(cfg OpenAIClientConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = defaultCompletionModel
	}
	return &OpenAIClient{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}, nil
}

// Complete sends the instruction pair and returns the raw response text. The
// JSON response format asks the model for exactly one JSON object; callers
// still validate the result.
func (c *OpenAIClient) Complete(ctx context.Context, request CompletionRequest) (string, error) {
	response, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: request.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: request.Prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("insight: chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errEmptyChoice
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyResponseText
	}
	return content, nil
}
