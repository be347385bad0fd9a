// Package llm provides chat completion via langchaingo.
//
// This package wraps langchaingo's OpenAI-compatible client so the intent
// classifier and the plan generator share one completion backend. Any
// endpoint speaking the OpenAI chat API works (OpenAI itself, or a local
// server such as vLLM or Ollama in compatibility mode).
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

var (
	// ErrEmptyPrompt indicates an empty prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrNoCompletion indicates the backend returned no choices.
	ErrNoCompletion = errors.New("no completion returned")
)

// Client generates a completion for a system/user prompt pair.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds configuration for the completion client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// APIKey authenticates against the endpoint. Optional for local servers.
	APIKey string
}

// client wraps a langchaingo model.
type client struct {
	model llms.Model
}

// NewClient creates a completion client.
func NewClient(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &client{model: model}, nil
}

// Complete implements Client.
func (c *client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoCompletion
	}

	return resp.Choices[0].Content, nil
}
