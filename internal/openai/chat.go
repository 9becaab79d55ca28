package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is used for answer generation and the generative embedding tier
	DefaultChatModel = openai.GPT4oMini

	healthTimeout = 5 * time.Second
)

// ErrNoCompletion is returned when the API answers without any choices
var ErrNoCompletion = errors.New("no completion choices returned")

// ChatAPI is the subset of the go-openai client used for generation
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// ChatConfig holds generation parameters
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
	Stop        []string
}

// ChatClient produces text completions from a single system + user exchange
type ChatClient struct {
	api ChatAPI
	cfg ChatConfig
}

// NewChatClient creates a chat client talking to the OpenAI API (or a compatible BaseURL)
func NewChatClient(cfg ChatConfig) *ChatClient {
	return NewChatClientWithAPI(newAPIClient(cfg.APIKey, cfg.BaseURL), cfg)
}

// NewChatClientWithAPI creates a chat client over an existing API implementation
func NewChatClientWithAPI(api ChatAPI, cfg ChatConfig) *ChatClient {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &ChatClient{api: api, cfg: cfg}
}

// WithTemperature returns a copy of the client using a different sampling temperature
func (c *ChatClient) WithTemperature(t float32) *ChatClient {
	cfg := c.cfg
	cfg.Temperature = t
	return &ChatClient{api: c.api, cfg: cfg}
}

// Complete sends the prompt and returns the first choice's content
func (c *ChatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyText
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
		Stop:        c.cfg.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

// Healthy reports whether the API answers a model listing
func (c *ChatClient) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, err := c.api.ListModels(ctx)
	return err == nil
}
