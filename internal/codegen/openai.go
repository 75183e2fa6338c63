package codegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIBaseURL = "https://router.huggingface.co/v1"
	defaultOpenAIModel   = "moonshotai/Kimi-K2-Instruct-0905"
)

// OpenAIModel talks to any OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIModel(cfg ProviderConfig) (*OpenAIModel, error) {
	key, err := requireAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(key)
	clientCfg.BaseURL = strings.TrimRight(modelOrDefault(cfg.BaseURL, DefaultOpenAIBaseURL), "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIModel{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     modelOrDefault(cfg.Model, defaultOpenAIModel),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (m *OpenAIModel) Provider() string { return ProviderOpenAI }
func (m *OpenAIModel) Model() string    { return m.model }

func (m *OpenAIModel) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   m.maxTokens,
		N:           1,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("empty chat completion choices")
	}
	message := resp.Choices[0].Message
	return Completion{Text: message.Content, Reasoning: message.ReasoningContent}, nil
}
