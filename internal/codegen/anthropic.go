package codegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-latest"

type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicModel(cfg ProviderConfig) (*AnthropicModel, error) {
	key, err := requireAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(key),
		anthropicopt.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(baseURL))
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(opts...),
		model:     modelOrDefault(cfg.Model, defaultAnthropicModel),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (m *AnthropicModel) Provider() string { return ProviderAnthropic }
func (m *AnthropicModel) Model() string    { return m.model }

func (m *AnthropicModel) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	msg, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(m.model),
		MaxTokens:   int64(m.maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(textBlock.Text)
		}
	}
	return Completion{Text: text.String()}, nil
}
