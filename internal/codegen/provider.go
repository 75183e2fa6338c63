package codegen

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"

	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 2048
)

type ProviderConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewChatModel builds the client for cfg.Provider. Every client carries a
// network timeout.
func NewChatModel(ctx context.Context, cfg ProviderConfig) (ChatModel, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	var (
		model ChatModel
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		model, err = asChatModel(NewOpenAIModel(cfg))
	case ProviderAnthropic:
		model, err = asChatModel(NewAnthropicModel(cfg))
	case ProviderGemini:
		model, err = asChatModel(NewGeminiModel(ctx, cfg))
	case ProviderOllama:
		model, err = asChatModel(NewOllamaModel(cfg))
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

func asChatModel[M ChatModel](model M, err error) (ChatModel, error) {
	if err != nil {
		return nil, err
	}
	return model, nil
}

func requireAPIKey(cfg ProviderConfig) (string, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return "", fmt.Errorf("%s api key is required", cfg.Provider)
	}
	return key, nil
}

func modelOrDefault(model, fallback string) string {
	if trimmed := strings.TrimSpace(model); trimmed != "" {
		return trimmed
	}
	return fallback
}
