package codegen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

type OllamaModel struct {
	client    *ollama.Client
	model     string
	maxTokens int
}

func NewOllamaModel(cfg ProviderConfig) (*OllamaModel, error) {
	host := modelOrDefault(cfg.BaseURL, DefaultOllamaHost)
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaModel{
		client:    ollama.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		model:     modelOrDefault(cfg.Model, defaultOllamaModel),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (m *OllamaModel) Provider() string { return ProviderOllama }
func (m *OllamaModel) Model() string    { return m.model }

func (m *OllamaModel) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	stream := false
	var text strings.Builder
	err := m.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  m.model,
		System: req.System,
		Prompt: req.User,
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": m.maxTokens,
		},
	}, func(resp ollama.GenerateResponse) error {
		text.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return Completion{}, fmt.Errorf("ollama generate: %w", err)
	}
	return Completion{Text: text.String()}, nil
}
