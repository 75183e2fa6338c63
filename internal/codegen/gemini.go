package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiModel struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func NewGeminiModel(ctx context.Context, cfg ProviderConfig) (*GeminiModel, error) {
	key, err := requireAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiModel{
		client:    client,
		model:     modelOrDefault(cfg.Model, defaultGeminiModel),
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

func (m *GeminiModel) Provider() string { return ProviderGemini }
func (m *GeminiModel) Model() string    { return m.model }

func (m *GeminiModel) Complete(ctx context.Context, req ChatRequest) (Completion, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	model := m.client.GenerativeModel(m.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	model.SetTemperature(float32(req.Temperature))
	model.SetCandidateCount(1)
	model.SetMaxOutputTokens(int32(m.maxTokens))

	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, errors.New("gemini: empty response")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if value, ok := part.(genai.Text); ok {
			text.WriteString(string(value))
		}
	}
	return Completion{Text: text.String()}, nil
}

func (m *GeminiModel) Close() error {
	return m.client.Close()
}
