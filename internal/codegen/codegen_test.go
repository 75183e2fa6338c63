package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/prompt"
)

type fakeModel struct {
	completion Completion
	err        error
	requests   []ChatRequest
}

func (m *fakeModel) Complete(_ context.Context, req ChatRequest) (Completion, error) {
	m.requests = append(m.requests, req)
	return m.completion, m.err
}

func (m *fakeModel) Provider() string { return "fake" }
func (m *fakeModel) Model() string    { return "fake-1" }

func testSet(t *testing.T) dataset.Set {
	t.Helper()
	table, err := dataset.NewTable("data", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "value", Type: dataset.TypeFloat},
	}, [][]any{{"a", 1.0}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return dataset.Set{"data": table}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "```go\nresult := 1\n```", want: "result := 1"},
		{input: "```\nresult := 1\n```", want: "result := 1"},
		{input: "  ```golang\nx := 1\ny := 2\n``` ", want: "x := 1\ny := 2"},
		{input: "result := 1", want: "result := 1"},
		{input: "```go\n```go\nresult := 1\n```\n```", want: "result := 1"},
		{input: "```x := 1```", want: "x := 1"},
		{input: "```go", want: ""},
		{input: "", want: ""},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.input); got != tc.want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestStripCodeFencesIsIdempotent(t *testing.T) {
	inputs := []string{
		"```go\nresult := chart.AsStatic(fig, \"x\")\n```",
		"```\n```\n```",
		"s := \"```\"",
		"plain code",
		"```python\nprint(1)```",
	}
	for _, input := range inputs {
		once := StripCodeFences(input)
		if twice := StripCodeFences(once); twice != once {
			t.Fatalf("StripCodeFences not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestGenerateSendsPolicyAndStripsFences(t *testing.T) {
	model := &fakeModel{completion: Completion{Text: "```go\nresult := chart.AsInteractive(fig, \"ok\")\n```", Reasoning: " grouped by category "}}
	generator := NewGenerator(model, Options{}, nil)

	result, err := generator.Generate(context.Background(), Request{Question: "show totals", Datasets: testSet(t)})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Code != `result := chart.AsInteractive(fig, "ok")` {
		t.Fatalf("code = %q", result.Code)
	}
	if result.Rationale != "grouped by category" || result.Provider != "fake" || result.Model != "fake-1" {
		t.Fatalf("result = %#v", result)
	}
	if result.PolicyVersion != prompt.PolicyVersion {
		t.Fatalf("policy version = %q", result.PolicyVersion)
	}
	if len(model.requests) != 1 {
		t.Fatalf("requests = %d", len(model.requests))
	}
	sent := model.requests[0]
	if sent.System != prompt.SystemPolicy || sent.Temperature != DefaultTemperature {
		t.Fatalf("request = %#v", sent)
	}
	if !strings.Contains(sent.User, "show totals") || !strings.Contains(sent.User, "Dataset: data") {
		t.Fatalf("user prompt = %q", sent.User)
	}
}

func TestGenerateKeepsExplicitZeroTemperature(t *testing.T) {
	model := &fakeModel{completion: Completion{Text: "result := 1"}}
	zero := 0.0
	generator := NewGenerator(model, Options{Temperature: &zero}, nil)

	if _, err := generator.Generate(context.Background(), Request{Question: "q", Datasets: testSet(t)}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := model.requests[0].Temperature; got != 0 {
		t.Fatalf("temperature = %v, want 0", got)
	}
}

func TestGenerateWrapsFailuresAsUpstreamError(t *testing.T) {
	cases := map[string]*fakeModel{
		"transport":  {err: errors.New("connection refused")},
		"empty":      {completion: Completion{Text: "  \n"}},
		"fence only": {completion: Completion{Text: "```go\n```"}},
	}
	for name, model := range cases {
		_, err := NewGenerator(model, Options{}, nil).Generate(context.Background(), Request{Question: "q", Datasets: testSet(t)})
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("%s: Generate() error = %v, want UpstreamError", name, err)
		}
		if upstream.Provider != "fake" {
			t.Fatalf("%s: provider = %q", name, upstream.Provider)
		}
	}
}

func TestOpenAIModelAgainstCompatibleServer(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"result := 1"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	model, err := NewChatModel(context.Background(), ProviderConfig{Provider: "openai", BaseURL: server.URL + "/v1/", APIKey: "secret", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewChatModel() error = %v", err)
	}
	completion, err := model.Complete(context.Background(), ChatRequest{System: "sys", User: "usr", Temperature: 0.2})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Text != "result := 1" {
		t.Fatalf("text = %q", completion.Text)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", captured["messages"])
	}
}

func TestOllamaModelAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "sys" || body["stream"] != false {
			t.Errorf("body = %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1","response":"result := 2","done":true}`))
	}))
	defer server.Close()

	model, err := NewChatModel(context.Background(), ProviderConfig{Provider: "ollama", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewChatModel() error = %v", err)
	}
	completion, err := model.Complete(context.Background(), ChatRequest{System: "sys", User: "usr", Temperature: 0.2})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Text != "result := 2" {
		t.Fatalf("text = %q", completion.Text)
	}
}

func TestNewChatModelValidatesConfig(t *testing.T) {
	if _, err := NewChatModel(context.Background(), ProviderConfig{Provider: "openai"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewChatModel(context.Background(), ProviderConfig{Provider: "anthropic"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewChatModel(context.Background(), ProviderConfig{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	model, err := NewChatModel(context.Background(), ProviderConfig{Provider: "anthropic", APIKey: "k"})
	if err != nil || model.Provider() != ProviderAnthropic {
		t.Fatalf("NewChatModel(anthropic) = %v, %v", model, err)
	}
}
