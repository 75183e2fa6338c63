package codegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/prompt"
)

const DefaultTemperature = 0.2

var ErrEmptyCompletion = errors.New("model returned no code")

type Request struct {
	Question   string      `json:"question"`
	Datasets   dataset.Set `json:"-"`
	Preference chart.Kind  `json:"preference,omitempty"`
}

type Result struct {
	Code          string `json:"code"`
	Rationale     string `json:"rationale,omitempty"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	PolicyVersion string `json:"policy_version"`
}

type ChatRequest struct {
	System      string
	User        string
	Temperature float64
}

type Completion struct {
	Text      string
	Reasoning string
}

// ChatModel is a single-completion chat call. Implementations must not
// stream partial output to the caller.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (Completion, error)
	Provider() string
	Model() string
}

type UpstreamError struct {
	Provider string
	Model    string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s model %q: %v", e.Provider, e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Temperature is sent as given, zero included. Nil selects
	// DefaultTemperature.
	Temperature *float64
	SampleRows  int
}

type Generator struct {
	model       ChatModel
	opts        Options
	temperature float64
	logger      *slog.Logger
}

func NewGenerator(model ChatModel, opts Options, logger *slog.Logger) *Generator {
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{model: model, opts: opts, temperature: temperature, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	system, user := prompt.Build(req.Question, req.Datasets, prompt.Options{
		SampleRows: g.opts.SampleRows,
		Preference: req.Preference,
	})

	completion, err := g.model.Complete(ctx, ChatRequest{System: system, User: user, Temperature: g.temperature})
	if err != nil {
		return Result{}, g.fail(start, err)
	}
	code := StripCodeFences(completion.Text)
	if code == "" {
		return Result{}, g.fail(start, ErrEmptyCompletion)
	}

	observeGeneration(g.model.Provider(), "ok", time.Since(start))
	g.logger.Info("code generated",
		slog.String("provider", g.model.Provider()),
		slog.String("model", g.model.Model()),
		slog.Int("code_bytes", len(code)),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{
		Code:          code,
		Rationale:     strings.TrimSpace(completion.Reasoning),
		Provider:      g.model.Provider(),
		Model:         g.model.Model(),
		PolicyVersion: prompt.PolicyVersion,
	}, nil
}

func (g *Generator) fail(start time.Time, err error) error {
	observeGeneration(g.model.Provider(), "error", time.Since(start))
	g.logger.Warn("code generation failed",
		slog.String("provider", g.model.Provider()),
		slog.String("model", g.model.Model()),
		slog.String("error", err.Error()),
	)
	return &UpstreamError{Provider: g.model.Provider(), Model: g.model.Model(), Err: err}
}

var languageTag = regexp.MustCompile(`^[A-Za-z0-9_+.#-]*$`)

// StripCodeFences removes surrounding triple-backtick fences, with an
// optional language tag, and trims whitespace. Applying it twice gives the
// same result as applying it once.
func StripCodeFences(text string) string {
	code := strings.TrimSpace(text)
	for {
		next := stripFencesOnce(code)
		if next == code {
			return code
		}
		code = next
	}
}

func stripFencesOnce(code string) string {
	if rest, ok := strings.CutPrefix(code, "```"); ok {
		firstLine, body, hasBody := strings.Cut(rest, "\n")
		switch {
		case languageTag.MatchString(strings.TrimSpace(firstLine)) && hasBody:
			rest = body
		case languageTag.MatchString(strings.TrimSpace(firstLine)):
			rest = ""
		}
		code = rest
	}
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}
