// Package conversation keeps the short question history of one session and
// routes each question through code generation and execution.
package conversation

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/dataset"
)

const DefaultHistoryCap = 4

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var DefaultKeywords = []string{
	"now", "again", "also", "same", "continue", "compare",
	"filter", "only", "add", "change", "modify", "redo",
	"use previous", "previous", "last",
}

type Generator interface {
	Generate(ctx context.Context, req codegen.Request) (codegen.Result, error)
}

type Executor interface {
	Execute(ctx context.Context, code string, tables dataset.Set) (chart.Result, error)
}

type Options struct {
	HistoryCap int
	// RollbackOnFailure drops the question's user turn when generation or
	// execution fails. By default the failed turn stays in history.
	RollbackOnFailure bool
	Preference        chart.Kind
	Keywords          []string
}

// Exchange is the full record of one answered question.
type Exchange struct {
	Result     chart.Result
	Generation codegen.Result
	Continued  bool
	Prompt     string
}

// Controller owns the history of a single session. It is not safe for
// concurrent use; callers serialize questions per session.
type Controller struct {
	generator    Generator
	executor     Executor
	opts         Options
	continuation *regexp.Regexp
	history      []Turn
	logger       *slog.Logger
}

func NewController(generator Generator, executor Executor, opts Options, logger *slog.Logger) *Controller {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultKeywords
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		generator:    generator,
		executor:     executor,
		opts:         opts,
		continuation: keywordPattern(opts.Keywords),
		logger:       logger,
	}
}

func (c *Controller) Answer(ctx context.Context, question string, tables dataset.Set) (chart.Result, error) {
	exchange, err := c.Ask(ctx, question, tables)
	if err != nil {
		return chart.Result{}, err
	}
	return exchange.Result, nil
}

func (c *Controller) Ask(ctx context.Context, question string, tables dataset.Set) (Exchange, error) {
	continued := c.IsContinuation(question)
	if !continued && len(c.history) > 0 {
		c.history = nil
		conversationResetsTotal.Inc()
	}
	c.append(Turn{Role: RoleUser, Content: question})
	combined := c.CombinedPrompt()

	generation, err := c.generator.Generate(ctx, codegen.Request{
		Question:   combined,
		Datasets:   tables,
		Preference: c.opts.Preference,
	})
	if err != nil {
		c.failed(err)
		return Exchange{}, err
	}
	result, err := c.executor.Execute(ctx, generation.Code, tables)
	if err != nil {
		c.failed(err)
		return Exchange{}, err
	}

	c.append(Turn{Role: RoleAssistant, Content: result.Explanation})
	c.logger.Info("question answered",
		slog.Bool("continued", continued),
		slog.Int("history", len(c.history)),
		slog.String("kind", string(result.Kind)),
	)
	return Exchange{Result: result, Generation: generation, Continued: continued, Prompt: combined}, nil
}

// IsContinuation reports whether question contains a continuation keyword
// as a whole word or phrase, ignoring case.
func (c *Controller) IsContinuation(question string) bool {
	return c.continuation.MatchString(question)
}

// CombinedPrompt renders the retained turns as "ROLE: content" lines.
func (c *Controller) CombinedPrompt() string {
	var b strings.Builder
	for _, turn := range c.history {
		b.WriteString(strings.ToUpper(string(turn.Role)))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *Controller) History() []Turn {
	return append([]Turn(nil), c.history...)
}

func (c *Controller) Reset() {
	c.history = nil
}

func (c *Controller) append(turn Turn) {
	c.history = append(c.history, turn)
	if over := len(c.history) - c.opts.HistoryCap; over > 0 {
		c.history = append([]Turn(nil), c.history[over:]...)
	}
}

func (c *Controller) failed(err error) {
	if c.opts.RollbackOnFailure && len(c.history) > 0 && c.history[len(c.history)-1].Role == RoleUser {
		c.history = c.history[:len(c.history)-1]
	}
	c.logger.Warn("question failed",
		slog.Bool("rolled_back", c.opts.RollbackOnFailure),
		slog.String("error", err.Error()),
	)
}

func keywordPattern(keywords []string) *regexp.Regexp {
	alternatives := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		words := strings.Fields(strings.ToLower(keyword))
		if len(words) == 0 {
			continue
		}
		for i, word := range words {
			words[i] = regexp.QuoteMeta(word)
		}
		alternatives = append(alternatives, strings.Join(words, `\s+`))
	}
	if len(alternatives) == 0 {
		return regexp.MustCompile(`[^\s\S]`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}
