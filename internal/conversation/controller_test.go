package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/dataset"
)

type fakeGenerator struct {
	prompts []string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, req codegen.Request) (codegen.Result, error) {
	g.prompts = append(g.prompts, req.Question)
	if g.err != nil {
		return codegen.Result{}, g.err
	}
	return codegen.Result{Code: "result := nil"}, nil
}

type fakeExecutor struct {
	explanation string
	err         error
}

func (e *fakeExecutor) Execute(context.Context, string, dataset.Set) (chart.Result, error) {
	if e.err != nil {
		return chart.Result{}, e.err
	}
	fig := &chart.Figure{Mark: chart.MarkBar, Categories: []string{"a"}, Series: []chart.Series{{Name: "v", Values: []float64{1}}}}
	return chart.AsInteractive(fig, e.explanation), nil
}

func TestUnrelatedQuestionClearsHistory(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewController(gen, &fakeExecutor{explanation: "sales by region"}, Options{}, nil)

	_, err := c.Answer(context.Background(), "Show sales by region", nil)
	require.NoError(t, err)
	require.Len(t, c.History(), 2)

	_, err = c.Answer(context.Background(), "Plot temperature over time", nil)
	require.NoError(t, err)

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "Plot temperature over time"}, history[0])
	assert.Equal(t, "USER: Plot temperature over time\n", gen.prompts[1])
}

func TestContinuationKeepsHistoryInPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewController(gen, &fakeExecutor{explanation: "sales by region"}, Options{}, nil)

	_, err := c.Answer(context.Background(), "Show sales by region", nil)
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "Now only show the top 3", nil)
	require.NoError(t, err)

	want := "USER: Show sales by region\nASSISTANT: sales by region\nUSER: Now only show the top 3\n"
	assert.Equal(t, want, gen.prompts[1])
}

func TestHistoryIsCapped(t *testing.T) {
	c := NewController(&fakeGenerator{}, &fakeExecutor{explanation: "ok"}, Options{}, nil)
	for _, q := range []string{"first", "again please", "also this", "same but bigger"} {
		_, err := c.Answer(context.Background(), q, nil)
		require.NoError(t, err)
	}
	history := c.History()
	require.Len(t, history, DefaultHistoryCap)
	assert.Equal(t, "also this", history[0].Content)
	assert.Equal(t, "same but bigger", history[2].Content)
}

func TestContinuationMatchesWholeWords(t *testing.T) {
	c := NewController(&fakeGenerator{}, &fakeExecutor{}, Options{}, nil)
	cases := map[string]bool{
		"NOW make it red":            true,
		"use   previous colors":      true,
		"compare with 2023":          true,
		"show the last five":         true,
		"what do we know":            false,
		"show additional metrics":    false,
		"plot snowfall by month":     false,
		"reorder the columns please": false,
	}
	for question, want := range cases {
		assert.Equal(t, want, c.IsContinuation(question), question)
	}
}

func TestFailureKeepsUserTurnByDefault(t *testing.T) {
	exec := &fakeExecutor{explanation: "ok"}
	c := NewController(&fakeGenerator{}, exec, Options{}, nil)
	_, err := c.Answer(context.Background(), "Show sales by region", nil)
	require.NoError(t, err)

	exec.err = errors.New("script failed")
	_, err = c.Answer(context.Background(), "now as a line chart", nil)
	require.Error(t, err)

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, Turn{Role: RoleUser, Content: "now as a line chart"}, history[2])
}

func TestRollbackOnFailureDropsUserTurn(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewController(gen, &fakeExecutor{explanation: "ok"}, Options{RollbackOnFailure: true}, nil)
	_, err := c.Answer(context.Background(), "Show sales by region", nil)
	require.NoError(t, err)

	gen.err = errors.New("upstream down")
	_, err = c.Answer(context.Background(), "now as a line chart", nil)
	require.ErrorIs(t, err, gen.err)

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleAssistant, history[1].Role)
}

func TestAskReportsExchange(t *testing.T) {
	c := NewController(&fakeGenerator{}, &fakeExecutor{explanation: "done"}, Options{Preference: chart.KindStatic}, nil)
	exchange, err := c.Ask(context.Background(), "chart it", nil)
	require.NoError(t, err)
	assert.False(t, exchange.Continued)
	assert.Equal(t, "result := nil", exchange.Generation.Code)
	assert.Equal(t, "done", exchange.Result.Explanation)

	c.Reset()
	assert.Empty(t, c.History())
}
