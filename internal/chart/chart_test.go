package chart

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckmesh/duckviz/internal/dataset"
)

func totalsTable(t *testing.T) dataset.Table {
	t.Helper()
	table, err := dataset.NewTable("totals", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "total", Type: dataset.TypeFloat},
		{Name: "orders", Type: dataset.TypeInteger},
	}, [][]any{
		{"a", 5.0, int64(2)},
		{"b", 2.5, int64(1)},
		{"c", nil, int64(4)},
	})
	require.NoError(t, err)
	return table
}

func TestBarFigureFromTable(t *testing.T) {
	fig := Bar(totalsTable(t), "category", "total").Labels("Totals", "", "value")

	require.NoError(t, fig.Validate())
	assert.Equal(t, MarkBar, fig.Mark)
	assert.Equal(t, []string{"a", "b", "c"}, fig.Categories)
	assert.Equal(t, "category", fig.XLabel)
	assert.Equal(t, "value", fig.YLabel)
	assert.True(t, math.IsNaN(fig.Series[0].Values[2]))
}

func TestBuildersPanicOnBadColumns(t *testing.T) {
	table := totalsTable(t)
	assert.Panics(t, func() { Bar(table, "missing", "total") })
	assert.Panics(t, func() { Line(table, "category", "category") })
	assert.Panics(t, func() { Scatter(table, "category", "total") })
	assert.Panics(t, func() { Bar(table, "category", "total").AddSeries("short", []float64{1}) })
	assert.Panics(t, func() { Pie(table, "category", "total").AddSeries("more", []float64{1, 2, 3}) })
}

func TestResultConstructorsTagKind(t *testing.T) {
	fig := Bar(totalsTable(t), "category", "total").AddSeries("orders", []float64{2, 1, 4})

	interactive := AsInteractive(fig, "totals by category")
	static := AsStatic(fig, "totals by category")
	declarative := AsDeclarative(fig, "totals by category")

	for _, result := range []Result{interactive, static, declarative} {
		require.NoError(t, result.Validate())
		assert.Equal(t, result.Kind, result.Artifact.Kind())
		assert.Equal(t, "totals by category", result.Explanation)
	}
	assert.IsType(t, &InteractiveFigure{}, interactive.Artifact)
	assert.IsType(t, &StaticFigure{}, static.Artifact)
	assert.IsType(t, &DeclarativeChart{}, declarative.Artifact)
}

func TestResultValidateRejectsMismatches(t *testing.T) {
	fig := Bar(totalsTable(t), "category", "total")

	assert.Error(t, Result{}.Validate())
	assert.Error(t, Result{Kind: KindStatic}.Validate())
	assert.Error(t, Result{Kind: KindStatic, Artifact: &InteractiveFigure{Figure: fig}}.Validate())
	assert.Error(t, Result{Kind: "plotly", Artifact: &InteractiveFigure{Figure: fig}}.Validate())
	assert.Error(t, Result{Kind: KindInteractive, Artifact: &InteractiveFigure{}}.Validate())
	assert.Panics(t, func() { AsStatic(Pie(totalsTable(t), "category", "total"), "share") })
}

func TestPreflightRejectsStaticFigureWithoutData(t *testing.T) {
	empty, err := dataset.NewTable("totals", []dataset.Column{
		{Name: "category", Type: dataset.TypeText},
		{Name: "total", Type: dataset.TypeFloat},
	}, nil)
	require.NoError(t, err)

	static := AsStatic(Bar(empty, "category", "total"), "nothing matched")
	require.NoError(t, static.Validate())
	assert.ErrorContains(t, Preflight(static), "no data points")

	gaps := Line(totalsTable(t), "category", "total")
	gaps.Series[0].Values = []float64{math.NaN(), math.NaN(), math.NaN()}
	assert.Error(t, Preflight(AsStatic(gaps, "all null")))

	require.NoError(t, Preflight(AsStatic(Bar(totalsTable(t), "category", "total"), "totals")))
	require.NoError(t, Preflight(AsInteractive(Bar(empty, "category", "total"), "nothing matched")))
}

func TestRenderInteractiveHTML(t *testing.T) {
	var buf bytes.Buffer
	contentType, err := Render(&buf, AsInteractive(Pie(totalsTable(t), "category", "total"), "share"))
	require.NoError(t, err)
	assert.Contains(t, contentType, "text/html")
	assert.Contains(t, buf.String(), "echarts")
}

func TestRenderStaticPNG(t *testing.T) {
	table := totalsTable(t)
	for _, fig := range []*Figure{
		Bar(table, "category", "total"),
		Line(table, "category", "orders").AddSeries("total", []float64{5, 2.5, math.NaN()}),
		Scatter(table, "orders", "total"),
	} {
		var buf bytes.Buffer
		contentType, err := Render(&buf, AsStatic(fig, "plot"))
		require.NoError(t, err, "mark %s", fig.Mark)
		assert.Equal(t, "image/png", contentType)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")), "mark %s", fig.Mark)
	}
}

func TestRenderDeclarativeVegaLite(t *testing.T) {
	var buf bytes.Buffer
	_, err := Render(&buf, AsDeclarative(Bar(totalsTable(t), "category", "total"), "totals"))
	require.NoError(t, err)

	var spec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &spec))
	assert.Equal(t, vegaLiteSchema, spec["$schema"])
	assert.Equal(t, "bar", spec["mark"])
	values := spec["data"].(map[string]any)["values"].([]any)
	require.Len(t, values, 3)
	assert.Nil(t, values[2].(map[string]any)["value"])
}
