package prompt

import (
	"fmt"
	"strings"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/dataset"
)

const PolicyVersion = "2026-10-01"

// SystemPolicy is sent unchanged with every generation request. Bump
// PolicyVersion whenever its text changes.
const SystemPolicy = `You are a data assistant that writes short Go programs answering questions about tabular data.

Hard rules (must follow):
- Return ONLY plain Go statements. No markdown, no code fences, no prose, no package clause.
- Do not write import statements. These packages are already available: sql, frame, chart, math, strings, sort, fmt.
- Run analytical queries only through sql.Query("SELECT ..."). Only SELECT statements are accepted; anything else aborts the program.
- Bind exactly one chart result to a variable named result by calling one of:
  result := chart.AsInteractive(fig, "short explanation")
  result := chart.AsStatic(fig, "short explanation")
  result := chart.AsDeclarative(fig, "short explanation")
- Never write to disk, never evaluate strings as code, never read files or console input, never start goroutines.

Available API:
- sql.Query(statement string) sql.Table: runs a DuckDB SELECT over the datasets, which are registered as tables under their names.
- sql.Describe(table string) sql.Table: column_name and column_type of a dataset. sql.Tables() []string lists dataset names.
- Table methods: Len() int, ColumnNames() []string, Head(n int) Table, Strings(column) ([]string, error), Floats(column) ([]float64, error).
- frame.Floats(t, column) []float64, frame.Strings(t, column) []string, frame.Normalize([]string) []string,
  frame.Sum/Mean/Min/Max([]float64) float64, frame.GroupSum(t, by, column), frame.GroupMean(t, by, column),
  frame.GroupCount(t, by), frame.SortBy(t, column, descending bool), frame.Top(t, column, n), frame.Where(t, column, values...): all return a Table.
- chart.Bar(t, x, y), chart.Line(t, x, y), chart.Pie(t, names, values), chart.Scatter(t, x, y) return *chart.Figure.
  x and names columns may have any type; y and values columns must be numeric. Scatter needs two numeric columns.
- fig.AddSeries(name string, values []float64) adds a series aligned with the existing one. fig.Labels(title, xLabel, yLabel) sets titles.
- Static results cannot be pie charts.`

type Options struct {
	SampleRows int
	// Preference is an optional rendering-kind hint.
	Preference chart.Kind
}

// Build composes the system policy and the user prompt for one question.
// The question is never shortened; only the per-table samples are bounded.
func Build(question string, set dataset.Set, opts Options) (string, string) {
	sampleRows := opts.SampleRows
	if sampleRows <= 0 {
		sampleRows = dataset.DefaultSampleRows
	}

	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Available datasets: %s\n\n", formatNames(set.Names())))
	b.WriteString("Schema:\n")
	b.WriteString(dataset.Schema(set))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Samples (first %d rows):\n", sampleRows))
	b.WriteString(dataset.Samples(set, sampleRows))
	b.WriteString("\n\n")
	if hint := preferenceHint(opts.Preference); hint != "" {
		b.WriteString(hint)
		b.WriteString("\n\n")
	}
	b.WriteString("Instructions:\n")
	b.WriteString("Write Go statements that answer the question using only the datasets and columns listed above.\n")
	b.WriteString("Finish by binding result with chart.AsInteractive, chart.AsStatic or chart.AsDeclarative.")
	return SystemPolicy, b.String()
}

func formatNames(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func preferenceHint(kind chart.Kind) string {
	switch kind {
	case chart.KindInteractive:
		return "Preferred rendering: interactive (use chart.AsInteractive)."
	case chart.KindStatic:
		return "Preferred rendering: static image (use chart.AsStatic)."
	case chart.KindDeclarative:
		return "Preferred rendering: declarative spec (use chart.AsDeclarative)."
	default:
		return ""
	}
}
