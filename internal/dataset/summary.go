package dataset

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	DefaultSampleRows = 5
	maxSampleCell     = 48
)

// Schema lists every table and its typed columns in name order.
func Schema(set Set) string {
	lines := make([]string, 0)
	for _, name := range set.Names() {
		table := set[name]
		lines = append(lines, fmt.Sprintf("Dataset: %s (%d rows)", name, table.Len()))
		for _, column := range table.columns {
			lines = append(lines, fmt.Sprintf("  - %s (%s)", column.Name, column.Type))
		}
	}
	return strings.Join(lines, "\n")
}

// Samples renders the first n rows of every table. Cells longer than a
// fixed width are cut so a wide text column cannot flood the prompt.
func Samples(set Set, n int) string {
	if n <= 0 {
		n = DefaultSampleRows
	}
	blocks := make([]string, 0, len(set))
	for _, name := range set.Names() {
		var b strings.Builder
		b.WriteString("Dataset: " + name + "\n")
		b.WriteString(FormatTable(set[name].Head(n)))
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func FormatTable(table Table) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(table.ColumnNames(), "\t"))
	for _, row := range table.rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = truncateCell(FormatValue(value))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	return b.String()
}

func truncateCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	runes := []rune(value)
	if len(runes) <= maxSampleCell {
		return value
	}
	return string(runes[:maxSampleCell-3]) + "..."
}

type TableSummary struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	RowCount   int      `json:"row_count"`
	SampleRows [][]any  `json:"sample_rows"`
}

func Summarize(set Set, n int) []TableSummary {
	if n <= 0 {
		n = DefaultSampleRows
	}
	summaries := make([]TableSummary, 0, len(set))
	for _, name := range set.Names() {
		table := set[name]
		summaries = append(summaries, TableSummary{
			Name:       name,
			Columns:    table.Columns(),
			RowCount:   table.Len(),
			SampleRows: table.Head(n).Rows(),
		})
	}
	return summaries
}
