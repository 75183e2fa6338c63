// Package frame holds the column helpers scripts use for light analysis
// before charting. Misuse panics; the executor turns panics into errors.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/duckmesh/duckviz/internal/dataset"
)

func Floats(table dataset.Table, column string) []float64 {
	values, err := table.Floats(column)
	if err != nil {
		panic(fmt.Errorf("frame.Floats: %w", err))
	}
	return values
}

func Strings(table dataset.Table, column string) []string {
	values, err := table.Strings(column)
	if err != nil {
		panic(fmt.Errorf("frame.Strings: %w", err))
	}
	return values
}

// Normalize trims and lower-cases every value so that labels differing
// only in case or padding group together.
func Normalize(values []string) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = strings.ToLower(strings.TrimSpace(value))
	}
	return out
}

// Sum, Mean, Min and Max skip NaN values.
func Sum(values []float64) float64 {
	total := 0.0
	for _, value := range values {
		if !math.IsNaN(value) {
			total += value
		}
	}
	return total
}

func Mean(values []float64) float64 {
	total, count := 0.0, 0
	for _, value := range values {
		if !math.IsNaN(value) {
			total += value
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}

func Min(values []float64) float64 {
	return extreme(values, func(a, b float64) bool { return a < b })
}

func Max(values []float64) float64 {
	return extreme(values, func(a, b float64) bool { return a > b })
}

func extreme(values []float64, better func(a, b float64) bool) float64 {
	out := math.NaN()
	for _, value := range values {
		if math.IsNaN(value) {
			continue
		}
		if math.IsNaN(out) || better(value, out) {
			out = value
		}
	}
	return out
}

func GroupSum(table dataset.Table, by, column string) dataset.Table {
	return group("frame.GroupSum", table, by, column, "sum", Sum)
}

func GroupMean(table dataset.Table, by, column string) dataset.Table {
	return group("frame.GroupMean", table, by, column, "mean", Mean)
}

// GroupCount counts rows per distinct value of by, in key order. The count
// column is "count", or "count_rows" when by is itself named count.
func GroupCount(table dataset.Table, by string) dataset.Table {
	keys, err := table.Strings(by)
	if err != nil {
		panic(fmt.Errorf("frame.GroupCount: %w", err))
	}
	counts := make(map[string]int64)
	for _, key := range keys {
		counts[key]++
	}
	ordered := sortedKeys(counts)
	rows := make([][]any, len(ordered))
	for i, key := range ordered {
		rows[i] = []any{key, counts[key]}
	}
	return mustTable("frame.GroupCount", table.Name(), []dataset.Column{
		{Name: by, Type: dataset.TypeText},
		{Name: aggregateName(by, "count", "rows"), Type: dataset.TypeInteger},
	}, rows)
}

func group(caller string, table dataset.Table, by, column, suffix string, reduce func([]float64) float64) dataset.Table {
	keys, err := table.Strings(by)
	if err != nil {
		panic(fmt.Errorf("%s: %w", caller, err))
	}
	values, err := table.Floats(column)
	if err != nil {
		panic(fmt.Errorf("%s: %w", caller, err))
	}
	groups := make(map[string][]float64)
	for i, key := range keys {
		groups[key] = append(groups[key], values[i])
	}
	ordered := sortedKeys(groups)
	rows := make([][]any, len(ordered))
	for i, key := range ordered {
		rows[i] = []any{key, reduce(groups[key])}
	}
	return mustTable(caller, table.Name(), []dataset.Column{
		{Name: by, Type: dataset.TypeText},
		{Name: aggregateName(by, column, suffix), Type: dataset.TypeFloat},
	}, rows)
}

// aggregateName keeps name unless it collides with the grouping column.
func aggregateName(by, name, suffix string) string {
	if name == by {
		return name + "_" + suffix
	}
	return name
}

// SortBy orders rows by a numeric column. Nulls sort last. The sort is stable.
func SortBy(table dataset.Table, column string, descending bool) dataset.Table {
	values, err := table.Floats(column)
	if err != nil {
		panic(fmt.Errorf("frame.SortBy: %w", err))
	}
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		left, right := values[order[a]], values[order[b]]
		switch {
		case math.IsNaN(left):
			return false
		case math.IsNaN(right):
			return true
		case descending:
			return left > right
		default:
			return left < right
		}
	})
	rows := make([][]any, len(order))
	for i, index := range order {
		rows[i] = table.Row(index)
	}
	return mustTable("frame.SortBy", table.Name(), table.Columns(), rows)
}

// Top returns the n rows with the largest values in column.
func Top(table dataset.Table, column string, n int) dataset.Table {
	return SortBy(table, column, true).Head(n)
}

// Where keeps rows whose column formats to one of the given values.
func Where(table dataset.Table, column string, values ...string) dataset.Table {
	cells, err := table.Strings(column)
	if err != nil {
		panic(fmt.Errorf("frame.Where: %w", err))
	}
	wanted := make(map[string]struct{}, len(values))
	for _, value := range values {
		wanted[value] = struct{}{}
	}
	rows := make([][]any, 0)
	for i, cell := range cells {
		if _, ok := wanted[cell]; ok {
			rows = append(rows, table.Row(i))
		}
	}
	return mustTable("frame.Where", table.Name(), table.Columns(), rows)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func mustTable(caller, name string, columns []dataset.Column, rows [][]any) dataset.Table {
	table, err := dataset.NewTable(name, columns, rows)
	if err != nil {
		panic(fmt.Errorf("%s: %w", caller, err))
	}
	return table
}
