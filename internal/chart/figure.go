package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/duckmesh/duckviz/internal/dataset"
)

type Mark string

const (
	MarkBar     Mark = "bar"
	MarkLine    Mark = "line"
	MarkScatter Mark = "scatter"
	MarkPie     Mark = "pie"
)

type Series struct {
	Name   string    `json:"name"`
	X      []float64 `json:"x,omitempty"`
	Values []float64 `json:"values"`
}

// Figure is a renderer-neutral chart description. Scripts build one with
// Bar, Line, Scatter or Pie and hand it to a result constructor, which picks
// the rendering kind.
type Figure struct {
	Mark       Mark     `json:"mark"`
	Title      string   `json:"title,omitempty"`
	XLabel     string   `json:"x_label,omitempty"`
	YLabel     string   `json:"y_label,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Series     []Series `json:"series"`
}

func Bar(table dataset.Table, x, y string) *Figure {
	return categorical("chart.Bar", MarkBar, table, x, y)
}

func Line(table dataset.Table, x, y string) *Figure {
	return categorical("chart.Line", MarkLine, table, x, y)
}

func Pie(table dataset.Table, names, values string) *Figure {
	return categorical("chart.Pie", MarkPie, table, names, values)
}

func Scatter(table dataset.Table, x, y string) *Figure {
	xs, err := table.Floats(x)
	if err != nil {
		panic(fmt.Errorf("chart.Scatter: %w", err))
	}
	ys, err := table.Floats(y)
	if err != nil {
		panic(fmt.Errorf("chart.Scatter: %w", err))
	}
	return &Figure{
		Mark:   MarkScatter,
		XLabel: x,
		YLabel: y,
		Series: []Series{{Name: y, X: xs, Values: ys}},
	}
}

func categorical(caller string, mark Mark, table dataset.Table, x, y string) *Figure {
	categories, err := table.Strings(x)
	if err != nil {
		panic(fmt.Errorf("%s: %w", caller, err))
	}
	values, err := table.Floats(y)
	if err != nil {
		panic(fmt.Errorf("%s: %w", caller, err))
	}
	return &Figure{
		Mark:       mark,
		XLabel:     x,
		YLabel:     y,
		Categories: categories,
		Series:     []Series{{Name: y, Values: values}},
	}
}

// AddSeries appends another series aligned with the existing categories
// (or x values for scatter figures).
func (f *Figure) AddSeries(name string, values []float64) *Figure {
	if f.Mark == MarkPie {
		panic(fmt.Errorf("chart.AddSeries: pie figures hold a single series"))
	}
	if len(f.Series) > 0 && len(values) != len(f.Series[0].Values) {
		panic(fmt.Errorf("chart.AddSeries: series %q has %d values, figure has %d", name, len(values), len(f.Series[0].Values)))
	}
	series := Series{Name: name, Values: append([]float64(nil), values...)}
	if f.Mark == MarkScatter && len(f.Series) > 0 {
		series.X = f.Series[0].X
	}
	f.Series = append(f.Series, series)
	return f
}

func (f *Figure) Labels(title, x, y string) *Figure {
	f.Title = title
	if x != "" {
		f.XLabel = x
	}
	if y != "" {
		f.YLabel = y
	}
	return f
}

func (f *Figure) Validate() error {
	if f == nil {
		return fmt.Errorf("figure is nil")
	}
	switch f.Mark {
	case MarkBar, MarkLine, MarkPie, MarkScatter:
	default:
		return fmt.Errorf("unknown mark %q", f.Mark)
	}
	if len(f.Series) == 0 {
		return fmt.Errorf("%s figure has no series", f.Mark)
	}
	for _, series := range f.Series {
		if strings.TrimSpace(series.Name) == "" {
			return fmt.Errorf("%s figure has a series without a name", f.Mark)
		}
		switch f.Mark {
		case MarkScatter:
			if len(series.X) != len(series.Values) {
				return fmt.Errorf("series %q has %d x values and %d y values", series.Name, len(series.X), len(series.Values))
			}
		default:
			if len(series.Values) != len(f.Categories) {
				return fmt.Errorf("series %q has %d values for %d categories", series.Name, len(series.Values), len(f.Categories))
			}
		}
	}
	if f.Mark == MarkPie && len(f.Series) != 1 {
		return fmt.Errorf("pie figure must have exactly one series")
	}
	return nil
}

func finiteOrNil(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return value
}
