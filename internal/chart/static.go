package chart

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	DefaultStaticWidth  = 8 * vg.Inch
	DefaultStaticHeight = 5 * vg.Inch
	barWidth            = vg.Length(14)
)

// StaticFigure renders as a PNG raster.
type StaticFigure struct {
	Figure *Figure
	Width  vg.Length
	Height vg.Length
}

func (*StaticFigure) Kind() Kind          { return KindStatic }
func (*StaticFigure) ContentType() string { return "image/png" }
func (*StaticFigure) Extension() string   { return "png" }
func (*StaticFigure) sealed()             {}

func (a *StaticFigure) Render(w io.Writer) error {
	p, err := a.plot()
	if err != nil {
		return err
	}
	width, height := a.Width, a.Height
	if width <= 0 {
		width = DefaultStaticWidth
	}
	if height <= 0 {
		height = DefaultStaticHeight
	}
	writer, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if _, err := writer.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func (a *StaticFigure) plot() (*plot.Plot, error) {
	fig := a.Figure
	if err := fig.Validate(); err != nil {
		return nil, err
	}
	if !drawable(fig) {
		return nil, fmt.Errorf("%s figure has no data points to draw", fig.Mark)
	}
	p := plot.New()
	p.Title.Text = fig.Title
	p.X.Label.Text = fig.XLabel
	p.Y.Label.Text = fig.YLabel

	switch fig.Mark {
	case MarkBar:
		count := len(fig.Series)
		for i, series := range fig.Series {
			values := make(plotter.Values, len(series.Values))
			for j, value := range series.Values {
				if !math.IsNaN(value) && !math.IsInf(value, 0) {
					values[j] = value
				}
			}
			bars, err := plotter.NewBarChart(values, barWidth)
			if err != nil {
				return nil, fmt.Errorf("bar series %q: %w", series.Name, err)
			}
			bars.Color = plotutil.Color(i)
			bars.LineStyle.Width = 0
			bars.Offset = vg.Length(2*i-count+1) * barWidth / 2
			p.Add(bars)
			if len(fig.Series) > 1 {
				p.Legend.Add(series.Name, bars)
			}
		}
		p.NominalX(fig.Categories...)
	case MarkLine:
		for i, series := range fig.Series {
			points := indexedPoints(series.Values)
			if len(points) == 0 {
				continue
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				return nil, fmt.Errorf("line series %q: %w", series.Name, err)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			if len(fig.Series) > 1 {
				p.Legend.Add(series.Name, line)
			}
		}
		p.NominalX(fig.Categories...)
	case MarkScatter:
		for i, series := range fig.Series {
			points := make(plotter.XYs, 0, len(series.Values))
			for j, value := range series.Values {
				if finiteOrNil(value) == nil || finiteOrNil(series.X[j]) == nil {
					continue
				}
				points = append(points, plotter.XY{X: series.X[j], Y: value})
			}
			if len(points) == 0 {
				continue
			}
			scatter, err := plotter.NewScatter(points)
			if err != nil {
				return nil, fmt.Errorf("scatter series %q: %w", series.Name, err)
			}
			scatter.Color = plotutil.Color(i)
			p.Add(scatter)
			if len(fig.Series) > 1 {
				p.Legend.Add(series.Name, scatter)
			}
		}
	default:
		return nil, fmt.Errorf("%s figures have no static rendering", fig.Mark)
	}
	return p, nil
}

// drawable reports whether fig has at least one point gonum can place.
func drawable(fig *Figure) bool {
	if fig.Mark == MarkBar {
		return len(fig.Categories) > 0
	}
	for _, series := range fig.Series {
		for j, value := range series.Values {
			if finiteOrNil(value) == nil {
				continue
			}
			if fig.Mark == MarkScatter && finiteOrNil(series.X[j]) == nil {
				continue
			}
			return true
		}
	}
	return false
}

func indexedPoints(values []float64) plotter.XYs {
	points := make(plotter.XYs, 0, len(values))
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		points = append(points, plotter.XY{X: float64(i), Y: value})
	}
	return points
}
