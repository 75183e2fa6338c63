package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// InteractiveFigure renders as a standalone ECharts HTML page.
type InteractiveFigure struct {
	Figure *Figure
}

func (*InteractiveFigure) Kind() Kind          { return KindInteractive }
func (*InteractiveFigure) ContentType() string { return "text/html; charset=utf-8" }
func (*InteractiveFigure) Extension() string   { return "html" }
func (*InteractiveFigure) sealed()             {}

func (a *InteractiveFigure) Render(w io.Writer) error {
	fig := a.Figure
	if err := fig.Validate(); err != nil {
		return err
	}
	global := []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: fig.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(fig.Series) > 1 || fig.Mark == MarkPie)}),
	}

	switch fig.Mark {
	case MarkBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(append(global,
			charts.WithXAxisOpts(opts.XAxis{Name: fig.XLabel}),
			charts.WithYAxisOpts(opts.YAxis{Name: fig.YLabel}),
		)...)
		bar.SetXAxis(fig.Categories)
		for _, series := range fig.Series {
			data := make([]opts.BarData, len(series.Values))
			for i, value := range series.Values {
				data[i] = opts.BarData{Value: finiteOrNil(value)}
			}
			bar.AddSeries(series.Name, data)
		}
		return bar.Render(w)
	case MarkLine:
		line := charts.NewLine()
		line.SetGlobalOptions(append(global,
			charts.WithXAxisOpts(opts.XAxis{Name: fig.XLabel}),
			charts.WithYAxisOpts(opts.YAxis{Name: fig.YLabel}),
		)...)
		line.SetXAxis(fig.Categories)
		for _, series := range fig.Series {
			data := make([]opts.LineData, len(series.Values))
			for i, value := range series.Values {
				data[i] = opts.LineData{Value: finiteOrNil(value)}
			}
			line.AddSeries(series.Name, data)
		}
		return line.Render(w)
	case MarkScatter:
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(append(global,
			charts.WithXAxisOpts(opts.XAxis{Name: fig.XLabel, Type: "value"}),
			charts.WithYAxisOpts(opts.YAxis{Name: fig.YLabel, Type: "value"}),
		)...)
		for _, series := range fig.Series {
			data := make([]opts.ScatterData, 0, len(series.Values))
			for i, value := range series.Values {
				if finiteOrNil(value) == nil || finiteOrNil(series.X[i]) == nil {
					continue
				}
				data = append(data, opts.ScatterData{Value: []float64{series.X[i], value}})
			}
			scatter.AddSeries(series.Name, data)
		}
		return scatter.Render(w)
	case MarkPie:
		pie := charts.NewPie()
		pie.SetGlobalOptions(global...)
		series := fig.Series[0]
		data := make([]opts.PieData, len(series.Values))
		for i, value := range series.Values {
			data[i] = opts.PieData{Name: fig.Categories[i], Value: finiteOrNil(value)}
		}
		pie.AddSeries(series.Name, data)
		return pie.Render(w)
	default:
		return fmt.Errorf("unknown mark %q", fig.Mark)
	}
}
