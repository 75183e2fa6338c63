package chart

import (
	"encoding/json"
	"fmt"
	"io"
)

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// DeclarativeChart holds a Vega-Lite specification.
type DeclarativeChart struct {
	Spec map[string]any
}

func (*DeclarativeChart) Kind() Kind          { return KindDeclarative }
func (*DeclarativeChart) ContentType() string { return "application/vnd.vegalite.v5+json" }
func (*DeclarativeChart) Extension() string   { return "vl.json" }
func (*DeclarativeChart) sealed()             {}

func (a *DeclarativeChart) Render(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(a.Spec); err != nil {
		return fmt.Errorf("encode vega-lite spec: %w", err)
	}
	return nil
}

// VegaLite compiles a figure into a Vega-Lite spec with inline data values.
func VegaLite(fig *Figure) map[string]any {
	values := make([]map[string]any, 0, len(fig.Series)*len(fig.Categories))
	for _, series := range fig.Series {
		for i, value := range series.Values {
			row := map[string]any{"series": series.Name, "value": finiteOrNil(value)}
			if fig.Mark == MarkScatter {
				row["x"] = finiteOrNil(series.X[i])
			} else {
				row["category"] = fig.Categories[i]
			}
			values = append(values, row)
		}
	}

	spec := map[string]any{
		"$schema": vegaLiteSchema,
		"data":    map[string]any{"values": values},
	}
	if fig.Title != "" {
		spec["title"] = fig.Title
	}
	multi := len(fig.Series) > 1
	yField := map[string]any{"field": "value", "type": "quantitative", "title": fig.YLabel}

	switch fig.Mark {
	case MarkBar:
		spec["mark"] = "bar"
		encoding := map[string]any{
			"x": map[string]any{"field": "category", "type": "nominal", "sort": nil, "title": fig.XLabel},
			"y": yField,
		}
		if multi {
			encoding["color"] = map[string]any{"field": "series", "type": "nominal"}
			encoding["xOffset"] = map[string]any{"field": "series"}
		}
		spec["encoding"] = encoding
	case MarkLine:
		spec["mark"] = map[string]any{"type": "line", "point": true}
		encoding := map[string]any{
			"x": map[string]any{"field": "category", "type": "ordinal", "sort": nil, "title": fig.XLabel},
			"y": yField,
		}
		if multi {
			encoding["color"] = map[string]any{"field": "series", "type": "nominal"}
		}
		spec["encoding"] = encoding
	case MarkScatter:
		spec["mark"] = "point"
		encoding := map[string]any{
			"x": map[string]any{"field": "x", "type": "quantitative", "title": fig.XLabel},
			"y": yField,
		}
		if multi {
			encoding["color"] = map[string]any{"field": "series", "type": "nominal"}
		}
		spec["encoding"] = encoding
	case MarkPie:
		spec["mark"] = "arc"
		spec["encoding"] = map[string]any{
			"theta": map[string]any{"field": "value", "type": "quantitative"},
			"color": map[string]any{"field": "category", "type": "nominal", "title": fig.XLabel},
		}
	}
	return spec
}
