package sandbox

import (
	"context"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/frame"
	"github.com/duckmesh/duckviz/internal/query"
)

// scriptPackages lists the import paths installed for every script, in the
// order of the setup import.
var scriptPackages = []string{"sql", "frame", "chart", "math", "strings", "sort", "fmt"}

// setupImport is evaluated by the executor itself. Scripts cannot import.
func setupImport() string {
	var b strings.Builder
	b.WriteString("import (\n")
	for _, path := range scriptPackages {
		b.WriteString("\t" + strconv.Quote(path) + "\n")
	}
	b.WriteString(")")
	return b.String()
}

// capabilities builds the complete symbol table a script can resolve. It is
// rebuilt for every execution so the gateway and output writer are private
// to that run.
func capabilities(ctx context.Context, gateway *query.Gateway, stdout io.Writer) interp.Exports {
	return interp.Exports{
		"sql/sql": {
			"Query": reflect.ValueOf(func(statement string) dataset.Table {
				table, err := gateway.Query(ctx, statement)
				if err != nil {
					panic(err)
				}
				return table
			}),
			"Describe": reflect.ValueOf(func(name string) dataset.Table {
				table, err := gateway.Describe(name)
				if err != nil {
					panic(err)
				}
				return table
			}),
			"Tables": reflect.ValueOf(gateway.Tables),
			"Table":  reflect.ValueOf((*dataset.Table)(nil)),
		},
		"frame/frame": {
			"Floats":     reflect.ValueOf(frame.Floats),
			"Strings":    reflect.ValueOf(frame.Strings),
			"Normalize":  reflect.ValueOf(frame.Normalize),
			"Sum":        reflect.ValueOf(frame.Sum),
			"Mean":       reflect.ValueOf(frame.Mean),
			"Min":        reflect.ValueOf(frame.Min),
			"Max":        reflect.ValueOf(frame.Max),
			"GroupSum":   reflect.ValueOf(frame.GroupSum),
			"GroupMean":  reflect.ValueOf(frame.GroupMean),
			"GroupCount": reflect.ValueOf(frame.GroupCount),
			"SortBy":     reflect.ValueOf(frame.SortBy),
			"Top":        reflect.ValueOf(frame.Top),
			"Where":      reflect.ValueOf(frame.Where),
		},
		"chart/chart": {
			"Bar":           reflect.ValueOf(chart.Bar),
			"Line":          reflect.ValueOf(chart.Line),
			"Scatter":       reflect.ValueOf(chart.Scatter),
			"Pie":           reflect.ValueOf(chart.Pie),
			"AsInteractive": reflect.ValueOf(chart.AsInteractive),
			"AsStatic":      reflect.ValueOf(chart.AsStatic),
			"AsDeclarative": reflect.ValueOf(chart.AsDeclarative),
			"Figure":        reflect.ValueOf((*chart.Figure)(nil)),
			"Result":        reflect.ValueOf((*chart.Result)(nil)),
		},
		"math/math": {
			"Abs":   reflect.ValueOf(math.Abs),
			"Ceil":  reflect.ValueOf(math.Ceil),
			"Exp":   reflect.ValueOf(math.Exp),
			"Floor": reflect.ValueOf(math.Floor),
			"Inf":   reflect.ValueOf(math.Inf),
			"IsInf": reflect.ValueOf(math.IsInf),
			"IsNaN": reflect.ValueOf(math.IsNaN),
			"Log":   reflect.ValueOf(math.Log),
			"Log10": reflect.ValueOf(math.Log10),
			"Max":   reflect.ValueOf(math.Max),
			"Min":   reflect.ValueOf(math.Min),
			"NaN":   reflect.ValueOf(math.NaN),
			"Pow":   reflect.ValueOf(math.Pow),
			"Round": reflect.ValueOf(math.Round),
			"Sqrt":  reflect.ValueOf(math.Sqrt),
			"Pi":    reflect.ValueOf(math.Pi),
		},
		"strings/strings": {
			"Contains":   reflect.ValueOf(strings.Contains),
			"EqualFold":  reflect.ValueOf(strings.EqualFold),
			"Fields":     reflect.ValueOf(strings.Fields),
			"HasPrefix":  reflect.ValueOf(strings.HasPrefix),
			"HasSuffix":  reflect.ValueOf(strings.HasSuffix),
			"Join":       reflect.ValueOf(strings.Join),
			"ReplaceAll": reflect.ValueOf(strings.ReplaceAll),
			"Split":      reflect.ValueOf(strings.Split),
			"ToLower":    reflect.ValueOf(strings.ToLower),
			"ToUpper":    reflect.ValueOf(strings.ToUpper),
			"TrimSpace":  reflect.ValueOf(strings.TrimSpace),
		},
		"sort/sort": {
			"Float64s":    reflect.ValueOf(sort.Float64s),
			"Ints":        reflect.ValueOf(sort.Ints),
			"Slice":       reflect.ValueOf(sort.Slice),
			"SliceStable": reflect.ValueOf(sort.SliceStable),
			"Strings":     reflect.ValueOf(sort.Strings),
		},
		"fmt/fmt": {
			"Errorf":   reflect.ValueOf(fmt.Errorf),
			"Sprint":   reflect.ValueOf(fmt.Sprint),
			"Sprintf":  reflect.ValueOf(fmt.Sprintf),
			"Sprintln": reflect.ValueOf(fmt.Sprintln),
			"Print": reflect.ValueOf(func(a ...any) (int, error) {
				return fmt.Fprint(stdout, a...)
			}),
			"Printf": reflect.ValueOf(func(format string, a ...any) (int, error) {
				return fmt.Fprintf(stdout, format, a...)
			}),
			"Println": reflect.ValueOf(func(a ...any) (int, error) {
				return fmt.Fprintln(stdout, a...)
			}),
		},
	}
}
