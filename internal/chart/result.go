package chart

import (
	"fmt"
	"io"
)

type Kind string

const (
	KindInteractive Kind = "interactive"
	KindStatic      Kind = "static"
	KindDeclarative Kind = "declarative"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInteractive, KindStatic, KindDeclarative:
		return true
	default:
		return false
	}
}

// Artifact is implemented only by *InteractiveFigure, *StaticFigure and
// *DeclarativeChart.
type Artifact interface {
	Kind() Kind
	ContentType() string
	Extension() string
	Render(w io.Writer) error
	sealed()
}

// Result is the only value a successful script run may produce.
type Result struct {
	Kind        Kind     `json:"kind"`
	Artifact    Artifact `json:"-"`
	Explanation string   `json:"explanation"`
}

func AsInteractive(fig *Figure, explanation string) Result {
	return mustResult(KindInteractive, &InteractiveFigure{Figure: fig}, explanation)
}

func AsStatic(fig *Figure, explanation string) Result {
	return mustResult(KindStatic, &StaticFigure{Figure: fig, Width: DefaultStaticWidth, Height: DefaultStaticHeight}, explanation)
}

func AsDeclarative(fig *Figure, explanation string) Result {
	if err := fig.Validate(); err != nil {
		panic(fmt.Errorf("chart.AsDeclarative: %w", err))
	}
	return mustResult(KindDeclarative, &DeclarativeChart{Spec: VegaLite(fig)}, explanation)
}

func mustResult(kind Kind, artifact Artifact, explanation string) Result {
	result := Result{Kind: kind, Artifact: artifact, Explanation: explanation}
	if err := result.Validate(); err != nil {
		panic(fmt.Errorf("chart.As%s: %w", title(kind), err))
	}
	return result
}

func (r Result) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
	if r.Artifact == nil {
		return fmt.Errorf("%s result has no artifact", r.Kind)
	}
	if r.Artifact.Kind() != r.Kind {
		return fmt.Errorf("%s result carries a %s artifact", r.Kind, r.Artifact.Kind())
	}
	switch artifact := r.Artifact.(type) {
	case *InteractiveFigure:
		return artifact.Figure.Validate()
	case *StaticFigure:
		if err := artifact.Figure.Validate(); err != nil {
			return err
		}
		if artifact.Figure.Mark == MarkPie {
			return fmt.Errorf("pie figures have no static rendering; use AsInteractive or AsDeclarative")
		}
		return nil
	case *DeclarativeChart:
		if len(artifact.Spec) == 0 {
			return fmt.Errorf("declarative chart spec is empty")
		}
		return nil
	default:
		return fmt.Errorf("unsupported artifact %T", artifact)
	}
}

// Preflight validates r and lays out static figures without encoding them,
// so data the renderer cannot draw is reported before Render.
func Preflight(r Result) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if static, ok := r.Artifact.(*StaticFigure); ok {
		if _, err := static.plot(); err != nil {
			return err
		}
	}
	return nil
}

// Render writes the artifact of r and reports its content type.
func Render(w io.Writer, r Result) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	switch artifact := r.Artifact.(type) {
	case *InteractiveFigure:
		return artifact.ContentType(), artifact.Render(w)
	case *StaticFigure:
		return artifact.ContentType(), artifact.Render(w)
	case *DeclarativeChart:
		return artifact.ContentType(), artifact.Render(w)
	default:
		return "", fmt.Errorf("unsupported artifact %T", artifact)
	}
}

func title(kind Kind) string {
	switch kind {
	case KindInteractive:
		return "Interactive"
	case KindStatic:
		return "Static"
	case KindDeclarative:
		return "Declarative"
	default:
		return string(kind)
	}
}
