// Package sandbox runs generated Go snippets against a fixed capability table.
//
// The capability table is a boundary against accidental misuse by a model
// written script working on trusted data: no file, process, network or
// environment access is bound, and scripts cannot import. It is not a
// security sandbox. Scripts share the host process and a hostile author can
// still exhaust memory or CPU within the execution deadline.
package sandbox

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/traefik/yaegi/interp"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/query"
)

// statementPrelude keeps the interpreter in statement context, so a script
// may open with a var or const declaration.
const statementPrelude = "_ = 0\n"

const (
	resultBinding      = "result"
	DefaultTimeout     = 30 * time.Second
	DefaultOutputLimit = 64 * 1024
)

type State string

const (
	StatePrepared  State = "prepared"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

type Config struct {
	// Timeout bounds the run phase. Zero disables the deadline.
	Timeout     time.Duration
	OutputLimit int
	Query       query.Options
	Open        query.OpenFunc
}

func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, OutputLimit: DefaultOutputLimit}
}

type Executor struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = DefaultOutputLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Execution is the record of one run. Exactly one of Result and Err is set
// once State is terminal.
type Execution struct {
	ID       string
	State    State
	Result   chart.Result
	Err      *ExecutionError
	Output   string
	Queries  int
	Duration time.Duration
}

func (e *Executor) Execute(ctx context.Context, code string, tables dataset.Set) (chart.Result, error) {
	execution := e.Run(ctx, code, tables)
	if execution.Err != nil {
		return chart.Result{}, execution.Err
	}
	return execution.Result, nil
}

// Run prepares a fresh interpreter, runs code in it and validates the bound
// result. Nothing from one run is visible to the next.
func (e *Executor) Run(ctx context.Context, code string, tables dataset.Set) *Execution {
	start := time.Now()
	execution := &Execution{ID: uuid.NewString()}
	logger := e.logger.With(slog.String("execution_id", execution.ID))

	output := &cappedBuffer{limit: e.cfg.OutputLimit}
	gateway := query.NewGateway(tables, e.cfg.Open, e.cfg.Query)
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn("close query engine", slog.Any("error", err))
		}
		execution.Output = output.String()
		execution.Queries = gateway.Executed()
		execution.Duration = time.Since(start)
		if execution.Err != nil {
			execution.Err.Output = execution.Output
		}
		observeExecution(execution)
	}()

	fail := func(class Class, phase Phase, cause error, stack string) *Execution {
		execution.State = StateFailed
		execution.Err = &ExecutionError{
			ID:      execution.ID,
			Class:   class,
			Phase:   phase,
			Message: cause.Error(),
			Cause:   cause,
			stack:   stack,
		}
		logger.Warn("script execution failed",
			slog.String("class", string(class)),
			slog.String("phase", string(phase)),
			slog.String("error", cause.Error()),
		)
		return execution
	}

	i, err := e.prepare(ctx, code, gateway, output)
	if err != nil {
		var forbiddenOp *ForbiddenOperation
		if errors.As(err, &forbiddenOp) {
			forbiddenOperationsTotal.WithLabelValues(forbiddenOp.Operation).Inc()
		}
		return fail(ClassExecution, PhasePrepare, err, "")
	}
	execution.State = StatePrepared
	logger.Debug("script prepared", slog.Int("tables", len(tables)))

	execution.State = StateRunning
	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	if _, err := i.EvalWithContext(runCtx, statementPrelude+code); err != nil {
		cause, stack := classifyRunError(runCtx, err)
		if violation := gateway.Violation(); violation != nil {
			policyViolationsTotal.Inc()
			if !errors.Is(cause, violation) {
				cause = errors.Wrap(violation, "query rejected")
			}
		}
		return fail(ClassExecution, PhaseRun, cause, stack)
	}
	if violation := gateway.Violation(); violation != nil {
		// The script recovered from the violation; the run is still aborted.
		policyViolationsTotal.Inc()
		return fail(ClassExecution, PhaseRun, errors.Wrap(violation, "query rejected"), "")
	}

	result, err := validate(i)
	if err != nil {
		return fail(ClassValidation, PhaseValidate, err, "")
	}
	execution.State = StateSucceeded
	execution.Result = result
	logger.Info("script execution succeeded",
		slog.String("kind", string(result.Kind)),
		slog.Int("queries", gateway.Executed()),
		slog.Duration("duration", time.Since(start)),
	)
	return execution
}

func (e *Executor) prepare(ctx context.Context, code string, gateway *query.Gateway, output *cappedBuffer) (*interp.Interpreter, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("script is empty")
	}
	if err := Guard(code); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{
		Stdin:                strings.NewReader(""),
		Stdout:               output,
		Stderr:               output,
		SourcecodeFilesystem: emptyFS{},
		Env:                  []string{},
	})
	if err := i.Use(capabilities(ctx, gateway, output)); err != nil {
		return nil, errors.Wrap(err, "install capability table")
	}
	if _, err := i.Eval(setupImport()); err != nil {
		return nil, errors.Wrap(err, "bind script packages")
	}
	return i, nil
}

func classifyRunError(runCtx context.Context, err error) (error, string) {
	var panicked interp.Panic
	if errors.As(err, &panicked) {
		stack := string(panicked.Stack)
		if cause, ok := panicked.Value.(error); ok {
			return errors.Wrap(cause, "script panicked"), stack
		}
		return errors.Newf("script panicked: %v", panicked.Value), stack
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return errors.Wrap(ctxErr, "script exceeded its execution deadline"), ""
		}
		return errors.Wrap(ctxErr, "script cancelled"), ""
	}
	return errors.Wrap(err, "script failed"), ""
}

func validate(i *interp.Interpreter) (chart.Result, error) {
	value, err := i.Eval(resultBinding)
	if err != nil {
		return chart.Result{}, errors.Wrapf(err, "script did not bind %q", resultBinding)
	}
	if !value.IsValid() || !value.CanInterface() {
		return chart.Result{}, errors.Newf("%q holds no value", resultBinding)
	}
	result, ok := value.Interface().(chart.Result)
	if !ok {
		return chart.Result{}, errors.Newf("%q is %s, not a chart result; bind it with chart.AsInteractive, chart.AsStatic or chart.AsDeclarative", resultBinding, value.Type())
	}
	if err := chart.Preflight(result); err != nil {
		return chart.Result{}, errors.Wrapf(err, "%q is not a valid chart result", resultBinding)
	}
	return result, nil
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

type cappedBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + fmt.Sprintf("\n[output truncated at %d bytes]", b.limit)
	}
	return b.buf.String()
}
