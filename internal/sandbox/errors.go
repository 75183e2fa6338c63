package sandbox

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

type Phase string

const (
	PhasePrepare  Phase = "prepare"
	PhaseRun      Phase = "run"
	PhaseValidate Phase = "validate"
)

type Class string

const (
	ClassExecution  Class = "execution"
	ClassValidation Class = "validation"
)

// ExecutionError is the single failure type of Execute. Validation failures
// (the script ran but bound no usable result) carry ClassValidation.
type ExecutionError struct {
	ID      string
	Class   Class
	Phase   Phase
	Message string
	Output  string
	Cause   error

	stack string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s error in %s phase (execution %s): %s", e.Class, e.Phase, e.ID, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func (e *ExecutionError) IsValidation() bool {
	return e.Class == ClassValidation
}

// Diagnostic is the full failure text: the cause chain with stacks, the
// interpreter stack if the script panicked, and whatever the script printed.
func (e *ExecutionError) Diagnostic() string {
	var b strings.Builder
	b.WriteString(e.Error())
	b.WriteString("\n")
	if e.Cause != nil {
		b.WriteString("\ncause:\n")
		b.WriteString(fmt.Sprintf("%+v", e.Cause))
		b.WriteString("\n")
		if details := errors.GetAllDetails(e.Cause); len(details) > 0 {
			b.WriteString("\ndetails:\n")
			for _, detail := range details {
				b.WriteString("  " + detail + "\n")
			}
		}
	}
	if e.stack != "" {
		b.WriteString("\ninterpreter stack:\n")
		b.WriteString(e.stack)
		if !strings.HasSuffix(e.stack, "\n") {
			b.WriteString("\n")
		}
	}
	if e.Output != "" {
		b.WriteString("\ncaptured output:\n")
		b.WriteString(e.Output)
		if !strings.HasSuffix(e.Output, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ForbiddenOperation is reported by the static guard before a script runs.
type ForbiddenOperation struct {
	Operation string
	Line      int
	Column    int
	Reason    string
}

func (e *ForbiddenOperation) Error() string {
	return fmt.Sprintf("forbidden operation %q at %d:%d: %s", e.Operation, e.Line, e.Column, e.Reason)
}
