package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when no descriptor is registered under a name
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when a descriptor name is already registered
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidDescriptor is returned when a descriptor breaks a registration rule
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")

	// ErrMissingArgument is returned when a required parameter is not supplied
	ErrMissingArgument = errors.New("missing argument")

	// ErrInvalidArgument is returned when a supplied value violates its parameter kind
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrToolNotAllowed is returned when a policy denies the tool
	ErrToolNotAllowed = errors.New("tool not allowed")

	// ErrExecution is matched by every *ExecutionError
	ErrExecution = errors.New("execution failed")
)

// ArgumentError reports a caller defect for one parameter. It matches either
// ErrMissingArgument or ErrInvalidArgument through errors.Is.
type ArgumentError struct {
	Tool       string
	Parameter  string
	Constraint string
	kind       error
}

func missingArgument(tool, param string) *ArgumentError {
	return &ArgumentError{Tool: tool, Parameter: param, Constraint: "required", kind: ErrMissingArgument}
}

func invalidArgument(tool, param, constraint string) *ArgumentError {
	return &ArgumentError{Tool: tool, Parameter: param, Constraint: constraint, kind: ErrInvalidArgument}
}

func (e *ArgumentError) Error() string {
	if e.kind == ErrMissingArgument {
		return fmt.Sprintf("%s: %s: parameter %q is required", e.kind, e.Tool, e.Parameter)
	}
	return fmt.Sprintf("%s: %s: parameter %q %s", e.kind, e.Tool, e.Parameter, e.Constraint)
}

func (e *ArgumentError) Unwrap() error {
	return e.kind
}

// ExecutionError wraps an executor failure. Diagnostic holds the executor's
// own text (stderr, or the error message) verbatim.
type ExecutionError struct {
	Tool       string
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrExecution, e.Tool)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecution}
	}
	return []error{ErrExecution, e.Err}
}

// IsCallerError reports whether err is a validation failure the caller must fix.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrMissingArgument) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrToolNotAllowed)
}
