package tools

import "fmt"

// NotFoundError reports an unknown tool name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// MissingRequiredError reports an absent required argument.
type MissingRequiredError struct {
	Tool  string
	Field string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("tool %s: missing required argument %q", e.Tool, e.Field)
}

// InvalidParameterError reports an argument that failed validation.
type InvalidParameterError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("tool %s: invalid argument %q: %s", e.Tool, e.Field, e.Reason)
}

// ExecutionError wraps a failure inside a tool's own Invoke.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
