// Package tool defines the tool abstraction and the registry the executor
// invokes through. The registry is the single choke point for tool calls:
// parameters are schema-validated before dispatch and every failure comes
// back as one of three typed errors, so a misbehaving tool can never crash
// the caller.
package tool

import (
	"context"
	"fmt"
)

// Definition describes a tool to the model and to the parameter validator.
// Parameters is a JSON Schema document (draft-07 subset) for the params map.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a capability the executor can invoke. Execute receives parameters
// already validated against the tool's schema.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// NotFoundError reports an invocation of an unregistered tool.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Tool)
}

// ParameterError reports parameters rejected by the tool's schema. Field
// names the offending parameter when the validator can identify one.
type ParameterError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tool %q parameter %q: %s", e.Tool, e.Field, e.Reason)
	}
	return fmt.Sprintf("tool %q parameters: %s", e.Tool, e.Reason)
}

// ExecutionError wraps a failure (or panic) raised by the tool itself.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
