// Package executor runs exactly one tool per step. Step execution is a
// two-phase protocol: one generator call to pick a tool and its parameters,
// then one registry invocation. A step that cannot be served (no suitable
// tool, unparseable selection, rejected parameters, tool failure) is a
// first-class FAILED outcome, not an error; errors are reserved for the
// generator transport itself.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/ecf/internal/llm"
	"github.com/aristath/ecf/internal/tool"
	"github.com/aristath/ecf/internal/trace"
)

// Step outcome values, persisted verbatim into completed_steps.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Selection is the generator's tool choice for a step. Tool "none" means the
// model judged no registered tool applicable.
type Selection struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Rationale string         `json:"rationale,omitempty"`
}

// StepResult is the outcome of executing one step.
type StepResult struct {
	Status string
	Tool   string
	Params map[string]any
	Result any
	Error  string
}

// Executor selects and invokes tools for steps.
type Executor struct {
	gen      llm.Generator
	registry *tool.Registry
	tracer   *trace.Store
	log      *slog.Logger
}

// New builds an executor. tracer may be nil.
func New(gen llm.Generator, registry *tool.Registry, tracer *trace.Store, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{gen: gen, registry: registry, tracer: tracer, log: log}
}

// SelectTool asks the generator to choose a tool for the step. Output that
// cannot be parsed maps to the "none" selection so the caller records a
// failed step instead of aborting the task.
func (e *Executor) SelectTool(ctx context.Context, description, stepContext string) (Selection, error) {
	raw, err := e.gen.Generate(ctx, buildSelectionPrompt(e.registry.Definitions(), description, stepContext))
	if err != nil {
		return Selection{}, fmt.Errorf("selecting tool: %w", err)
	}

	var sel Selection
	if err := llm.DecodeJSON(raw, &sel); err != nil {
		e.log.Warn("unparseable tool selection", "step", description, "error", err)
		return Selection{Tool: "none", Rationale: "unparseable selection output"}, nil
	}
	if sel.Tool == "" {
		sel.Tool = "none"
	}
	return sel, nil
}

// ExecuteStep runs the full protocol for one step: select, then invoke at
// most once. taskID and stepIndex are trace bookkeeping only.
func (e *Executor) ExecuteStep(ctx context.Context, taskID string, stepIndex int, description, stepContext string) (StepResult, error) {
	sel, err := e.SelectTool(ctx, description, stepContext)
	if err != nil {
		return StepResult{}, err
	}

	if sel.Tool == "none" {
		detail := sel.Rationale
		if detail == "" {
			detail = "no suitable tool for step"
		}
		e.tracer.AppendToolCall(ctx, taskID, stepIndex, "none", nil, StatusFailed, detail)
		return StepResult{Status: StatusFailed, Tool: "none", Error: detail}, nil
	}

	result, invokeErr := e.registry.Invoke(ctx, sel.Tool, sel.Params)
	if invokeErr != nil {
		e.log.Warn("tool invocation failed",
			"task_id", taskID,
			"step_index", stepIndex,
			"tool", sel.Tool,
			"error", invokeErr)
		e.tracer.AppendToolCall(ctx, taskID, stepIndex, sel.Tool, sel.Params, StatusFailed, invokeErr.Error())
		return StepResult{
			Status: StatusFailed,
			Tool:   sel.Tool,
			Params: sel.Params,
			Error:  invokeErr.Error(),
		}, nil
	}

	e.tracer.AppendToolCall(ctx, taskID, stepIndex, sel.Tool, sel.Params, StatusSuccess, "")
	return StepResult{
		Status: StatusSuccess,
		Tool:   sel.Tool,
		Params: sel.Params,
		Result: result,
	}, nil
}

// Resolvable reports whether the registry can serve the named tool.
func (e *Executor) Resolvable(name string) bool {
	return e.registry.Has(name)
}

// InvokeDirect runs a step whose tool and parameters were already resolved,
// skipping the selection call. Used for pre-bound steps.
func (e *Executor) InvokeDirect(ctx context.Context, taskID string, stepIndex int, toolName string, params map[string]any) StepResult {
	result, err := e.registry.Invoke(ctx, toolName, params)
	if err != nil {
		e.tracer.AppendToolCall(ctx, taskID, stepIndex, toolName, params, StatusFailed, err.Error())
		return StepResult{Status: StatusFailed, Tool: toolName, Params: params, Error: err.Error()}
	}
	e.tracer.AppendToolCall(ctx, taskID, stepIndex, toolName, params, StatusSuccess, "")
	return StepResult{Status: StatusSuccess, Tool: toolName, Params: params, Result: result}
}
