// Package planner turns a goal into a validated, persisted list of steps.
// It makes exactly one generator call per plan and never executes anything.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aristath/ecf/internal/llm"
	"github.com/aristath/ecf/internal/plan"
	"github.com/aristath/ecf/internal/task"
	"github.com/aristath/ecf/internal/trace"
)

// Request describes what to plan. When TaskID is set the validated steps are
// persisted into that existing task; otherwise a new task is created.
type Request struct {
	Goal        string
	Domain      string
	Constraints []string
	Priority    string
	TaskID      string
}

// Planner produces and persists plans.
type Planner struct {
	gen    llm.Generator
	store  *task.Store
	tracer *trace.Store
	log    *slog.Logger
}

// New builds a planner. tracer may be nil.
func New(gen llm.Generator, store *task.Store, tracer *trace.Store, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{gen: gen, store: store, tracer: tracer, log: log}
}

// GeneratePlan asks the generator for a decomposition of the goal, validates
// it, and persists the steps as the task's next_steps queue. Returns the id
// of the task holding the plan and the steps in a valid execution order.
// Unparseable or structurally invalid output comes back as a
// plan.InvalidPlanError; generator transport failures pass through.
func (p *Planner) GeneratePlan(ctx context.Context, req Request) (string, []task.StepSpec, error) {
	raw, err := p.gen.Generate(ctx, buildPrompt(req))
	if err != nil {
		return "", nil, fmt.Errorf("generating plan: %w", err)
	}

	var decoded plan.Plan
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		var perr *llm.ParseError
		reason := "unparseable plan output"
		if errors.As(err, &perr) {
			reason = fmt.Sprintf("unparseable plan output: %s", perr.Detail)
		}
		p.tracer.AppendValidation(ctx, req.TaskID, "plan", false, reason)
		return "", nil, &plan.InvalidPlanError{Reason: reason}
	}

	ordered, err := plan.Validate(&decoded)
	if err != nil {
		p.tracer.AppendValidation(ctx, req.TaskID, "plan", false, err.Error())
		return "", nil, err
	}
	p.tracer.AppendValidation(ctx, req.TaskID, "plan", true, "")

	steps := make([]task.StepSpec, 0, len(ordered))
	for _, s := range ordered {
		steps = append(steps, task.StepSpec{
			ID:                s.ID,
			Description:       s.Description,
			Dependencies:      s.Dependencies,
			EstimatedDuration: s.EstimatedDuration,
		})
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID, err = p.store.Create(task.Spec{
			Goal:        req.Goal,
			Domain:      req.Domain,
			Constraints: req.Constraints,
			Priority:    req.Priority,
			NextSteps:   steps,
		})
		if err != nil {
			return "", nil, fmt.Errorf("persisting plan: %w", err)
		}
	} else {
		if _, err := p.store.Update(taskID, func(t *task.Task) error {
			t.NextSteps = steps
			return nil
		}); err != nil {
			return "", nil, fmt.Errorf("persisting plan: %w", err)
		}
	}

	p.log.Info("plan generated", "task_id", taskID, "steps", len(steps))
	p.tracer.AppendDecision(ctx, taskID, "PLANNING", "plan_accepted", fmt.Sprintf("%d steps", len(steps)))
	return taskID, steps, nil
}
