// Package task implements the durable working-state store: one JSON file per
// active task, mutated only through atomic write-temp-then-rename updates, and
// moved into a dated archive directory once the task reaches a terminal state.
package task

import (
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure causes recorded on tasks that reach StatusFailed.
const (
	CausePlanningInvalid     = "planning_invalid"
	CauseExecutionStepFailed = "execution_step_failed"
	CauseControllerError     = "controller_error"
)

// StepSpec is a pending step waiting in a task's next_steps queue.
// Tool and ToolParams are optional pre-resolved bindings; when empty the
// executor selects a tool at execution time.
type StepSpec struct {
	ID                string         `json:"id,omitempty"`
	Description       string         `json:"description"`
	Dependencies      []string       `json:"dependencies,omitempty"`
	EstimatedDuration string         `json:"estimated_duration,omitempty"`
	Tool              string         `json:"tool,omitempty"`
	ToolParams        map[string]any `json:"tool_params,omitempty"`
}

// CurrentStep marks the single in-flight step. Its presence on disk after a
// restart signals an interrupted execution.
type CurrentStep struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// CompletedStep is an immutable record of a finished step.
type CompletedStep struct {
	Index       int            `json:"index"`
	Description string         `json:"description"`
	Outcome     string         `json:"outcome"`
	Artifact    string         `json:"artifact,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolParams  map[string]any `json:"tool_params,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Metadata holds creation bookkeeping.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	Priority  string    `json:"priority"`
}

// Task is the central durable entity, serialized as one JSON file.
type Task struct {
	TaskID         string          `json:"task_id"`
	Goal           string          `json:"goal"`
	Status         Status          `json:"status"`
	Domain         string          `json:"domain"`
	Constraints    []string        `json:"constraints"`
	CurrentStep    *CurrentStep    `json:"current_step"`
	CompletedSteps []CompletedStep `json:"completed_steps"`
	NextSteps      []StepSpec      `json:"next_steps"`
	Metadata       Metadata        `json:"metadata"`
	FailureCause   string          `json:"failure_cause,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Spec describes a new task to create.
type Spec struct {
	Goal        string
	Domain      string
	Constraints []string
	Priority    string
	NextSteps   []StepSpec
}
