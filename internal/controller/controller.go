// Package controller drives a task through its full lifecycle: create the
// durable record, plan, validate, execute steps one tool at a time, and
// archive the outcome. Every state transition is persisted before the work
// it announces, so a crash at any point leaves a resumable file.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aristath/ecf/internal/events"
	"github.com/aristath/ecf/internal/executor"
	"github.com/aristath/ecf/internal/plan"
	"github.com/aristath/ecf/internal/planner"
	"github.com/aristath/ecf/internal/task"
	"github.com/aristath/ecf/internal/trace"
)

// State names the controller's phases. VERIFYING is reserved for a
// post-execution check phase that is not yet wired in.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StatePlanning     State = "PLANNING"
	StateExecuting    State = "EXECUTING"
	StateVerifying    State = "VERIFYING"
	StateArchiving    State = "ARCHIVING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
)

// Archive reasons, encoded into archived file names.
const (
	ReasonCompleted     = "completed"
	ReasonFailedPlan    = "failed_plan"
	ReasonFailedExecute = "failed_execute"
	ReasonError         = "error"
)

// Config bounds a single controller run.
type Config struct {
	// MaxPlannedSteps caps the size of an accepted plan.
	MaxPlannedSteps int
	// MaxExecutedSteps caps step executions within one run, including
	// resumed runs of the same task.
	MaxExecutedSteps int
	// PreResolveTools selects a tool for every step right after planning
	// instead of at execution time. A step that cannot be resolved fails
	// the task before any step runs.
	PreResolveTools bool
}

// DefaultConfig returns the standard caps.
func DefaultConfig() Config {
	return Config{
		MaxPlannedSteps:  20,
		MaxExecutedSteps: 25,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPlannedSteps <= 0 {
		c.MaxPlannedSteps = 20
	}
	if c.MaxExecutedSteps <= 0 {
		c.MaxExecutedSteps = 25
	}
	return c
}

// Deps carries the controller's collaborators. Tracer and Bus may be nil.
type Deps struct {
	Store    *task.Store
	Planner  *planner.Planner
	Executor *executor.Executor
	Tracer   *trace.Store
	Bus      *events.Bus
	Log      *slog.Logger
}

// Controller orchestrates tasks. Safe for sequential use; concurrent runs of
// distinct tasks are fine, concurrent runs of the same task are not.
type Controller struct {
	cfg   Config
	store *task.Store
	plnr  *planner.Planner
	exec  *executor.Executor
	trc   *trace.Store
	bus   *events.Bus
	log   *slog.Logger
}

// New builds a controller.
func New(cfg Config, deps Deps) *Controller {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:   cfg.withDefaults(),
		store: deps.Store,
		plnr:  deps.Planner,
		exec:  deps.Executor,
		trc:   deps.Tracer,
		bus:   deps.Bus,
		log:   log,
	}
}

// RunTask drives a goal from creation to archive and returns the task id.
// It never returns an error: every failure mode is recorded on the task
// record and reflected in the archive reason. The returned id may be empty
// only if the task record itself could not be created.
func (c *Controller) RunTask(ctx context.Context, goal string) string {
	return c.RunTaskSpec(ctx, task.Spec{Goal: goal})
}

// RunTaskSpec is RunTask with full control over domain, constraints, and
// priority.
func (c *Controller) RunTaskSpec(ctx context.Context, spec task.Spec) (taskID string) {
	taskID, err := c.store.Create(spec)
	if err != nil {
		c.log.Error("creating task record", "goal", spec.Goal, "error", err)
		return ""
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("controller panic", "task_id", taskID, "panic", rec)
			c.failAndArchive(ctx, taskID, task.CauseControllerError, fmt.Sprintf("panic: %v", rec), ReasonError)
		}
	}()

	c.trc.AppendDecision(ctx, taskID, string(StateInitializing), "task_created", spec.Goal)

	// PLANNING
	_, steps, err := c.plnr.GeneratePlan(ctx, planner.Request{
		Goal:        spec.Goal,
		Domain:      spec.Domain,
		Constraints: spec.Constraints,
		Priority:    spec.Priority,
		TaskID:      taskID,
	})
	if err != nil {
		var invalid *plan.InvalidPlanError
		if errors.As(err, &invalid) {
			c.failAndArchive(ctx, taskID, task.CausePlanningInvalid, invalid.Reason, ReasonFailedPlan)
		} else {
			c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
		}
		return taskID
	}

	if len(steps) > c.cfg.MaxPlannedSteps {
		detail := fmt.Sprintf("plan has %d steps, limit is %d", len(steps), c.cfg.MaxPlannedSteps)
		c.failAndArchive(ctx, taskID, task.CauseExecutionStepFailed, detail, ReasonFailedPlan)
		return taskID
	}

	c.publish(events.PlanReadyEvent{ID: taskID, StepCount: len(steps), Timestamp: time.Now()})

	if c.cfg.PreResolveTools {
		if !c.preResolve(ctx, taskID) {
			return taskID
		}
	}

	// EXECUTING through ARCHIVING
	c.executeAndFinish(ctx, taskID, 0)
	return taskID
}

// ResumeTask picks up a non-terminal task. An in-flight step found on disk
// is re-queued by description and will run again, so steps must tolerate
// at-least-once execution. maxSteps bounds this resume's executions; zero
// means unbounded. A budget-exhausted resume leaves the task IN_PROGRESS
// and unarchived.
func (c *Controller) ResumeTask(ctx context.Context, taskID string, maxSteps int) (string, error) {
	t, err := c.store.Load(taskID)
	if err != nil {
		return "", err
	}
	if t.Status.Terminal() {
		return "", fmt.Errorf("task %s is %s and cannot be resumed", taskID, t.Status)
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("controller panic during resume", "task_id", taskID, "panic", rec)
			c.failAndArchive(ctx, taskID, task.CauseControllerError, fmt.Sprintf("panic: %v", rec), ReasonError)
		}
	}()

	if t.CurrentStep != nil {
		desc := t.CurrentStep.Description
		c.log.Info("re-queueing interrupted step", "task_id", taskID, "description", desc)
		c.trc.AppendDecision(ctx, taskID, string(StateExecuting), "step_requeued", desc)
		if _, err := c.store.Update(taskID, func(t *task.Task) error {
			t.NextSteps = append([]task.StepSpec{{Description: desc}}, t.NextSteps...)
			t.CurrentStep = nil
			return nil
		}); err != nil {
			return "", err
		}
	}

	c.executeAndFinish(ctx, taskID, maxSteps)
	return taskID, nil
}

// SupervisorResumeStalled scans for tasks that look abandoned: IN_PROGRESS,
// no in-flight step, and untouched for at least minAge. Matches resume in
// sorted task-id order, at most maxTasks of them (0 = no bound). Returns
// the ids that were resumed.
func (c *Controller) SupervisorResumeStalled(ctx context.Context, minAge time.Duration, maxTasks int) ([]string, error) {
	ids, err := c.store.ListIncompleteIDs()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-minAge)
	var stalled []string
	for _, id := range ids {
		t, err := c.store.Load(id)
		if err != nil {
			c.log.Warn("supervisor skipping unreadable task", "task_id", id, "error", err)
			continue
		}
		if t.Status != task.StatusInProgress || t.CurrentStep != nil {
			continue
		}
		mtime, err := c.store.ModTime(id)
		if err != nil || mtime.After(cutoff) {
			continue
		}
		stalled = append(stalled, id)
	}
	sort.Strings(stalled)
	if maxTasks > 0 && len(stalled) > maxTasks {
		stalled = stalled[:maxTasks]
	}

	var resumed []string
	for _, id := range stalled {
		c.log.Info("supervisor resuming stalled task", "task_id", id)
		if _, err := c.ResumeTask(ctx, id, 0); err != nil {
			c.log.Warn("supervisor resume failed", "task_id", id, "error", err)
			continue
		}
		resumed = append(resumed, id)
	}
	return resumed, nil
}

// BatchResult reports a batch run.
type BatchResult struct {
	TaskIDs    []string
	StopReason string
}

// Batch stop reasons.
const (
	StopCompleted       = "completed"
	StopFailureDetected = "failure_detected"
)

// OrchestrateTaskBatch runs goals sequentially, stopping at the first task
// that does not complete successfully.
func (c *Controller) OrchestrateTaskBatch(ctx context.Context, goals []string) BatchResult {
	var res BatchResult
	for _, goal := range goals {
		id := c.RunTask(ctx, goal)
		if id != "" {
			res.TaskIDs = append(res.TaskIDs, id)
		}
		if !c.finishedSuccessfully(id) {
			res.StopReason = StopFailureDetected
			return res
		}
	}
	res.StopReason = StopCompleted
	return res
}

// finishedSuccessfully checks the archive for a completed record of the
// task. The active file is gone by the time a run returns.
func (c *Controller) finishedSuccessfully(taskID string) bool {
	if taskID == "" {
		return false
	}
	paths, err := c.store.ListArchivedPaths()
	if err != nil {
		return false
	}
	suffix := fmt.Sprintf("%s_%s.json", taskID, ReasonCompleted)
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// executeAndFinish drains the step queue and archives the outcome. maxSteps
// zero means unbounded; a positive budget that runs out leaves the task
// unarchived for a later resume.
func (c *Controller) executeAndFinish(ctx context.Context, taskID string, maxSteps int) {
	executed := 0
	for {
		t, err := c.store.Load(taskID)
		if err != nil {
			c.log.Error("loading task mid-run", "task_id", taskID, "error", err)
			return
		}

		if len(t.NextSteps) == 0 {
			c.finish(ctx, taskID)
			return
		}

		if maxSteps > 0 && executed >= maxSteps {
			c.log.Info("resume budget exhausted", "task_id", taskID, "executed", executed)
			return
		}
		if executed >= c.cfg.MaxExecutedSteps {
			detail := fmt.Sprintf("executed %d steps, limit is %d", executed, c.cfg.MaxExecutedSteps)
			c.failAndArchive(ctx, taskID, task.CauseExecutionStepFailed, detail, ReasonFailedExecute)
			return
		}

		stepIndex := len(t.CompletedSteps)
		next := t.NextSteps[0]

		// Persist the transition before doing the work: the in-flight
		// marker is what makes a crash here recoverable.
		if _, err := c.store.Update(taskID, func(t *task.Task) error {
			t.CurrentStep = &task.CurrentStep{Index: stepIndex, Description: next.Description}
			t.NextSteps = t.NextSteps[1:]
			t.Status = task.StatusInProgress
			return nil
		}); err != nil {
			c.log.Error("persisting step transition", "task_id", taskID, "error", err)
			c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
			return
		}
		c.publish(events.StepStartedEvent{
			ID:          taskID,
			StepIndex:   stepIndex,
			Description: next.Description,
			Timestamp:   time.Now(),
		})

		var result executor.StepResult
		if next.Tool != "" {
			// Pre-resolved binding: skip selection, invoke directly.
			result = c.invokeResolved(ctx, taskID, stepIndex, next)
		} else {
			result, err = c.exec.ExecuteStep(ctx, taskID, stepIndex, next.Description, c.stepContext(t))
			if err != nil {
				c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
				return
			}
		}
		executed++

		artifact := artifactString(result.Result)
		if _, err := c.store.CompleteStep(taskID, stepIndex, result.Status, artifact, result.Tool, result.Params); err != nil {
			c.log.Error("recording completed step", "task_id", taskID, "error", err)
			c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
			return
		}

		if result.Status != executor.StatusSuccess {
			c.publish(events.StepFailedEvent{
				ID:        taskID,
				StepIndex: stepIndex,
				Tool:      result.Tool,
				Detail:    result.Error,
				Timestamp: time.Now(),
			})
			detail := fmt.Sprintf("step %d (%s): %s", stepIndex, next.Description, result.Error)
			c.failAndArchive(ctx, taskID, task.CauseExecutionStepFailed, detail, ReasonFailedExecute)
			return
		}
		c.publish(events.StepCompletedEvent{
			ID:        taskID,
			StepIndex: stepIndex,
			Tool:      result.Tool,
			Timestamp: time.Now(),
		})
	}
}

// invokeResolved runs a step whose tool was bound at planning time.
func (c *Controller) invokeResolved(ctx context.Context, taskID string, stepIndex int, step task.StepSpec) executor.StepResult {
	return c.exec.InvokeDirect(ctx, taskID, stepIndex, step.Tool, step.ToolParams)
}

// preResolve binds a tool to every pending step before anything executes.
// Resolution is all-or-nothing: a step with no suitable tool, an
// unregistered selection, or a failed selection call fails the whole task
// here, so no earlier step runs its side effects first. Returns false when
// the task was failed and archived.
func (c *Controller) preResolve(ctx context.Context, taskID string) bool {
	t, err := c.store.Load(taskID)
	if err != nil {
		c.log.Error("loading task for pre-resolution", "task_id", taskID, "error", err)
		c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
		return false
	}
	resolved := make([]task.StepSpec, len(t.NextSteps))
	copy(resolved, t.NextSteps)
	for i := range resolved {
		sel, err := c.exec.SelectTool(ctx, resolved[i].Description, c.stepContext(t))
		if err != nil {
			c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
			return false
		}
		if sel.Tool == "none" {
			detail := fmt.Sprintf("step %q has no suitable tool", resolved[i].Description)
			c.failAndArchive(ctx, taskID, task.CauseExecutionStepFailed, detail, ReasonFailedPlan)
			return false
		}
		if !c.exec.Resolvable(sel.Tool) {
			detail := fmt.Sprintf("step %q selected unregistered tool %q", resolved[i].Description, sel.Tool)
			c.failAndArchive(ctx, taskID, task.CauseExecutionStepFailed, detail, ReasonFailedPlan)
			return false
		}
		resolved[i].Tool = sel.Tool
		resolved[i].ToolParams = sel.Params
	}
	if _, err := c.store.Update(taskID, func(t *task.Task) error {
		t.NextSteps = resolved
		return nil
	}); err != nil {
		c.failAndArchive(ctx, taskID, task.CauseControllerError, err.Error(), ReasonError)
		return false
	}
	return true
}

// finish marks the task COMPLETED and archives it.
func (c *Controller) finish(ctx context.Context, taskID string) {
	if _, err := c.store.Update(taskID, func(t *task.Task) error {
		t.Status = task.StatusCompleted
		return nil
	}); err != nil {
		c.log.Error("marking task completed", "task_id", taskID, "error", err)
		return
	}
	c.trc.AppendDecision(ctx, taskID, string(StateArchiving), "task_completed", "")
	path, err := c.store.Archive(taskID, ReasonCompleted)
	if err != nil {
		c.log.Error("archiving completed task", "task_id", taskID, "error", err)
		return
	}
	c.publish(events.TaskArchivedEvent{ID: taskID, Reason: ReasonCompleted, Path: path, Timestamp: time.Now()})
}

// failAndArchive records the failure on the task and archives it under the
// given reason. Best effort: archival problems are logged, not propagated.
func (c *Controller) failAndArchive(ctx context.Context, taskID, cause, detail, reason string) {
	c.log.Warn("task failed", "task_id", taskID, "cause", cause, "detail", detail)
	c.trc.AppendDecision(ctx, taskID, string(StateArchiving), "task_failed", cause+": "+detail)
	if _, err := c.store.Update(taskID, func(t *task.Task) error {
		t.Status = task.StatusFailed
		t.FailureCause = cause
		t.Error = detail
		return nil
	}); err != nil {
		c.log.Error("marking task failed", "task_id", taskID, "error", err)
		return
	}
	path, err := c.store.Archive(taskID, reason)
	if err != nil {
		c.log.Error("archiving failed task", "task_id", taskID, "error", err)
		return
	}
	c.publish(events.TaskArchivedEvent{ID: taskID, Reason: reason, Path: path, Timestamp: time.Now()})
}

// stepContext summarizes the task for the executor's selection prompt.
func (c *Controller) stepContext(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s", t.Goal)
	if len(t.Constraints) > 0 {
		b.WriteString("\nConstraints:")
		for _, con := range t.Constraints {
			fmt.Fprintf(&b, "\n- %s", con)
		}
	}
	if n := len(t.CompletedSteps); n > 0 {
		b.WriteString("\nCompleted steps:")
		// Keep the prompt bounded: only the last few artifacts matter.
		start := 0
		if n > 3 {
			start = n - 3
		}
		for _, s := range t.CompletedSteps[start:] {
			fmt.Fprintf(&b, "\n- %s -> %s", s.Description, truncate(s.Artifact, 500))
		}
	}
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// artifactString renders a tool result for persistence: strings verbatim,
// everything else as JSON.
func artifactString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(data)
	}
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
