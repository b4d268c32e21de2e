package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aristath/ecf/internal/events"
	"github.com/aristath/ecf/internal/executor"
	"github.com/aristath/ecf/internal/planner"
	"github.com/aristath/ecf/internal/task"
	"github.com/aristath/ecf/internal/tool"
	"github.com/aristath/ecf/internal/tools"
)

// scriptedGenerator returns its responses in order and fails when the
// script runs out.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls >= len(g.responses) {
		return "", fmt.Errorf("generator script exhausted after %d calls", g.calls)
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp, nil
}

// fixture wires a full controller over a temp directory with the real
// planner, executor, registry, and the text_output tool.
type fixture struct {
	store *task.Store
	gen   *scriptedGenerator
	ctl   *Controller
	bus   *events.Bus
}

func newFixture(t *testing.T, cfg Config, responses ...string) *fixture {
	t.Helper()
	store, err := task.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	gen := &scriptedGenerator{responses: responses}
	reg := tool.NewRegistry(nil)
	reg.Register(tools.NewTextOutput())

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	ctl := New(cfg, Deps{
		Store:    store,
		Planner:  planner.New(gen, store, nil, nil),
		Executor: executor.New(gen, reg, nil, nil),
		Bus:      bus,
	})
	return &fixture{store: store, gen: gen, ctl: ctl, bus: bus}
}

func planJSON(descriptions ...string) string {
	var steps []string
	for i, d := range descriptions {
		deps := "[]"
		if i > 0 {
			deps = fmt.Sprintf(`["%d"]`, i)
		}
		steps = append(steps, fmt.Sprintf(`{"id": "%d", "description": "%s", "dependencies": %s}`, i+1, d, deps))
	}
	return fmt.Sprintf(`{"tasks": [%s]}`, strings.Join(steps, ","))
}

func textSelection(text string) string {
	return fmt.Sprintf(`{"tool": "text_output", "params": {"text": "%s"}, "rationale": "emit"}`, text)
}

// archivedTask loads the single archived record for id and asserts its
// reason suffix.
func archivedTask(t *testing.T, store *task.Store, id, reason string) *task.Task {
	t.Helper()
	paths, err := store.ListArchivedPaths()
	if err != nil {
		t.Fatalf("listing archive: %v", err)
	}
	want := fmt.Sprintf("%s_%s.json", id, reason)
	for _, p := range paths {
		if strings.HasSuffix(p, want) {
			data, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("reading archive: %v", err)
			}
			var archived task.Task
			if err := json.Unmarshal(data, &archived); err != nil {
				t.Fatalf("decoding archive: %v", err)
			}
			return &archived
		}
	}
	t.Fatalf("no archive matching %q in %v", want, paths)
	return nil
}

func TestRunTaskHappyPath(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		planJSON("find the facts", "write the answer"),
		textSelection("facts found"),
		textSelection("final answer"),
	)
	ch := f.bus.Subscribe(32)

	id := f.ctl.RunTask(context.Background(), "answer a question")
	if id == "" {
		t.Fatal("RunTask returned empty id")
	}

	// Active file must be gone.
	if ids, _ := f.store.ListActiveIDs(); len(ids) != 0 {
		t.Errorf("active tasks remain after run: %v", ids)
	}

	archived := archivedTask(t, f.store, id, ReasonCompleted)
	if archived.Status != task.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", archived.Status)
	}
	if len(archived.CompletedSteps) != 2 {
		t.Fatalf("completed %d steps, want 2", len(archived.CompletedSteps))
	}
	if archived.CompletedSteps[0].Artifact != "facts found" {
		t.Errorf("first artifact = %q", archived.CompletedSteps[0].Artifact)
	}
	if archived.CompletedSteps[1].Outcome != executor.StatusSuccess {
		t.Errorf("second outcome = %q", archived.CompletedSteps[1].Outcome)
	}
	if archived.CurrentStep != nil {
		t.Error("archived task still has an in-flight step")
	}

	// Lifecycle events: plan, 2x(start+complete), archive.
	types := drainEventTypes(ch)
	for _, want := range []string{
		events.EventTypePlanReady,
		events.EventTypeStepStarted,
		events.EventTypeStepCompleted,
		events.EventTypeTaskArchived,
	} {
		if !types[want] {
			t.Errorf("missing lifecycle event %s (got %v)", want, types)
		}
	}
}

func drainEventTypes(ch <-chan events.Event) map[string]bool {
	types := map[string]bool{}
	for {
		select {
		case e := <-ch:
			types[e.EventType()] = true
		default:
			return types
		}
	}
}

func TestRunTaskInvalidPlan(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		`{"tasks": [
			{"id": "1", "description": "a", "dependencies": ["2"]},
			{"id": "2", "description": "b", "dependencies": ["1"]}
		]}`,
	)

	id := f.ctl.RunTask(context.Background(), "impossible goal")

	archived := archivedTask(t, f.store, id, ReasonFailedPlan)
	if archived.Status != task.StatusFailed {
		t.Errorf("status = %s, want FAILED", archived.Status)
	}
	if archived.FailureCause != task.CausePlanningInvalid {
		t.Errorf("failure_cause = %q, want planning_invalid", archived.FailureCause)
	}
	if !strings.Contains(archived.Error, "circular") {
		t.Errorf("error = %q, want cycle detail", archived.Error)
	}
	if len(archived.CompletedSteps) != 0 {
		t.Errorf("no steps should have executed, got %d", len(archived.CompletedSteps))
	}
	if f.gen.calls != 1 {
		t.Errorf("generator called %d times, want only the planning call", f.gen.calls)
	}
}

func TestRunTaskUnparseablePlan(t *testing.T) {
	f := newFixture(t, DefaultConfig(), "Sure! Here is my thinking...")

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedPlan)
	if archived.FailureCause != task.CausePlanningInvalid {
		t.Errorf("failure_cause = %q, want planning_invalid", archived.FailureCause)
	}
}

func TestRunTaskStepFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		planJSON("works", "does not work"),
		textSelection("ok"),
		`{"tool": "none", "params": {}, "rationale": "nothing fits"}`,
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedExecute)
	if archived.Status != task.StatusFailed {
		t.Errorf("status = %s, want FAILED", archived.Status)
	}
	if archived.FailureCause != task.CauseExecutionStepFailed {
		t.Errorf("failure_cause = %q, want execution_step_failed", archived.FailureCause)
	}
	// First step's success must be preserved in the record.
	if len(archived.CompletedSteps) != 2 {
		t.Fatalf("completed steps = %d, want 2 (success then failure)", len(archived.CompletedSteps))
	}
	if archived.CompletedSteps[0].Outcome != executor.StatusSuccess {
		t.Errorf("first step outcome = %q", archived.CompletedSteps[0].Outcome)
	}
	if archived.CompletedSteps[1].Outcome != executor.StatusFailed {
		t.Errorf("second step outcome = %q", archived.CompletedSteps[1].Outcome)
	}
}

func TestRunTaskPlanSizeCap(t *testing.T) {
	f := newFixture(t, Config{MaxPlannedSteps: 2, MaxExecutedSteps: 25},
		planJSON("one", "two", "three"),
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedPlan)
	if archived.FailureCause != task.CauseExecutionStepFailed {
		t.Errorf("failure_cause = %q, want execution_step_failed", archived.FailureCause)
	}
	if !strings.Contains(archived.Error, "limit") {
		t.Errorf("error = %q, want cap detail", archived.Error)
	}
}

func TestRunTaskExecutionCap(t *testing.T) {
	f := newFixture(t, Config{MaxPlannedSteps: 20, MaxExecutedSteps: 1},
		planJSON("one", "two"),
		textSelection("done one"),
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedExecute)
	if archived.FailureCause != task.CauseExecutionStepFailed {
		t.Errorf("failure_cause = %q, want execution_step_failed", archived.FailureCause)
	}
	if len(archived.CompletedSteps) != 1 {
		t.Errorf("completed steps = %d, want 1 before the cap", len(archived.CompletedSteps))
	}
}

func TestResumeTaskReRunsInterruptedStep(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		textSelection("redone"),
		textSelection("second done"),
	)

	// Simulate a crash mid-step: IN_PROGRESS with an in-flight step on disk.
	id, err := f.store.Create(task.Spec{
		Goal:      "resumable goal",
		NextSteps: []task.StepSpec{{Description: "second step"}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.store.Update(id, func(tk *task.Task) error {
		tk.Status = task.StatusInProgress
		tk.CurrentStep = &task.CurrentStep{Index: 0, Description: "interrupted step"}
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Budgeted resume: one step only, task stays active.
	if _, err := f.ctl.ResumeTask(context.Background(), id, 1); err != nil {
		t.Fatalf("ResumeTask failed: %v", err)
	}

	mid, err := f.store.Load(id)
	if err != nil {
		t.Fatalf("task archived despite remaining steps: %v", err)
	}
	if mid.Status != task.StatusInProgress {
		t.Errorf("status after budgeted resume = %s, want IN_PROGRESS", mid.Status)
	}
	if len(mid.CompletedSteps) != 1 || mid.CompletedSteps[0].Description != "interrupted step" {
		t.Errorf("interrupted step not re-run first: %+v", mid.CompletedSteps)
	}
	if mid.CompletedSteps[0].Artifact != "redone" {
		t.Errorf("artifact = %q, want redone", mid.CompletedSteps[0].Artifact)
	}
	if len(mid.NextSteps) != 1 {
		t.Errorf("next_steps = %d, want the untouched second step", len(mid.NextSteps))
	}

	// Unbounded resume finishes and archives.
	if _, err := f.ctl.ResumeTask(context.Background(), id, 0); err != nil {
		t.Fatalf("second ResumeTask failed: %v", err)
	}
	archived := archivedTask(t, f.store, id, ReasonCompleted)
	if len(archived.CompletedSteps) != 2 {
		t.Errorf("completed steps = %d, want 2", len(archived.CompletedSteps))
	}
}

func TestResumeTaskRejectsTerminalAndMissing(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if _, err := f.ctl.ResumeTask(context.Background(), "task_missing", 0); err == nil {
		t.Error("resuming a missing task should fail")
	}

	id, _ := f.store.Create(task.Spec{Goal: "done already"})
	f.store.Update(id, func(tk *task.Task) error {
		tk.Status = task.StatusCompleted
		return nil
	})
	if _, err := f.ctl.ResumeTask(context.Background(), id, 0); err == nil {
		t.Error("resuming a terminal task should fail")
	}
}

func TestSupervisorResumeStalled(t *testing.T) {
	f := newFixture(t, DefaultConfig(), textSelection("picked up"))

	// Stalled: IN_PROGRESS, no in-flight step, old mtime.
	stalledID, _ := f.store.Create(task.Spec{
		Goal:      "abandoned goal",
		NextSteps: []task.StepSpec{{Description: "leftover step"}},
	})
	f.store.Update(stalledID, func(tk *task.Task) error {
		tk.Status = task.StatusInProgress
		return nil
	})

	// Fresh: same shape but recent mtime; must be left alone.
	freshID, _ := f.store.Create(task.Spec{
		Goal:      "active goal",
		NextSteps: []task.StepSpec{{Description: "step"}},
	})
	f.store.Update(freshID, func(tk *task.Task) error {
		tk.Status = task.StatusInProgress
		return nil
	})

	// Age only the stalled file.
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(filepath.Join(f.store.Dir(), stalledID+".json"), old, old); err != nil {
		t.Fatalf("aging task file: %v", err)
	}

	resumed, err := f.ctl.SupervisorResumeStalled(context.Background(), time.Minute, 0)
	if err != nil {
		t.Fatalf("SupervisorResumeStalled failed: %v", err)
	}
	if len(resumed) != 1 || resumed[0] != stalledID {
		t.Fatalf("resumed = %v, want [%s]", resumed, stalledID)
	}

	archived := archivedTask(t, f.store, stalledID, ReasonCompleted)
	if archived.Status != task.StatusCompleted {
		t.Errorf("stalled task status = %s, want COMPLETED", archived.Status)
	}

	// Fresh task untouched.
	if _, err := f.store.Load(freshID); err != nil {
		t.Errorf("fresh task was disturbed: %v", err)
	}
}

func TestOrchestrateTaskBatchStopsOnFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		// Goal 1: succeeds.
		planJSON("only step"),
		textSelection("ok"),
		// Goal 2: invalid plan.
		`{"tasks": []}`,
	)

	res := f.ctl.OrchestrateTaskBatch(context.Background(), []string{"good", "bad", "never runs"})
	if res.StopReason != StopFailureDetected {
		t.Errorf("StopReason = %q, want failure_detected", res.StopReason)
	}
	if len(res.TaskIDs) != 2 {
		t.Errorf("TaskIDs = %v, want ids for the two attempted goals", res.TaskIDs)
	}
}

func TestOrchestrateTaskBatchAllComplete(t *testing.T) {
	f := newFixture(t, DefaultConfig(),
		planJSON("a"),
		textSelection("1"),
		planJSON("b"),
		textSelection("2"),
	)

	res := f.ctl.OrchestrateTaskBatch(context.Background(), []string{"first", "second"})
	if res.StopReason != StopCompleted {
		t.Errorf("StopReason = %q, want completed", res.StopReason)
	}
	if len(res.TaskIDs) != 2 {
		t.Errorf("TaskIDs = %v, want 2 ids", res.TaskIDs)
	}
}

func TestPreResolveToolsSkipsSelectionAtExecution(t *testing.T) {
	f := newFixture(t, Config{MaxPlannedSteps: 20, MaxExecutedSteps: 25, PreResolveTools: true},
		planJSON("emit text"),
		textSelection("pre-bound"), // resolution call at planning time
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonCompleted)
	if len(archived.CompletedSteps) != 1 {
		t.Fatalf("completed steps = %d, want 1", len(archived.CompletedSteps))
	}
	if archived.CompletedSteps[0].ToolName != "text_output" {
		t.Errorf("tool = %q, want text_output", archived.CompletedSteps[0].ToolName)
	}
	// Plan call + one resolution call; no selection call during execution.
	if f.gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2", f.gen.calls)
	}
}

func TestPreResolveFailsTaskBeforeAnyExecution(t *testing.T) {
	f := newFixture(t, Config{MaxPlannedSteps: 20, MaxExecutedSteps: 25, PreResolveTools: true},
		planJSON("emit text", "defy all tools"),
		textSelection("would succeed"),
		`{"tool": "none", "params": {}, "rationale": "nothing fits"}`,
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedPlan)
	if archived.FailureCause != task.CauseExecutionStepFailed {
		t.Errorf("failure_cause = %q, want execution_step_failed", archived.FailureCause)
	}
	if !strings.Contains(archived.Error, "no suitable tool") {
		t.Errorf("error = %q, want unresolvable-step detail", archived.Error)
	}
	// The first step resolved fine, but nothing may run once any step
	// proves unresolvable.
	if len(archived.CompletedSteps) != 0 {
		t.Errorf("completed steps = %d, want 0", len(archived.CompletedSteps))
	}
	// Plan call + two resolution calls; no execution-time calls.
	if f.gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", f.gen.calls)
	}
}

func TestPreResolveRejectsUnregisteredTool(t *testing.T) {
	f := newFixture(t, Config{MaxPlannedSteps: 20, MaxExecutedSteps: 25, PreResolveTools: true},
		planJSON("run a shell command"),
		`{"tool": "shell_exec", "params": {"cmd": "ls"}, "rationale": "hallucinated"}`,
	)

	id := f.ctl.RunTask(context.Background(), "goal")

	archived := archivedTask(t, f.store, id, ReasonFailedPlan)
	if archived.FailureCause != task.CauseExecutionStepFailed {
		t.Errorf("failure_cause = %q, want execution_step_failed", archived.FailureCause)
	}
	if !strings.Contains(archived.Error, "shell_exec") {
		t.Errorf("error = %q, want the unregistered tool named", archived.Error)
	}
	if len(archived.CompletedSteps) != 0 {
		t.Errorf("completed steps = %d, want 0", len(archived.CompletedSteps))
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// "héllo" is 6 bytes; a cut at 2 lands inside the é sequence.
	got := truncate("héllo", 2)
	if got != "h..." {
		t.Errorf("truncate = %q, want %q", got, "h...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if truncate("héllo", 6) != "héllo" {
		t.Error("string within the limit must pass through unchanged")
	}
	if got := truncate("日本語テキスト", 7); !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
}

func TestArtifactString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
		{[]int{1, 2}, "[1,2]"},
	}
	for _, tt := range tests {
		if got := artifactString(tt.in); got != tt.want {
			t.Errorf("artifactString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
