package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no active task file exists for an id.
var ErrNotFound = errors.New("task not found")

// SchemaError indicates a task file missing required fields. Treated as
// corruption: the file exists but cannot be trusted.
type SchemaError struct {
	TaskID  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("task %s missing required fields: %s", e.TaskID, strings.Join(e.Missing, ", "))
}

// requiredFields must be present in every task file. Load checks them against
// the raw JSON rather than the decoded struct so that a truncated or
// hand-edited file is rejected instead of silently zero-filled.
var requiredFields = []string{
	"task_id",
	"goal",
	"status",
	"domain",
	"constraints",
	"current_step",
	"completed_steps",
	"next_steps",
	"metadata",
}

// Store owns the task file lifecycle under a single directory. It is the only
// component that writes task files; all mutations go through the atomic
// write-temp-then-rename protocol so a crash mid-write never leaves a torn
// file on disk.
type Store struct {
	dir        string
	archiveDir string
	log        *slog.Logger
}

// NewStore creates the tasks directory if needed and returns a store rooted
// there. The archive lives under <dir>/archive.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tasks directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		dir:        dir,
		archiveDir: filepath.Join(dir, "archive"),
		log:        log,
	}, nil
}

// Dir returns the active tasks directory.
func (s *Store) Dir() string { return s.dir }

// newTaskID generates a globally unique id. The timestamp keeps ids roughly
// sortable; the uuid suffix avoids collisions under rapid creation.
func newTaskID() string {
	return fmt.Sprintf("task_%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// Create writes the initial state for a new task and returns its id.
func (s *Store) Create(spec Spec) (string, error) {
	id := newTaskID()

	domain := spec.Domain
	if domain == "" {
		domain = "general"
	}
	priority := spec.Priority
	if priority == "" {
		priority = "normal"
	}
	constraints := spec.Constraints
	if constraints == nil {
		constraints = []string{}
	}
	steps := spec.NextSteps
	if steps == nil {
		steps = []StepSpec{}
	}

	t := &Task{
		TaskID:         id,
		Goal:           spec.Goal,
		Status:         StatusCreated,
		Domain:         domain,
		Constraints:    constraints,
		CurrentStep:    nil,
		CompletedSteps: []CompletedStep{},
		NextSteps:      steps,
		Metadata: Metadata{
			CreatedAt: time.Now().UTC(),
			Priority:  priority,
		},
	}

	if err := s.writeAtomic(id, t); err != nil {
		return "", err
	}
	s.log.Info("created task", "task_id", id, "goal", spec.Goal)
	return id, nil
}

// Load reads a task's state from disk. Returns ErrNotFound if no file exists
// and a SchemaError if the file is missing required fields.
func (s *Store) Load(taskID string) (*Task, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("reading task %s: %w", taskID, err)
	}

	if err := checkRequired(taskID, data); err != nil {
		return nil, err
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", taskID, err)
	}
	return &t, nil
}

// checkRequired verifies all required top-level fields are present in the raw
// JSON document.
func checkRequired(taskID string, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding task %s: %w", taskID, err)
	}
	var missing []string
	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{TaskID: taskID, Missing: missing}
	}
	return nil
}

// Update applies mutate to the loaded state and persists the result
// atomically. The reader always observes either the old or the new complete
// state, never a mix.
func (s *Store) Update(taskID string, mutate func(*Task) error) (*Task, error) {
	t, err := s.Load(taskID)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	if err := s.writeAtomic(taskID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteStep appends the in-flight step to completed_steps, clears
// current_step, and moves the task to IN_PROGRESS. A step-index mismatch is
// logged but not fatal; the absence of any current step is.
func (s *Store) CompleteStep(taskID string, stepIndex int, outcome, artifact, toolName string, toolParams map[string]any) (*Task, error) {
	return s.Update(taskID, func(t *Task) error {
		if t.CurrentStep == nil {
			return fmt.Errorf("no active step to complete for task %s", taskID)
		}
		if t.CurrentStep.Index != stepIndex {
			s.log.Warn("completing step with mismatched index",
				"task_id", taskID,
				"given_index", stepIndex,
				"current_index", t.CurrentStep.Index)
		}
		t.CompletedSteps = append(t.CompletedSteps, CompletedStep{
			Index:       stepIndex,
			Description: t.CurrentStep.Description,
			Outcome:     outcome,
			Artifact:    artifact,
			ToolName:    toolName,
			ToolParams:  toolParams,
			CompletedAt: time.Now().UTC(),
		})
		t.CurrentStep = nil
		t.Status = StatusInProgress
		return nil
	})
}

// Archive moves the task file into archive/<YYYY-MM>/<task_id>_<reason>.json.
// Archived files are never re-opened for mutation.
func (s *Store) Archive(taskID, reason string) (string, error) {
	if reason == "" {
		reason = "completed"
	}
	src := s.path(taskID)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return "", fmt.Errorf("stat task %s: %w", taskID, err)
	}

	dir := filepath.Join(s.archiveDir, time.Now().Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	dst := filepath.Join(dir, fmt.Sprintf("%s_%s.json", taskID, reason))
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("archiving task %s: %w", taskID, err)
	}
	s.log.Info("archived task", "task_id", taskID, "reason", reason, "path", dst)
	return dst, nil
}

// ListActiveIDs returns the ids of all non-archived task files, sorted.
func (s *Store) ListActiveIDs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "task_*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ListIncompleteIDs returns active task ids that are not in a terminal state.
// Unreadable files are skipped with a warning rather than failing the scan.
func (s *Store) ListIncompleteIDs() ([]string, error) {
	ids, err := s.ListActiveIDs()
	if err != nil {
		return nil, err
	}
	var incomplete []string
	for _, id := range ids {
		t, err := s.Load(id)
		if err != nil {
			s.log.Warn("skipping unreadable task", "task_id", id, "error", err)
			continue
		}
		if !t.Status.Terminal() {
			incomplete = append(incomplete, id)
		}
	}
	return incomplete, nil
}

// ListArchivedPaths returns all archived task file paths, sorted.
func (s *Store) ListArchivedPaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.archiveDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ModTime returns the last modification time of a task's file. The supervisor
// uses it to detect stalled tasks.
func (s *Store) ModTime(taskID string) (time.Time, error) {
	info, err := os.Stat(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return time.Time{}, fmt.Errorf("stat task %s: %w", taskID, err)
	}
	return info.ModTime(), nil
}

// writeAtomic marshals state to a temporary file and renames it over the
// target. Rename is atomic on POSIX filesystems, so a crash leaves either the
// previous file or the new one, never a partial write.
func (s *Store) writeAtomic(taskID string, t *Task) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", taskID, err)
	}

	target := s.path(taskID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing task %s: %w", taskID, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing task %s: %w", taskID, err)
	}
	return nil
}
