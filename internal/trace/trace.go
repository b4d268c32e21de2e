// Package trace records the controller's decision trail in an append-only
// SQLite database. The write path is fire-and-forget bookkeeping: nothing in
// the control flow ever reads traces back, and a nil *Store is a valid no-op
// so callers never have to guard their append calls.
package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store appends trace rows. Methods on a nil receiver do nothing.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the trace database at path with WAL mode and a
// busy timeout, and initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing trace schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory trace store for testing.
func OpenMemory(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening memory trace database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing trace schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS trace_decisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	phase      TEXT NOT NULL,
	decision   TEXT NOT NULL,
	detail     TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trace_tool_calls (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	tool_name  TEXT NOT NULL,
	params     TEXT,
	outcome    TEXT NOT NULL,
	detail     TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trace_validations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	subject    TEXT NOT NULL,
	valid      INTEGER NOT NULL,
	reason     TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_task ON trace_decisions(task_id);
CREATE INDEX IF NOT EXISTS idx_tool_calls_task ON trace_tool_calls(task_id);
CREATE INDEX IF NOT EXISTS idx_validations_task ON trace_validations(task_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database. Safe on a nil receiver.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AppendDecision records a control-flow decision made for a task.
func (s *Store) AppendDecision(ctx context.Context, taskID, phase, decision, detail string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_decisions (task_id, phase, decision, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, phase, decision, detail, now())
	if err != nil {
		return fmt.Errorf("appending decision trace: %w", err)
	}
	return nil
}

// AppendToolCall records one tool invocation and its outcome.
func (s *Store) AppendToolCall(ctx context.Context, taskID string, stepIndex int, toolName string, params map[string]any, outcome, detail string) error {
	if s == nil {
		return nil
	}
	var encoded []byte
	if params != nil {
		encoded, _ = json.Marshal(params)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_tool_calls (task_id, step_index, tool_name, params, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, stepIndex, toolName, string(encoded), outcome, detail, now())
	if err != nil {
		return fmt.Errorf("appending tool-call trace: %w", err)
	}
	return nil
}

// AppendValidation records a validation verdict (plan checks, parameter
// checks) for a task.
func (s *Store) AppendValidation(ctx context.Context, taskID, subject string, valid bool, reason string) error {
	if s == nil {
		return nil
	}
	v := 0
	if valid {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_validations (task_id, subject, valid, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, subject, v, reason, now())
	if err != nil {
		return fmt.Errorf("appending validation trace: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in a trace table. Test helper surface;
// the controller never reads traces.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	if s == nil {
		return 0, nil
	}
	switch table {
	case "trace_decisions", "trace_tool_calls", "trace_validations":
	default:
		return 0, fmt.Errorf("unknown trace table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
