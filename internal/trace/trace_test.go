package trace

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAndAppend(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.AppendDecision(ctx, "task_1", "PLANNING", "plan_accepted", "3 steps"); err != nil {
		t.Errorf("AppendDecision failed: %v", err)
	}
	if err := s.AppendToolCall(ctx, "task_1", 0, "text_output", map[string]any{"text": "hi"}, "SUCCESS", ""); err != nil {
		t.Errorf("AppendToolCall failed: %v", err)
	}
	if err := s.AppendValidation(ctx, "task_1", "plan", true, ""); err != nil {
		t.Errorf("AppendValidation failed: %v", err)
	}
	if err := s.AppendValidation(ctx, "task_1", "plan", false, "circular dependencies"); err != nil {
		t.Errorf("AppendValidation failed: %v", err)
	}

	for table, want := range map[string]int{
		"trace_decisions":   1,
		"trace_tool_calls":  1,
		"trace_validations": 2,
	} {
		n, err := s.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s) failed: %v", table, err)
		}
		if n != want {
			t.Errorf("%s has %d rows, want %d", table, n, want)
		}
	}
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.AppendDecision(ctx, "task_1", "EXECUTING", "step_started", "step 0"); err != nil {
		t.Fatalf("AppendDecision failed: %v", err)
	}
	s.Close()

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	n, err := s2.CountRows(ctx, "trace_decisions")
	if err != nil {
		t.Fatalf("CountRows failed: %v", err)
	}
	if n != 1 {
		t.Errorf("rows after reopen = %d, want 1", n)
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	ctx := context.Background()
	var s *Store

	if err := s.AppendDecision(ctx, "t", "p", "d", ""); err != nil {
		t.Errorf("nil AppendDecision returned %v", err)
	}
	if err := s.AppendToolCall(ctx, "t", 0, "tool", nil, "SUCCESS", ""); err != nil {
		t.Errorf("nil AppendToolCall returned %v", err)
	}
	if err := s.AppendValidation(ctx, "t", "plan", true, ""); err != nil {
		t.Errorf("nil AppendValidation returned %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestCountRowsRejectsUnknownTable(t *testing.T) {
	ctx := context.Background()
	s, err := OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	if _, err := s.CountRows(ctx, "sqlite_master"); err == nil {
		t.Error("CountRows should reject tables outside the trace schema")
	}
}
