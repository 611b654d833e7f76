package subagent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

type countingTool struct {
	name    string
	content string
	isError bool
	calls   atomic.Int32
}

func (c *countingTool) Name() string { return c.name }

func (c *countingTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	c.calls.Add(1)
	return &models.ToolResult{Content: c.content, IsError: c.isError}, nil
}

func newExecutor(t *testing.T, tool Tool, cfg ExecConfig) *ToolExecutor {
	t.Helper()
	reg := NewToolRegistry()
	reg.Register(tool)
	return NewToolExecutor(reg, cfg)
}

func TestExecuteConcurrentlyPreservesOrder(t *testing.T) {
	tool := &countingTool{name: "Bash", content: "ok"}
	exec := newExecutor(t, tool, DefaultExecConfig())

	calls := []models.ToolCall{
		{ID: "1", Name: "Bash"}, {ID: "2", Name: "Bash"}, {ID: "3", Name: "Bash"},
	}
	results := exec.ExecuteConcurrently(context.Background(), calls, nil)
	for i, r := range results {
		if r.ToolCall.ID != calls[i].ID {
			t.Fatalf("index %d: expected ID %q, got %q", i, calls[i].ID, r.ToolCall.ID)
		}
	}
}

func TestExecuteConcurrentlyDoesNotRetryCommandNotFound(t *testing.T) {
	tool := &countingTool{name: "Bash", content: "bash: foo: command not found", isError: true}
	cfg := ExecConfig{Concurrency: 1, PerToolTimeout: time.Second, MaxAttempts: 3, RetryBackoff: time.Millisecond}
	exec := newExecutor(t, tool, cfg)

	results := exec.ExecuteConcurrently(context.Background(), []models.ToolCall{{ID: "1", Name: "Bash"}}, nil)
	if tool.calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt for a CommandNotFound failure, got %d", tool.calls.Load())
	}
	if !results[0].Result.IsError {
		t.Fatalf("expected the result to still report an error, got %+v", results[0].Result)
	}
}

func TestExecuteConcurrentlyRetriesExecutionError(t *testing.T) {
	tool := &countingTool{name: "Bash", content: "connection refused", isError: true}
	cfg := ExecConfig{Concurrency: 1, PerToolTimeout: time.Second, MaxAttempts: 3, RetryBackoff: time.Millisecond}
	exec := newExecutor(t, tool, cfg)

	exec.ExecuteConcurrently(context.Background(), []models.ToolCall{{ID: "1", Name: "Bash"}}, nil)
	if tool.calls.Load() != 3 {
		t.Fatalf("expected all 3 attempts for a retryable ExecutionError, got %d", tool.calls.Load())
	}
}

func TestExecuteConcurrentlyStopsRetryingOnSuccess(t *testing.T) {
	tool := &countingTool{name: "Bash", content: "ok", isError: false}
	cfg := ExecConfig{Concurrency: 1, PerToolTimeout: time.Second, MaxAttempts: 3, RetryBackoff: time.Millisecond}
	exec := newExecutor(t, tool, cfg)

	exec.ExecuteConcurrently(context.Background(), []models.ToolCall{{ID: "1", Name: "Bash"}}, nil)
	if tool.calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt on success, got %d", tool.calls.Load())
	}
}

func TestExecuteConcurrentlyEmitsProgressEvents(t *testing.T) {
	tool := &countingTool{name: "Bash", content: "ok"}
	exec := newExecutor(t, tool, DefaultExecConfig())

	var kinds []models.ProgressEventKind
	exec.ExecuteConcurrently(context.Background(), []models.ToolCall{{ID: "1", Name: "Bash"}}, func(e models.ProgressEvent) {
		kinds = append(kinds, e.Kind)
	})

	if len(kinds) != 2 || kinds[0] != models.ProgressToolStart || kinds[1] != models.ProgressToolEnd {
		t.Fatalf("expected [ToolStart ToolEnd], got %v", kinds)
	}
}

func TestExecuteSingleReturnsNotFoundResult(t *testing.T) {
	reg := NewToolRegistry()
	cfg := ExecConfig{Concurrency: 1, PerToolTimeout: time.Second, MaxAttempts: 1}
	exec := NewToolExecutor(reg, cfg)

	res, err := exec.ExecuteSingle(context.Background(), "Missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected a not-found result, got %+v", res)
	}
}
