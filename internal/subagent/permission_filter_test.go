package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

type fakeTool struct {
	name   string
	result *models.ToolResult
	err    error
	calls  int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	f.calls++
	return f.result, f.err
}

func TestPermissionFilterEmptyIncludeRejectsEverything(t *testing.T) {
	wrapped := &fakeTool{name: "Bash", result: &models.ToolResult{Content: "ok"}}
	filter := NewPermissionFilter(wrapped, []string{}, nil, "reviewer")

	res, err := filter.Execute(context.Background(), json.RawMessage(`{"command":"ls"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected pure-reasoning mode to refuse, got %+v", res)
	}
	if wrapped.calls != 0 {
		t.Fatal("expected the wrapped tool to never be called")
	}
}

func TestPermissionFilterNilIncludeFallsThroughToExclude(t *testing.T) {
	wrapped := &fakeTool{name: "Bash", result: &models.ToolResult{Content: "ok"}}
	filter := NewPermissionFilter(wrapped, nil, []string{"rm"}, "coder")

	res, err := filter.Execute(context.Background(), json.RawMessage(`{"command":"ls -la"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError || res.Content != "ok" {
		t.Fatalf("expected the call to pass through, got %+v", res)
	}
	if wrapped.calls != 1 {
		t.Fatalf("expected exactly one delegated call, got %d", wrapped.calls)
	}
}

func TestPermissionFilterExcludeBlocksMatchingBaseCommand(t *testing.T) {
	wrapped := &fakeTool{name: "Bash", result: &models.ToolResult{Content: "ok"}}
	filter := NewPermissionFilter(wrapped, nil, []string{"rm"}, "coder")

	res, err := filter.Execute(context.Background(), json.RawMessage(`{"command":"rm -rf /tmp/x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected an excluded base command to be refused, got %+v", res)
	}
	if wrapped.calls != 0 {
		t.Fatal("expected the wrapped tool to never be called for an excluded command")
	}
}

func TestPermissionFilterPreservesWrappedToolName(t *testing.T) {
	wrapped := &fakeTool{name: "Bash"}
	filter := NewPermissionFilter(wrapped, nil, nil, "coder")
	if filter.Name() != "Bash" {
		t.Fatalf("expected the filter to report the wrapped tool's name, got %q", filter.Name())
	}
}
