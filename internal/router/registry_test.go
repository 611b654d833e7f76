package router

import (
	"context"
	"testing"
)

func okHandler(tag string) Handler {
	return HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		return Result{Stdout: tag}, nil
	})
}

func TestRegistryExactBeatsPrefix(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("skill:", Extension, MatchPrefix, okHandler("prefix"))
	reg.RegisterHandler("skill:load", BuiltinVerb, MatchExact, okHandler("exact"))

	entry, found, err := reg.Lookup("skill:load")
	if err != nil || !found {
		t.Fatalf("expected match, err=%v found=%v", err, found)
	}
	if entry.Pattern != "skill:load" {
		t.Fatalf("expected exact match to win, got pattern %q", entry.Pattern)
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("mcp:", Extension, MatchPrefix, okHandler("short"))
	reg.RegisterHandler("mcp:github:", Extension, MatchPrefix, okHandler("long"))

	entry, found, err := reg.Lookup("mcp:github:search")
	if err != nil || !found {
		t.Fatalf("expected match, err=%v found=%v", err, found)
	}
	if entry.Pattern != "mcp:github:" {
		t.Fatalf("expected longest prefix to win, got %q", entry.Pattern)
	}
}

func TestRegistryNoMatchFallsThrough(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("read", BuiltinVerb, MatchExact, okHandler("read"))

	_, found, err := reg.Lookup("ls -la")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected no match for native command")
	}
}

func TestRegistryLazyFactoryCachesAndReportsInitFailure(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.RegisterFactory("write", BuiltinVerb, MatchExact, false, func() (Handler, ShutdownHook) {
		calls++
		return okHandler("write"), nil
	})

	if _, _, err := reg.Lookup("write"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := reg.Lookup("write"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked once, got %d", calls)
	}

	reg2 := NewRegistry()
	reg2.RegisterFactory("broken", BuiltinVerb, MatchExact, false, func() (Handler, ShutdownHook) {
		return nil, nil
	})
	_, found, err := reg2.Lookup("broken")
	if !found {
		t.Fatalf("expected the pattern to match")
	}
	if err == nil {
		t.Fatalf("expected handler-init error")
	}
}

func TestRegistryInvalidateForExecutorChange(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.RegisterFactory("task:", Extension, MatchPrefix, true, func() (Handler, ShutdownHook) {
		calls++
		return okHandler("task"), nil
	})

	if _, _, err := reg.Lookup("task:run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg.InvalidateForExecutorChange()
	if _, _, err := reg.Lookup("task:run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected factory reconstructed after invalidation, got %d calls", calls)
	}
}
