package policy

import (
	"context"
	"testing"
)

type fakeSandboxExecutor struct {
	result SandboxExecResult
	err    error
}

func (f *fakeSandboxExecutor) Execute(ctx context.Context, command string) (SandboxExecResult, error) {
	return f.result, f.err
}

func TestSandboxManagerDeniesUnlistedResource(t *testing.T) {
	m := NewSandboxManager(nil)
	res, err := m.Execute(context.Background(), "curl https://example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected an unlisted resource to be denied, got %+v", res)
	}
	if res.BlockedResource != "curl" {
		t.Fatalf("expected blocked resource %q, got %q", "curl", res.BlockedResource)
	}
}

func TestSandboxManagerAllowThenExecute(t *testing.T) {
	exec := &fakeSandboxExecutor{result: SandboxExecResult{Stdout: "ok", ExitCode: 0}}
	m := NewSandboxManager(exec)
	m.Allow("curl")

	res, err := m.Execute(context.Background(), "curl https://example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Stdout != "ok" {
		t.Fatalf("expected allowed execution with stdout, got %+v", res)
	}
}

func TestSandboxManagerDenyOverridesAllow(t *testing.T) {
	m := NewSandboxManager(nil)
	m.Allow("rm")
	m.Deny("rm")

	res, err := m.Execute(context.Background(), "rm -rf /tmp/x", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected deny to override a prior allow, got %+v", res)
	}
	if res.BlockedReason != "resource is denylisted" {
		t.Fatalf("got reason %q", res.BlockedReason)
	}
}

func TestSandboxManagerAllowlistIsAppendOnly(t *testing.T) {
	m := NewSandboxManager(nil)
	m.Allow("ls")

	m.mu.Lock()
	delete(m.denylist, "ls")
	m.mu.Unlock()

	res, err := m.Execute(context.Background(), "ls -la", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected ls to remain allowed, got %+v", res)
	}
}

func TestSandboxManagerWithoutExecutorStillAdmits(t *testing.T) {
	m := NewSandboxManager(nil)
	m.Allow("echo")

	res, err := m.Execute(context.Background(), "echo hi", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected admission without an executor, got %+v", res)
	}
}
