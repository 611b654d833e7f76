package router

import (
	"context"
	"testing"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/process"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
)

type fakeShell struct {
	executeFn func(ctx context.Context, command string) (shellsession.Result, error)
	restarts  int
}

func (f *fakeShell) Execute(ctx context.Context, command string) (shellsession.Result, error) {
	return f.executeFn(ctx, command)
}

func (f *fakeShell) Restart() error {
	f.restarts++
	return nil
}

func TestNormalizeStripsSlashSkillPrefix(t *testing.T) {
	cmd := Normalize("/skill:load foo")
	if cmd.BaseToken != "skill:load" {
		t.Fatalf("got base token %q", cmd.BaseToken)
	}
	if cmd.ArgString != "foo" {
		t.Fatalf("got args %q", cmd.ArgString)
	}
}

func TestBaseCommandForMCPAndSkill(t *testing.T) {
	cases := map[string]string{
		"mcp:github:search query text": "mcp:github:search",
		"skill:load my-skill":          "skill:load",
		"ls -la /tmp":                  "ls",
	}
	for in, want := range cases {
		if got := BaseCommand(in); got != want {
			t.Errorf("BaseCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouteDispatchesToRegisteredHandler(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("read", BuiltinVerb, MatchExact, HandlerFunc(
		func(ctx context.Context, cmd Command) (Result, error) {
			return Result{Stdout: "handled:" + cmd.ArgString}, nil
		},
	))

	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		t.Fatalf("shell should not be invoked for a registered handler")
		return shellsession.Result{}, nil
	}}

	rt := New(reg, shell, nil, nil)
	future := rt.Route(context.Background(), "read file.txt", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "handled:file.txt" {
		t.Fatalf("got %q", res.Stdout)
	}
	if res.Layer != BuiltinVerb {
		t.Fatalf("expected BuiltinVerb layer, got %v", res.Layer)
	}
}

func TestRouteFallsThroughToNativeShell(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		return shellsession.Result{Stdout: "out", ExitCode: 0}, nil
	}}

	rt := New(reg, shell, nil, nil)
	future := rt.Route(context.Background(), "ls -la", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "out" || res.Layer != Native {
		t.Fatalf("got %+v", res)
	}
}

func TestRouteBlocksNativeWriteGuard(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		t.Fatalf("shell should not run a write-guard-blocked command")
		return shellsession.Result{}, nil
	}}

	rt := New(reg, shell, nil, nil)
	future := rt.Route(context.Background(), `echo hi > out.txt`, false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("expected blocked native command to report exit 1, got %+v", res)
	}
}

type fakeSandbox struct {
	allow bool
}

func (f *fakeSandbox) Execute(ctx context.Context, command, cwd string) (SandboxResult, error) {
	if !f.allow {
		return SandboxResult{Allowed: false, BlockedReason: "denied by policy", BlockedResource: command}, nil
	}
	return SandboxResult{Allowed: true, Stdout: "sandboxed-ok"}, nil
}

func TestRouteSandboxDenial(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		t.Fatalf("shell should not run a sandbox-denied command")
		return shellsession.Result{}, nil
	}}

	rt := New(reg, shell, &fakeSandbox{allow: false}, nil)
	future := rt.Route(context.Background(), "rm -rf /etc", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Blocked {
		t.Fatalf("expected blocked result, got %+v", res)
	}
}

func TestRouteRestartsBeforeDispatch(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		return shellsession.Result{Stdout: "fresh"}, nil
	}}

	rt := New(reg, shell, nil, nil)
	future := rt.Route(context.Background(), "pwd", true)
	if _, err := future.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shell.restarts != 1 {
		t.Fatalf("expected one restart, got %d", shell.restarts)
	}
}

func TestRouteApprovalPendingBlocksDistinctFromSandbox(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		t.Fatalf("shell should not run a command still awaiting approval")
		return shellsession.Result{}, nil
	}}

	rt := New(reg, shell, nil, nil)
	rt.SetApprovalChecker(policy.NewApprovalChecker(&policy.ApprovalPolicy{
		RequireApproval: []string{"deploy"},
		DefaultDecision: policy.ApprovalAllowed,
	}))

	future := rt.Route(context.Background(), "deploy prod", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Blocked || res.BlockedReason != "awaiting approval" {
		t.Fatalf("expected a pending-approval block, got %+v", res)
	}
}

func TestRouteApprovalDeniedBlocks(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		t.Fatalf("shell should not run a denylisted command")
		return shellsession.Result{}, nil
	}}

	rt := New(reg, shell, nil, nil)
	rt.SetApprovalChecker(policy.NewApprovalChecker(&policy.ApprovalPolicy{
		Denylist:        []string{"rm"},
		DefaultDecision: policy.ApprovalAllowed,
	}))

	future := rt.Route(context.Background(), "rm -rf /tmp/x", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Blocked || res.BlockedReason == "awaiting approval" {
		t.Fatalf("expected a denylist block distinct from pending-approval, got %+v", res)
	}
}

func TestRouteApprovalGateSkipsBuiltinVerbs(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler("read", BuiltinVerb, MatchExact, HandlerFunc(
		func(ctx context.Context, cmd Command) (Result, error) {
			return Result{Stdout: "handled"}, nil
		},
	))
	shell := &fakeShell{}

	rt := New(reg, shell, nil, nil)
	rt.SetApprovalChecker(policy.NewApprovalChecker(&policy.ApprovalPolicy{
		RequireApproval: []string{"read"},
		DefaultDecision: policy.ApprovalAllowed,
	}))

	future := rt.Route(context.Background(), "read file.txt", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Blocked {
		t.Fatalf("built-in verbs must bypass the approval gate, got %+v", res)
	}
}

func TestRouteSerializesNativeCommandsThroughLaneQueue(t *testing.T) {
	reg := NewRegistry()
	shell := &fakeShell{executeFn: func(ctx context.Context, command string) (shellsession.Result, error) {
		return shellsession.Result{Stdout: "queued-ok"}, nil
	}}

	rt := New(reg, shell, nil, nil)
	queue := process.NewCommandQueue()
	rt.SetCommandQueue(queue, process.LaneSubagent)

	future := rt.Route(context.Background(), "echo hi", false)
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "queued-ok" {
		t.Fatalf("got %+v", res)
	}
	if queue.GetQueueSize(process.LaneSubagent) != 0 {
		t.Fatalf("expected the lane to have drained, got size %d", queue.GetQueueSize(process.LaneSubagent))
	}
}
