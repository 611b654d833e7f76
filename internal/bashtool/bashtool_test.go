package bashtool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/process"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
)

func newTestShell(t *testing.T) *shellsession.Session {
	t.Helper()
	s, err := shellsession.New(shellsession.Config{ShellCommand: "/bin/bash"})
	if err != nil {
		t.Fatalf("failed to spawn test shell: %v", err)
	}
	t.Cleanup(s.Kill)
	return s
}

func TestComposeOutputCanonicalEmptyString(t *testing.T) {
	if got := composeOutput("", ""); got != "(Command executed successfully with no output)" {
		t.Fatalf("got %q", got)
	}
}

func TestComposeOutputStdoutOnly(t *testing.T) {
	if got := composeOutput("hello", ""); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestComposeOutputStdoutAndStderr(t *testing.T) {
	got := composeOutput("hello", "warn")
	want := "hello\n\n[stderr]\nwarn"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestComposeOutputStderrOnly(t *testing.T) {
	got := composeOutput("", "boom")
	want := "[stderr]\nboom"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCallRejectsEmptyCommand(t *testing.T) {
	shell := newTestShell(t)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), "   ", false)
	if !ret.IsError {
		t.Fatalf("expected an empty command to be an error, got %+v", ret)
	}
}

func TestCallRejectsToolNameAsCommand(t *testing.T) {
	shell := newTestShell(t)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), `Bash(command="ls -la")`, false)
	if !ret.IsError {
		t.Fatalf("expected tool-name-as-command misuse to be rejected, got %+v", ret)
	}
}

func TestCallRejectsLoneBash(t *testing.T) {
	shell := newTestShell(t)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), "Bash", false)
	if !ret.IsError {
		t.Fatalf("expected the lone token Bash to be rejected as misuse, got %+v", ret)
	}
	if ret.Extras["failureCategory"] != "InvalidUsage" {
		t.Fatalf("expected an InvalidUsage failure category, got %+v", ret.Extras)
	}
}

func TestCallRestartsSessionAfterTimeout(t *testing.T) {
	shell, err := shellsession.New(shellsession.Config{
		ShellCommand:   "/bin/bash",
		CommandTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to spawn test shell: %v", err)
	}
	t.Cleanup(shell.Kill)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), "sleep 1", false)
	if !ret.IsError {
		t.Fatalf("expected a timed-out command to surface as an error, got %+v", ret)
	}
	if !strings.Contains(ret.Output, "Bash session restarted after timeout.") {
		t.Fatalf("expected the restart annotation in output, got %q", ret.Output)
	}

	ret = tool.Call(context.Background(), "echo still-alive", false)
	if ret.IsError || ret.Output != "still-alive\n" {
		t.Fatalf("expected the restarted session to run a fresh command, got %+v", ret)
	}
}

func TestCallRunsPlainCommand(t *testing.T) {
	shell := newTestShell(t)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), "echo hi", false)
	if ret.IsError {
		t.Fatalf("unexpected error: %+v", ret)
	}
	if ret.Output != "hi\n" {
		t.Fatalf("got output %q", ret.Output)
	}
}

func TestCallAttachesHintOnFailure(t *testing.T) {
	shell := newTestShell(t)
	tool := New(Deps{Shell: shell})

	ret := tool.Call(context.Background(), "this-command-should-not-exist-xyz", false)
	if !ret.IsError {
		t.Fatalf("expected a nonexistent command to fail, got %+v", ret)
	}
	if ret.Extras["failureCategory"] != "CommandNotFound" {
		t.Fatalf("expected a CommandNotFound failure category, got %+v", ret.Extras)
	}
	if !strings.Contains(ret.Output, `Bash(command="this-command-should-not-exist-xyz --help")`) {
		t.Fatalf("expected the self-correction hint in the output, got %q", ret.Output)
	}
}

func TestCallReportsSandboxBlockedWithoutError(t *testing.T) {
	shell := newTestShell(t)
	sandbox := policy.NewSandboxManager(nil)
	tool := New(Deps{Shell: shell, Sandbox: sandbox})

	ret := tool.Call(context.Background(), "curl https://example.com", false)
	if ret.IsError {
		t.Fatalf("expected a sandbox block to not be surfaced as a tool error, got %+v", ret)
	}
	if ret.Extras["type"] != "sandbox_blocked" {
		t.Fatalf("expected a sandbox_blocked extra, got %+v", ret.Extras)
	}
}

func TestCreateIsolatedCopyPassesThroughApprovalQueueLane(t *testing.T) {
	parentShell := newTestShell(t)
	approval := policy.NewApprovalChecker(nil)
	queue := process.NewCommandQueue()

	parent := New(Deps{
		Shell:    parentShell,
		Approval: approval,
		Queue:    queue,
		Lane:     process.LaneMain,
	})

	childShell := newTestShell(t)
	child := parent.CreateIsolatedCopy(IsolatedCopyOverrides{Shell: childShell})

	if child.approval != approval {
		t.Fatal("expected the isolated copy to share the parent's approval checker")
	}
	if child.queue != queue {
		t.Fatal("expected the isolated copy to share the parent's command queue")
	}
	if child.sandbox == parent.sandbox {
		t.Fatal("expected the isolated copy to get its own fresh sandbox manager")
	}
}
