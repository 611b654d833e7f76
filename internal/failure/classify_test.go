package failure

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		stderr string
		want   Category
	}{
		{"command not found", "bash: foo: command not found", CommandNotFound},
		{"unknown tool", "Unknown tool: frobnicate", CommandNotFound},
		{"usage line", "usage: grep [OPTION]... PATTERN [FILE]...", InvalidUsage},
		{"bad number argument", "flag requires a number argument: -n", InvalidUsage},
		{"unrelated failure", "connection refused", ExecutionError},
		{"empty", "", ExecutionError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.stderr); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.stderr, got, tc.want)
			}
		})
	}
}

func TestShouldAttachSelfDescription(t *testing.T) {
	if !ShouldAttachSelfDescription(CommandNotFound) {
		t.Error("expected CommandNotFound to attach self-description")
	}
	if !ShouldAttachSelfDescription(InvalidUsage) {
		t.Error("expected InvalidUsage to attach self-description")
	}
	if ShouldAttachSelfDescription(ExecutionError) {
		t.Error("expected ExecutionError not to attach self-description")
	}
}

func TestShouldCountFailure(t *testing.T) {
	if !ShouldCountFailure(CommandNotFound) || !ShouldCountFailure(InvalidUsage) {
		t.Error("expected CommandNotFound/InvalidUsage to count toward the breaker")
	}
	if ShouldCountFailure(ExecutionError) {
		t.Error("expected ExecutionError not to count toward the breaker")
	}
}

func TestHintReferencesBaseCommand(t *testing.T) {
	h := Hint("grep")
	if h == "" {
		t.Fatal("expected a non-empty hint")
	}
	if want := `Bash(command="grep --help")`; !contains(h, want) {
		t.Errorf("hint %q does not reference %q", h, want)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
