package policy

import (
	"context"
	"strings"
	"sync"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
)

// SandboxResult mirrors router.SandboxResult's shape without importing
// the router package (policy sits below router in the dependency graph).
type SandboxResult struct {
	Allowed         bool
	Stdout          string
	Stderr          string
	ExitCode        int
	BlockedReason   string
	BlockedResource string
}

// SandboxExecutor is the narrow surface a SandboxManager needs to actually
// run an admitted command. shellsession.Session does not implement it (its
// Execute returns shellsession.Result), and this module has no adapter for
// it.
type SandboxExecutor interface {
	Execute(ctx context.Context, command string) (SandboxExecResult, error)
}

// SandboxExecResult is what the underlying shell returns for an admitted
// command.
type SandboxExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// SandboxManager is an in-memory Sandbox Policy (spec §4.3 step 5): an
// append-only permanent allowlist of resources plus a denylist, consulted
// for a NATIVE command that has already passed the write-guard. While a
// sandbox is configured the router does not hand the command to its own
// shell: an admitted command runs only through this manager's executor. A
// resource here is whatever the caller chooses to
// gate on — a base command, a path prefix, a host — the manager itself is
// pattern-agnostic.
type SandboxManager struct {
	mu        sync.RWMutex
	allowlist map[string]struct{}
	denylist  map[string]struct{}
	executor  SandboxExecutor
	metrics   *observability.Metrics
}

// SetMetrics wires a metrics sink every admission decision is recorded
// against. A nil sink (the default) skips recording entirely.
func (m *SandboxManager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// NewSandboxManager constructs a manager backed by executor. executor may be
// nil, as every caller in this module passes it; Execute then admits or
// denies but runs nothing.
func NewSandboxManager(executor SandboxExecutor) *SandboxManager {
	return &SandboxManager{
		allowlist: make(map[string]struct{}),
		denylist:  make(map[string]struct{}),
		executor:  executor,
	}
}

// Allow permanently admits a resource. There is no corresponding Disallow:
// the allowlist is append-only by design, mirroring the spec's framing of
// sandbox admission as a one-way relaxation a session earns over time, not
// a toggle a single command can flip back off.
func (m *SandboxManager) Allow(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowlist[resource] = struct{}{}
}

// Deny blocks a resource outright, overriding any future Allow call for it.
func (m *SandboxManager) Deny(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denylist[resource] = struct{}{}
}

// Execute admits or denies command, and runs it via the executor when
// admitted; with a nil executor an admitted command is not run and the
// result carries no output. cwd is accepted for interface symmetry with the router
// contract but this manager does not itself scope resources by directory.
func (m *SandboxManager) Execute(ctx context.Context, command, cwd string) (SandboxResult, error) {
	resource := resourceOf(command)

	m.mu.RLock()
	_, denied := m.denylist[resource]
	_, allowed := m.allowlist[resource]
	m.mu.RUnlock()

	if denied {
		m.recordDecision(resource, "denied")
		return SandboxResult{Allowed: false, BlockedReason: "resource is denylisted", BlockedResource: resource}, nil
	}
	if !allowed {
		m.recordDecision(resource, "denied")
		return SandboxResult{Allowed: false, BlockedReason: "resource not in sandbox allowlist", BlockedResource: resource}, nil
	}
	m.recordDecision(resource, "allowed")

	if m.executor == nil {
		return SandboxResult{Allowed: true}, nil
	}
	res, err := m.executor.Execute(ctx, command)
	if err != nil {
		return SandboxResult{}, err
	}
	return SandboxResult{
		Allowed:  true,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}, nil
}

func (m *SandboxManager) recordDecision(resource, decision string) {
	if m.metrics != nil {
		m.metrics.RecordSandboxDecision(resource, decision)
	}
}

// resourceOf extracts the base command's executable token, the unit the
// sandbox allowlist is keyed on.
func resourceOf(command string) string {
	trimmed := strings.TrimSpace(command)
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
