package policy

import (
	"context"
	"sync"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// ApprovalDecision is the outcome of evaluating a tool call against an
// ApprovalPolicy.
type ApprovalDecision string

const (
	ApprovalAllowed ApprovalDecision = "allowed"
	ApprovalDenied  ApprovalDecision = "denied"
	ApprovalPending ApprovalDecision = "pending"
)

// ApprovalRequest is a pending authorization gate for a tool call matched
// by an ApprovalPolicy's RequireApproval patterns.
type ApprovalRequest struct {
	ID         string
	ToolCallID string
	BaseCmd    string
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Decision   ApprovalDecision
	DecidedAt  time.Time
	DecidedBy  string
}

// ApprovalPolicy configures which base commands are auto-allowed,
// auto-denied, or must wait for an external decision before a NATIVE
// command or extension tool call reaches the shell.
type ApprovalPolicy struct {
	// Allowlist and Denylist take priority over RequireApproval; Denylist
	// is checked first.
	Allowlist       []string
	Denylist        []string
	RequireApproval []string

	// DefaultDecision applies when no pattern matches. Defaults to
	// ApprovalAllowed: most base commands are not sensitive enough to
	// warrant a gate, and the write-guard/sandbox already cover the
	// dangerous cases structurally.
	DefaultDecision ApprovalDecision

	// RequestTTL bounds how long a pending request stays valid.
	RequestTTL time.Duration
}

// DefaultApprovalPolicy allows everything by default; callers opt specific
// base commands into RequireApproval.
func DefaultApprovalPolicy() *ApprovalPolicy {
	return &ApprovalPolicy{
		DefaultDecision: ApprovalAllowed,
		RequestTTL:      5 * time.Minute,
	}
}

// ApprovalStore persists pending approval requests.
type ApprovalStore interface {
	Create(ctx context.Context, req *ApprovalRequest) error
	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	Update(ctx context.Context, req *ApprovalRequest) error
	ListPending(ctx context.Context) ([]*ApprovalRequest, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ApprovalChecker evaluates commands against an ApprovalPolicy (spec's
// approval gate, consulted by the router before NATIVE/extension
// dispatch).
type ApprovalChecker struct {
	mu          sync.RWMutex
	policy      *ApprovalPolicy
	store       ApprovalStore
	uiAvailable func() bool
}

// NewApprovalChecker constructs a checker with the given policy (or
// DefaultApprovalPolicy if nil).
func NewApprovalChecker(p *ApprovalPolicy) *ApprovalChecker {
	if p == nil {
		p = DefaultApprovalPolicy()
	}
	return &ApprovalChecker{policy: p}
}

// SetStore sets the backing store for pending requests.
func (c *ApprovalChecker) SetStore(store ApprovalStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// SetUIAvailableCheck stores a UI-availability callback on the checker.
// Check and CreateRequest do not consult it: a pending decision is reported
// as pending whatever the callback would return.
func (c *ApprovalChecker) SetUIAvailableCheck(fn func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uiAvailable = fn
}

// Check evaluates baseCmd (as computed by router.BaseCommand) against the
// policy and returns a decision and a short reason.
func (c *ApprovalChecker) Check(baseCmd string) (ApprovalDecision, string) {
	c.mu.RLock()
	p := c.policy
	c.mu.RUnlock()

	if matchesAny(p.Denylist, baseCmd) {
		return ApprovalDenied, "base command in denylist"
	}
	if matchesAny(p.Allowlist, baseCmd) {
		return ApprovalAllowed, "base command in allowlist"
	}
	if matchesAny(p.RequireApproval, baseCmd) {
		return ApprovalPending, "base command requires approval"
	}

	if p.DefaultDecision == "" {
		return ApprovalAllowed, "default policy"
	}
	return p.DefaultDecision, "default policy"
}

// CreateRequest persists a pending approval request for baseCmd.
func (c *ApprovalChecker) CreateRequest(ctx context.Context, toolCallID, baseCmd, reason string) (*ApprovalRequest, error) {
	c.mu.RLock()
	ttl := c.policy.RequestTTL
	store := c.store
	c.mu.RUnlock()

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	req := &ApprovalRequest{
		ID:         toolCallID + "-approval",
		ToolCallID: toolCallID,
		BaseCmd:    baseCmd,
		Reason:     reason,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(ttl),
		Decision:   ApprovalPending,
	}

	if store != nil {
		if err := store.Create(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Decide resolves a pending request as allowed or denied.
func (c *ApprovalChecker) Decide(ctx context.Context, requestID string, allow bool, decidedBy string) error {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return nil
	}

	req, err := store.Get(ctx, requestID)
	if err != nil || req == nil {
		return err
	}
	if allow {
		req.Decision = ApprovalAllowed
	} else {
		req.Decision = ApprovalDenied
	}
	req.DecidedAt = time.Now()
	req.DecidedBy = decidedBy
	return store.Update(ctx, req)
}

// matchesAny reuses the resolver's exact/prefix pattern convention (a
// pattern ending in ":" is a prefix match) so the approval gate reads
// patterns identically to the Permission Filter and Handler Registry.
func matchesAny(patterns []string, baseCmd string) bool {
	for _, p := range patterns {
		if p != "" && matchPattern(p, baseCmd) {
			return true
		}
	}
	return false
}

// DescribeToolCall renders a short reason string for an approval request
// from a tool call, used when the caller has the richer models.ToolCall
// available rather than just a base command string.
func DescribeToolCall(tc models.ToolCall) string {
	return "tool call " + tc.Name + " (" + tc.ID + ") requires approval"
}

// MemoryApprovalStore is a thread-safe in-memory ApprovalStore.
type MemoryApprovalStore struct {
	mu       sync.RWMutex
	requests map[string]*ApprovalRequest
	metrics  *observability.Metrics
}

func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{requests: make(map[string]*ApprovalRequest)}
}

// SetMetrics wires a gauge the store keeps in sync with its current count
// of pending requests on every Create/Update. A nil sink (the default)
// skips recording entirely.
func (s *MemoryApprovalStore) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// reportPendingLocked must be called with s.mu held.
func (s *MemoryApprovalStore) reportPendingLocked() {
	if s.metrics == nil {
		return
	}
	var pending int
	for _, req := range s.requests {
		if req.Decision == ApprovalPending {
			pending++
		}
	}
	s.metrics.SetApprovalPending(pending)
}

func (s *MemoryApprovalStore) Create(ctx context.Context, req *ApprovalRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	s.reportPendingLocked()
	return nil
}

func (s *MemoryApprovalStore) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[id], nil
}

func (s *MemoryApprovalStore) Update(ctx context.Context, req *ApprovalRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	s.reportPendingLocked()
	return nil
}

func (s *MemoryApprovalStore) ListPending(ctx context.Context) ([]*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []*ApprovalRequest
	for _, req := range s.requests {
		if req.Decision != ApprovalPending {
			continue
		}
		if !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *MemoryApprovalStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var pruned int64
	for id, req := range s.requests {
		if req.CreatedAt.Before(cutoff) {
			delete(s.requests, id)
			pruned++
		}
	}
	s.reportPendingLocked()
	return pruned, nil
}
