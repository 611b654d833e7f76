package policy

import (
	"context"
	"testing"
	"time"
)

func TestApprovalCheckerDecisionMatrix(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{
		Allowlist:       []string{"ls"},
		Denylist:        []string{"rm"},
		RequireApproval: []string{"deploy"},
		DefaultDecision: ApprovalAllowed,
	})

	cases := []struct {
		baseCmd string
		want    ApprovalDecision
	}{
		{"ls", ApprovalAllowed},
		{"rm", ApprovalDenied},
		{"deploy", ApprovalPending},
		{"echo", ApprovalAllowed},
	}
	for _, tc := range cases {
		decision, reason := checker.Check(tc.baseCmd)
		if decision != tc.want {
			t.Errorf("Check(%q) = %v (%s), want %v", tc.baseCmd, decision, reason, tc.want)
		}
		if reason == "" {
			t.Errorf("Check(%q) returned an empty reason", tc.baseCmd)
		}
	}
}

func TestApprovalCheckerDenylistBeatsRequireApproval(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{
		Denylist:        []string{"rm"},
		RequireApproval: []string{"rm"},
		DefaultDecision: ApprovalAllowed,
	})
	decision, _ := checker.Check("rm")
	if decision != ApprovalDenied {
		t.Fatalf("expected denylist to win, got %v", decision)
	}
}

func TestApprovalCheckerDefaultsToAllowedPolicy(t *testing.T) {
	checker := NewApprovalChecker(nil)
	decision, _ := checker.Check("anything")
	if decision != ApprovalAllowed {
		t.Fatalf("expected DefaultApprovalPolicy to allow, got %v", decision)
	}
}

func TestApprovalCheckerCreateAndDecideRoundTrip(t *testing.T) {
	store := NewMemoryApprovalStore()
	checker := NewApprovalChecker(&ApprovalPolicy{
		RequireApproval: []string{"deploy"},
		DefaultDecision: ApprovalAllowed,
		RequestTTL:      time.Minute,
	})
	checker.SetStore(store)

	ctx := context.Background()
	req, err := checker.CreateRequest(ctx, "tc-1", "deploy", "base command requires approval")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Decision != ApprovalPending {
		t.Fatalf("expected a freshly created request to be pending, got %v", req.Decision)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("expected the created request to be listed as pending, got %+v", pending)
	}

	if err := checker.Decide(ctx, req.ID, true, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decided, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decided.Decision != ApprovalAllowed || decided.DecidedBy != "alice" {
		t.Fatalf("expected the request to be recorded as allowed by alice, got %+v", decided)
	}

	pending, err = store.ListPending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests after deciding, got %+v", pending)
	}
}

func TestMemoryApprovalStorePruneRemovesOldRequests(t *testing.T) {
	store := NewMemoryApprovalStore()
	ctx := context.Background()

	old := &ApprovalRequest{ID: "old", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := &ApprovalRequest{ID: "fresh", CreatedAt: time.Now()}
	_ = store.Create(ctx, old)
	_ = store.Create(ctx, fresh)

	pruned, err := store.Prune(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected exactly one pruned request, got %d", pruned)
	}

	if got, _ := store.Get(ctx, "old"); got != nil {
		t.Fatalf("expected the old request to be pruned, got %+v", got)
	}
	if got, _ := store.Get(ctx, "fresh"); got == nil {
		t.Fatalf("expected the fresh request to survive pruning")
	}
}
