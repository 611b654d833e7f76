package subagent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskSpec is one `task:*` invocation to run as its own sub-agent (spec
// §4.6 "Parallel tasks": the parent agent may issue several task:* calls
// in one turn, each getting its own id, isolated tools, and progress
// stream).
type TaskSpec struct {
	TypeName   string
	Config     TypeConfig
	Input      string
	SpawnShell shellFactory
}

// TaskDispatcher runs multiple TaskSpecs concurrently against one
// Executor, the fan-out half of the Sub-Agent Executor and Task
// Dispatcher component (spec §4.6). Unlike ExecuteConcurrently's
// best-effort per-call error shaping (a failed tool call becomes an error
// *result*, never aborts its siblings), the dispatcher propagates the
// first hard Executor error and cancels the rest, since an Execute error
// here means the sub-agent infrastructure itself broke (e.g. it could not
// spawn its isolated shell), not an ordinary tool failure.
type TaskDispatcher struct {
	executor *Executor
}

// NewTaskDispatcher constructs a dispatcher over executor.
func NewTaskDispatcher(executor *Executor) *TaskDispatcher {
	return &TaskDispatcher{executor: executor}
}

// DispatchAll runs every spec concurrently, returning one Outcome per
// spec in the same order. progress is shared across every concurrent
// sub-agent; events are already tagged with each sub-agent's own id, so
// a single consumer can multiplex them (spec §4.6: "the executor
// guarantees only that events for a given id are emitted in causal
// order").
func (d *TaskDispatcher) DispatchAll(ctx context.Context, specs []TaskSpec, progress ProgressFunc) ([]Outcome, error) {
	outcomes := make([]Outcome, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			outcome, err := d.executor.Execute(gctx, spec.TypeName, spec.Config, spec.Input, spec.SpawnShell, progress)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
