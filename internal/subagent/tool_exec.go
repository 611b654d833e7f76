package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/failure"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// ExecConfig configures concurrent tool execution: how many tool calls a
// sub-agent iteration runs in parallel, the per-call deadline, and retry
// behavior for calls the Failure Classifier would mark as ExecutionError
// (spec's ADDED "concurrent tool-call execution" component).
type ExecConfig struct {
	Concurrency    int
	PerToolTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// DefaultExecConfig returns 4-way concurrency with a 30s per-call timeout
// and no retries.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
		MaxAttempts:    1,
	}
}

func (c ExecConfig) withDefaults() ExecConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// ToolExecutor runs tool calls against a ToolRegistry with a concurrency cap,
// per-call timeouts, and optional retries.
type ToolExecutor struct {
	registry *ToolRegistry
	config   ExecConfig
}

// NewToolExecutor constructs a ToolExecutor.
func NewToolExecutor(registry *ToolRegistry, config ExecConfig) *ToolExecutor {
	return &ToolExecutor{registry: registry, config: config.withDefaults()}
}

// ExecResult is one tool call's outcome plus timing, for progress-event
// emission and for the outer loop's circuit-breaker accounting.
type ExecResult struct {
	Index     int
	ToolCall  models.ToolCall
	Result    models.ToolResult
	StartTime time.Time
	EndTime   time.Time
	TimedOut  bool
}

// ProgressFunc is a non-blocking callback for sub-agent tool lifecycle
// events; nil is a valid no-op sink.
type ProgressFunc func(models.ProgressEvent)

// ExecuteConcurrently runs every call with the configured concurrency
// cap, in the order given in the output slice (order preserved, work
// interleaved). A canceled ctx fails every not-yet-started call in place.
func (e *ToolExecutor) ExecuteConcurrently(ctx context.Context, calls []models.ToolCall, onProgress ProgressFunc) []ExecResult {
	results := make([]ExecResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ExecResult{
					Index:    idx,
					ToolCall: tc,
					Result: models.ToolResult{
						ToolCallID: tc.ID,
						Content:    "context canceled",
						IsError:    true,
					},
				}
				return
			}

			results[idx] = e.runWithRetry(ctx, tc, onProgress)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (e *ToolExecutor) runWithRetry(ctx context.Context, tc models.ToolCall, onProgress ProgressFunc) ExecResult {
	start := time.Now()
	var result models.ToolResult
	var timedOut bool

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		emit(onProgress, models.ProgressEvent{Kind: models.ProgressToolStart, ID: tc.ID, Command: tc.Name})

		toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		toolCtx = observability.AddToolCallID(toolCtx, tc.ID)
		result, timedOut = e.executeOnce(toolCtx, tc)
		cancel()

		emit(onProgress, models.ProgressEvent{
			Kind:    models.ProgressToolEnd,
			ID:      tc.ID,
			Command: tc.Name,
			Success: !result.IsError,
			Output:  result.Content,
		})

		if !result.IsError {
			break
		}
		// CommandNotFound and InvalidUsage cannot be fixed by retrying the
		// same call; only a genuine ExecutionError is worth another attempt.
		if failure.Classify(result.Content) != failure.ExecutionError {
			break
		}
		if attempt == e.config.MaxAttempts || e.config.RetryBackoff <= 0 {
			continue
		}
		select {
		case <-time.After(e.config.RetryBackoff):
		case <-ctx.Done():
			result = models.ToolResult{ToolCallID: tc.ID, Content: "tool execution canceled", IsError: true}
			return ExecResult{ToolCall: tc, Result: result, StartTime: start, EndTime: time.Now(), TimedOut: timedOut}
		}
	}

	return ExecResult{ToolCall: tc, Result: result, StartTime: start, EndTime: time.Now(), TimedOut: timedOut}
}

func (e *ToolExecutor) executeOnce(ctx context.Context, tc models.ToolCall) (models.ToolResult, bool) {
	type outcome struct {
		result *models.ToolResult
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		res, err := e.registry.Execute(ctx, tc.Name, tc.Input)
		select {
		case ch <- outcome{res, err}:
		default:
			// ctx was already done when the tool call landed; the result is
			// discarded, nothing left waiting on it.
		}
	}()

	select {
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		content := "tool execution canceled"
		if timedOut {
			content = fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout)
		}
		return models.ToolResult{ToolCallID: tc.ID, Content: content, IsError: true}, timedOut
	case out := <-ch:
		if out.err != nil {
			return models.ToolResult{ToolCallID: tc.ID, Content: out.err.Error(), IsError: true}, false
		}
		return models.ToolResult{ToolCallID: tc.ID, Content: out.result.Content, IsError: out.result.IsError}, false
	}
}

// ExecuteSingle runs one call by name outside the concurrent batch path,
// used for the async/background tool dispatch that hands a call off to a
// job registry rather than awaiting it inline.
func (e *ToolExecutor) ExecuteSingle(ctx context.Context, name string, input json.RawMessage) (*models.ToolResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		result, err := e.registry.Execute(toolCtx, name, input)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == e.config.MaxAttempts || e.config.RetryBackoff <= 0 {
			continue
		}
		select {
		case <-time.After(e.config.RetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func emit(fn ProgressFunc, e models.ProgressEvent) {
	if fn != nil {
		fn(e)
	}
}
