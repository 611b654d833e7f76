// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeLaneEnqueue DiagnosticEventType = "queue.lane.enqueue"
	EventTypeLaneDequeue DiagnosticEventType = "queue.lane.dequeue"
	EventTypeRunAttempt  DiagnosticEventType = "run.attempt"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// LaneEnqueueEvent tracks a command entering a lane's queue (process.CommandQueue).
type LaneEnqueueEvent struct {
	DiagnosticEvent
	Lane      string `json:"lane"`
	QueueSize int    `json:"queue_size"`
}

// LaneDequeueEvent tracks a command leaving a lane's queue to start running.
type LaneDequeueEvent struct {
	DiagnosticEvent
	Lane      string `json:"lane"`
	QueueSize int    `json:"queue_size"`
	WaitMs    int64  `json:"wait_ms"`
}

// RunAttemptEvent tracks one generate/act loop iteration of a sub-agent run.
type RunAttemptEvent struct {
	DiagnosticEvent
	RunID   string `json:"run_id"`
	Attempt int    `json:"attempt"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission. Diagnostics are off
// by default: a dev-mode fan-out for the Command Router/lane queue/sub-agent
// loop a caller can tap into (e.g. a CLI's verbose tracer), separate from
// the Prometheus/OpenTelemetry paths.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []*DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events and returns
// an unsubscribe function.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	registered := &listener
	globalEmitter.listeners = append(globalEmitter.listeners, registered)

	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			if l == registered {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]*DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				recover() // a panicking listener must not break the emitting call
			}()
			(*listener)(event)
		}()
	}
}

// EmitLaneEnqueue emits a lane enqueue event.
func EmitLaneEnqueue(e *LaneEnqueueEvent) {
	e.Type = EventTypeLaneEnqueue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitLaneDequeue emits a lane dequeue event.
func EmitLaneDequeue(e *LaneDequeueEvent) {
	e.Type = EventTypeLaneDequeue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitRunAttempt emits a run attempt event.
func EmitRunAttempt(e *RunAttemptEvent) {
	e.Type = EventTypeRunAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
