// Package emit provides event emission and observability for graph execution.
package emit

import "context"

// Emitter receives and processes observability events from workflow execution.
//
// Implementations should be non-blocking, thread-safe (nodes may call concurrently),
// and resilient to backend failures — a dead logging pipe should never fail a run.
type Emitter interface {
	// Emit sends an observability event to the configured backend. Should not block
	// workflow execution or panic; buffer, drop, or log failures internally instead.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving their order.
	// Returns an error only on catastrophic failure (e.g. misconfiguration); individual
	// event failures should be logged, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are sent or ctx is done. Safe to call
	// multiple times. Call before shutdown and at run completion to avoid losing events.
	Flush(ctx context.Context) error
}
