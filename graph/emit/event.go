package emit

// Event represents an observability event emitted during workflow execution.
//
// Events provide detailed insight into workflow behavior:
//   - Node execution start/complete
//   - State changes and transitions
//   - Errors and warnings
//   - Performance metrics
//   - Checkpoint operations
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Store in time-series databases
//   - Trigger alerts
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the step number of the event. Node events (node_start, node_end,
	// routing_decision, error) carry the 0-based index of the node invocation;
	// snapshot and checkpoint events carry the number of steps completed so far.
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for workflow-level events.
	NodeID string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event. Common keys:
	// "duration_ms", "error", "snapshot_id" (C9 checkpoint), "retryable".
	Meta map[string]interface{}
}
