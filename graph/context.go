package graph

import "time"

// ExecutionContext tracks a single run's progress through the graph and hands
// out read-only copies as ExecutionContextView. The Engine does not create or
// update one during Run; it is maintained only through its own methods.
// The teacher kept none of this explicitly (just a local step counter and the
// Frontier), so this is new, grounded on the step/stepCounter bookkeeping
// already scattered through engine.go's Run and runConcurrent.
type ExecutionContext struct {
	RunID   RunID
	ThreadID ThreadID

	// CurrentStep is the count of successfully completed node invocations so
	// far, 0 before the first node runs (DESIGN.md's resolution of the
	// teacher's mixed 0/1-based step numbering across Run and runConcurrent).
	CurrentStep int

	// ExecutionPath is the ordered sequence of node ids visited, bounded by
	// Options.MaxSteps when set.
	ExecutionPath []NodeID

	StartedAt time.Time

	// LastCheckpointStep is the CurrentStep value as of the most recent
	// successful checkpoint save, or -1 if none has been saved yet.
	LastCheckpointStep int

	// Metadata carries caller- and node-supplied out-of-band annotations
	// (e.g. trace ids). Not interpreted by the engine itself.
	Metadata map[string]any
}

// newExecutionContext starts a fresh ExecutionContext for a run.
func newExecutionContext(runID RunID, threadID ThreadID) *ExecutionContext {
	return &ExecutionContext{
		RunID:               runID,
		ThreadID:            threadID,
		CurrentStep:         0,
		ExecutionPath:       make([]NodeID, 0, 8),
		StartedAt:           time.Now(),
		LastCheckpointStep:  -1,
		Metadata:            make(map[string]any),
	}
}

// recordStep appends a completed node invocation to the path and advances
// CurrentStep.
func (ec *ExecutionContext) recordStep(nodeID NodeID) {
	ec.ExecutionPath = append(ec.ExecutionPath, nodeID)
	ec.CurrentStep = len(ec.ExecutionPath)
}

// View returns a read-only snapshot safe to hand to event subscribers and
// parallel branches; mutating the returned value never affects ec.
func (ec *ExecutionContext) View() ExecutionContextView {
	path := make([]NodeID, len(ec.ExecutionPath))
	copy(path, ec.ExecutionPath)

	meta := make(map[string]any, len(ec.Metadata))
	for k, v := range ec.Metadata {
		meta[k] = v
	}

	return ExecutionContextView{
		RunID:               ec.RunID,
		ThreadID:            ec.ThreadID,
		CurrentStep:         ec.CurrentStep,
		ExecutionPath:       path,
		StartedAt:           ec.StartedAt,
		LastCheckpointStep:  ec.LastCheckpointStep,
		Metadata:            meta,
	}
}

// ExecutionContextView is an immutable copy of ExecutionContext, returned by
// View; mutating it never affects the original.
type ExecutionContextView struct {
	RunID               RunID
	ThreadID            ThreadID
	CurrentStep         int
	ExecutionPath       []NodeID
	StartedAt           time.Time
	LastCheckpointStep  int
	Metadata            map[string]any
}
