package graph

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tmcgrath/graphrun/graph/emit"
)

// ParallelMergeMode selects the tiebreak rule LastWriterWins uses when two
// parallel branches write overlapping state. MergeDeclarationOrder is the
// engine's default (DESIGN.md's resolution of the spec's open question on
// merge tiebreaks): it is immune to goroutine-scheduling jitter, matching the
// engine's overall replay determinism guarantee. MergeCompletionOrder is
// available for callers that explicitly want "whichever branch finished last
// wins". MergeCustom delegates to a registered Merger instead.
type ParallelMergeMode int

const (
	// MergeDeclarationOrder resolves conflicts by the order targets were
	// listed on the Parallel edge (or Route.Many); later declarations win.
	MergeDeclarationOrder ParallelMergeMode = iota

	// MergeCompletionOrder resolves conflicts by wall-clock completion order;
	// the last branch to finish wins.
	MergeCompletionOrder

	// MergeCustom delegates merging entirely to a registered Merger, looked up
	// via the triggering EdgeSpec's MergerID.
	MergeCustom
)

// ParallelMergePolicy configures how runParallelRegion combines branch
// results.
type ParallelMergePolicy struct {
	Mode     ParallelMergeMode
	MergerID string
}

// ParallelFailureMode selects how runParallelRegion reacts to a branch error.
type ParallelFailureMode int

const (
	// FailFast cancels the remaining branches and returns the first error.
	FailFast ParallelFailureMode = iota

	// CollectAll waits for every branch to finish and returns a MergeError
	// aggregating every branch's outcome.
	CollectAll
)

type parallelBranchResult[S any] struct {
	index     int
	nodeID    NodeID
	delta     S
	err       error
	completed time.Time
}

// runParallelRegion executes targets concurrently, each against an isolated
// deep copy of state, and merges their results per e.opts.ParallelMergePolicy
// and e.opts.ParallelFailureMode. It generalizes the teacher's executeParallel
// (deep-copy-per-branch + WaitGroup, lexicographic merge) to named join
// nodes, a configurable merge tiebreak, custom mergers, and FailFast/CollectAll
// error aggregation. joinNode is accepted for branch isolation bookkeeping
// only; the caller is responsible for continuing execution there once this
// returns.
func (e *Engine[S]) runParallelRegion(ctx context.Context, runID string, targets []NodeID, joinNode NodeID, state S) (S, error) {
	var zero S
	if len(targets) == 0 {
		return state, nil
	}

	results := make([]parallelBranchResult[S], len(targets))

	for _, nodeID := range targets {
		e.emitParallelEvent(runID, "parallel_branch_started", nodeID, nil)
	}

	runOne := func(bctx context.Context, i int) error {
		nodeID := targets[i]

		branchState, err := deepCopyState(state)
		if err != nil {
			results[i] = parallelBranchResult[S]{index: i, nodeID: nodeID, err: err}
			return err
		}

		e.mu.RLock()
		node, exists := e.nodes[string(nodeID)]
		e.mu.RUnlock()
		if !exists {
			nerr := &RoutingError{Message: "parallel branch node not found", NodeID: string(nodeID)}
			results[i] = parallelBranchResult[S]{index: i, nodeID: nodeID, err: nerr}
			return nerr
		}

		nr := node.Run(bctx, branchState)
		results[i] = parallelBranchResult[S]{
			index:     i,
			nodeID:    nodeID,
			delta:     nr.Delta,
			err:       nr.Err,
			completed: time.Now(),
		}
		e.emitParallelEvent(runID, "parallel_branch_completed", nodeID, nr.Err)
		return nr.Err
	}

	switch e.opts.ParallelFailureMode {
	case CollectAll:
		done := make(chan struct{}, len(targets))
		for i := range targets {
			i := i
			go func() {
				_ = runOne(ctx, i)
				done <- struct{}{}
			}()
		}
		for range targets {
			<-done
		}

		var causes []error
		for _, r := range results {
			if r.err != nil {
				causes = append(causes, r.err)
			}
		}
		if len(causes) > 0 {
			return zero, &MergeError{Message: "one or more parallel branches failed", Causes: causes}
		}

	default: // FailFast
		g, gctx := errgroup.WithContext(ctx)
		for i := range targets {
			i := i
			g.Go(func() error { return runOne(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return zero, err
		}
	}

	return e.mergeParallelResults(state, results)
}

// mergeParallelResults combines per-branch deltas into one state value per
// e.opts.ParallelMergePolicy.
func (e *Engine[S]) mergeParallelResults(base S, results []parallelBranchResult[S]) (S, error) {
	switch e.opts.ParallelMergePolicy.Mode {
	case MergeCompletionOrder:
		ordered := append([]parallelBranchResult[S](nil), results...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].completed.Before(ordered[j].completed) })
		merged := base
		for _, r := range ordered {
			merged = e.reducer(merged, r.delta)
		}
		return merged, nil

	case MergeCustom:
		e.mu.RLock()
		merger, ok := e.mergers[e.opts.ParallelMergePolicy.MergerID]
		e.mu.RUnlock()
		if !ok {
			var zero S
			return zero, &RoutingError{Message: "no merger registered for id " + e.opts.ParallelMergePolicy.MergerID}
		}
		branchStates := make([]S, len(results))
		for i, r := range results {
			branchStates[i] = e.reducer(base, r.delta)
		}
		merged, err := merger(base, branchStates)
		if err != nil {
			var zero S
			return zero, &MergeError{Message: "custom merger failed", Causes: []error{err}}
		}
		return merged, nil

	default: // MergeDeclarationOrder
		merged := base
		for _, r := range results {
			merged = e.reducer(merged, r.delta)
		}
		return merged, nil
	}
}

// emitParallelEvent reports parallel branch lifecycle events; a no-op when
// the engine was constructed without an emitter.
func (e *Engine[S]) emitParallelEvent(runID, msg string, nodeID NodeID, err error) {
	if e.emitter == nil {
		return
	}
	meta := map[string]interface{}{}
	if err != nil {
		meta["error"] = err.Error()
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		NodeID: string(nodeID),
		Msg:    msg,
		Meta:   meta,
	})
}
