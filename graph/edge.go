package graph

// EdgeKind identifies which of the five routing variants an EdgeSpec describes.
type EdgeKind int

const (
	// EdgeSimple always routes to To, unconditionally.
	EdgeSimple EdgeKind = iota

	// EdgeConditional routes to To only when When(state) returns true.
	EdgeConditional

	// EdgeDynamic asks Router for the next node id(s) at runtime.
	EdgeDynamic

	// EdgeParallel fans out to every entry in Targets and runs them concurrently.
	EdgeParallel

	// EdgeWeighted samples one of Targets proportionally to Weights using the
	// run's seeded RNG.
	EdgeWeighted
)

// Predicate is a function that evaluates state to determine if an edge should be traversed.
//
// Predicates enable conditional routing based on workflow state.
// They should be pure functions (deterministic, no side effects).
//
// Type parameter S is the state type to evaluate.
type Predicate[S any] func(state S) bool

// Router resolves a Dynamic edge's next node id(s) at runtime. An empty result
// means "no route" and halts execution unless another edge matches.
type Router[S any] func(state S) []NodeID

// Merger combines completed parallel branch states into one. Branches are
// passed in declaration order. Used by ParallelMergePolicy.Custom.
type Merger[S any] func(base S, branches []S) (S, error)

// EdgeSpec describes one outgoing transition from a node. A node may declare
// at most one EdgeSpec per (From, Kind) pair; Connect/AddEdge enforce this.
//
// Type parameter S is the state type used for predicate/router evaluation.
type EdgeSpec[S any] struct {
	// From is the source node ID.
	From NodeID

	// To is the destination node ID. Used by EdgeSimple and EdgeConditional.
	To NodeID

	// Kind selects which variant this edge implements.
	Kind EdgeKind

	// When is an inline predicate for EdgeConditional. If nil, ConditionID is
	// looked up in the graph's condition registry instead.
	When Predicate[S]

	// ConditionID names a Condition registered via RegisterCondition, used by
	// EdgeConditional when When is nil.
	ConditionID string

	// RouterID names a Router registered via RegisterRouter, used by EdgeDynamic.
	RouterID string

	// MergerID names a Merger registered via RegisterMerger, used by EdgeParallel
	// when the engine's ParallelMergePolicy.Mode is MergeCustom.
	MergerID string

	// PossibleTargets optionally lists the node ids an EdgeDynamic edge can
	// reach, used by the validator for reachability checking. If empty, the
	// validator treats every node as potentially reachable through this edge.
	PossibleTargets []NodeID

	// Targets lists the fan-out destinations for EdgeParallel, or the
	// candidate destinations for EdgeWeighted.
	Targets []NodeID

	// JoinNode optionally names a node that all EdgeParallel branches
	// terminate into instead of running to their own finish points.
	JoinNode NodeID

	// Weights gives the sampling weight for each entry in Targets, used by
	// EdgeWeighted. Must be the same length as Targets and sum to > 0.
	Weights []float64
}

// Edge is kept for compatibility with callers that only need the teacher's
// original unconditional/predicate transition; it is equivalent to an
// EdgeSpec with Kind EdgeSimple or EdgeConditional.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}
