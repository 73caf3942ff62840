package graph

import "fmt"

// Validate walks the graph's structural invariants before a first run, in the
// order the teacher's Connect/Add comments say it never does ("Node existence
// is not validated (lazy validation) to allow flexible graph construction
// order"). It returns the first structural problem found as a *ValidationError;
// cycle detection is informational only and is returned as warnings even when
// err is nil, since a loop back to an earlier Simple/Conditional node is a
// supported pattern (see Options.MaxSteps doc), not a defect.
func (e *Engine[S]) Validate() (warnings []string, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// 1. Entry point declared and exists.
	if e.startNode == "" {
		return nil, &ValidationError{Code: "NO_ENTRY_POINT", Message: "no entry point declared"}
	}
	if _, ok := e.nodes[e.startNode]; !ok {
		return nil, &ValidationError{Code: "NO_ENTRY_POINT", Message: "entry point does not exist", NodeID: e.startNode}
	}

	// 2. At least one finish node declared; all exist.
	if len(e.finishNodes) == 0 {
		return nil, &ValidationError{Code: "NO_FINISH_POINT", Message: "no finish point declared"}
	}
	for id := range e.finishNodes {
		if _, ok := e.nodes[id]; !ok {
			return nil, &ValidationError{Code: "NO_FINISH_POINT", Message: "declared finish node does not exist", NodeID: id}
		}
	}

	// 3. Every edge references existing nodes.
	adjacency := make(map[string][]string, len(e.nodes))
	for _, spec := range e.edges {
		if _, ok := e.nodes[spec.From]; !ok {
			return nil, &ValidationError{Code: "DANGLING_EDGE", Message: "edge source node does not exist", NodeID: spec.From}
		}
		targets := edgeTargets(spec)
		for _, t := range targets {
			if t == "" {
				continue
			}
			if _, ok := e.nodes[t]; !ok {
				return nil, &ValidationError{Code: "UNREGISTERED_EDGE_TARGET", Message: "edge target node does not exist", NodeID: t}
			}
		}
		adjacency[spec.From] = append(adjacency[spec.From], targets...)
	}

	// 4. Weighted edges: weights and targets line up and sum positive.
	for _, spec := range e.edges {
		if spec.Kind != EdgeWeighted {
			continue
		}
		if len(spec.Weights) != len(spec.Targets) {
			return nil, &ValidationError{Code: "INVALID_WEIGHTS", Message: "weights length must match targets length", NodeID: spec.From}
		}
		var sum float64
		for _, w := range spec.Weights {
			if w < 0 {
				return nil, &ValidationError{Code: "INVALID_WEIGHTS", Message: "weight cannot be negative", NodeID: spec.From}
			}
			sum += w
		}
		if sum <= 0 {
			return nil, &ValidationError{Code: "INVALID_WEIGHTS", Message: "weights must sum to a positive value", NodeID: spec.From}
		}
	}

	// 5. Every non-finish node has an outgoing edge (or is a finish node).
	outgoing := make(map[string]bool, len(e.edges))
	for _, spec := range e.edges {
		outgoing[spec.From] = true
	}
	for id := range e.nodes {
		if e.finishNodes[id] {
			continue
		}
		if !outgoing[id] {
			return nil, &ValidationError{Code: "NODE_WITHOUT_EXIT", Message: "non-finish node has no outgoing edge", NodeID: id}
		}
	}

	// 6. All declared finish nodes reachable from the entry node.
	reachable := e.reachableFrom(e.startNode, adjacency)
	for id := range e.finishNodes {
		if !reachable[id] {
			return nil, &ValidationError{Code: "FINISH_UNREACHABLE", Message: "finish node unreachable from entry point", NodeID: id}
		}
	}

	// 7. Unreachable nodes (neither entry, reachable, nor a documented orphan)
	// are reported, but only as a warning: a node registered for later dynamic
	// wiring (e.g. test doubles, or RegisterRouter targets resolved purely at
	// runtime) is a common, legitimate pattern.
	for id := range e.nodes {
		if id == e.startNode || reachable[id] {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("UNREACHABLE_NODE: %s is not reachable from the entry point", id))
	}

	// 8. Cycle detection, warning-only.
	if cyc := e.findCycle(adjacency); cyc != "" {
		warnings = append(warnings, "CYCLE_WARNING: "+cyc)
	}

	return warnings, nil
}

// edgeTargets returns every node id a given EdgeSpec can route to, used for
// both dangling-edge checking and reachability. Dynamic edges without a
// PossibleTargets hint contribute nothing: per spec, such edges are skipped
// from reachability rather than treated as reaching every other node.
func edgeTargets[S any](spec EdgeSpec[S]) []string {
	switch spec.Kind {
	case EdgeSimple, EdgeConditional:
		return []string{spec.To}
	case EdgeParallel:
		targets := append([]string(nil), spec.Targets...)
		if spec.JoinNode != "" {
			targets = append(targets, spec.JoinNode)
		}
		return targets
	case EdgeWeighted:
		return append([]string(nil), spec.Targets...)
	case EdgeDynamic:
		return append([]string(nil), spec.PossibleTargets...)
	default:
		return nil
	}
}

// reachableFrom runs a BFS over adjacency starting at start.
func (e *Engine[S]) reachableFrom(start string, adjacency map[string][]string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// findCycle runs a DFS looking for a back edge, returning a description of
// the first cycle found or "" if the graph is acyclic. Loops are a supported
// execution pattern (Options.MaxSteps exists precisely to bound them), so this
// is surfaced as a warning, never a *ValidationError.
func (e *Engine[S]) findCycle(adjacency map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(e.nodes))
	var path []string

	var visit func(node string) string
	visit = func(node string) string {
		color[node] = gray
		path = append(path, node)
		for _, next := range adjacency[node] {
			switch color[next] {
			case gray:
				return fmt.Sprintf("%v -> %s", path, next)
			case white:
				if found := visit(next); found != "" {
					return found
				}
			}
		}
		path = path[:len(path)-1]
		color[node] = black
		return ""
	}

	for id := range e.nodes {
		if color[id] == white {
			if found := visit(id); found != "" {
				return found
			}
		}
	}
	return ""
}
