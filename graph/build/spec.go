package build

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tmcgrath/graphrun/graph"
)

// GraphSpec is the YAML shape for a graph's static topology: node and edge
// ids, the entry/finish points, and which named condition/router/merger each
// edge uses. Node bodies and the condition/router/merger implementations
// themselves are never expressed in YAML — they're Go code, supplied by the
// caller of LoadGraphSpec via the nodes map. This mirrors the pack's general
// pattern of loading static wiring from YAML while keeping behavior in code
// (mammoth/go-gavel/kilroy all do the same split for their own configs).
type GraphSpec struct {
	EntryPoint   string          `yaml:"entry_point"`
	FinishPoints []string        `yaml:"finish_points"`
	Nodes        []string        `yaml:"nodes"`
	Edges        []EdgeSpecYAML  `yaml:"edges"`
}

// EdgeSpecYAML is one edge entry in a GraphSpec file. Kind is one of
// "simple", "conditional", "dynamic", "parallel", "weighted".
type EdgeSpecYAML struct {
	From            string   `yaml:"from"`
	To              string   `yaml:"to,omitempty"`
	Kind            string   `yaml:"kind"`
	ConditionID     string   `yaml:"condition_id,omitempty"`
	RouterID        string   `yaml:"router_id,omitempty"`
	MergerID        string   `yaml:"merger_id,omitempty"`
	PossibleTargets []string `yaml:"possible_targets,omitempty"`
	Targets         []string `yaml:"targets,omitempty"`
	JoinNode        string   `yaml:"join_node,omitempty"`
	Weights         []float64 `yaml:"weights,omitempty"`
}

// ParseGraphSpec parses a GraphSpec from YAML bytes.
func ParseGraphSpec(data []byte) (GraphSpec, error) {
	var spec GraphSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse graph spec: %w", err)
	}
	return spec, nil
}

// LoadGraphSpec reads a YAML topology file from path and applies it to b:
// registers every listed node id against nodes[id] (the caller-supplied Go
// implementation), wires every edge, and sets the entry/finish points. It
// does not call Build; the caller can still add more nodes/edges/registries
// before doing so.
func LoadGraphSpec[S any](path string, b *Builder[S], nodes map[string]graph.Node[S]) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph spec: %w", err)
	}
	spec, err := ParseGraphSpec(data)
	if err != nil {
		return err
	}
	return ApplyGraphSpec(spec, b, nodes)
}

// ApplyGraphSpec wires a parsed GraphSpec into b using the caller-supplied
// node implementations, separated from LoadGraphSpec for callers that parse
// the YAML themselves (e.g. embedded specs, specs fetched over the network).
func ApplyGraphSpec[S any](spec GraphSpec, b *Builder[S], nodes map[string]graph.Node[S]) error {
	for _, id := range spec.Nodes {
		node, ok := nodes[id]
		if !ok {
			return fmt.Errorf("graph spec: no implementation supplied for node %q", id)
		}
		b.AddNode(id, node)
	}

	for _, e := range spec.Edges {
		edgeSpec := graph.EdgeSpec[S]{
			From:            e.From,
			To:              e.To,
			ConditionID:     e.ConditionID,
			RouterID:        e.RouterID,
			MergerID:        e.MergerID,
			PossibleTargets: e.PossibleTargets,
			Targets:         e.Targets,
			JoinNode:        e.JoinNode,
			Weights:         e.Weights,
		}
		switch e.Kind {
		case "simple":
			edgeSpec.Kind = graph.EdgeSimple
		case "conditional":
			edgeSpec.Kind = graph.EdgeConditional
		case "dynamic":
			edgeSpec.Kind = graph.EdgeDynamic
		case "parallel":
			edgeSpec.Kind = graph.EdgeParallel
		case "weighted":
			edgeSpec.Kind = graph.EdgeWeighted
		default:
			return fmt.Errorf("graph spec: unknown edge kind %q", e.Kind)
		}
		b.AddEdge(edgeSpec)
	}

	if spec.EntryPoint != "" {
		b.WithEntryPoint(spec.EntryPoint)
	}
	for _, id := range spec.FinishPoints {
		b.AddFinishPoint(id)
	}

	return nil
}
