package graph

import (
	"context"
	"fmt"
)

// End is the terminal pseudo-node. Edges may target it; it is never
// executed.
const End = "__end__"

// Outcome is what a node hands back to the engine.
type Outcome struct {
	// Suspend yields the run to the caller pending the next user turn.
	Suspend bool

	// Halt stops the run before following any edge.
	Halt bool

	// Prompt is the user-facing message attached to a suspend or halt.
	Prompt string
}

// NodeFunc executes one node against the run state. Nodes mutate only
// the fields they own and never invoke other nodes.
type NodeFunc func(ctx context.Context, s *State) (Outcome, error)

// RouterFunc inspects state and returns a routing key. Routers run
// immediately after their producing node, before any other node touches
// the state.
type RouterFunc func(s *State) string

type nodeDef struct {
	name string
	fn   NodeFunc
}

type conditional struct {
	route   RouterFunc
	targets map[string]string
}

// Builder assembles a graph from an explicit node table and edge table.
type Builder struct {
	nodes        []nodeDef
	edges        map[string]string
	conditionals map[string]conditional
	errs         []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional),
	}
}

// AddNode registers a named node. Registration order defines which nodes
// count as "earlier" for the redirection bound.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if name == "" || name == End {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil handler", name))
		return b
	}
	for _, n := range b.nodes {
		if n.name == name {
			b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
			return b
		}
	}
	b.nodes = append(b.nodes, nodeDef{name: name, fn: fn})
	return b
}

// AddEdge registers the single static successor of a node.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has an edge", from))
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges registers a keyed router for a node: the router's
// key selects the successor from targets.
func (b *Builder) AddConditionalEdges(from string, route RouterFunc, targets map[string]string) *Builder {
	if route == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil router", from))
		return b
	}
	if len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("node %q has no router targets", from))
		return b
	}
	if _, dup := b.conditionals[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has conditional edges", from))
		return b
	}
	b.conditionals[from] = conditional{route: route, targets: targets}
	return b
}

// Graph is a validated, immutable node and edge table.
type Graph struct {
	nodes        map[string]NodeFunc
	order        map[string]int
	edges        map[string]string
	conditionals map[string]conditional
}

// Build validates the assembled graph: every node has exactly one of a
// static edge or a router, and every named target resolves to a
// registered node or End.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("graph has no nodes")
	}

	g := &Graph{
		nodes:        make(map[string]NodeFunc, len(b.nodes)),
		order:        make(map[string]int, len(b.nodes)),
		edges:        b.edges,
		conditionals: b.conditionals,
	}
	for i, n := range b.nodes {
		g.nodes[n.name] = n.fn
		g.order[n.name] = i
	}

	resolves := func(target string) bool {
		if target == End {
			return true
		}
		_, ok := g.nodes[target]
		return ok
	}

	for from, to := range b.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unregistered node %q", from)
		}
		if _, both := b.conditionals[from]; both {
			return nil, fmt.Errorf("node %q has both a static edge and conditional edges", from)
		}
		if !resolves(to) {
			return nil, fmt.Errorf("edge %q -> %q targets unregistered node", from, to)
		}
	}

	for from, c := range b.conditionals {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("conditional edges from unregistered node %q", from)
		}
		for key, target := range c.targets {
			if !resolves(target) {
				return nil, fmt.Errorf("router %q key %q targets unregistered node %q", from, key, target)
			}
		}
	}

	for _, n := range b.nodes {
		_, hasEdge := b.edges[n.name]
		_, hasCond := b.conditionals[n.name]
		if !hasEdge && !hasCond {
			return nil, fmt.Errorf("node %q has no outgoing edge", n.name)
		}
	}

	return g, nil
}

// Has reports whether a node is registered.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}
