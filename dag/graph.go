// Package dag implements the Graph component (spec.md C4): a DAG of nodes
// and edges, topological ordering, and the uniform Runnable interface that
// lets a Workflow be driven as if it were a single Node (spec.md §9,
// "workflow-as-node").
package dag

import (
	"context"

	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
	"github.com/pipegraph/pipegraph/pnode"
	"github.com/pipegraph/pipegraph/state"
)

// Runnable is anything the Graph can schedule: a bare pnode.Node or a
// Workflow treated as a single composite node.
type Runnable interface {
	GetName() string
	PrepareState(lookup mapper.Lookup) error
	Len() int
	RunPoint(ctx context.Context, ordinal int, overrides map[string]any) (state.Point, map[string]any, error)
	Result(output string) []pnode.Record
	State() *state.State
}

// Mappable is a Runnable that also exposes its own mapper, for the
// workflow package's edge-inheritance and mapper-reference rewrites. Both
// pnode.Node and workflow.Workflow satisfy it.
type Mappable interface {
	Runnable
	RawMapper() mapper.Expr
	NormalizedMapper() mapper.Expr
	HasMapper() bool
	SetMapper(mapper.Expr) error
	SetInputs(map[string]any) error
}

// Edge is a directed data link from (source, sourceOutput) to
// (target, targetInput), spec.md §3.
type Edge struct {
	Source       string
	SourceOutput string
	Target       string
	TargetInput  string
}

// Graph holds nodes, edges, and their topological order.
type Graph struct {
	nodes map[string]Runnable
	order []string
	edges []Edge
	adj   map[string][]string // source -> targets
	indeg map[string]int
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: map[string]Runnable{},
		adj:   map[string][]string{},
		indeg: map[string]int{},
	}
}

// AddNode registers a Runnable under its own name. Adding the same name
// twice is a no-op overwrite, matching the teacher's idempotent registration
// style.
func (g *Graph) AddNode(n Runnable) {
	name := n.GetName()
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
		g.indeg[name] = 0
	}
	g.nodes[name] = n
}

// Node returns the registered Runnable by name, or nil.
func (g *Graph) Node(name string) Runnable {
	return g.nodes[name]
}

// Nodes returns every registered Runnable in insertion order.
func (g *Graph) Nodes() []Runnable {
	out := make([]Runnable, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Edges returns every edge inserted so far.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// EdgesInto returns every edge whose Target is name.
func (g *Graph) EdgesInto(name string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == name {
			out = append(out, e)
		}
	}
	return out
}

// Connect inserts a directed edge. It fails with enginerr.UnknownNodeError
// if either endpoint is unregistered, and with enginerr.CycleError if the
// edge would make the graph cyclic.
func (g *Graph) Connect(e Edge) error {
	if _, ok := g.nodes[e.Source]; !ok {
		return &enginerr.UnknownNodeError{Node: e.Source}
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return &enginerr.UnknownNodeError{Node: e.Target}
	}
	g.adj[e.Source] = append(g.adj[e.Source], e.Target)
	g.indeg[e.Target]++
	if _, err := g.TopoOrder(); err != nil {
		// Roll back: this edge introduced a cycle.
		g.adj[e.Source] = g.adj[e.Source][:len(g.adj[e.Source])-1]
		g.indeg[e.Target]--
		return err
	}
	g.edges = append(g.edges, e)
	return nil
}

// TopoOrder computes a topological order of the graph's nodes via Kahn's
// algorithm. A node count mismatch after the sweep means a cycle exists.
func (g *Graph) TopoOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.indeg))
	for k, v := range g.indeg {
		indeg[k] = v
	}
	var queue []string
	for _, name := range g.order {
		if indeg[name] == 0 {
			queue = append(queue, name)
		}
	}
	var out []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		for _, to := range g.adj[n] {
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if len(out) != len(g.order) {
		for _, name := range g.order {
			found := false
			for _, o := range out {
				if o == name {
					found = true
					break
				}
			}
			if !found {
				return nil, &enginerr.CycleError{Node: name}
			}
		}
	}
	return out, nil
}
