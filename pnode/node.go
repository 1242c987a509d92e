// Package pnode implements the Node component (spec.md C3): one
// computational unit wrapping an opaque callable, its own input bindings,
// its mapper, its expanded state, and its per-point results.
package pnode

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
	"github.com/pipegraph/pipegraph/state"
)

// Compute is the opaque, externally supplied callable a Node wraps. It
// receives the point's bound inputs, keyed by bare field name (already
// stripped of the node's namespace qualifier), and returns its declared
// outputs by name.
type Compute func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// Record is one per-point result entry for a declared output. Outer is nil
// for a bare node; an ancestor workflow mapper sets it when it imposes an
// additional expansion on top of this node's own state (spec.md §4.3's
// "outer wrap is present whenever an ancestor workflow imposes an
// additional mapper").
type Record struct {
	Outer *state.Point
	Inner state.Point
	Value any
}

// Option configures a Node at construction time.
type Option func(*Node)

// WithWorkingDir attaches an opaque working-directory path to the node.
// The CORE never reads or writes it (spec.md §1, §5); it exists purely so
// callers building filesystem-backed collaborators have somewhere to store
// it (see SPEC_FULL.md §7.1).
func WithWorkingDir(dir string) Option {
	return func(n *Node) { n.WorkingDir = dir }
}

// WithComputeName records name on the node, so a processpool or distributed
// Submitter can ship this point's bare inputs to an out-of-process worker
// instead of the in-process closure (see plugin.RemoteJob). It does not
// register the compute anywhere: the worker resolves name in its own
// plugin.DefaultRegistry, so a compute must already be registered there
// under the same name. Unnecessary for the serial and workerpool plugins.
func WithComputeName(name string) Option {
	return func(n *Node) { n.computeName = name }
}

// Node is one computational unit: spec.md component C3.
type Node struct {
	Name        string
	WorkingDir  string
	OutputNames []string

	compute     Compute
	computeName string

	mu         sync.Mutex
	rawMapper  mapper.Expr
	normalized mapper.Expr
	inputs     *state.Bindings
	seqFields  map[string]bool // which qualified fields were bound as sequences
	st         *state.State
	results    map[string][]Record
	frozen     bool
	outerCtx   *state.Point
}

// New constructs a Node wrapping compute, with the given declared output
// names.
func New(name string, compute Compute, outputNames []string, opts ...Option) *Node {
	n := &Node{
		Name:        name,
		OutputNames: outputNames,
		compute:     compute,
		inputs:      state.NewBindings(),
		seqFields:   map[string]bool{},
		results:     map[string][]Record{},
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// SetMapper attaches a raw (possibly unqualified) mapper expression. Valid
// only before PrepareState; afterward it returns enginerr.FrozenError.
func (n *Node) SetMapper(expr mapper.Expr) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return &enginerr.FrozenError{Node: n.Name}
	}
	n.rawMapper = expr
	return nil
}

// Mapper returns the node's normalized mapper's string form, the raw
// mapper's string form if it has not yet been normalized, or "" if the node
// has no mapper. Mirrors pydra's
// `node.mapper` attribute used for assertions in test_node_3..test_node_8.
func (n *Node) Mapper() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.normalized != nil {
		return n.normalized.String()
	}
	if n.rawMapper != nil {
		return n.rawMapper.String()
	}
	return ""
}

// SetInputs merges qualified inputs into the node's own binding. Each key
// is auto-qualified with the node's name if not already namespaced. A
// []any value is stored as a sequence; any other value is stored as a
// scalar.
func (n *Node) SetInputs(raw map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return &enginerr.FrozenError{Node: n.Name}
	}
	for field, v := range raw {
		qualified := n.qualify(field)
		if seq, ok := v.([]any); ok {
			n.inputs.SetSequence(qualified, seq)
			n.seqFields[qualified] = true
		} else {
			n.inputs.SetScalar(qualified, v)
			n.seqFields[qualified] = false
		}
	}
	return nil
}

// Map is the combined SetMapper+SetInputs convenience used throughout
// spec.md's composition API ("node.map(mapper, inputs?)").
func (n *Node) Map(expr mapper.Expr, inputs map[string]any) error {
	if err := n.SetMapper(expr); err != nil {
		return err
	}
	if inputs != nil {
		return n.SetInputs(inputs)
	}
	return nil
}

func (n *Node) qualify(field string) string {
	if containsDot(field) {
		return field
	}
	return n.Name + "." + field
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

// GetName returns the node's name, satisfying dag.Runnable.
func (n *Node) GetName() string { return n.Name }

// Inputs exposes the node's current input bindings for edge/state
// propagation logic in the workflow package.
func (n *Node) Inputs() *state.Bindings {
	return n.inputs
}

// MergeUpstreamBindings copies every binding from b into this node's own
// bindings verbatim (keys already qualified to their owning node's
// namespace). A workflow calls this before PrepareState for every inbound
// edge's source, so a mapper leaf that names an upstream node's own input
// field (spec.md §4.5's "NA.a" in a downstream mapper) has something to
// expand against: the mapper leaf only fixes the downstream's state shape,
// but Expand still needs the upstream's own sequence to count points from.
// A no-op once the node is frozen.
func (n *Node) MergeUpstreamBindings(b *state.Bindings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return
	}
	n.inputs.Merge(b)
}

// RawMapper exposes the node's unnormalized mapper for the workflow
// package's edge-inheritance rewrite.
func (n *Node) RawMapper() mapper.Expr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rawMapper
}

// NormalizedMapper exposes the node's normalized mapper (nil before
// PrepareState, or if the node has no mapper at all) so a sibling's _Ref
// leaves and a workflow's auto-inheritance can be resolved against it.
func (n *Node) NormalizedMapper() mapper.Expr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.normalized
}

// HasMapper reports whether the node has a mapper attached at all.
func (n *Node) HasMapper() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rawMapper != nil
}

// PrepareState normalizes the node's mapper against lookup (resolving any
// _Other references), expands it over the node's bound inputs, and
// materializes the node's State. It freezes the node: subsequent
// SetMapper/SetInputs calls fail with enginerr.FrozenError.
func (n *Node) PrepareState(lookup mapper.Lookup) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return nil
	}
	var points []state.Point
	if n.rawMapper != nil {
		normalized, err := mapper.Normalize(n.Name, n.rawMapper, lookup)
		if err != nil {
			return err
		}
		n.normalized = normalized
		points, err = mapper.Expand(normalized, n.inputs)
		if err != nil {
			return err
		}
	} else {
		points = []state.Point{{}}
	}
	// Scalar-bound fields the mapper never mentions still ride along in
	// every point: the mapper only needs to express which fields vary
	// across the enumeration (spec.md §4.1), not the node's full input set.
	scalars := n.inputs.Scalars()
	for i, p := range points {
		for k, v := range scalars {
			if _, exists := p[k]; !exists {
				p[k] = v
			}
		}
		points[i] = p
	}
	n.st = &state.State{Points: points}
	n.frozen = true
	return nil
}

// State returns the node's materialized state. Valid only after
// PrepareState.
func (n *Node) State() *state.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.st
}

// Len returns the number of state points, or 0 before PrepareState.
func (n *Node) Len() int {
	return n.State().Len()
}

// RunPoint invokes the opaque compute callable with the point's bound
// inputs (stripped of the node's namespace qualifier) and records the
// result. overrides supplies values for fields that are edge-connected:
// the mapper only determines their state *shape* (spec.md §4.5), the
// actual value comes from the upstream node's result via the state-key
// join the submit package performs, so overrides always wins over the
// point's own literal value for that bare field name. Any error returned
// by compute is wrapped in enginerr.NodeExecutionError.
func (n *Node) RunPoint(ctx context.Context, ordinal int, overrides map[string]any) (state.Point, map[string]any, error) {
	point, bare, err := n.BareInputs(ordinal, overrides)
	if err != nil {
		return nil, nil, err
	}
	out, err := n.compute(ctx, bare)
	if err != nil {
		return point, nil, &enginerr.NodeExecutionError{Node: n.Name, Ordinal: ordinal, Cause: err}
	}
	n.recordResult(point, out)
	return point, out, nil
}

// BareInputs resolves the point's bound inputs into the bare (namespace-
// stripped) map the compute callable receives, without invoking compute. A
// Submitter dispatching to an out-of-process plugin calls this to build the
// plugin.RemoteJob payload, then calls RecordResult itself once the remote
// worker replies.
func (n *Node) BareInputs(ordinal int, overrides map[string]any) (state.Point, map[string]any, error) {
	st := n.State()
	point, err := st.Values(ordinal)
	if err != nil {
		return nil, nil, err
	}
	bare := make(map[string]any, len(point)+len(overrides))
	for k, v := range point {
		bare[bareField(n.Name, k)] = v
	}
	for k, v := range overrides {
		bare[k] = v
	}
	return point, bare, nil
}

// ComputeName returns the name the node's compute was registered under via
// WithComputeName, or "" if it was never registered for out-of-process
// dispatch.
func (n *Node) ComputeName() string {
	return n.computeName
}

// RecordResult records a result obtained by a Submitter that ran this
// point's compute itself, out of process. Equivalent to the bookkeeping
// RunPoint does after a successful local call.
func (n *Node) RecordResult(point state.Point, out map[string]any) {
	n.recordResult(point, out)
}

func bareField(owner, qualified string) string {
	prefix := owner + "."
	if len(qualified) > len(prefix) && qualified[:len(prefix)] == prefix {
		return qualified[len(prefix):]
	}
	return qualified
}

func (n *Node) recordResult(point state.Point, out map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var outer *state.Point
	if n.outerCtx != nil {
		o := n.outerCtx.Clone()
		outer = &o
	}
	for _, name := range n.OutputNames {
		v, ok := out[name]
		if !ok {
			continue
		}
		n.results[name] = append(n.results[name], Record{Outer: outer, Inner: point, Value: v})
	}
}

// SetOuterContext tags every record produced by subsequent RunPoint calls
// with outer, until cleared (pass nil). An ancestor workflow that imposes
// its own mapper calls this once per outer point before re-driving this
// node's inner state for that outer binding (spec.md §4.3's "outer wrap is
// present whenever an ancestor workflow imposes an additional mapper").
func (n *Node) SetOuterContext(outer *state.Point) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outerCtx = outer
}

// Result returns the ordered per-point records for the given declared
// output name.
func (n *Node) Result(output string) []Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.results[output]
}

// String implements fmt.Stringer for diagnostics.
func (n *Node) String() string {
	return fmt.Sprintf("Node(%s)", n.Name)
}
