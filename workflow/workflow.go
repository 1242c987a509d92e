// Package workflow implements the Workflow component (spec.md C5): a named
// subgraph of nodes (and, recursively, other workflows) composed through
// Connect/ConnectWFInput/Map, with a declared set of exported outputs. A
// Workflow satisfies dag.Runnable, so it can be driven by a Submitter (or
// nested inside another Workflow) exactly like a single pnode.Node
// (spec.md §9, "workflow-as-node").
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pipegraph/pipegraph/dag"
	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
	"github.com/pipegraph/pipegraph/plugin"
	"github.com/pipegraph/pipegraph/pnode"
	"github.com/pipegraph/pipegraph/state"
	"github.com/pipegraph/pipegraph/submit"
)

// Export declares that innerField of innerNode's output is exposed on the
// workflow itself under the name External (spec.md §6's "exported output").
type Export struct {
	InnerNode  string
	InnerField string
	External   string
}

type wfTarget struct {
	Node  string
	Field string
}

// Option configures a Workflow at construction time.
type Option func(*Workflow)

// WithWorkingDir attaches an opaque working-directory path, mirroring
// pnode.WithWorkingDir.
func WithWorkingDir(dir string) Option {
	return func(w *Workflow) { w.WorkingDir = dir }
}

// WithPlugin sets the execution plugin the workflow's inner Submitter
// dispatches to each time RunPoint drives the subgraph. Defaults to
// plugin.NewSerial().
func WithPlugin(p plugin.Plugin) Option {
	return func(w *Workflow) { w.plug = p }
}

// Workflow is one named, composable subgraph: spec.md component C5.
type Workflow struct {
	Name       string
	WorkingDir string

	graph *dag.Graph
	plug  plugin.Plugin

	mu            sync.Mutex
	wfInputs      *state.Bindings
	rawMapper     mapper.Expr
	normalized    mapper.Expr
	wfInputConns  map[string][]wfTarget
	exports       []Export
	lastAdded     string
	inheritedSrcs map[string][]string
	autoMapped    map[string]bool

	st      *state.State
	frozen  bool
	results map[string][]pnode.Record
}

// New constructs an empty Workflow named name.
func New(name string, opts ...Option) *Workflow {
	w := &Workflow{
		Name:          name,
		graph:         dag.New(),
		plug:          plugin.NewSerial(),
		wfInputs:      state.NewBindings(),
		wfInputConns:  map[string][]wfTarget{},
		inheritedSrcs: map[string][]string{},
		autoMapped:    map[string]bool{},
		results:       map[string][]pnode.Record{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// AddNode registers a Runnable (a *pnode.Node or a nested *Workflow) and
// remembers it as the target of a following Map/MapNode call with no
// explicit node name.
func (w *Workflow) AddNode(n dag.Runnable) *Workflow {
	w.graph.AddNode(n)
	w.lastAdded = n.GetName()
	return w
}

// AddNodes registers every Runnable in order.
func (w *Workflow) AddNodes(ns ...dag.Runnable) *Workflow {
	for _, n := range ns {
		w.AddNode(n)
	}
	return w
}

// Add builds a new node from compute and opts, registers it, and wires any
// WithConnect bindings, returning the constructed node for further mapping.
func (w *Workflow) Add(compute pnode.Compute, opts ...NodeOption) (*pnode.Node, error) {
	spec := &nodeSpec{connects: map[string]string{}}
	for _, o := range opts {
		o(spec)
	}
	if spec.name == "" {
		return nil, fmt.Errorf("workflow: Add requires WithName")
	}
	var nodeOpts []pnode.Option
	if spec.workingDir != "" {
		nodeOpts = append(nodeOpts, pnode.WithWorkingDir(spec.workingDir))
	}
	if spec.computeName != "" {
		nodeOpts = append(nodeOpts, pnode.WithComputeName(spec.computeName))
	}
	n := pnode.New(spec.name, compute, spec.outputs, nodeOpts...)
	if spec.mapperExpr != nil {
		if err := n.SetMapper(spec.mapperExpr); err != nil {
			return nil, err
		}
	}
	if spec.inputs != nil {
		if err := n.SetInputs(spec.inputs); err != nil {
			return nil, err
		}
	}
	w.AddNode(n)
	for field, ref := range spec.connects {
		if idx := strings.IndexByte(ref, '.'); idx >= 0 {
			if err := w.Connect(ref[:idx], ref[idx+1:], spec.name, field); err != nil {
				return nil, err
			}
		} else {
			if err := w.ConnectWFInput(ref, spec.name, field); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

// Connect wires srcNode's srcOutput into tgtNode's tgtField (spec.md §3's
// edge). If tgtNode has no mapper of its own (and no prior auto-inherited
// one), it inherits the source's state shape via a _srcNode mapper
// reference, so its own state enumerates in lockstep with the source
// (spec.md S5). A second inbound edge into the same unmapped target widens
// that inherited mapper into a scalar (zipped) product across every source
// it has inherited from so far.
func (w *Workflow) Connect(srcNode, srcOutput, tgtNode, tgtField string) error {
	if w.graph.Node(srcNode) == nil {
		return &enginerr.UnknownNodeError{Node: srcNode}
	}
	tgt := w.graph.Node(tgtNode)
	if tgt == nil {
		return &enginerr.UnknownNodeError{Node: tgtNode}
	}
	if mappable, ok := tgt.(dag.Mappable); ok {
		if err := w.checkAndInherit(mappable, tgtNode, srcNode, tgtField); err != nil {
			return err
		}
	}
	return w.graph.Connect(dag.Edge{Source: srcNode, SourceOutput: srcOutput, Target: tgtNode, TargetInput: tgtField})
}

func (w *Workflow) checkAndInherit(mappable dag.Mappable, tgtNode, srcNode, field string) error {
	raw := mappable.RawMapper()
	userMapped := raw != nil && !w.autoMapped[tgtNode]
	if userMapped && mapperHasLeaf(raw, field, tgtNode+"."+field) {
		return &enginerr.EdgeOverMappedInputError{Node: tgtNode, Field: field}
	}
	if !userMapped {
		w.inheritedSrcs[tgtNode] = append(w.inheritedSrcs[tgtNode], srcNode)
		if err := mappable.SetMapper(combineRefs(w.inheritedSrcs[tgtNode])); err != nil {
			return err
		}
		w.autoMapped[tgtNode] = true
	}
	return nil
}

func combineRefs(names []string) mapper.Expr {
	if len(names) == 1 {
		return mapper.R(names[0])
	}
	refs := make([]mapper.Expr, len(names))
	for i, n := range names {
		refs[i] = mapper.R(n)
	}
	return mapper.Z(refs...)
}

// mapperHasLeaf reports whether raw contains an explicit leaf matching field
// (bare) or qualified, under Scalar/Outer composition. A Ref is opaque here:
// it inherits another node's whole shape rather than mapping this field by
// name, so it never itself conflicts with an edge into field.
func mapperHasLeaf(e mapper.Expr, field, qualified string) bool {
	switch v := e.(type) {
	case mapper.Leaf:
		return v.Qualified == field || v.Qualified == qualified
	case mapper.Scalar:
		for _, c := range v.Children {
			if mapperHasLeaf(c, field, qualified) {
				return true
			}
		}
	case mapper.Outer:
		for _, c := range v.Children {
			if mapperHasLeaf(c, field, qualified) {
				return true
			}
		}
	}
	return false
}

// ConnectWFInput binds a workflow-level input field to tgtNode's tgtField
// (spec.md §6). Whenever the workflow's own mapper enumerates over wfField,
// each outer point's current value for wfField is bound into tgtField for
// that single pass of the inner subgraph (spec.md §4.5's "workflow state and
// nested workflows").
func (w *Workflow) ConnectWFInput(wfField, tgtNode, tgtField string) error {
	tgt := w.graph.Node(tgtNode)
	if tgt == nil {
		return &enginerr.UnknownNodeError{Node: tgtNode}
	}
	if mappable, ok := tgt.(dag.Mappable); ok {
		raw := mappable.RawMapper()
		userMapped := raw != nil && !w.autoMapped[tgtNode]
		if userMapped && mapperHasLeaf(raw, tgtField, tgtNode+"."+tgtField) {
			return &enginerr.EdgeOverMappedInputError{Node: tgtNode, Field: tgtField}
		}
	}
	w.wfInputConns[wfField] = append(w.wfInputConns[wfField], wfTarget{Node: tgtNode, Field: tgtField})
	return nil
}

// MapNode attaches expr (and optional inputs) directly to the named node, or
// to the most recently added node if node is "". Any auto-inherited mapper
// from a prior Connect is replaced outright.
func (w *Workflow) MapNode(expr mapper.Expr, inputs map[string]any, node string) error {
	name := node
	if name == "" {
		name = w.lastAdded
	}
	n := w.graph.Node(name)
	if n == nil {
		return &enginerr.UnknownNodeError{Node: name}
	}
	mappable, ok := n.(dag.Mappable)
	if !ok {
		return fmt.Errorf("workflow: node %s does not support mapping", name)
	}
	if err := mappable.SetMapper(expr); err != nil {
		return err
	}
	delete(w.autoMapped, name)
	delete(w.inheritedSrcs, name)
	if inputs != nil {
		return mappable.SetInputs(inputs)
	}
	return nil
}

// Map attaches the workflow's own mapper and workflow-level inputs
// (spec.md §6). Every field enumerated by expr must be bound as a
// workflow-level input (here or through SetInputs); PrepareState expands
// expr against those bindings only, so a field that is merely connected via
// ConnectWFInput fails there with enginerr.UnboundLeafError.
func (w *Workflow) Map(expr mapper.Expr, inputs map[string]any) error {
	if w.frozen {
		return &enginerr.FrozenError{Node: w.Name}
	}
	w.rawMapper = expr
	if inputs != nil {
		return w.SetInputs(inputs)
	}
	return nil
}

// Export declares that innerField of innerNode's results is exposed as the
// workflow's own output, named innerField unless external overrides it.
// Duplicate external names are rejected at PrepareState, not here, since two
// Export calls can't know about each other's eventual names at call time in
// general composition code.
func (w *Workflow) Export(innerNode, innerField string, external ...string) error {
	if w.graph.Node(innerNode) == nil {
		return &enginerr.UnknownNodeError{Node: innerNode}
	}
	name := innerField
	if len(external) > 0 {
		name = external[0]
	}
	w.exports = append(w.exports, Export{InnerNode: innerNode, InnerField: innerField, External: name})
	return nil
}

func (w *Workflow) qualify(field string) string {
	if strings.Contains(field, ".") {
		return field
	}
	return w.Name + "." + field
}

// GetName satisfies dag.Runnable.
func (w *Workflow) GetName() string { return w.Name }

// RawMapper, NormalizedMapper, HasMapper, SetMapper, SetInputs satisfy
// dag.Mappable, letting a Workflow be an edge endpoint or _Ref target just
// like a pnode.Node.
func (w *Workflow) RawMapper() mapper.Expr { return w.rawMapper }

func (w *Workflow) NormalizedMapper() mapper.Expr { return w.normalized }

func (w *Workflow) HasMapper() bool { return w.rawMapper != nil }

func (w *Workflow) SetMapper(expr mapper.Expr) error {
	if w.frozen {
		return &enginerr.FrozenError{Node: w.Name}
	}
	w.rawMapper = expr
	return nil
}

func (w *Workflow) SetInputs(raw map[string]any) error {
	if w.frozen {
		return &enginerr.FrozenError{Node: w.Name}
	}
	for field, v := range raw {
		qualified := w.qualify(field)
		if seq, ok := v.([]any); ok {
			w.wfInputs.SetSequence(qualified, seq)
		} else {
			w.wfInputs.SetScalar(qualified, v)
		}
	}
	return nil
}

func noLookup(string) (mapper.Expr, error) { return nil, nil }

// PrepareState prepares every inner node in topological order, then expands
// the workflow's own mapper (if any) into its outer enumeration, and
// validates exported-output names are unique (spec.md §6).
func (w *Workflow) PrepareState(_ mapper.Lookup) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frozen {
		return nil
	}
	order, err := w.graph.TopoOrder()
	if err != nil {
		return err
	}
	innerLookup := func(name string) (mapper.Expr, error) {
		n := w.graph.Node(name)
		if n == nil {
			return nil, &enginerr.UnknownNodeError{Node: name}
		}
		if m, ok := n.(dag.Mappable); ok {
			return m.NormalizedMapper(), nil
		}
		return nil, nil
	}
	for _, name := range order {
		n := w.graph.Node(name)
		if sink, ok := n.(bindingsSink); ok {
			for _, e := range w.graph.EdgesInto(name) {
				if src, ok := w.graph.Node(e.Source).(bindingsSource); ok {
					sink.MergeUpstreamBindings(src.Inputs())
				}
			}
		}
		if err := n.PrepareState(innerLookup); err != nil {
			return err
		}
	}
	if w.rawMapper != nil {
		normalized, err := mapper.Normalize(w.Name, w.rawMapper, noLookup)
		if err != nil {
			return err
		}
		w.normalized = normalized
		points, err := mapper.Expand(normalized, w.wfInputs)
		if err != nil {
			return err
		}
		scalars := w.wfInputs.Scalars()
		for i, p := range points {
			for k, v := range scalars {
				if _, exists := p[k]; !exists {
					p[k] = v
				}
			}
			points[i] = p
		}
		w.st = &state.State{Points: points}
	} else {
		w.st = &state.State{Points: []state.Point{{}}}
	}
	seen := map[string]bool{}
	for _, e := range w.exports {
		if seen[e.External] {
			return &enginerr.DuplicateOutputNameError{Name: e.External}
		}
		seen[e.External] = true
	}
	w.frozen = true
	return nil
}

// State returns the workflow's own outer enumeration. Valid after
// PrepareState.
func (w *Workflow) State() *state.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st
}

// Len returns the number of outer points.
func (w *Workflow) Len() int { return w.State().Len() }

type outerContextSetter interface {
	SetOuterContext(*state.Point)
}

// bindingsSource and bindingsSink let PrepareState propagate an upstream
// node's own bindings into a downstream node before expansion, for mapper
// leaves that name an upstream's input field directly (see
// pnode.Node.MergeUpstreamBindings).
type bindingsSource interface {
	Inputs() *state.Bindings
}

type bindingsSink interface {
	MergeUpstreamBindings(*state.Bindings)
}

// RunPoint drives the entire inner subgraph once for the given outer
// ordinal: it binds every ConnectWFInput target to this outer point's
// current value for its workflow-level field, runs an inner Submitter to
// completion, and collects each Export's freshly produced records as both
// this call's return value and this workflow's own accumulating Result
// (spec.md §9's "workflow-as-node").
func (w *Workflow) RunPoint(ctx context.Context, ordinal int, overrides map[string]any) (state.Point, map[string]any, error) {
	outerPoint, err := w.State().Values(ordinal)
	if err != nil {
		return nil, nil, err
	}
	effective := outerPoint.Clone()
	for k, v := range overrides {
		effective[w.qualify(k)] = v
	}
	for k, v := range w.wfInputs.Scalars() {
		if _, exists := effective[k]; !exists {
			effective[k] = v
		}
	}

	var opts []submit.Option
	for wfField, targets := range w.wfInputConns {
		qualified := w.qualify(wfField)
		val, ok := effective[qualified]
		if !ok {
			return nil, nil, &enginerr.UnboundLeafError{Leaf: qualified}
		}
		for _, t := range targets {
			opts = append(opts, submit.WithNodeOverrides(t.Node, map[string]any{t.Field: val}))
		}
	}
	opts = append(opts, submit.WithRunID(fmt.Sprintf("%s#%d", w.Name, ordinal)))

	var outerTag *state.Point
	if w.rawMapper != nil {
		tag := outerPoint.Clone()
		outerTag = &tag
	}
	for _, n := range w.graph.Nodes() {
		if setter, ok := n.(outerContextSetter); ok {
			setter.SetOuterContext(outerTag)
		}
	}

	before := make(map[string]int, len(w.exports))
	for _, e := range w.exports {
		before[e.InnerNode+"."+e.InnerField] = len(w.graph.Node(e.InnerNode).Result(e.InnerField))
	}

	sub := submit.New(w.graph, w.plug, opts...)
	if err := sub.Run(ctx); err != nil {
		return outerPoint, nil, &enginerr.NodeExecutionError{Node: w.Name, Ordinal: ordinal, Cause: err}
	}

	outputs := map[string]any{}
	w.mu.Lock()
	for _, e := range w.exports {
		recs := w.graph.Node(e.InnerNode).Result(e.InnerField)
		start := before[e.InnerNode+"."+e.InnerField]
		fresh := recs[start:]
		for _, r := range fresh {
			w.results[e.External] = append(w.results[e.External], pnode.Record{Outer: outerTag, Inner: r.Inner, Value: r.Value})
		}
		switch len(fresh) {
		case 0:
		case 1:
			outputs[e.External] = fresh[0].Value
		default:
			vals := make([]any, len(fresh))
			for i, r := range fresh {
				vals[i] = r.Value
			}
			outputs[e.External] = vals
		}
	}
	w.mu.Unlock()
	return outerPoint, outputs, nil
}

// Result returns every accumulated record for the exported output name,
// across every RunPoint call made so far.
func (w *Workflow) Result(output string) []pnode.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.results[output]
}

func (w *Workflow) String() string {
	return fmt.Sprintf("Workflow(%s)", w.Name)
}
