// Package submit implements the Submitter/Scheduler component (spec.md C6):
// the point-level dependency resolver and dispatch coordinator that drives a
// dag.Graph to completion through a plugin.Plugin.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipegraph/pipegraph/dag"
	"github.com/pipegraph/pipegraph/engine/emit"
	"github.com/pipegraph/pipegraph/engine/metrics"
	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
	"github.com/pipegraph/pipegraph/plugin"
	"github.com/pipegraph/pipegraph/pnode"
	"github.com/pipegraph/pipegraph/state"
)

// Submitter resolves per-point dependencies across a dag.Graph and dispatches
// each ready point to a plugin.Plugin, admitting new points as soon as the
// specific upstream points they depend on complete (spec.md §4.6, §5) rather
// than waiting for whole nodes to finish.
type Submitter struct {
	graph          *dag.Graph
	plug           plugin.Plugin
	runID          string
	extraOverrides map[string]map[string]any
	emitter        emit.Emitter
	metrics        *metrics.Recorder
}

// New builds a Submitter over g, dispatching through p.
func New(g *dag.Graph, p plugin.Plugin, opts ...Option) *Submitter {
	s := &Submitter{
		graph:          g,
		plug:           p,
		runID:          uuid.NewString(),
		extraOverrides: map[string]map[string]any{},
		emitter:        emit.NewNullEmitter(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewByName resolves pluginName through registry and builds a Submitter
// over g dispatching through the result, failing immediately with
// enginerr.UnknownPluginError for an unregistered name (spec.md §7.2)
// instead of surfacing a nil plugin deep in Run's dispatch loop.
func NewByName(g *dag.Graph, registry *plugin.Registry, pluginName string, opts ...Option) (*Submitter, error) {
	p, err := registry.Build(pluginName)
	if err != nil {
		return nil, err
	}
	return New(g, p, opts...), nil
}

// RunID returns the submitter's run identifier, generated at construction
// unless overridden by WithRunID.
func (s *Submitter) RunID() string { return s.runID }

type ptKey struct {
	node    string
	ordinal int
}

func (k ptKey) String() string { return fmt.Sprintf("%s[%d]", k.node, k.ordinal) }

// Run prepares every node's state, resolves the per-point dependency graph,
// and dispatches points to the plugin until the run completes or a point
// fails. On failure, no new points are admitted but every already-dispatched
// point is allowed to drain before Run returns (spec.md §5's drain-then-fail
// policy).
func (s *Submitter) Run(ctx context.Context) error {
	order, err := s.graph.TopoOrder()
	if err != nil {
		return err
	}
	nodeLookup := func(name string) (mapper.Expr, error) {
		n := s.graph.Node(name)
		if n == nil {
			return nil, &enginerr.UnknownNodeError{Node: name}
		}
		if m, ok := n.(dag.Mappable); ok {
			return m.NormalizedMapper(), nil
		}
		return nil, nil
	}
	for _, name := range order {
		if err := s.graph.Node(name).PrepareState(nodeLookup); err != nil {
			return err
		}
	}

	need, edgeBindings, err := s.buildDependencies()
	if err != nil {
		return err
	}

	pending := make(map[ptKey]int, len(need))
	waiters := make(map[ptKey][]ptKey, len(need))
	var ready []ptKey
	for key, reqs := range need {
		pending[key] = len(reqs)
		if len(reqs) == 0 {
			ready = append(ready, key)
		}
		for _, r := range reqs {
			waiters[r] = append(waiters[r], key)
		}
	}

	type completion struct {
		key ptKey
		err error
	}
	completions := make(chan completion, 1+len(need))

	inFlight := 0
	failing := false
	var firstErr error

	admit := func(key ptKey) {
		s.emitter.Emit(emit.Event{RunID: s.runID, Node: key.node, Ordinal: key.ordinal, Msg: emit.PointReady})
		n := s.graph.Node(key.node)
		overrides := map[string]any{}
		for k, v := range s.extraOverrides[key.node] {
			overrides[k] = v
		}
		resolved, err := s.resolveEdgeValues(edgeBindings[key])
		if err != nil {
			inFlight++
			completions <- completion{key: key, err: err}
			return
		}
		for k, v := range resolved {
			overrides[k] = v
		}
		job, err := s.buildJob(n, key, overrides)
		if err != nil {
			inFlight++
			completions <- completion{key: key, err: err}
			return
		}
		start := time.Now()
		s.emitter.Emit(emit.Event{RunID: s.runID, Node: key.node, Ordinal: key.ordinal, Msg: emit.PointRunning})
		future, err := s.plug.Submit(ctx, job)
		if err != nil {
			inFlight++
			completions <- completion{key: key, err: err}
			return
		}
		inFlight++
		if s.metrics != nil {
			s.metrics.SetInflight(inFlight)
		}
		go func() {
			out, err := future.Wait(ctx)
			if err == nil && plugin.IsRemoteOnly(s.plug) {
				if remoteRecord, ok := n.(*pnode.Node); ok && job.Remote != nil {
					point, _, berr := remoteRecord.BareInputs(key.ordinal, overrides)
					if berr == nil {
						remoteRecord.RecordResult(point, out)
					} else {
						err = berr
					}
				}
			}
			if s.metrics != nil {
				outcome := "done"
				if err != nil {
					outcome = "failed"
				}
				s.metrics.ObservePoint(s.runID, key.node, outcome, float64(time.Since(start).Milliseconds()))
			}
			completions <- completion{key: key, err: err}
		}()
	}

	if s.metrics != nil {
		s.metrics.SetQueueDepth(len(ready))
	}
	for len(ready) > 0 || inFlight > 0 {
		for !failing && len(ready) > 0 {
			key := ready[0]
			ready = ready[1:]
			if s.metrics != nil {
				s.metrics.SetQueueDepth(len(ready))
			}
			admit(key)
		}
		if inFlight == 0 {
			break
		}
		c := <-completions
		inFlight--
		if s.metrics != nil {
			s.metrics.SetInflight(inFlight)
		}
		if c.err != nil {
			s.emitter.Emit(emit.Event{RunID: s.runID, Node: c.key.node, Ordinal: c.key.ordinal, Msg: emit.PointFailed, Meta: map[string]any{"error": c.err.Error()}})
			if firstErr == nil {
				firstErr = c.err
			}
			failing = true
			continue
		}
		s.emitter.Emit(emit.Event{RunID: s.runID, Node: c.key.node, Ordinal: c.key.ordinal, Msg: emit.PointDone})
		for _, w := range waiters[c.key] {
			pending[w]--
			if pending[w] == 0 {
				ready = append(ready, w)
			}
		}
		if s.metrics != nil {
			s.metrics.SetQueueDepth(len(ready))
		}
	}

	if firstErr != nil {
		s.emitter.Emit(emit.Event{RunID: s.runID, Msg: emit.RunFailed, Meta: map[string]any{"error": firstErr.Error()}})
		return firstErr
	}
	s.emitter.Emit(emit.Event{RunID: s.runID, Msg: emit.RunComplete})
	return nil
}

func (s *Submitter) buildJob(n dag.Runnable, key ptKey, overrides map[string]any) (plugin.Job, error) {
	job := plugin.Job{RunFunc: func(ctx context.Context) (map[string]any, error) {
		_, out, err := n.RunPoint(ctx, key.ordinal, overrides)
		return out, err
	}}
	pn, ok := n.(*pnode.Node)
	if ok && pn.ComputeName() != "" {
		_, bare, err := pn.BareInputs(key.ordinal, overrides)
		if err != nil {
			return plugin.Job{}, err
		}
		job.Remote = &plugin.RemoteJob{ComputeName: pn.ComputeName(), Inputs: bare}
	}
	return job, nil
}

// edgeBinding records, for one inbound edge into a given target point, which
// upstream ordinals supply that edge's value (usually exactly one; more than
// one only when the edge carries no shared mapper shape, in which case
// resolveEdgeValues picks the last match as a conservative best effort).
type edgeBinding struct {
	edge     dag.Edge
	ordinals []int
}

// buildDependencies computes, for every state point, the exact set of
// upstream points it depends on, by matching the point against each inbound
// edge's source points with sharesShape (equal values on every qualified
// leaf the two points have in common). A point with no
// matching upstream point (the edge carries no shared mapper shape) falls
// back to depending on every point of that upstream node. It also records,
// per edge, which upstream ordinals matched, so the dispatcher can later
// resolve the edge's actual value out of the upstream's recorded result
// (spec.md §4.5: the mapper only fixes shape, the edge's own result supplies
// the value).
func (s *Submitter) buildDependencies() (map[ptKey][]ptKey, map[ptKey][]edgeBinding, error) {
	need := map[ptKey][]ptKey{}
	bindings := map[ptKey][]edgeBinding{}
	for _, n := range s.graph.Nodes() {
		inbound := s.graph.EdgesInto(n.GetName())
		for o := 0; o < n.Len(); o++ {
			key := ptKey{n.GetName(), o}
			if len(inbound) == 0 {
				need[key] = nil
				continue
			}
			point, err := n.State().Values(o)
			if err != nil {
				return nil, nil, err
			}
			reqs := map[ptKey]bool{}
			srcOrdinals := map[string][]int{}
			for _, e := range inbound {
				if _, done := srcOrdinals[e.Source]; !done {
					src := s.graph.Node(e.Source)
					var matched []int
					for j := 0; j < src.Len(); j++ {
						sp, err := src.State().Values(j)
						if err != nil {
							return nil, nil, err
						}
						if sharesShape(point, sp) {
							matched = append(matched, j)
						}
					}
					if len(matched) == 0 {
						for j := 0; j < src.Len(); j++ {
							matched = append(matched, j)
						}
					}
					srcOrdinals[e.Source] = matched
				}
				for _, j := range srcOrdinals[e.Source] {
					reqs[ptKey{e.Source, j}] = true
				}
				bindings[key] = append(bindings[key], edgeBinding{edge: e, ordinals: srcOrdinals[e.Source]})
			}
			list := make([]ptKey, 0, len(reqs))
			for r := range reqs {
				list = append(list, r)
			}
			need[key] = list
		}
	}
	return need, bindings, nil
}

// resolveEdgeValues looks up, for every edge binding, the upstream node's
// recorded output value for the matched point (matched by exact point-key
// equality rather than slice position, since results accumulate in
// completion order, not ordinal order, under concurrent dispatch) and
// returns them keyed by the edge's target field.
func (s *Submitter) resolveEdgeValues(bindings []edgeBinding) (map[string]any, error) {
	resolved := map[string]any{}
	for _, b := range bindings {
		src := s.graph.Node(b.edge.Source)
		recs := src.Result(b.edge.SourceOutput)
		for _, j := range b.ordinals {
			sp, err := src.State().Values(j)
			if err != nil {
				return nil, err
			}
			key := sp.Key()
			for _, r := range recs {
				if r.Inner.Key() == key {
					resolved[b.edge.TargetInput] = r.Value
					break
				}
			}
		}
	}
	return resolved, nil
}

// sharesShape reports whether the target's point and a candidate upstream
// point agree on every qualified leaf they have in common, and have at
// least one leaf in common at all. Matching on the shared-key intersection,
// rather than projecting onto the immediate edge source's own namespace,
// is what makes this work across a _Ref chain: a node that inlines an
// ancestor's shape two hops back carries that ancestor's own qualified key
// directly (e.g. "NA.a"), not a key namespaced to its immediate upstream.
func sharesShape(target, candidate state.Point) bool {
	common := false
	for k, v := range candidate {
		tv, ok := target[k]
		if !ok {
			continue
		}
		common = true
		if tv != v {
			return false
		}
	}
	return common
}
