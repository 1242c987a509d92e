package mapper

import (
	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/state"
)

// Expand folds a normalized mapper expression and a set of input bindings
// into an ordered list of state points.
//
// Leaf: one point per element of the bound sequence, or a single point for
// a bound scalar.
//
// Scalar: expands every child, asserts all children produced the same
// point count L, and emits L points, each the union of the i-th point of
// every child.
//
// Outer: expands every child and emits the cartesian product, merging
// per-child maps; the last child varies fastest (row-major), matching the
// ordering contract in spec.md §4.1.
func Expand(e Expr, inputs *state.Bindings) ([]state.Point, error) {
	if e == nil {
		return []state.Point{{}}, nil
	}
	switch v := e.(type) {
	case Leaf:
		return expandLeaf(v, inputs)
	case Scalar:
		return expandScalar(v, inputs)
	case Outer:
		return expandOuter(v, inputs)
	case Ref:
		// Ref must be inlined by Normalize before Expand ever sees it.
		return nil, &enginerr.UnboundLeafError{Leaf: "_" + v.Node}
	default:
		return nil, &enginerr.UnboundLeafError{Leaf: e.String()}
	}
}

func expandLeaf(l Leaf, inputs *state.Bindings) ([]state.Point, error) {
	if seq, ok := inputs.Sequence(l.Qualified); ok {
		points := make([]state.Point, len(seq))
		for i, v := range seq {
			points[i] = state.Point{l.Qualified: v}
		}
		return points, nil
	}
	if v, ok := inputs.Scalar(l.Qualified); ok {
		return []state.Point{{l.Qualified: v}}, nil
	}
	return nil, &enginerr.UnboundLeafError{Leaf: l.Qualified}
}

func expandScalar(s Scalar, inputs *state.Bindings) ([]state.Point, error) {
	if len(s.Children) == 0 {
		return []state.Point{{}}, nil
	}
	childPoints := make([][]state.Point, len(s.Children))
	counts := make([]int, len(s.Children))
	for i, c := range s.Children {
		pts, err := Expand(c, inputs)
		if err != nil {
			return nil, err
		}
		childPoints[i] = pts
		counts[i] = len(pts)
	}
	length := counts[0]
	for _, c := range counts {
		if c != length {
			return nil, &enginerr.ScalarShapeError{Counts: counts}
		}
	}
	out := make([]state.Point, length)
	for i := 0; i < length; i++ {
		merged := state.Point{}
		for _, pts := range childPoints {
			merged = merged.Merge(pts[i])
		}
		out[i] = merged
	}
	return out, nil
}

func expandOuter(o Outer, inputs *state.Bindings) ([]state.Point, error) {
	if len(o.Children) == 0 {
		return []state.Point{{}}, nil
	}
	childPoints := make([][]state.Point, len(o.Children))
	for i, c := range o.Children {
		pts, err := Expand(c, inputs)
		if err != nil {
			return nil, err
		}
		childPoints[i] = pts
	}
	// Cartesian product, row-major: the last child varies fastest.
	out := []state.Point{{}}
	for _, pts := range childPoints {
		next := make([]state.Point, 0, len(out)*len(pts))
		for _, base := range out {
			for _, p := range pts {
				for k := range p {
					if _, dup := base[k]; dup {
						return nil, &enginerr.DuplicateLeafError{Leaf: k}
					}
				}
				next = append(next, base.Merge(p))
			}
		}
		out = next
	}
	return out, nil
}
