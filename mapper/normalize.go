package mapper

import (
	"strings"

	"github.com/pipegraph/pipegraph/enginerr"
)

// Lookup resolves another node's already-normalized mapper by name, for
// inlining Ref expressions. It returns (nil, nil) for a node that has no
// mapper of its own; Normalize then replaces the Ref with a Leaf named after
// the referenced node itself ("NA"), which Expand reports as an
// enginerr.UnboundLeafError unless a binding of exactly that name exists.
type Lookup func(node string) (Expr, error)

// Normalize rewrites every unqualified leaf under owner to "owner.field",
// and inlines every Ref to the referenced node's own normalized mapper with
// all of its leaves already qualified to that node's namespace. Cycles
// through Ref chains are reported as enginerr.MapperCycleError.
func Normalize(owner string, raw Expr, lookup Lookup) (Expr, error) {
	return normalize(owner, raw, lookup, map[string]bool{owner: true})
}

func normalize(owner string, raw Expr, lookup Lookup, inProgress map[string]bool) (Expr, error) {
	if raw == nil {
		return nil, nil
	}
	switch e := raw.(type) {
	case Leaf:
		if strings.Contains(e.Qualified, ".") {
			return e, nil
		}
		return Leaf{Qualified: owner + "." + e.Qualified}, nil
	case Scalar:
		children, err := normalizeChildren(owner, e.Children, lookup, inProgress)
		if err != nil {
			return nil, err
		}
		return Scalar{Children: children}, nil
	case Outer:
		children, err := normalizeChildren(owner, e.Children, lookup, inProgress)
		if err != nil {
			return nil, err
		}
		return Outer{Children: children}, nil
	case Ref:
		if inProgress[e.Node] {
			return nil, &enginerr.MapperCycleError{Node: e.Node}
		}
		referenced, err := lookup(e.Node)
		if err != nil {
			return nil, err
		}
		if referenced == nil {
			return Leaf{Qualified: e.Node}, nil
		}
		inProgress[e.Node] = true
		normalized, err := normalize(e.Node, referenced, lookup, inProgress)
		delete(inProgress, e.Node)
		return normalized, err
	default:
		return raw, nil
	}
}

func normalizeChildren(owner string, children []Expr, lookup Lookup, inProgress map[string]bool) ([]Expr, error) {
	out := make([]Expr, len(children))
	for i, c := range children {
		n, err := normalize(owner, c, lookup, inProgress)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
