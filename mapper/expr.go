// Package mapper implements the mapper algebra: a small recursive algebraic
// expression language that describes how a node's bound inputs expand into
// an ordered family of concrete state points.
//
// An expression has one of four shapes: a leaf field reference, a scalar
// (zipped) product, an outer (cartesian) product, or a reference to another
// node's mapper that gets inlined at normalization time.
package mapper

import "strings"

// Expr is a mapper expression. The concrete types are Leaf, Scalar, Outer,
// and Ref; callers switch on the dynamic type or use the String method for
// diagnostics.
type Expr interface {
	isExpr()
	String() string
}

// Leaf references a single input field. Before normalization, Qualified may
// be a bare field name ("a"); after normalization it is always of the form
// "NodeName.field".
type Leaf struct {
	Qualified string
}

func (Leaf) isExpr()        {}
func (l Leaf) String() string { return l.Qualified }

// Scalar is the zipped ("scalar") product: written as a tuple in the
// surface syntax. All children must expand to the same point count.
type Scalar struct {
	Children []Expr
}

func (Scalar) isExpr() {}
func (s Scalar) String() string {
	return "(" + joinExpr(s.Children) + ")"
}

// Outer is the cartesian product: written as a list in the surface syntax.
type Outer struct {
	Children []Expr
}

func (Outer) isExpr() {}
func (o Outer) String() string {
	return "[" + joinExpr(o.Children) + "]"
}

// Ref is a "_NodeName" placeholder that inlines another node's normalized
// mapper, with every leaf requalified to that node's namespace.
type Ref struct {
	Node string
}

func (Ref) isExpr()        {}
func (r Ref) String() string { return "_" + r.Node }

func joinExpr(children []Expr) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// F builds a leaf expression for the given field name. It is the surface
// constructor for a plain string mapper such as "a".
func F(field string) Expr { return Leaf{Qualified: field} }

// Z builds a scalar (zipped) product expression, the surface constructor
// for a tuple mapper such as ("b", "c").
func Z(children ...Expr) Expr { return Scalar{Children: children} }

// X builds an outer (cartesian) product expression, the surface constructor
// for a list mapper such as ["b", "c"].
func X(children ...Expr) Expr { return Outer{Children: children} }

// R builds a mapper-reference expression, the surface constructor for a
// "_NodeName" token.
func R(node string) Expr { return Ref{Node: node} }
