// Package state holds the enumerated state points produced by mapper
// expansion, together with a reverse index and the projection operation
// used to join a downstream node's points against an upstream's results.
package state

import (
	"fmt"
	"sort"
	"strings"
)

// Point is a single state point: a mapping from qualified leaf ("Node.field")
// to its concrete value for this point.
type Point map[string]any

// Clone returns a shallow copy of the point.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new point containing the union of p and other. Callers
// are responsible for checking key collisions before calling Merge when a
// collision would be an error (see mapper.Outer expansion).
func (p Point) Merge(other Point) Point {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Key returns the canonical state key for the point: qualified leaves in
// sorted order joined with their values. Two points with identical
// leaf/value pairs always produce the same key regardless of map iteration
// order, which is what result-sorting and upstream/downstream joins rely on.
func (p Point) Key() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ";")
}

// SortedKeys returns the point's qualified leaves in sorted order, the
// "sorted-leaf-keys" ordering spec.md's Testable Properties section sorts
// results by.
func (p Point) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State is the ordered enumeration of points produced by expanding one
// node's mapper over its bound inputs.
type State struct {
	Points []Point
}

// Values is the reverse index: given an ordinal, return the state point.
func (s *State) Values(ordinal int) (Point, error) {
	if ordinal < 0 || ordinal >= len(s.Points) {
		return nil, fmt.Errorf("state: ordinal %d out of range [0,%d)", ordinal, len(s.Points))
	}
	return s.Points[ordinal], nil
}

// Len returns the number of state points, P in spec.md's notation.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Project restricts each point to the leaves belonging to the given node
// namespace ("NodeName"), dropping leaves owned by other nodes. Used when a
// downstream node's state extends an upstream's and must read the
// upstream's results keyed by only its own leaves.
func (s *State) Project(namespace string) []Point {
	prefix := namespace + "."
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		proj := Point{}
		for k, v := range p {
			if strings.HasPrefix(k, prefix) {
				proj[k] = v
			}
		}
		out = append(out, proj)
	}
	return out
}

// Bindings is a node's input binding: a mapping from qualified field name to
// either a scalar value or a finite sequence of values. Sequences are kept
// as []any; scalars are kept unwrapped so mapper.Expand can tell the two
// apart without reflection tricks.
type Bindings struct {
	sequences map[string][]any
	scalars   map[string]any
}

// NewBindings returns an empty Bindings.
func NewBindings() *Bindings {
	return &Bindings{sequences: map[string][]any{}, scalars: map[string]any{}}
}

// SetScalar binds a qualified field to a single scalar value.
func (b *Bindings) SetScalar(qualified string, v any) {
	delete(b.sequences, qualified)
	b.scalars[qualified] = v
}

// SetSequence binds a qualified field to a finite ordered sequence of values.
func (b *Bindings) SetSequence(qualified string, values []any) {
	delete(b.scalars, qualified)
	b.sequences[qualified] = values
}

// Sequence returns the sequence bound to qualified, and true if it is bound
// as a sequence (as opposed to a scalar or not bound at all).
func (b *Bindings) Sequence(qualified string) ([]any, bool) {
	v, ok := b.sequences[qualified]
	return v, ok
}

// Scalar returns the scalar bound to qualified, and true if it is bound as
// a scalar.
func (b *Bindings) Scalar(qualified string) (any, bool) {
	v, ok := b.scalars[qualified]
	return v, ok
}

// Scalars returns a copy of every scalar binding, qualified field to value.
func (b *Bindings) Scalars() map[string]any {
	out := make(map[string]any, len(b.scalars))
	for k, v := range b.scalars {
		out[k] = v
	}
	return out
}

// Has reports whether qualified is bound at all, scalar or sequence.
func (b *Bindings) Has(qualified string) bool {
	if _, ok := b.scalars[qualified]; ok {
		return true
	}
	_, ok := b.sequences[qualified]
	return ok
}

// Merge copies every binding from other into b, overwriting collisions.
func (b *Bindings) Merge(other *Bindings) {
	for k, v := range other.scalars {
		b.scalars[k] = v
	}
	for k, v := range other.sequences {
		b.sequences[k] = v
	}
}
