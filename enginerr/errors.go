// Package enginerr defines the error taxonomy shared across the engine:
// assembly errors, mapper errors, execution errors, and state errors.
package enginerr

import "fmt"

// UnknownNodeError is raised when an edge or connection references a node
// that was never added to the graph.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node: %s", e.Node)
}

// CycleError is raised when inserting an edge would make the graph cyclic.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected at node: %s", e.Node)
}

// DuplicateOutputNameError is raised when two exported workflow outputs
// collide on the same external name.
type DuplicateOutputNameError struct {
	Name string
}

func (e *DuplicateOutputNameError) Error() string {
	return fmt.Sprintf("the key %s is already used in workflow.result", e.Name)
}

// EdgeOverMappedInputError is raised when a node input is both edge-connected
// and already covered by the node's own mapper.
type EdgeOverMappedInputError struct {
	Node  string
	Field string
}

func (e *EdgeOverMappedInputError) Error() string {
	return fmt.Sprintf("node %s: input %s is both edge-connected and mapped", e.Node, e.Field)
}

// MapperCycleError is raised when mapper-reference inlining (_NodeName) forms a cycle.
type MapperCycleError struct {
	Node string
}

func (e *MapperCycleError) Error() string {
	return fmt.Sprintf("mapper reference cycle detected at node: %s", e.Node)
}

// ScalarShapeError is raised when a scalar-product mapper's children do not
// all yield the same point count.
type ScalarShapeError struct {
	Node   string
	Counts []int
}

func (e *ScalarShapeError) Error() string {
	return fmt.Sprintf("node %s: scalar product children have mismatched lengths: %v", e.Node, e.Counts)
}

// DuplicateLeafError is raised when an outer-product mapper's children
// produce overlapping leaf keys.
type DuplicateLeafError struct {
	Node string
	Leaf string
}

func (e *DuplicateLeafError) Error() string {
	return fmt.Sprintf("node %s: duplicate leaf %s across outer product children", e.Node, e.Leaf)
}

// UnboundLeafError is raised when a mapper leaf has no corresponding input
// binding or inbound edge at expansion time.
type UnboundLeafError struct {
	Leaf string
}

func (e *UnboundLeafError) Error() string {
	return fmt.Sprintf("unbound mapper leaf: %s", e.Leaf)
}

// FrozenError is raised when assembly methods are called after submission.
type FrozenError struct {
	Node string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("node %s is frozen: state already prepared for a run", e.Node)
}

// UnknownPluginError is raised when a Submitter is constructed with an
// execution plugin name that was never registered in a plugin.Registry.
type UnknownPluginError struct {
	Name string
}

func (e *UnknownPluginError) Error() string {
	return fmt.Sprintf("unknown execution plugin: %s", e.Name)
}

// UnknownComputeError is raised when a RemoteJob names a compute that was
// never registered in a plugin.ComputeRegistry, distinct from an unknown
// execution plugin backend.
type UnknownComputeError struct {
	Name string
}

func (e *UnknownComputeError) Error() string {
	return fmt.Sprintf("unknown compute: %s", e.Name)
}

// NodeExecutionError wraps the first failure observed while dispatching a
// node's state points. It carries the node name, the failing ordinal, and
// the underlying cause so callers can errors.As/errors.Unwrap to it.
type NodeExecutionError struct {
	Node    string
	Ordinal int
	Cause   error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s point %d failed: %v", e.Node, e.Ordinal, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}
