package workflow

import "github.com/pipegraph/pipegraph/mapper"

type nodeSpec struct {
	name        string
	workingDir  string
	computeName string
	outputs     []string
	inputs      map[string]any
	mapperExpr  mapper.Expr
	connects    map[string]string
}

// NodeOption configures a node built inline via Workflow.Add.
type NodeOption func(*nodeSpec)

// WithName sets the node's name. Required.
func WithName(name string) NodeOption {
	return func(s *nodeSpec) { s.name = name }
}

// WithOutputs declares the node's output names.
func WithOutputs(names ...string) NodeOption {
	return func(s *nodeSpec) { s.outputs = names }
}

// WithInputs binds the node's own inputs, same semantics as pnode.SetInputs.
func WithInputs(kv map[string]any) NodeOption {
	return func(s *nodeSpec) { s.inputs = kv }
}

// WithMapper attaches the node's own mapper.
func WithMapper(expr mapper.Expr) NodeOption {
	return func(s *nodeSpec) { s.mapperExpr = expr }
}

// WithNodeWorkingDir attaches an opaque working directory to the node.
func WithNodeWorkingDir(dir string) NodeOption {
	return func(s *nodeSpec) { s.workingDir = dir }
}

// WithNodeComputeName registers the node's compute for out-of-process
// dispatch (see pnode.WithComputeName).
func WithNodeComputeName(name string) NodeOption {
	return func(s *nodeSpec) { s.computeName = name }
}

// WithConnect wires field to ref, where ref is either "SourceNode.output"
// (an edge, via Workflow.Connect) or a bare workflow-level input field name
// (via Workflow.ConnectWFInput).
func WithConnect(field, ref string) NodeOption {
	return func(s *nodeSpec) { s.connects[field] = ref }
}
