package plugin

import (
	"context"
	"sync"

	"github.com/pipegraph/pipegraph/enginerr"
)

// ComputeFunc is the registrable form of pnode.Compute: a named callable an
// out-of-process worker can look up by name, since it cannot receive an
// arbitrary closure the way an in-process goroutine can.
type ComputeFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// ComputeRegistry maps stable names to ComputeFuncs, so processpool and
// distributed workers (separate process, sometimes a separate binary) can
// run a job they received only as a name plus its inputs. Register every
// compute a program intends to run out-of-process before starting a worker.
type ComputeRegistry struct {
	mu    sync.RWMutex
	funcs map[string]ComputeFunc
}

// DefaultRegistry is the process-wide registry cmd/pipegraph-worker consults.
var DefaultRegistry = NewComputeRegistry()

func NewComputeRegistry() *ComputeRegistry {
	return &ComputeRegistry{funcs: map[string]ComputeFunc{}}
}

func (r *ComputeRegistry) Register(name string, fn ComputeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *ComputeRegistry) Lookup(name string) (ComputeFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, &enginerr.UnknownComputeError{Name: name}
	}
	return fn, nil
}

// Factory constructs an execution Plugin on demand. Registered lazily
// rather than as a pre-built Plugin so a backend that needs runtime
// arguments (processpool's worker path, distributed's address list) can
// still be named in the Registry without the Registry itself carrying
// arbitrary config.
type Factory func() (Plugin, error)

// Registry maps a stable execution-backend name ("serial", "workerpool",
// "processpool", "distributed") to the Factory that builds it, so a caller
// can name a plugin string and fail fast on an unknown one rather than
// discovering a nil plugin deep in a Submitter's dispatch loop (spec.md
// §7.2, pydra's own Submitter(plugin=<string>) construction-time check).
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Factory
}

// NewRegistry returns an empty plugin Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Factory{}}
}

// Register associates name with the Factory that builds it.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = f
}

// Build resolves name to its Factory and invokes it, or fails immediately
// with enginerr.UnknownPluginError if name was never registered.
func (r *Registry) Build(name string) (Plugin, error) {
	r.mu.RLock()
	f, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &enginerr.UnknownPluginError{Name: name}
	}
	return f()
}
