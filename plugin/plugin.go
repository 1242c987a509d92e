// Package plugin implements the Execution plugin component (spec.md C7):
// the pluggable backend a Submitter dispatches individual state points to.
// Four backends are provided, named after pydra's own execution workers:
// serial (inline, no concurrency), workerpool (goroutine pool, pydra's
// "cf"), processpool (subprocess fan-out, pydra's "mp"), and distributed
// (RPC to remote workers, pydra's "dask").
package plugin

import "context"

// Job is the unit of work a Submitter hands to a Plugin. RunFunc is always
// set and is what serial and workerpool invoke directly, in-process.
//
// processpool and distributed cannot ship an arbitrary Go closure across a
// process boundary the way pydra ships a pickled Python callable, so they
// require Remote to be set: the compute must have been registered under a
// stable name (see Register), and the subprocess or RPC worker looks it up
// by that name instead of receiving the closure itself.
type Job struct {
	RunFunc func(ctx context.Context) (map[string]any, error)
	Remote  *RemoteJob
}

// RemoteJob is the serializable payload sent to an out-of-process worker:
// a registered compute name plus its bound, bare-field inputs for one point.
type RemoteJob struct {
	ComputeName string
	Inputs      map[string]any
}

// Future is the handle returned by Submit; Wait blocks until the job
// completes or ctx is done.
type Future interface {
	Wait(ctx context.Context) (map[string]any, error)
}

// Plugin dispatches Jobs to wherever it executes them: inline, a goroutine
// pool, subprocesses, or remote workers.
type Plugin interface {
	Submit(ctx context.Context, job Job) (Future, error)
	Close() error
}

// remoteOnly is implemented by plugins (ProcessPool, Distributed) that run
// Job.Remote themselves and never invoke Job.RunFunc. IsRemoteOnly lets a
// Submitter tell whether it must record a dispatched point's result itself
// after the Future resolves, since such a plugin never calls RunPoint.
type remoteOnly interface {
	remoteOnly()
}

// IsRemoteOnly reports whether p executes jobs out of process, via
// Job.Remote, rather than by calling Job.RunFunc in this process.
func IsRemoteOnly(p Plugin) bool {
	_, ok := p.(remoteOnly)
	return ok
}

// immediateFuture wraps an already-computed result.
type immediateFuture struct {
	out map[string]any
	err error
}

func (f immediateFuture) Wait(context.Context) (map[string]any, error) { return f.out, f.err }
