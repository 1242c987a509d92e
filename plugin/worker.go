package plugin

import "context"

// RunRemote looks up job.ComputeName in registry and invokes it, turning a
// returned error into a WorkerResponse.Err string so it survives the
// gob/RPC boundary back to the caller.
func RunRemote(ctx context.Context, registry *ComputeRegistry, job RemoteJob) WorkerResponse {
	fn, err := registry.Lookup(job.ComputeName)
	if err != nil {
		return WorkerResponse{Err: err.Error()}
	}
	out, err := fn(ctx, job.Inputs)
	if err != nil {
		return WorkerResponse{Err: err.Error()}
	}
	return WorkerResponse{Out: out}
}

// Worker is the net/rpc service cmd/pipegraph-worker exposes in distributed
// mode. Run looks the job's compute up in DefaultRegistry, the same registry
// a process-mode worker consults.
type Worker struct{}

func (w *Worker) Run(job RemoteJob, resp *WorkerResponse) error {
	*resp = RunRemote(context.Background(), DefaultRegistry, job)
	return nil
}
