package plugin

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os/exec"
)

// gob requires every concrete type that ever rides through an interface{}
// field (RemoteJob.Inputs, WorkerResponse.Out) to be registered once, since
// it can't discover them from the static map[string]any type alone. Register
// the scalar kinds the built-in demo computes trade in; a caller with richer
// payloads needs to extend this.
func init() {
	gob.Register(0)
	gob.Register(0.0)
	gob.Register("")
	gob.Register(false)
	gob.Register([]any{})
}

// WorkerResponse is the gob-encoded reply a pipegraph-worker subprocess
// writes to stdout: either Out is populated, or Err carries the compute's
// error message.
type WorkerResponse struct {
	Out map[string]any
	Err string
}

// ProcessPool runs each job in its own pipegraph-worker subprocess,
// communicating the RemoteJob and WorkerResponse over stdin/stdout with
// encoding/gob, pydra's "mp" (multiprocessing) plugin. Concurrency is capped
// by a semaphore sized to match the pool's worker count.
type ProcessPool struct {
	workerPath string
	sem        chan struct{}
}

// NewProcessPool points at the pipegraph-worker binary built from
// cmd/pipegraph-worker, allowing up to concurrency subprocesses in flight.
func NewProcessPool(workerPath string, concurrency int) *ProcessPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ProcessPool{workerPath: workerPath, sem: make(chan struct{}, concurrency)}
}

func (p *ProcessPool) Submit(ctx context.Context, job Job) (Future, error) {
	if job.Remote == nil {
		return nil, fmt.Errorf("plugin: processpool requires Job.Remote (register the compute with plugin.DefaultRegistry.Register)")
	}
	f := &chanFuture{done: make(chan struct{})}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	go func() {
		defer close(f.done)
		defer func() { <-p.sem }()
		f.out, f.err = p.runOnce(ctx, *job.Remote)
	}()
	return f, nil
}

func (p *ProcessPool) runOnce(ctx context.Context, job RemoteJob) (map[string]any, error) {
	var in bytes.Buffer
	if err := gob.NewEncoder(&in).Encode(job); err != nil {
		return nil, fmt.Errorf("plugin: processpool: encode job: %w", err)
	}
	cmd := exec.CommandContext(ctx, p.workerPath, "-mode=process")
	cmd.Stdin = &in
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("plugin: processpool: worker failed: %w: %s", err, stderr.String())
	}
	var resp WorkerResponse
	if err := gob.NewDecoder(&out).Decode(&resp); err != nil {
		return nil, fmt.Errorf("plugin: processpool: decode response: %w", err)
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("%s", resp.Err)
	}
	return resp.Out, nil
}

func (p *ProcessPool) Close() error { return nil }

// remoteOnly marks ProcessPool as a plugin that executes Job.Remote itself
// and never calls Job.RunFunc, so a Submitter knows to record the result
// after Future.Wait returns instead of relying on RunFunc's own bookkeeping.
func (p *ProcessPool) remoteOnly() {}
