package plugin

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// WorkerPool runs jobs on a bounded goroutine pool (github.com/panjf2000/ants),
// pydra's "cf" (concurrent.futures) plugin.
type WorkerPool struct {
	pool *ants.Pool
}

// NewWorkerPool starts a pool with size concurrent workers.
func NewWorkerPool(size int) (*WorkerPool, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("plugin: workerpool: %w", err)
	}
	return &WorkerPool{pool: pool}, nil
}

type chanFuture struct {
	done chan struct{}
	out  map[string]any
	err  error
}

func (f *chanFuture) Wait(ctx context.Context) (map[string]any, error) {
	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *WorkerPool) Submit(ctx context.Context, job Job) (Future, error) {
	if job.RunFunc == nil {
		return nil, fmt.Errorf("plugin: workerpool requires Job.RunFunc")
	}
	f := &chanFuture{done: make(chan struct{})}
	err := w.pool.Submit(func() {
		defer close(f.done)
		f.out, f.err = job.RunFunc(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("plugin: workerpool submit: %w", err)
	}
	return f, nil
}

func (w *WorkerPool) Close() error {
	w.pool.Release()
	return nil
}
