package plugin

import (
	"context"
	"fmt"
	"net/rpc"
	"sync/atomic"
)

// Distributed dispatches jobs to a fixed set of pipegraph-worker processes
// listening over net/rpc, pydra's "dask" plugin. Addresses are round-robined;
// a worker's Worker.Run method looks the compute up in plugin.DefaultRegistry,
// the same way ProcessPool's subprocess does.
type Distributed struct {
	clients []*rpc.Client
	next    uint64
}

// NewDistributed dials every address in addrs and keeps the connections open
// for the lifetime of the plugin.
func NewDistributed(addrs []string) (*Distributed, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("plugin: distributed requires at least one worker address")
	}
	clients := make([]*rpc.Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := rpc.Dial("tcp", addr)
		if err != nil {
			for _, opened := range clients {
				opened.Close()
			}
			return nil, fmt.Errorf("plugin: distributed: dial %s: %w", addr, err)
		}
		clients = append(clients, c)
	}
	return &Distributed{clients: clients}, nil
}

type rpcFuture struct {
	call *rpc.Call
	resp *WorkerResponse
}

func (f *rpcFuture) Wait(ctx context.Context) (map[string]any, error) {
	select {
	case <-f.call.Done:
		if f.call.Error != nil {
			return nil, f.call.Error
		}
		if f.resp.Err != "" {
			return nil, fmt.Errorf("%s", f.resp.Err)
		}
		return f.resp.Out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Distributed) Submit(_ context.Context, job Job) (Future, error) {
	if job.Remote == nil {
		return nil, fmt.Errorf("plugin: distributed requires Job.Remote (register the compute with plugin.DefaultRegistry.Register)")
	}
	idx := atomic.AddUint64(&d.next, 1) % uint64(len(d.clients))
	client := d.clients[idx]
	resp := &WorkerResponse{}
	call := client.Go("Worker.Run", *job.Remote, resp, nil)
	return &rpcFuture{call: call, resp: resp}, nil
}

// remoteOnly marks Distributed the same way ProcessPool.remoteOnly does.
func (d *Distributed) remoteOnly() {}

func (d *Distributed) Close() error {
	var firstErr error
	for _, c := range d.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
