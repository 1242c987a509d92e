package plugin

import (
	"context"
	"fmt"
)

// Serial runs every job inline on the calling goroutine: no concurrency,
// deterministic ordering, the default for debugging and small runs.
type Serial struct{}

func NewSerial() *Serial { return &Serial{} }

func (s *Serial) Submit(ctx context.Context, job Job) (Future, error) {
	if job.RunFunc == nil {
		return nil, fmt.Errorf("plugin: serial requires Job.RunFunc")
	}
	out, err := job.RunFunc(ctx)
	return immediateFuture{out: out, err: err}, nil
}

func (s *Serial) Close() error { return nil }
