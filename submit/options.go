package submit

import (
	"github.com/pipegraph/pipegraph/engine/emit"
	"github.com/pipegraph/pipegraph/engine/metrics"
)

// Option configures a Submitter at construction time.
type Option func(*Submitter)

// WithRunID overrides the submitter's auto-generated run identifier, for
// callers that want their own correlation ID in emitted events and metrics.
func WithRunID(id string) Option {
	return func(s *Submitter) { s.runID = id }
}

// WithEmitter attaches an observability sink. The default is emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(s *Submitter) { s.emitter = e }
}

// WithMetrics attaches a Prometheus recorder. Metrics are skipped entirely
// when none is configured.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Submitter) { s.metrics = m }
}

// WithNodeOverrides pins field/value pairs for every ordinal of node during
// this run, on top of whatever the dependency resolver computes from
// upstream edges. The Workflow component uses this to bind a workflow-level
// input's current outer value into a connected node before re-driving its
// inner graph for that outer point (spec.md §4.5, §9).
func WithNodeOverrides(node string, kv map[string]any) Option {
	return func(s *Submitter) {
		if s.extraOverrides[node] == nil {
			s.extraOverrides[node] = map[string]any{}
		}
		for k, v := range kv {
			s.extraOverrides[node][k] = v
		}
	}
}
