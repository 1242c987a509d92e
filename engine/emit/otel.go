package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a span, so a run's point dispatch shows
// up in whatever trace backend the process is wired to.
type OTelEmitter struct {
	tracer trace.Tracer
}

func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(e Event) {
	_, span := o.tracer.Start(context.Background(), e.Msg)
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", e.RunID),
		attribute.String("node", e.Node),
		attribute.Int("ordinal", e.Ordinal),
	)
	if e.Msg == PointFailed || e.Msg == RunFailed {
		span.SetStatus(codes.Error, e.Msg)
		if errVal, ok := e.Meta["error"]; ok {
			if s, ok := errVal.(string); ok {
				span.SetAttributes(attribute.String("error", s))
			}
		}
	}
}

func (o *OTelEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

func (o *OTelEmitter) Flush(context.Context) error { return nil }
