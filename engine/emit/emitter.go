package emit

import "context"

// Emitter receives observability events from a Submitter run. Implementations
// must not block the dispatch loop for long, and must not panic.
type Emitter interface {
	Emit(event Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}
