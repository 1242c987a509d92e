package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes one line per event, text or JSONL.
type LogEmitter struct {
	w        io.Writer
	jsonMode bool
}

func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{w: w, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(e Event) {
	if l.jsonMode {
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(l.w, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(l.w, "%s\n", data)
		return
	}
	fmt.Fprintf(l.w, "[%s] run=%s node=%s ordinal=%d", e.Msg, e.RunID, e.Node, e.Ordinal)
	if len(e.Meta) > 0 {
		if meta, err := json.Marshal(e.Meta); err == nil {
			fmt.Fprintf(l.w, " meta=%s", meta)
		}
	}
	fmt.Fprintln(l.w)
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

func (l *LogEmitter) Flush(context.Context) error { return nil }
