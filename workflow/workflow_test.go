package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
)

func addTwo(_ context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"out": in["a"].(int) + 2}, nil
}

// TestWorkflow_Inheritance mirrors spec.md S5: NB has no mapper of its own,
// so connecting NA.out into NB.a auto-inherits NA's shape via a Ref.
func TestWorkflow_Inheritance(t *testing.T) {
	w := New("wf5")
	_, err := w.Add(addTwo, WithName("NA"), WithOutputs("out"),
		WithMapper(mapper.F("a")), WithInputs(map[string]any{"a": []any{3, 5}}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Add(addTwo, WithName("NB"), WithOutputs("out")); err != nil {
		t.Fatal(err)
	}
	if err := w.Connect("NA", "out", "NB", "a"); err != nil {
		t.Fatal(err)
	}
	if err := w.Export("NB", "out", "NB_out"); err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareState(nil); err != nil {
		t.Fatal(err)
	}
	for o := 0; o < w.Len(); o++ {
		if _, _, err := w.RunPoint(context.Background(), o, nil); err != nil {
			t.Fatal(err)
		}
	}
	got := map[int]bool{}
	for _, r := range w.Result("NB_out") {
		got[r.Value.(int)] = true
	}
	if !got[7] || !got[9] {
		t.Errorf("expected {7,9} (NA.out+2), got %+v", w.Result("NB_out"))
	}
}

// TestWorkflow_WorkflowLevelMapper mirrors spec.md S8: a workflow-level
// mapper drives one inner pass per outer point, binding each outer value
// into the connected inner node's field via ConnectWFInput.
func TestWorkflow_WorkflowLevelMapper(t *testing.T) {
	w := New("wf8")
	if _, err := w.Add(addTwo, WithName("NA"), WithOutputs("out")); err != nil {
		t.Fatal(err)
	}
	if err := w.ConnectWFInput("wfa", "NA", "a"); err != nil {
		t.Fatal(err)
	}
	if err := w.Map(mapper.F("wfa"), map[string]any{"wfa": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Export("NA", "out", "NA_out"); err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareState(nil); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 2 {
		t.Fatalf("expected 2 outer points, got %d", w.Len())
	}
	for o := 0; o < w.Len(); o++ {
		if _, _, err := w.RunPoint(context.Background(), o, nil); err != nil {
			t.Fatal(err)
		}
	}
	recs := w.Result("NA_out")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for _, r := range recs {
		if r.Outer == nil {
			t.Errorf("record %+v missing outer wrap", r)
		}
	}
}

// TestWorkflow_DuplicateExportName mirrors spec.md S9: two exports landing
// on the same external name are rejected at PrepareState.
func TestWorkflow_DuplicateExportName(t *testing.T) {
	w := New("wf9")
	if _, err := w.Add(addTwo, WithName("NA"), WithOutputs("out"),
		WithMapper(mapper.F("a")), WithInputs(map[string]any{"a": []any{3}})); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Add(addTwo, WithName("NB"), WithOutputs("out"),
		WithMapper(mapper.F("a")), WithInputs(map[string]any{"a": []any{1}})); err != nil {
		t.Fatal(err)
	}
	if err := w.Export("NA", "out", "wf_out"); err != nil {
		t.Fatal(err)
	}
	if err := w.Export("NB", "out", "wf_out"); err != nil {
		t.Fatal(err)
	}
	err := w.PrepareState(nil)
	var dup *enginerr.DuplicateOutputNameError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateOutputNameError, got %v", err)
	}
}

// TestWorkflow_EdgeOverMappedInput mirrors spec.md §6's conflict rule: an
// edge into a field the target already names explicitly in its own mapper
// is rejected rather than silently overridden.
func TestWorkflow_EdgeOverMappedInput(t *testing.T) {
	w := New("wf_conflict")
	if _, err := w.Add(addTwo, WithName("NA"), WithOutputs("out"),
		WithMapper(mapper.F("a")), WithInputs(map[string]any{"a": []any{3}})); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Add(addTwo, WithName("NB"), WithOutputs("out"),
		WithMapper(mapper.F("a"))); err != nil {
		t.Fatal(err)
	}
	err := w.Connect("NA", "out", "NB", "a")
	var conflict *enginerr.EdgeOverMappedInputError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected EdgeOverMappedInputError, got %v", err)
	}
}
