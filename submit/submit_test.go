package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/pipegraph/pipegraph/dag"
	"github.com/pipegraph/pipegraph/enginerr"
	"github.com/pipegraph/pipegraph/mapper"
	"github.com/pipegraph/pipegraph/plugin"
	"github.com/pipegraph/pipegraph/pnode"
)

func addTwo(_ context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"out": in["a"].(int) + 2}, nil
}

func tripleOut(_ context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"out": in["b"].(int) * 3}, nil
}

// TestSubmitter_ResolvesEdgeValue mirrors spec.md S5: NB's own state shape
// shares NA's qualified key (as a workflow's auto-inheritance would produce
// via Ref), but NB's compute must still see NA's actual output VALUE (not
// just a same-shaped point) bound to its own field, resolved from the edge.
func TestSubmitter_ResolvesEdgeValue(t *testing.T) {
	na := pnode.New("NA", addTwo, []string{"out"})
	if err := na.Map(mapper.F("a"), map[string]any{"a": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}
	nb := pnode.New("NB", tripleOut, []string{"out"})
	if err := nb.Map(mapper.Leaf{Qualified: "NA.a"}, map[string]any{"NA.a": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}

	g := dag.New()
	g.AddNode(na)
	g.AddNode(nb)
	if err := g.Connect(dag.Edge{Source: "NA", SourceOutput: "out", Target: "NB", TargetInput: "b"}); err != nil {
		t.Fatal(err)
	}

	s := New(g, plugin.NewSerial())
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := map[int]bool{}
	for _, r := range nb.Result("out") {
		got[r.Value.(int)] = true
	}
	// NA.a=3 -> NA.out=5 -> NB.out=15; NA.a=5 -> NA.out=7 -> NB.out=21.
	if !got[15] || !got[21] {
		t.Errorf("expected {15,21}, got %+v", nb.Result("out"))
	}
}

// TestSubmitter_RefChainPairsOrdinalsCorrectly mirrors spec.md S7: a two-hop
// Ref chain (NC's state shape carries NA's own qualified key straight
// through NB, the way a workflow's normalized-mapper inlining would produce
// it) must still pair each of NC's points with the correct corresponding NB
// ordinal, not collapse them all onto whichever ordinal resolves last.
func TestSubmitter_RefChainPairsOrdinalsCorrectly(t *testing.T) {
	na := pnode.New("NA", addTwo, []string{"out"})
	if err := na.Map(mapper.F("a"), map[string]any{"a": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}
	nb := pnode.New("NB", tripleOutAsAddTwo, []string{"out"})
	if err := nb.Map(mapper.Leaf{Qualified: "NA.a"}, map[string]any{"NA.a": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}
	nc := pnode.New("NC", tripleOut, []string{"out"})
	if err := nc.Map(mapper.Leaf{Qualified: "NA.a"}, map[string]any{"NA.a": []any{3, 5}}); err != nil {
		t.Fatal(err)
	}

	g := dag.New()
	g.AddNode(na)
	g.AddNode(nb)
	g.AddNode(nc)
	if err := g.Connect(dag.Edge{Source: "NA", SourceOutput: "out", Target: "NB", TargetInput: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(dag.Edge{Source: "NB", SourceOutput: "out", Target: "NC", TargetInput: "b"}); err != nil {
		t.Fatal(err)
	}

	s := New(g, plugin.NewSerial())
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := map[int]bool{}
	for _, r := range nc.Result("out") {
		got[r.Value.(int)] = true
	}
	// NA.a=3 -> NA.out=5 -> NB.out=7 -> NC.out=21
	// NA.a=5 -> NA.out=7 -> NB.out=9 -> NC.out=27
	if !got[21] || !got[27] {
		t.Errorf("expected {21,27} (each NC point paired with its own NB ordinal), got %+v", nc.Result("out"))
	}
}

func tripleOutAsAddTwo(_ context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"out": in["a"].(int) + 2}, nil
}

// TestSubmitter_DrainThenFail covers the failing end of spec.md §5's
// drain-then-fail policy: a node whose only point fails makes Run return an
// error. It does not observe the draining of other in-flight points.
func TestSubmitter_DrainThenFail(t *testing.T) {
	boom := func(_ context.Context, in map[string]any) (map[string]any, error) {
		return nil, errBoom
	}
	na := pnode.New("NA", boom, []string{"out"})
	if err := na.SetInputs(map[string]any{"a": 1}); err != nil {
		t.Fatal(err)
	}
	g := dag.New()
	g.AddNode(na)
	s := New(g, plugin.NewSerial())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

var errBoom = &boomErr{}

type boomErr struct{}

func (*boomErr) Error() string { return "boom" }

// TestNewByName_UnknownPlugin mirrors spec.md §7.2: a Submitter requested by
// an unregistered plugin name must fail fast at construction, not surface a
// nil plugin deep in Run's dispatch loop.
func TestNewByName_UnknownPlugin(t *testing.T) {
	g := dag.New()
	registry := plugin.NewRegistry()
	s, err := NewByName(g, registry, "missing")
	if s != nil {
		t.Error("expected a nil Submitter on an unknown plugin name")
	}
	var unknownPlugin *enginerr.UnknownPluginError
	if !errors.As(err, &unknownPlugin) {
		t.Fatalf("expected *enginerr.UnknownPluginError, got %v", err)
	}
	if unknownPlugin.Name != "missing" {
		t.Errorf("unexpected Name: %s", unknownPlugin.Name)
	}
}

// TestNewByName_Registered mirrors spec.md §7.2's happy path: a registered
// name resolves through the registry's Factory and the resulting Submitter
// runs exactly as one built directly over that plugin.
func TestNewByName_Registered(t *testing.T) {
	na := pnode.New("NA", addTwo, []string{"out"})
	if err := na.SetInputs(map[string]any{"a": 3}); err != nil {
		t.Fatal(err)
	}
	g := dag.New()
	g.AddNode(na)

	registry := plugin.NewRegistry()
	registry.Register("serial", func() (plugin.Plugin, error) {
		return plugin.NewSerial(), nil
	})

	s, err := NewByName(g, registry, "serial")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := na.Result("out")
	if len(res) != 1 || res[0].Value.(int) != 5 {
		t.Errorf("unexpected result: %+v", res)
	}
}
