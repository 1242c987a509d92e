package dag

import (
	"context"
	"testing"

	"github.com/pipegraph/pipegraph/pnode"
)

func mustNode(name string) *pnode.Node {
	return pnode.New(name, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"out": nil}, nil
	}, []string{"out"})
}

func TestGraph_ConnectUnknownNode(t *testing.T) {
	g := New()
	g.AddNode(mustNode("A"))
	err := g.Connect(Edge{Source: "A", SourceOutput: "out", Target: "B", TargetInput: "in"})
	if err == nil {
		t.Fatal("expected UnknownNodeError")
	}
}

func TestGraph_CycleRejected(t *testing.T) {
	g := New()
	g.AddNode(mustNode("A"))
	g.AddNode(mustNode("B"))
	if err := g.Connect(Edge{Source: "A", SourceOutput: "out", Target: "B", TargetInput: "in"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(Edge{Source: "B", SourceOutput: "out", Target: "A", TargetInput: "in"}); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestGraph_TopoOrder(t *testing.T) {
	g := New()
	g.AddNode(mustNode("A"))
	g.AddNode(mustNode("B"))
	g.AddNode(mustNode("C"))
	_ = g.Connect(Edge{Source: "A", SourceOutput: "out", Target: "B", TargetInput: "in"})
	_ = g.Connect(Edge{Source: "B", SourceOutput: "out", Target: "C", TargetInput: "in"})
	order, err := g.TopoOrder()
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if !(pos["A"] < pos["B"] && pos["B"] < pos["C"]) {
		t.Errorf("unexpected order: %v", order)
	}
}
