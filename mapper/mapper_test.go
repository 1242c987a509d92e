package mapper

import (
	"testing"

	"github.com/pipegraph/pipegraph/state"
)

func bindSeq(b *state.Bindings, key string, values ...any) {
	b.SetSequence(key, values)
}

func TestNormalize_QualifiesBareLeaves(t *testing.T) {
	raw := Z(F("b"), F("c"))
	norm, err := Normalize("NA", raw, func(string) (Expr, error) { return nil, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := norm.String(); got != "(NA.b, NA.c)" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_InlinesReference(t *testing.T) {
	naMapper := Z(Leaf{Qualified: "NA.b"}, Leaf{Qualified: "NA.c"})
	raw := Z(R("NA"), F("d"))
	norm, err := Normalize("NB", raw, func(node string) (Expr, error) {
		if node == "NA" {
			return naMapper, nil
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "((NA.b, NA.c), NB.d)"
	if got := norm.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalize_DetectsCycle(t *testing.T) {
	var lookup Lookup
	lookup = func(node string) (Expr, error) {
		return Normalize(node, R("NB"), lookup)
	}
	_, err := Normalize("NA", R("NB"), lookup)
	if err == nil {
		t.Fatal("expected a mapper cycle error")
	}
}

func TestExpand_Leaf(t *testing.T) {
	b := state.NewBindings()
	bindSeq(b, "NA.a", 3, 5)
	pts, err := Expand(Leaf{Qualified: "NA.a"}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[0]["NA.a"] != 3 || pts[1]["NA.a"] != 5 {
		t.Errorf("unexpected points: %v", pts)
	}
}

func TestExpand_LeafScalar(t *testing.T) {
	b := state.NewBindings()
	b.SetScalar("NA.a", 3)
	pts, err := Expand(Leaf{Qualified: "NA.a"}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 1 || pts[0]["NA.a"] != 3 {
		t.Errorf("unexpected points: %v", pts)
	}
}

// TestExpand_ScalarProduct mirrors pydra's test_node_7: scalar mapper (b, c)
// over b=[3,5], c=[2,1] yields 2 zipped points.
func TestExpand_ScalarProduct(t *testing.T) {
	b := state.NewBindings()
	bindSeq(b, "NA.b", 3, 5)
	bindSeq(b, "NA.c", 2, 1)
	pts, err := Expand(Scalar{Children: []Expr{Leaf{"NA.b"}, Leaf{"NA.c"}}}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[0]["NA.b"] != 3 || pts[0]["NA.c"] != 2 {
		t.Errorf("point 0: %v", pts[0])
	}
	if pts[1]["NA.b"] != 5 || pts[1]["NA.c"] != 1 {
		t.Errorf("point 1: %v", pts[1])
	}
}

func TestExpand_ScalarShapeMismatch(t *testing.T) {
	b := state.NewBindings()
	bindSeq(b, "NA.b", 3, 5)
	bindSeq(b, "NA.c", 2)
	_, err := Expand(Scalar{Children: []Expr{Leaf{"NA.b"}, Leaf{"NA.c"}}}, b)
	if err == nil {
		t.Fatal("expected a scalar shape error")
	}
}

// TestExpand_OuterProduct mirrors pydra's test_node_8: outer mapper [b, c]
// over b=[3,5], c=[2,1] yields 4 points, last child varying fastest.
func TestExpand_OuterProduct(t *testing.T) {
	b := state.NewBindings()
	bindSeq(b, "NA.b", 3, 5)
	bindSeq(b, "NA.c", 2, 1)
	pts, err := Expand(Outer{Children: []Expr{Leaf{"NA.b"}, Leaf{"NA.c"}}}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pts))
	}
	want := []state.Point{
		{"NA.b": 3, "NA.c": 2},
		{"NA.b": 3, "NA.c": 1},
		{"NA.b": 5, "NA.c": 2},
		{"NA.b": 5, "NA.c": 1},
	}
	for i, w := range want {
		if pts[i]["NA.b"] != w["NA.b"] || pts[i]["NA.c"] != w["NA.c"] {
			t.Errorf("point %d: got %v, want %v", i, pts[i], w)
		}
	}
}

func TestExpand_OuterDuplicateLeaf(t *testing.T) {
	b := state.NewBindings()
	bindSeq(b, "NA.a", 1, 2)
	_, err := Expand(Outer{Children: []Expr{Leaf{"NA.a"}, Leaf{"NA.a"}}}, b)
	if err == nil {
		t.Fatal("expected a duplicate leaf error")
	}
}

func TestExpand_UnboundLeaf(t *testing.T) {
	b := state.NewBindings()
	_, err := Expand(Leaf{Qualified: "NA.missing"}, b)
	if err == nil {
		t.Fatal("expected an unbound leaf error")
	}
}
