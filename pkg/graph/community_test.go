package graph

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

// two dense triangles joined by a single weak edge
func twoTriangles() ([]string, []WeightedEdge) {
	nodes := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	edges := []WeightedEdge{
		{A: "a1", B: "a2", Weight: 1},
		{A: "a2", B: "a3", Weight: 1},
		{A: "a1", B: "a3", Weight: 1},
		{A: "b1", B: "b2", Weight: 1},
		{A: "b2", B: "b3", Weight: 1},
		{A: "b1", B: "b3", Weight: 1},
		{A: "a3", B: "b1", Weight: 0.1},
	}
	return nodes, edges
}

func TestCommunitiesSplitsTriangles(t *testing.T) {
	nodes, edges := twoTriangles()
	assignment, q := Communities(nodes, edges)

	if assignment["a1"] != assignment["a2"] || assignment["a2"] != assignment["a3"] {
		t.Fatalf("first triangle should share a cluster: %+v", assignment)
	}
	if assignment["b1"] != assignment["b2"] || assignment["b2"] != assignment["b3"] {
		t.Fatalf("second triangle should share a cluster: %+v", assignment)
	}
	if assignment["a1"] == assignment["b1"] {
		t.Fatalf("triangles should separate: %+v", assignment)
	}
	// m = 6.1, internal weight 3 per triangle: Q = 2*(6/12.2 - (6.1/12.2)^2)
	if want := 0.48360655737704916; math.Abs(q-want) > 1e-9 {
		t.Fatalf("modularity of the split should be %f, got %f", want, q)
	}
	// ids are dense and numbered by lowest member key
	if assignment["a1"] != 0 || assignment["b1"] != 1 {
		t.Fatalf("cluster ids should be renumbered by lowest member: %+v", assignment)
	}
}

// A chain of dense triangles forces a second aggregation level. The
// collapsed super-nodes must keep the weight of their internal edges, or
// the weak bridges pull every triangle into one cluster.
func TestCommunitiesChainOfTrianglesStaysSplit(t *testing.T) {
	var nodes []string
	var edges []WeightedEdge
	for g := 0; g < 4; g++ {
		n1 := fmt.Sprintf("g%d-1", g)
		n2 := fmt.Sprintf("g%d-2", g)
		n3 := fmt.Sprintf("g%d-3", g)
		nodes = append(nodes, n1, n2, n3)
		edges = append(edges,
			WeightedEdge{A: n1, B: n2, Weight: 1},
			WeightedEdge{A: n2, B: n3, Weight: 1},
			WeightedEdge{A: n1, B: n3, Weight: 1},
		)
		if g > 0 {
			edges = append(edges, WeightedEdge{
				A: fmt.Sprintf("g%d-3", g-1), B: n1, Weight: 0.1,
			})
		}
	}

	assignment, q := Communities(nodes, edges)

	clusters := map[int]bool{}
	for g := 0; g < 4; g++ {
		c := assignment[fmt.Sprintf("g%d-1", g)]
		for _, suffix := range []string{"2", "3"} {
			key := fmt.Sprintf("g%d-%s", g, suffix)
			if assignment[key] != c {
				t.Fatalf("triangle %d should not be split: %+v", g, assignment)
			}
		}
		if clusters[c] {
			t.Fatalf("triangles should not merge across weak bridges: %+v", assignment)
		}
		clusters[c] = true
	}
	if q <= 0.4 {
		t.Fatalf("four-way split should score high modularity, got %f", q)
	}
}

func TestCommunitiesDeterministic(t *testing.T) {
	nodes, edges := twoTriangles()
	first, _ := Communities(nodes, edges)
	for i := 0; i < 10; i++ {
		again, _ := Communities(nodes, edges)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestCommunitiesSingletons(t *testing.T) {
	nodes := []string{"x", "y", "z"}
	assignment, q := Communities(nodes, nil)
	if len(assignment) != 3 {
		t.Fatalf("every node should be assigned: %+v", assignment)
	}
	seen := map[int]bool{}
	for _, c := range assignment {
		if seen[c] {
			t.Fatalf("isolated nodes should be singleton clusters: %+v", assignment)
		}
		seen[c] = true
	}
	if q != 0 {
		t.Fatalf("edgeless graph should have zero modularity, got %f", q)
	}
}

func TestCommunitiesIgnoresUnknownEndpoints(t *testing.T) {
	nodes := []string{"a", "b"}
	edges := []WeightedEdge{
		{A: "a", B: "b", Weight: 1},
		{A: "a", B: "ghost", Weight: 5},
	}
	assignment, _ := Communities(nodes, edges)
	if len(assignment) != 2 {
		t.Fatalf("only listed nodes should be assigned: %+v", assignment)
	}
	if assignment["a"] != assignment["b"] {
		t.Fatalf("connected pair should share a cluster: %+v", assignment)
	}
}

func TestCentrality(t *testing.T) {
	// star: hub connected to three leaves, plus an isolated node
	nodes := []string{"hub", "l1", "l2", "l3", "alone"}
	edges := []WeightedEdge{
		{A: "hub", B: "l1", Weight: 1},
		{A: "hub", B: "l2", Weight: 1},
		{A: "hub", B: "l3", Weight: 1},
	}
	c := Centrality(nodes, edges)
	if c["alone"] != 0 {
		t.Fatalf("isolated node should score 0, got %f", c["alone"])
	}
	for _, leaf := range []string{"l1", "l2", "l3"} {
		if c["hub"] <= c[leaf] {
			t.Fatalf("hub (%f) should outrank leaf %s (%f)", c["hub"], leaf, c[leaf])
		}
	}
	if c["l1"] != c["l2"] || c["l2"] != c["l3"] {
		t.Fatalf("symmetric leaves should score equally: %+v", c)
	}
}
