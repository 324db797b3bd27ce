package basegraph

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func routeGrid(t *testing.T) *GridGraph {
	t.Helper()
	g := NewGridGraph(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{400, 400}}, 100, 0, DefaultPenalties())
	g.Init()
	return g
}

func TestShortestPathStraight(t *testing.T) {
	g := routeGrid(t)
	fr := g.centreID(0, 2)
	to := g.centreID(3, 2)
	g.OpenSinkFr(fr, 0)
	g.OpenSinkTo(to, 0)

	nodes, edges, cost := ShortestPath(g, []GridNodeID{fr}, []GridNodeID{to},
		NewGridCost(g), g.Heur([]GridNodeID{to}), math.Inf(1))

	if len(nodes) == 0 {
		t.Fatal("no path found")
	}
	if nodes[0] != fr || nodes[len(nodes)-1] != to {
		t.Fatalf("path endpoints %d..%d, want %d..%d", nodes[0], nodes[len(nodes)-1], fr, to)
	}

	// 3 cardinal hops + 2 straight crossings, sinks are free
	pens := g.Pens()
	want := 3*pens.HoriPen + 2*pens.HopPen
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("cost = %v, want %v", cost, want)
	}

	// first and last edges are the sinks
	if g.EdgeAt(edges[0]).Kind != KindSink || g.EdgeAt(edges[len(edges)-1]).Kind != KindSink {
		t.Error("path must start and end with sink edges")
	}

	// the route stays on one row
	for _, n := range nodes {
		if g.NodeAt(n).Y != 2 {
			t.Errorf("straight route left its row at node %d", n)
		}
	}
}

func TestShortestPathRespectsCutoff(t *testing.T) {
	g := routeGrid(t)
	fr := g.centreID(0, 0)
	to := g.centreID(3, 3)
	g.OpenSinkFr(fr, 0)
	g.OpenSinkTo(to, 0)

	nodes, _, _ := ShortestPath(g, []GridNodeID{fr}, []GridNodeID{to},
		NewGridCost(g), g.Heur([]GridNodeID{to}), 0.5)
	if len(nodes) != 0 {
		t.Error("cutoff should prevent any path")
	}
}

func TestShortestPathAvoidsClosedEdges(t *testing.T) {
	g := routeGrid(t)
	fr := g.centreID(0, 2)
	to := g.centreID(2, 2)
	g.OpenSinkFr(fr, 0)
	g.OpenSinkTo(to, 0)

	_, _, direct := ShortestPath(g, []GridNodeID{fr}, []GridNodeID{to},
		NewGridCost(g), g.Heur([]GridNodeID{to}), math.Inf(1))

	// close the straight corridor between the two cells
	mid := g.centreID(1, 2)
	for _, pair := range [][2]GridNodeID{{fr, mid}, {mid, to}} {
		id, ok := g.PrimaryEdgeBetween(pair[0], pair[1])
		if !ok {
			t.Fatal("missing corridor edge")
		}
		g.EdgeAt(id).closed = true
	}

	nodes, _, detour := ShortestPath(g, []GridNodeID{fr}, []GridNodeID{to},
		NewGridCost(g), g.Heur([]GridNodeID{to}), math.Inf(1))
	if len(nodes) == 0 {
		t.Fatal("detour should exist")
	}
	if detour <= direct {
		t.Errorf("detour cost %v should exceed direct cost %v", detour, direct)
	}
}

func TestShortestPathGeoPens(t *testing.T) {
	g := routeGrid(t)
	fr := g.centreID(0, 2)
	to := g.centreID(2, 2)
	g.OpenSinkFr(fr, 0)
	g.OpenSinkTo(to, 0)

	// penalize the straight corridor heavily
	pens := GeoPens{}
	mid := g.centreID(1, 2)
	for _, pair := range [][2]GridNodeID{{fr, mid}, {mid, to}} {
		id, _ := g.PrimaryEdgeBetween(pair[0], pair[1])
		pens[id] = 100
	}

	nodes, _, _ := ShortestPath(g, []GridNodeID{fr}, []GridNodeID{to},
		NewGridCostGeoPen(g, pens), g.Heur([]GridNodeID{to}), math.Inf(1))
	if len(nodes) == 0 {
		t.Fatal("no path found")
	}
	// the penalized corridor runs through cell (1,2); the route must
	// dodge that cell entirely
	for _, n := range nodes {
		if g.NodeAt(n).Parent == mid {
			t.Error("route should dodge the penalized corridor")
		}
	}
}

func TestShortestPathEmptySets(t *testing.T) {
	g := routeGrid(t)
	if nodes, _, cost := ShortestPath(g, nil, []GridNodeID{0}, NewGridCost(g), nil, math.Inf(1)); len(nodes) != 0 || !math.IsInf(cost, 1) {
		t.Error("empty source set should fail")
	}
}
