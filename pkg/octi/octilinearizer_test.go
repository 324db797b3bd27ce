package octi

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

func testOpts() Options {
	return Options{
		Pens:      basegraph.DefaultPenalties(),
		CellSize:  50,
		BorderRad: 1,
		MaxGrDist: 3,
		Deg2Heur:  true,
	}
}

func quietOcti() *Octilinearizer {
	return &Octilinearizer{Jobs: 2, Tries: 20, Iters: 20}
}

func mustEdge(t *testing.T, g *lingraph.Graph, from, to lingraph.NodeID, occs []lingraph.Occ) lingraph.EdgeID {
	t.Helper()
	e, err := g.AddEdge(from, to, geo.PolyLine{}, occs)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return e
}

func singleLine(g *lingraph.Graph) []lingraph.Occ {
	g.AddLine(lingraph.Line{ID: "1"})
	return []lingraph.Occ{{Line: "1", Dir: lingraph.None}}
}

// twoNodeGraph is the minimal input: one edge between two stations.
func twoNodeGraph() *lingraph.Graph {
	g := lingraph.New()
	occ := singleLine(g)
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	g.AddEdge(a, b, geo.PolyLine{}, occ)
	return g
}

// triangleGraph has three stations forming a triangle, one line per edge.
func triangleGraph() *lingraph.Graph {
	g := lingraph.New()
	occ := singleLine(g)
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{50, 86})
	g.AddEdge(a, b, geo.PolyLine{}, occ)
	g.AddEdge(b, c, geo.PolyLine{}, occ)
	g.AddEdge(c, a, geo.PolyLine{}, occ)
	return g
}

// crossGraph has a centre with four cardinal arms.
func crossGraph() *lingraph.Graph {
	g := lingraph.New()
	occ := singleLine(g)
	c := g.AddNode(orb.Point{0, 0})
	e := g.AddNode(orb.Point{100, 0})
	n := g.AddNode(orb.Point{0, 100})
	w := g.AddNode(orb.Point{-100, 0})
	s := g.AddNode(orb.Point{0, -100})
	g.AddEdge(c, e, geo.PolyLine{}, occ)
	g.AddEdge(c, n, geo.PolyLine{}, occ)
	g.AddEdge(c, w, geo.PolyLine{}, occ)
	g.AddEdge(c, s, geo.PolyLine{}, occ)
	return g
}

// assertOctilinear checks that every output segment runs in one of the
// eight compass directions.
func assertOctilinear(t *testing.T, g *lingraph.Graph) {
	t.Helper()
	g.Edges(func(id lingraph.EdgeID, ed *lingraph.Edge) {
		pts := ed.Geom.Points()
		for i := 0; i+1 < len(pts); i++ {
			dx := pts[i+1].X() - pts[i].X()
			dy := pts[i+1].Y() - pts[i].Y()
			if dx == 0 && dy == 0 {
				t.Errorf("edge %d has a zero-length segment", id)
				continue
			}
			if dx != 0 && dy != 0 && math.Abs(math.Abs(dx)-math.Abs(dy)) > 1e-6 {
				t.Errorf("edge %d segment %d not octilinear: (%v, %v)", id, i, dx, dy)
			}
		}
	})
}

func TestDrawTwoNodes(t *testing.T) {
	res, err := quietOcti().Draw(twoNodeGraph(), testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	if res.Graph.NumNodes() != 2 || res.Graph.NumEdges() != 1 {
		t.Fatalf("output size %d/%d", res.Graph.NumNodes(), res.Graph.NumEdges())
	}
	assertOctilinear(t, res.Graph)

	if res.Score.Bend != 0 {
		t.Errorf("straight edge should have no bend cost, got %v", res.Score.Bend)
	}

	// the edge embeds in the cardinal direction of its bearing: all
	// points on one horizontal row
	res.Graph.Edges(func(_ lingraph.EdgeID, ed *lingraph.Edge) {
		y := ed.Geom.First().Y()
		for _, pt := range ed.Geom.Points() {
			if pt.Y() != y {
				t.Errorf("two-node edge should run straight east, got %v", ed.Geom.Points())
				break
			}
		}
	})
}

func TestDrawTriangle(t *testing.T) {
	res, err := quietOcti().Draw(triangleGraph(), testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	if res.Graph.NumNodes() != 3 || res.Graph.NumEdges() != 3 {
		t.Fatalf("output size %d/%d", res.Graph.NumNodes(), res.Graph.NumEdges())
	}
	assertOctilinear(t, res.Graph)

	// three distinct centres
	seen := map[orb.Point]bool{}
	res.Graph.Nodes(func(_ lingraph.NodeID, nd *lingraph.Node) {
		if seen[nd.Pos] {
			t.Errorf("two nodes share centre %v", nd.Pos)
		}
		seen[nd.Pos] = true
	})

	if res.Score.Total != res.Score.Hop+res.Score.Bend+res.Score.Move+res.Score.Dense {
		t.Error("total must be the sum of the components")
	}
}

func TestDrawCrossNoBends(t *testing.T) {
	res, err := quietOcti().Draw(crossGraph(), testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	assertOctilinear(t, res.Graph)
	if res.Score.Bend != 0 {
		t.Errorf("cardinal cross should embed without bends, got %v", res.Score.Bend)
	}
}

func TestDrawDensityCap(t *testing.T) {
	res, err := quietOcti().Draw(crossGraph(), testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	gg := res.Grid
	maxDens := gg.Pens().MaxDensity
	for i := 0; i < gg.NumEdges(); i++ {
		e := gg.EdgeAt(basegraph.GridEdgeID(i))
		if e.Kind == basegraph.KindPrimary && e.ResCount() > maxDens {
			t.Fatalf("primary edge %d has %d residents, cap %d", i, e.ResCount(), maxDens)
		}
	}
}

func TestDrawSharedTrunk(t *testing.T) {
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	g.AddLine(lingraph.Line{ID: "2"})
	both := []lingraph.Occ{{Line: "1", Dir: lingraph.None}, {Line: "2", Dir: lingraph.None}}

	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{200, 0})
	d := g.AddNode(orb.Point{300, 100})
	e := g.AddNode(orb.Point{300, -100})

	mustEdge(t, g, a, b, both)
	mustEdge(t, g, b, c, both)
	mustEdge(t, g, c, d, []lingraph.Occ{{Line: "1", Dir: lingraph.None}})
	mustEdge(t, g, c, e, []lingraph.Occ{{Line: "2", Dir: lingraph.None}})

	res, err := quietOcti().Draw(g, testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	assertOctilinear(t, res.Graph)

	// the contracted trunk keeps both lines on one output edge
	trunkFound := false
	res.Graph.Edges(func(_ lingraph.EdgeID, ed *lingraph.Edge) {
		if len(ed.Lines) == 2 {
			trunkFound = true
		}
	})
	if !trunkFound {
		t.Error("trunk with both lines missing from output")
	}

	// deg-2 contraction: b disappears
	if res.Graph.NumNodes() != 4 {
		t.Errorf("output nodes = %d, want 4", res.Graph.NumNodes())
	}
}

func TestDrawObstacleDetour(t *testing.T) {
	base := func() *lingraph.Graph {
		g := lingraph.New()
		occ := singleLine(g)
		a := g.AddNode(orb.Point{0, 0})
		b := g.AddNode(orb.Point{200, 0})
		g.AddEdge(a, b, geo.PolyLine{}, occ)
		return g
	}

	free, err := quietOcti().Draw(base(), testOpts())
	if err != nil {
		t.Fatalf("Draw unblocked: %v", err)
	}

	opts := testOpts()
	opts.Obstacles = []orb.Polygon{{orb.Ring{
		{80, -30}, {120, -30}, {120, 30}, {80, 30}, {80, -30},
	}}}

	blocked, err := quietOcti().Draw(base(), opts)
	if err != nil {
		t.Fatalf("Draw blocked: %v", err)
	}
	assertOctilinear(t, blocked.Graph)

	if blocked.Score.Total <= free.Score.Total {
		t.Errorf("detour total %v should exceed unblocked %v", blocked.Score.Total, free.Score.Total)
	}
}

func TestDrawReproducible(t *testing.T) {
	run := func() Score {
		oc := quietOcti()
		oc.Seed = 42
		res, err := oc.Draw(triangleGraph(), testOpts())
		if err != nil {
			t.Fatalf("Draw: %v", err)
		}
		return res.Score
	}

	a, b := run(), run()
	if a != b {
		t.Errorf("same seed produced different scores: %+v vs %+v", a, b)
	}
}

func TestDrawNoEmbedding(t *testing.T) {
	// wall the single edge in completely
	g := lingraph.New()
	occ := singleLine(g)
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{200, 0})
	g.AddEdge(a, b, geo.PolyLine{}, occ)

	opts := testOpts()
	opts.MaxGrDist = 0.1
	opts.Obstacles = []orb.Polygon{{orb.Ring{
		{60, -500}, {140, -500}, {140, 500}, {60, 500}, {60, -500},
	}}}

	oc := quietOcti()
	oc.Tries = 3
	_, err := oc.Draw(g, opts)
	if !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("walled input should fail with ErrNoEmbedding, got %v", err)
	}
}

func TestOrderingDeterministic(t *testing.T) {
	g := triangleGraph()
	cg := combgraph.New(g, true)

	a := getOrdering(cg, false, nil)
	b := getOrdering(cg, false, nil)

	if len(a) != cg.NumEdges() || len(b) != cg.NumEdges() {
		t.Fatalf("ordering sizes %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("orderings differ at %d: %v vs %v", i, a, b)
		}
	}

	// every edge exactly once
	seen := map[combgraph.EdgeID]bool{}
	for _, e := range a {
		if seen[e] {
			t.Errorf("edge %d appears twice", e)
		}
		seen[e] = true
	}
}

func TestDrawingApplyEraseRestoresGrid(t *testing.T) {
	g := triangleGraph()
	oc := quietOcti()
	opts := testOpts()

	res, err := oc.Draw(g, opts)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	// a fresh grid over the same box
	box := res.Grid.BBox()
	fresh := basegraph.NewGridGraph(box, opts.CellSize, 0, opts.Pens)
	fresh.Init()
	pristine := gridFingerprint(fresh)

	res.Drawing.ApplyToGrid(fresh)
	if gridFingerprint(fresh) == pristine {
		t.Fatal("apply changed nothing")
	}
	res.Drawing.EraseFromGrid(fresh)
	if gridFingerprint(fresh) != pristine {
		t.Error("erase did not restore the pristine grid")
	}
}

// gridFingerprint folds the mutable grid state into a comparable value.
func gridFingerprint(g basegraph.BaseGraph) uint64 {
	var h uint64 = 1469598103934665603
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211
	}
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(basegraph.GridEdgeID(i))
		mix(math.Float64bits(e.Cost()))
		if e.Closed() {
			mix(3)
		}
		if e.Blocked() {
			mix(5)
		}
		mix(uint64(e.ResCount()))
	}
	for i := 0; i < g.NumNodes(); i++ {
		mix(uint64(int64(g.NodeAt(basegraph.GridNodeID(i)).Settled)) + 7)
	}
	return h
}

func TestRemoveShortEdges(t *testing.T) {
	g := lingraph.New()
	occ := singleLine(g)
	z := g.AddNode(orb.Point{-200, 0})
	a := g.AddNode(orb.Point{0, 0}, lingraph.Station{ID: "a"})
	b := g.AddNode(orb.Point{10, 0})
	c := g.AddNode(orb.Point{200, 0})
	mustEdge(t, g, z, a, occ)
	mustEdge(t, g, a, b, occ)
	mustEdge(t, g, b, c, occ)

	RemoveShortEdges(g, 25)

	if g.NumNodes() != 3 {
		t.Fatalf("nodes after removal = %d, want 3", g.NumNodes())
	}
	if g.NumEdges() != 2 {
		t.Fatalf("edges after removal = %d, want 2", g.NumEdges())
	}

	// the station survives, moved to the midpoint
	found := false
	g.Nodes(func(_ lingraph.NodeID, nd *lingraph.Node) {
		if len(nd.Stops) > 0 && nd.Stops[0].ID == "a" {
			found = true
			if nd.Pos.X() != 5 {
				t.Errorf("merged station at %v, want x=5", nd.Pos)
			}
		}
	})
	if !found {
		t.Error("station lost in short-edge removal")
	}
}

func TestLocalSearchDoesNotWorsen(t *testing.T) {
	g := triangleGraph()
	oc := quietOcti()
	oc.Iters = 5
	res, err := oc.Draw(g, testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	noSearch := quietOcti()
	noSearch.Iters = 1
	res2, err := noSearch.Draw(triangleGraph(), testOpts())
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	if res.Score.Total > res2.Score.Total+1e-9 {
		t.Errorf("more local search iterations must not worsen the score: %v vs %v",
			res.Score.Total, res2.Score.Total)
	}
}
