package combgraph

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

func mustEdge(t *testing.T, g *lingraph.Graph, from, to lingraph.NodeID, occs []lingraph.Occ) lingraph.EdgeID {
	t.Helper()
	e, err := g.AddEdge(from, to, geo.PolyLine{}, occs)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return e
}

// chainGraph builds a path a-b-c-d where b and c have degree 2 and carry
// the same line.
func chainGraph(t *testing.T) *lingraph.Graph {
	t.Helper()
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{200, 0})
	d := g.AddNode(orb.Point{300, 0})
	occ := []lingraph.Occ{{Line: "1", Dir: lingraph.None}}
	mustEdge(t, g, a, b, occ)
	mustEdge(t, g, b, c, occ)
	mustEdge(t, g, c, d, occ)
	return g
}

func TestContractChain(t *testing.T) {
	g := chainGraph(t)
	cg := New(g, true)

	if cg.NumNodes() != 2 {
		t.Fatalf("NumNodes = %d, want 2 (chain contracted)", cg.NumNodes())
	}
	if cg.NumEdges() != 1 {
		t.Fatalf("NumEdges = %d, want 1", cg.NumEdges())
	}

	ed := cg.Edge(0)
	if len(ed.Orig) != 3 {
		t.Errorf("contracted edge should carry 3 original edges, got %d", len(ed.Orig))
	}
	if len(ed.Lines) != 1 || ed.Lines[0].Line != "1" {
		t.Errorf("contracted edge lines = %v", ed.Lines)
	}

	// geometry spans the whole chain
	pl := ed.Geom
	if pl.Empty() {
		t.Fatal("contracted edge has no geometry")
	}
	length := pl.Length()
	if length < 299 || length > 301 {
		t.Errorf("contracted geometry length = %v, want 300", length)
	}
}

func TestNoContractionWithoutHeuristic(t *testing.T) {
	g := chainGraph(t)
	cg := New(g, false)
	if cg.NumNodes() != 4 {
		t.Errorf("NumNodes = %d, want 4 (no contraction)", cg.NumNodes())
	}
	if cg.NumEdges() != 3 {
		t.Errorf("NumEdges = %d, want 3", cg.NumEdges())
	}
}

func TestNoContractionAcrossDifferentBundles(t *testing.T) {
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	g.AddLine(lingraph.Line{ID: "2"})
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{200, 0})
	mustEdge(t, g, a, b, []lingraph.Occ{{Line: "1", Dir: lingraph.None}})
	mustEdge(t, g, b, c, []lingraph.Occ{{Line: "2", Dir: lingraph.None}})

	cg := New(g, true)
	if cg.NumNodes() != 3 {
		t.Errorf("NumNodes = %d, want 3 (bundle break keeps b)", cg.NumNodes())
	}
}

func TestDirectionContinuity(t *testing.T) {
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{200, 0})
	// line travels a → b → c
	mustEdge(t, g, a, b, []lingraph.Occ{{Line: "1", Dir: b}})
	mustEdge(t, g, b, c, []lingraph.Occ{{Line: "1", Dir: c}})

	cg := New(g, true)
	if cg.NumEdges() != 1 {
		t.Fatalf("directed chain should contract, got %d edges", cg.NumEdges())
	}

	// the occurrence direction maps onto the far comb endpoint
	ed := cg.Edge(0)
	if ed.Lines[0].Dir == lingraph.None {
		t.Fatal("direction lost in contraction")
	}
	towards := ed.Lines[0].Dir
	if towards != cg.Node(ed.From).Orig && towards != cg.Node(ed.To).Orig {
		t.Errorf("direction %d is not a comb endpoint", towards)
	}
}

func TestDirectionBreakPreventsContraction(t *testing.T) {
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	a := g.AddNode(orb.Point{0, 0})
	b := g.AddNode(orb.Point{100, 0})
	c := g.AddNode(orb.Point{200, 0})
	// line reverses at b: a → b, c → b
	mustEdge(t, g, a, b, []lingraph.Occ{{Line: "1", Dir: b}})
	mustEdge(t, g, b, c, []lingraph.Occ{{Line: "1", Dir: b}})

	cg := New(g, true)
	if cg.NumNodes() != 3 {
		t.Errorf("direction break should keep b, got %d nodes", cg.NumNodes())
	}
}

func TestEdgeOrderingClockwise(t *testing.T) {
	// cross: centre with arms E, N, W, S
	g := lingraph.New()
	g.AddLine(lingraph.Line{ID: "1"})
	centre := g.AddNode(orb.Point{0, 0})
	east := g.AddNode(orb.Point{100, 0})
	north := g.AddNode(orb.Point{0, 100})
	west := g.AddNode(orb.Point{-100, 0})
	south := g.AddNode(orb.Point{0, -100})
	occ := []lingraph.Occ{{Line: "1", Dir: lingraph.None}}
	eE := mustEdge(t, g, centre, east, occ)
	eN := mustEdge(t, g, centre, north, occ)
	eW := mustEdge(t, g, centre, west, occ)
	eS := mustEdge(t, g, centre, south, occ)
	_ = eE

	cg := New(g, false)

	var cc NodeID = -1
	for i := 0; i < cg.NumNodes(); i++ {
		if cg.Node(NodeID(i)).Orig == centre {
			cc = NodeID(i)
		}
	}
	if cc < 0 {
		t.Fatal("centre not found")
	}

	ord := cg.EdgeOrdering(cc)
	if len(ord) != 4 {
		t.Fatalf("ordering size = %d", len(ord))
	}
	// clockwise = strictly descending outgoing angle
	for i := 1; i < len(ord); i++ {
		if ord[i].Angle >= ord[i-1].Angle {
			t.Errorf("ordering not clockwise at %d: %v then %v", i, ord[i-1].Angle, ord[i].Angle)
		}
	}

	// circular order distance: clockwise the arms run N, E, S, W, so
	// from the N-arm to the W-arm is three steps; check that the
	// distances add up modulo the degree
	var cN, cW, cS EdgeID = -1, -1, -1
	for _, oe := range ord {
		other := cg.OtherNode(oe.Edge, cc)
		switch cg.Node(other).Orig {
		case north:
			cN = oe.Edge
		case west:
			cW = oe.Edge
		case south:
			cS = oe.Edge
		}
	}
	_ = eN
	_ = eW
	_ = eS
	if d := cg.OrderDist(cc, cN, cN); d != 0 {
		t.Errorf("OrderDist self = %d", d)
	}
	dNW := cg.OrderDist(cc, cN, cW)
	dWS := cg.OrderDist(cc, cW, cS)
	if (dNW+dWS)%4 != cg.OrderDist(cc, cN, cS) {
		t.Errorf("order distances not additive mod deg: %d + %d vs %d", dNW, dWS, cg.OrderDist(cc, cN, cS))
	}
}

func TestLineDeg(t *testing.T) {
	g := chainGraph(t)
	cg := New(g, true)
	// each comb node touches the single contracted edge with one line
	for i := 0; i < cg.NumNodes(); i++ {
		if got := cg.LineDeg(NodeID(i)); got != 1 {
			t.Errorf("LineDeg(%d) = %d, want 1", i, got)
		}
	}
}
