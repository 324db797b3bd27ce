package basegraph

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/geo"
)

func testGrid(t *testing.T) *GridGraph {
	t.Helper()
	g := NewGridGraph(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 300}}, 100, 0, DefaultPenalties())
	g.Init()
	return g
}

func TestInitLattice(t *testing.T) {
	g := testGrid(t)

	if g.cols < 4 || g.rows < 4 {
		t.Fatalf("lattice too small: %dx%d", g.cols, g.rows)
	}
	if g.NumNodes() != g.cols*g.rows*9 {
		t.Errorf("NumNodes = %d, want %d", g.NumNodes(), g.cols*g.rows*9)
	}

	// every cell: 8 sinks + 28 bends
	var sinks, bends, prims int
	for i := 0; i < g.NumEdges(); i++ {
		switch g.EdgeAt(GridEdgeID(i)).Kind {
		case KindSink:
			sinks++
		case KindBend:
			bends++
		case KindPrimary:
			prims++
		}
	}
	cells := g.cols * g.rows
	if sinks != cells*8 {
		t.Errorf("sinks = %d, want %d", sinks, cells*8)
	}
	if bends != cells*28 {
		t.Errorf("bends = %d, want %d", bends, cells*28)
	}
	if prims == 0 {
		t.Error("no primary edges")
	}
}

func TestSinksClosedByDefault(t *testing.T) {
	g := testGrid(t)
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind == KindSink && !e.Closed() {
			t.Fatal("sink edge open after init")
		}
	}
}

func TestOpenCloseSink(t *testing.T) {
	g := testGrid(t)
	n := g.centreID(1, 1)

	g.OpenSinkFr(n, 2.5)
	opened := 0
	for _, eid := range g.AdjEdges(n) {
		e := g.EdgeAt(eid)
		if e.Kind != KindSink {
			continue
		}
		if e.Closed() {
			t.Error("sink still closed after open")
		}
		if e.Cost() != 2.5 {
			t.Errorf("sink cost = %v, want 2.5", e.Cost())
		}
		opened++
	}
	if opened != 8 {
		t.Errorf("opened %d sinks, want 8", opened)
	}

	g.CloseSinkFr(n)
	for _, eid := range g.AdjEdges(n) {
		e := g.EdgeAt(eid)
		if e.Kind == KindSink && (!e.Closed() || e.Cost() != 0) {
			t.Error("sink not reset after close")
		}
	}
}

func TestBendCosts(t *testing.T) {
	g := testGrid(t)
	pens := g.Pens()

	// collect bend edges of cell (1,1) by port pair distance
	want := map[int]float64{4: pens.HopPen, 3: pens.P135, 2: pens.P90, 1: pens.P45}
	checked := 0
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind != KindBend {
			continue
		}
		from, to := g.NodeAt(e.From), g.NodeAt(e.To)
		if from.X != 1 || from.Y != 1 {
			continue
		}
		d := geo.DirDist(int(from.Port), int(to.Port))
		if e.Cost() != want[d] {
			t.Errorf("bend dist %d cost = %v, want %v", d, e.Cost(), want[d])
		}
		if e.Straight != (d == 4) {
			t.Errorf("bend dist %d straight = %v", d, e.Straight)
		}
		checked++
	}
	if checked != 28 {
		t.Errorf("checked %d bends, want 28", checked)
	}
}

func TestPrimaryCosts(t *testing.T) {
	g := testGrid(t)
	pens := g.Pens()

	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind != KindPrimary {
			continue
		}
		diag := g.NodeAt(e.From).Port%2 == 1
		if diag {
			if want := math.Sqrt2 * pens.DiagPen; math.Abs(e.Cost()-want) > 1e-9 {
				t.Fatalf("diagonal cost = %v, want %v", e.Cost(), want)
			}
		} else {
			if e.Cost() != pens.HoriPen && e.Cost() != pens.VertPen {
				t.Fatalf("cardinal cost = %v", e.Cost())
			}
		}
	}
}

func TestOctiGridDiagonalCost(t *testing.T) {
	g := NewOctiGridGraph(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 300}}, 100, 0, DefaultPenalties())
	g.Init()

	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind != KindPrimary || g.NodeAt(e.From).Port%2 == 0 {
			continue
		}
		if want := g.Pens().DiagPen; math.Abs(e.Cost()-want) > 1e-9 {
			t.Fatalf("octi diagonal cost = %v, want %v", e.Cost(), want)
		}
		if e.Partner != NoEdge {
			t.Fatal("octi grid diagonals must not be paired")
		}
	}
}

func TestGrNdCands(t *testing.T) {
	g := testGrid(t)

	cands := g.GrNdCands(orb.Point{100, 100}, 150)
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
	for _, n := range cands {
		nd := g.NodeAt(n)
		if !nd.IsCentre() {
			t.Error("candidate is not a centre")
		}
		if geo.Dist(nd.Pos, orb.Point{100, 100}) > 150 {
			t.Errorf("candidate %v too far", nd.Pos)
		}
	}

	// settled centres disappear from the candidate set
	first := cands[0]
	g.SettleNd(first, 7)
	for _, n := range g.GrNdCands(orb.Point{100, 100}, 150) {
		if n == first {
			t.Error("settled centre still a candidate")
		}
	}
}

func TestSettleUnsettleRestoresState(t *testing.T) {
	g := testGrid(t)
	pristine := snapshot(g)

	n := g.centreID(1, 1)
	g.SettleNd(n, 3)

	if _, ok := g.Settled(3); !ok {
		t.Fatal("owner not settled")
	}
	// bends of the occupied cell close
	closedBends := 0
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind == KindBend && e.Closed() && g.NodeAt(e.From).Parent == n {
			closedBends++
		}
	}
	if closedBends != 28 {
		t.Errorf("closed bends = %d, want 28", closedBends)
	}

	g.UnSettleNd(3)
	if diff := snapshotDiff(pristine, snapshot(g)); diff != "" {
		t.Errorf("state not restored: %s", diff)
	}
}

func TestSettleEdgBlocksCrossingDiagonal(t *testing.T) {
	g := testGrid(t)

	a := g.centreID(0, 0)
	b := g.centreID(1, 1)
	id, ok := g.PrimaryEdgeBetween(a, b)
	if !ok {
		t.Fatal("no diagonal between (0,0) and (1,1)")
	}
	partner := g.EdgeAt(id).Partner
	if partner == NoEdge {
		t.Fatal("diagonal has no crossing partner")
	}

	g.SettleEdg(a, b, 5)
	if g.EdgeAt(id).ResCount() != 1 {
		t.Error("resident not recorded")
	}
	if !g.EdgeAt(partner).Blocked() {
		t.Error("crossing diagonal not blocked")
	}

	g.UnSettleEdg(a, b, 5)
	if g.EdgeAt(id).ResCount() != 0 {
		t.Error("resident not removed")
	}
	if g.EdgeAt(partner).Blocked() {
		t.Error("crossing diagonal still blocked")
	}
}

func TestAddObstacle(t *testing.T) {
	g := testGrid(t)

	// a square over the middle of the lattice
	poly := orb.Polygon{orb.Ring{
		{50, 50}, {250, 50}, {250, 250}, {50, 250}, {50, 50},
	}}
	g.AddObstacle(poly)

	closed := 0
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Kind == KindPrimary && e.Closed() {
			closed++
		}
	}
	if closed == 0 {
		t.Fatal("obstacle closed no primary edges")
	}
}

func TestNdMovePen(t *testing.T) {
	g := testGrid(t)
	n := g.centreID(0, 0)
	centre := g.NodeAt(n).Pos

	if got := g.NdMovePen(centre, n); got != 0 {
		t.Errorf("zero displacement pen = %v", got)
	}
	away := orb.Point{centre.X() + 100, centre.Y()}
	if got := g.NdMovePen(away, n); math.Abs(got-g.Pens().NdMovePen) > 1e-9 {
		t.Errorf("one-cell displacement pen = %v, want %v", got, g.Pens().NdMovePen)
	}
}

func TestHeurAdmissibleAtTarget(t *testing.T) {
	g := testGrid(t)
	target := g.centreID(2, 2)
	heur := g.Heur([]GridNodeID{target})

	if got := heur(target); got != 0 {
		t.Errorf("heur at target = %v, want 0", got)
	}
	// one cardinal step away: exactly one primary edge needed
	n := g.centreID(1, 2)
	if got := heur(n); got > g.Pens().HoriPen+1e-9 {
		t.Errorf("heur one step = %v exceeds edge cost", got)
	}
}

func TestNeighbor(t *testing.T) {
	g := testGrid(t)
	n := g.centreID(1, 1)

	seen := map[GridNodeID]bool{}
	for i := 0; i <= g.NumNeighbors(); i++ {
		nb, ok := g.Neighbor(n, i)
		if !ok {
			continue
		}
		if seen[nb] {
			t.Errorf("duplicate neighbor %d", nb)
		}
		seen[nb] = true
		if !g.NodeAt(nb).IsCentre() {
			t.Error("neighbor is not a centre")
		}
	}
	if !seen[n] {
		t.Error("last neighbor index should yield the node itself")
	}

	// corner cell has out-of-bounds neighbours
	corner := g.centreID(0, 0)
	if _, ok := g.Neighbor(corner, SW); ok {
		t.Error("south-west of corner should be out of bounds")
	}
}

// snapshot captures the mutable routing state of every edge and node.
type gridState struct {
	edges []edgeState
	nds   []int32
}

type edgeState struct {
	cost    float64
	closed  bool
	blocked bool
	res     int
}

func snapshot(g *GridGraph) gridState {
	s := gridState{}
	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		s.edges = append(s.edges, edgeState{e.Cost(), e.Closed(), e.Blocked(), e.ResCount()})
	}
	for i := 0; i < g.NumNodes(); i++ {
		s.nds = append(s.nds, int32(g.NodeAt(GridNodeID(i)).Settled))
	}
	return s
}

func snapshotDiff(a, b gridState) string {
	for i := range a.edges {
		if a.edges[i] != b.edges[i] {
			return "edge state differs"
		}
	}
	for i := range a.nds {
		if a.nds[i] != b.nds[i] {
			return "node settle state differs"
		}
	}
	return ""
}
