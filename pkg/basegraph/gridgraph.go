package basegraph

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
)

// gridCfg separates the square-grid and octilinear variants. They share
// the lattice; only diagonal pricing and crossing logic differ.
type gridCfg struct {
	// nativeDiag prices diagonal primary edges per unit length instead
	// of applying the square-grid detour factor.
	nativeDiag bool

	// diagBlocking makes crossing diagonals mutually exclusive.
	diagBlocking bool
}

// GridGraph is the square-grid base graph: cells of size s with one centre
// and eight port nodes, diagonals priced with a detour factor and crossing
// diagonals mutually exclusive.
type GridGraph struct {
	cfg gridCfg

	bbox     orb.Bound
	cellSize float64
	spacer   float64
	pens     Penalties

	cols, rows int

	nodes []GridNode
	edges []GridEdge

	// per cell-and-direction lookup of sink and primary edges
	sinkEdg []GridEdgeID
	primEdg []GridEdgeID

	centerIdx rtree.RTreeG[GridNodeID]
	edgeIdx   rtree.RTreeG[GridEdgeID]

	settled map[combgraph.NodeID]GridNodeID
}

var _ BaseGraph = (*GridGraph)(nil)

// NewGridGraph creates an uninitialised square-grid base graph over the
// given bounding box. Call Init before use.
func NewGridGraph(bbox orb.Bound, cellSize, spacer float64, pens Penalties) *GridGraph {
	return newGrid(bbox, cellSize, spacer, pens, gridCfg{diagBlocking: true})
}

func newGrid(bbox orb.Bound, cellSize, spacer float64, pens Penalties, cfg gridCfg) *GridGraph {
	if pens.MaxDensity < 1 {
		pens.MaxDensity = 1
	}
	return &GridGraph{
		cfg:      cfg,
		bbox:     geo.Pad(bbox, spacer*cellSize),
		cellSize: cellSize,
		spacer:   spacer,
		pens:     pens,
		settled:  map[combgraph.NodeID]GridNodeID{},
	}
}

// Init builds the lattice: nodes, sink edges, bend edges, primary edges,
// and the spatial indexes.
func (g *GridGraph) Init() {
	w := g.bbox.Max.X() - g.bbox.Min.X()
	h := g.bbox.Max.Y() - g.bbox.Min.Y()
	g.cols = int(math.Ceil(w/g.cellSize)) + 1
	g.rows = int(math.Ceil(h/g.cellSize)) + 1

	cells := g.cols * g.rows
	g.nodes = make([]GridNode, cells*9)
	g.sinkEdg = make([]GridEdgeID, cells*8)
	g.primEdg = make([]GridEdgeID, cells*8)
	for i := range g.primEdg {
		g.primEdg[i] = NoEdge
	}

	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			g.buildCell(x, y)
		}
	}
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			g.buildCellEdges(x, y)
		}
	}
	if g.cfg.diagBlocking {
		g.pairCrossingDiagonals()
	}
}

func (g *GridGraph) cellIdx(x, y int) int { return y*g.cols + x }

func (g *GridGraph) centreID(x, y int) GridNodeID {
	return GridNodeID(g.cellIdx(x, y) * 9)
}

func (g *GridGraph) portID(x, y, dir int) GridNodeID {
	return GridNodeID(g.cellIdx(x, y)*9 + 1 + dir)
}

func (g *GridGraph) buildCell(x, y int) {
	cx := g.bbox.Min.X() + float64(x)*g.cellSize
	cy := g.bbox.Min.Y() + float64(y)*g.cellSize
	centre := g.centreID(x, y)

	g.nodes[centre] = GridNode{
		X: x, Y: y, Port: -1,
		Pos:     orb.Point{cx, cy},
		Parent:  centre,
		Settled: NoOwner,
	}
	g.centerIdx.Insert([2]float64{cx, cy}, [2]float64{cx, cy}, centre)

	off := g.cellSize / 3
	for d := 0; d < 8; d++ {
		id := g.portID(x, y, d)
		g.nodes[id] = GridNode{
			X: x, Y: y, Port: int8(d),
			Pos:     orb.Point{cx + float64(dirDX[d])*off, cy + float64(dirDY[d])*off},
			Parent:  centre,
			Settled: NoOwner,
		}
	}
}

// buildCellEdges creates the sink and bend edges of one cell and the
// primary edges towards its N/NE/E/SE neighbours (the southern half is
// created by the neighbours).
func (g *GridGraph) buildCellEdges(x, y int) {
	centre := g.centreID(x, y)
	cell := g.cellIdx(x, y)

	// sinks: closed until a combinatorial endpoint opens them
	for d := 0; d < 8; d++ {
		id := g.addEdge(GridEdge{
			From: g.portID(x, y, d), To: centre,
			Kind: KindSink, closed: true, Partner: NoEdge,
		})
		g.sinkEdg[cell*8+d] = id
	}

	// bends: one edge per unordered port pair
	for a := 0; a < 8; a++ {
		for b := a + 1; b < 8; b++ {
			c, straight := bendCost(&g.pens, a, b)
			g.addEdge(GridEdge{
				From: g.portID(x, y, a), To: g.portID(x, y, b),
				Kind: KindBend, Straight: straight,
				cost: c, baseCost: c, Partner: NoEdge,
			})
		}
	}

	// primary edges to the four "forward" neighbours
	for d := 0; d < 4; d++ {
		nx, ny := x+dirDX[d], y+dirDY[d]
		if nx < 0 || nx >= g.cols || ny < 0 || ny >= g.rows {
			continue
		}
		cost := g.primaryCost(d)
		id := g.addEdge(GridEdge{
			From: g.portID(x, y, d), To: g.portID(nx, ny, (d+4)%8),
			Kind: KindPrimary,
			cost: cost, baseCost: cost, Partner: NoEdge,
		})
		g.primEdg[cell*8+d] = id
		g.primEdg[g.cellIdx(nx, ny)*8+(d+4)%8] = id

		a, b := g.nodes[g.centreID(x, y)].Pos, g.nodes[g.centreID(nx, ny)].Pos
		g.edgeIdx.Insert(
			[2]float64{math.Min(a.X(), b.X()), math.Min(a.Y(), b.Y())},
			[2]float64{math.Max(a.X(), b.X()), math.Max(a.Y(), b.Y())},
			id,
		)
	}
}

// primaryCost prices an inter-cell edge: the Euclidean length in cell
// units times the direction factor. Normalizing by the cell size keeps
// hop costs comparable with the turn penalties regardless of the input
// scale.
func (g *GridGraph) primaryCost(d int) float64 {
	if d%2 == 0 {
		if d == N || d == S {
			return g.pens.VertPen
		}
		return g.pens.HoriPen
	}
	if g.cfg.nativeDiag {
		// octilinear accounting: diagonals are first-class, priced per
		// unit length
		return g.pens.DiagPen
	}
	return math.Sqrt2 * g.pens.DiagPen
}

// pairCrossingDiagonals links each NE diagonal with the NW diagonal of the
// eastern neighbour; settling one blocks the other.
func (g *GridGraph) pairCrossingDiagonals() {
	for y := 0; y+1 < g.rows; y++ {
		for x := 0; x+1 < g.cols; x++ {
			ne := g.primEdg[g.cellIdx(x, y)*8+NE]
			nw := g.primEdg[g.cellIdx(x+1, y)*8+NW]
			if ne == NoEdge || nw == NoEdge {
				continue
			}
			g.edges[ne].Partner = nw
			g.edges[nw].Partner = ne
		}
	}
}

func (g *GridGraph) addEdge(e GridEdge) GridEdgeID {
	g.edges = append(g.edges, e)
	id := GridEdgeID(len(g.edges) - 1)
	g.nodes[e.From].adj = append(g.nodes[e.From].adj, id)
	g.nodes[e.To].adj = append(g.nodes[e.To].adj, id)
	return id
}

// --- storage access ---

func (g *GridGraph) CellSize() float64            { return g.cellSize }
func (g *GridGraph) Pens() *Penalties             { return &g.pens }
func (g *GridGraph) BBox() orb.Bound              { return g.bbox }
func (g *GridGraph) NumNodes() int                { return len(g.nodes) }
func (g *GridGraph) NumEdges() int                { return len(g.edges) }
func (g *GridGraph) NodeAt(n GridNodeID) *GridNode { return &g.nodes[n] }
func (g *GridGraph) EdgeAt(e GridEdgeID) *GridEdge { return &g.edges[e] }
func (g *GridGraph) AdjEdges(n GridNodeID) []GridEdgeID {
	return g.nodes[n].adj
}

// --- neighbourhood ---

// NumNeighbors returns the number of neighbour positions tried by the
// local search, excluding the current position.
func (g *GridGraph) NumNeighbors() int { return 8 }

// Neighbor returns the i-th neighbour centre of centre n; i equal to
// NumNeighbors yields n itself.
func (g *GridGraph) Neighbor(n GridNodeID, i int) (GridNodeID, bool) {
	nd := &g.nodes[n]
	if i >= 8 {
		return n, true
	}
	nx, ny := nd.X+dirDX[i], nd.Y+dirDY[i]
	if nx < 0 || nx >= g.cols || ny < 0 || ny >= g.rows {
		return NoNode, false
	}
	return g.centreID(nx, ny), true
}

// GrNdCands returns the open, unsettled centres within maxDis of pos.
func (g *GridGraph) GrNdCands(pos orb.Point, maxDis float64) []GridNodeID {
	var out []GridNodeID
	g.centerIdx.Search(
		[2]float64{pos.X() - maxDis, pos.Y() - maxDis},
		[2]float64{pos.X() + maxDis, pos.Y() + maxDis},
		func(_, _ [2]float64, id GridNodeID) bool {
			nd := &g.nodes[id]
			if !nd.closed && nd.Settled == NoOwner && geo.Dist(nd.Pos, pos) <= maxDis {
				out = append(out, id)
			}
			return true
		})
	// the spatial index returns hits in tree order; keep results stable
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- sinks ---

// OpenSinkFr opens the sink edges of centre n for use as a routing source,
// charging extra on each sink.
func (g *GridGraph) OpenSinkFr(n GridNodeID, extra float64) { g.openSink(n, extra) }

// OpenSinkTo opens the sink edges of centre n for use as a routing target.
func (g *GridGraph) OpenSinkTo(n GridNodeID, extra float64) { g.openSink(n, extra) }

// CloseSinkFr closes the sink edges of centre n and resets their cost.
func (g *GridGraph) CloseSinkFr(n GridNodeID) { g.closeSink(n) }

// CloseSinkTo closes the sink edges of centre n and resets their cost.
func (g *GridGraph) CloseSinkTo(n GridNodeID) { g.closeSink(n) }

func (g *GridGraph) openSink(n GridNodeID, extra float64) {
	cell := g.cellIdx(g.nodes[n].X, g.nodes[n].Y)
	for d := 0; d < 8; d++ {
		e := &g.edges[g.sinkEdg[cell*8+d]]
		e.closed = false
		e.cost = extra
	}
}

func (g *GridGraph) closeSink(n GridNodeID) {
	cell := g.cellIdx(g.nodes[n].X, g.nodes[n].Y)
	for d := 0; d < 8; d++ {
		e := &g.edges[g.sinkEdg[cell*8+d]]
		e.closed = true
		e.cost = 0
	}
}

// --- settling ---

// SettleNd marks centre n as occupied by owner and closes the cell's bend
// edges: no further route may pass through an occupied cell.
func (g *GridGraph) SettleNd(n GridNodeID, owner combgraph.NodeID) {
	g.nodes[n].Settled = owner
	g.settled[owner] = n
	g.setBends(n, true)
}

// UnSettleNd reverses SettleNd for owner.
func (g *GridGraph) UnSettleNd(owner combgraph.NodeID) {
	n, ok := g.settled[owner]
	if !ok {
		return
	}
	delete(g.settled, owner)
	g.nodes[n].Settled = NoOwner
	g.setBends(n, false)
}

func (g *GridGraph) setBends(n GridNodeID, closed bool) {
	nd := &g.nodes[n]
	for d := 0; d < 8; d++ {
		port := g.portID(nd.X, nd.Y, d)
		for _, eid := range g.nodes[port].adj {
			if e := &g.edges[eid]; e.Kind == KindBend {
				e.closed = closed
			}
		}
	}
}

// Settled returns the centre owner occupies, if any.
func (g *GridGraph) Settled(owner combgraph.NodeID) (GridNodeID, bool) {
	n, ok := g.settled[owner]
	return n, ok
}

// PrimaryEdgeBetween returns the primary edge connecting the cells of two
// centre nodes.
func (g *GridGraph) PrimaryEdgeBetween(a, b GridNodeID) (GridEdgeID, bool) {
	na, nb := &g.nodes[a], &g.nodes[b]
	dx, dy := nb.X-na.X, nb.Y-na.Y
	for d := 0; d < 8; d++ {
		if dirDX[d] == dx && dirDY[d] == dy {
			id := g.primEdg[g.cellIdx(na.X, na.Y)*8+d]
			return id, id != NoEdge
		}
	}
	return NoEdge, false
}

// SettleEdg registers combinatorial edge e as a resident of the primary
// edge between centres a and b and blocks the crossing diagonal, if any.
func (g *GridGraph) SettleEdg(a, b GridNodeID, e combgraph.EdgeID) {
	id, ok := g.PrimaryEdgeBetween(a, b)
	if !ok {
		return
	}
	ed := &g.edges[id]
	ed.res = append(ed.res, e)
	if ed.Partner != NoEdge {
		g.edges[ed.Partner].blocked = true
	}
}

// UnSettleEdg removes combinatorial edge e from the primary edge between a
// and b, unblocking the crossing diagonal when the edge becomes free.
func (g *GridGraph) UnSettleEdg(a, b GridNodeID, e combgraph.EdgeID) {
	id, ok := g.PrimaryEdgeBetween(a, b)
	if !ok {
		return
	}
	ed := &g.edges[id]
	for i, r := range ed.res {
		if r == e {
			ed.res = append(ed.res[:i], ed.res[i+1:]...)
			break
		}
	}
	if len(ed.res) == 0 && ed.Partner != NoEdge {
		g.edges[ed.Partner].blocked = false
	}
}

// --- obstacles ---

// AddObstacle closes every primary edge whose cell-to-cell segment
// intersects the polygon.
func (g *GridGraph) AddObstacle(poly orb.Polygon) {
	if len(poly) == 0 {
		return
	}
	b := orb.Ring(poly[0]).Bound()
	g.edgeIdx.Search(
		[2]float64{b.Min.X(), b.Min.Y()},
		[2]float64{b.Max.X(), b.Max.Y()},
		func(_, _ [2]float64, id GridEdgeID) bool {
			e := &g.edges[id]
			a := g.nodes[g.nodes[e.From].Parent].Pos
			c := g.nodes[g.nodes[e.To].Parent].Pos
			if geo.SegIntersectsPolygon(a, c, poly) {
				e.closed = true
			}
			return true
		})
}

// --- penalties ---

// NdMovePen returns the displacement penalty for embedding a combinatorial
// node at centre n, in cells of displacement.
func (g *GridGraph) NdMovePen(pos orb.Point, n GridNodeID) float64 {
	return g.pens.NdMovePen * geo.Dist(pos, g.nodes[n].Pos) / g.cellSize
}

// settledPort returns the port direction through which combinatorial edge
// f reaches centre n, or -1 if f has no settled primary edge at this cell.
func (g *GridGraph) settledPort(n GridNodeID, f combgraph.EdgeID) int {
	nd := &g.nodes[n]
	cell := g.cellIdx(nd.X, nd.Y)
	for d := 0; d < 8; d++ {
		id := g.primEdg[cell*8+d]
		if id == NoEdge {
			continue
		}
		for _, r := range g.edges[id].res {
			if r == f {
				return d
			}
		}
	}
	return -1
}

// settledNeighbors returns the clockwise-nearest already-settled adjacent
// edges of e at nd together with their ports at centre n.
func (g *GridGraph) settledNeighbors(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) (prev, next combgraph.EdgeID, prevPort, nextPort int) {
	prev, next = -1, -1
	prevPort, nextPort = -1, -1
	ord := cg.EdgeOrdering(nd)
	pos := -1
	for i, oe := range ord {
		if oe.Edge == e {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	for k := 1; k < len(ord); k++ {
		f := ord[(pos+k)%len(ord)].Edge
		if p := g.settledPort(n, f); p >= 0 {
			next, nextPort = f, p
			break
		}
	}
	for k := 1; k < len(ord); k++ {
		f := ord[(pos-k+len(ord))%len(ord)].Edge
		if p := g.settledPort(n, f); p >= 0 {
			prev, prevPort = f, p
			break
		}
	}
	return
}

// TopoBlockPen closes the ports of centre n that would place e on the
// wrong side of its already-settled neighbour edges in the clockwise
// ordering at nd.
func (g *GridGraph) TopoBlockPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost {
	var c NodeCost
	prev, next, prevPort, nextPort := g.settledNeighbors(n, cg, nd, e)
	if prev < 0 || next < 0 || prev == next || prevPort == nextPort {
		return c
	}

	// walking clockwise from the predecessor's port, e must appear
	// before the successor's port
	for d := 0; d < 8; d++ {
		if d == prevPort || d == nextPort {
			c[d] = math.Inf(1)
			continue
		}
		inArc := false
		for k := 1; k < 8; k++ {
			p := (prevPort + k) % 8
			if p == d {
				inArc = true
				break
			}
			if p == nextPort {
				break
			}
		}
		if !inArc {
			c[d] = math.Inf(1)
		}
	}
	return c
}

// SpacingPen shapes the port choice towards the clockwise ordering at nd:
// ports far from the ideal angular slot between the settled neighbours are
// penalised proportionally.
func (g *GridGraph) SpacingPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost {
	var c NodeCost
	prev, _, prevPort, _ := g.settledNeighbors(n, cg, nd, e)
	if prev < 0 {
		return c
	}
	deg := cg.Deg(nd)
	if deg == 0 {
		return c
	}

	dist := cg.OrderDist(nd, prev, e)
	ideal := (prevPort + int(math.Round(float64(8*dist)/float64(deg)))) % 8
	for d := 0; d < 8; d++ {
		c[d] = g.pens.P135 * float64(geo.DirDist(d, ideal))
	}
	return c
}

// NodeBendPen penalises ports whose direction deviates from the geographic
// node front of e at nd. A deviation of one 45° step still leaves 135°
// between route and front and is priced gently; a full reversal gets the
// 180° penalty.
func (g *GridGraph) NodeBendPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost {
	var c NodeCost
	front := cg.FrontAngle(nd, e)
	for d := 0; d < 8; d++ {
		steps := int(math.Round(geo.AngDist(portAngle(d), front) / (math.Pi / 4)))
		switch steps {
		case 0:
		case 1:
			c[d] = g.pens.P135
		case 2:
			c[d] = g.pens.P90
		case 3:
			c[d] = g.pens.P45
		default:
			c[d] = g.pens.P180
		}
	}
	return c
}

// portAngle returns the outgoing angle of a port direction, ccw from east.
func portAngle(d int) float64 {
	return math.Pi/2 - float64(d)*math.Pi/4
}

// AddCostVec writes a node cost vector onto the sink edges of centre n.
// Costs are cleared again when the sinks close.
func (g *GridGraph) AddCostVec(n GridNodeID, c NodeCost) {
	cell := g.cellIdx(g.nodes[n].X, g.nodes[n].Y)
	for d := 0; d < 8; d++ {
		e := &g.edges[g.sinkEdg[cell*8+d]]
		e.cost += c[d]
	}
}

// WriteGeoCoursePens fills pens with a penalty per primary edge
// proportional to its distance from the reference geometry, in cells.
func (g *GridGraph) WriteGeoCoursePens(ref geo.PolyLine, pens GeoPens, weight float64) {
	for id := range g.edges {
		e := &g.edges[id]
		if e.Kind != KindPrimary {
			continue
		}
		a := g.nodes[g.nodes[e.From].Parent].Pos
		b := g.nodes[g.nodes[e.To].Parent].Pos
		mid := orb.Point{(a.X() + b.X()) / 2, (a.Y() + b.Y()) / 2}
		pens[GridEdgeID(id)] = weight * ref.DistTo(mid) / g.cellSize
	}
}

// Heur returns an admissible octile-distance heuristic towards the target
// centres, in primary-edge cost units.
func (g *GridGraph) Heur(targets []GridNodeID) func(GridNodeID) float64 {
	type cell struct{ x, y int }
	tcells := make([]cell, len(targets))
	for i, t := range targets {
		nd := &g.nodes[t]
		tcells[i] = cell{nd.X, nd.Y}
	}

	cardMin := math.Min(g.pens.VertPen, g.pens.HoriPen)
	diag := g.primaryCost(NE)
	// a diagonal step is never costed above a two-cardinal detour
	diagMin := math.Min(diag, 2*cardMin)

	return func(n GridNodeID) float64 {
		nd := &g.nodes[n]
		best := math.Inf(1)
		for _, t := range tcells {
			dx := math.Abs(float64(nd.X - t.x))
			dy := math.Abs(float64(nd.Y - t.y))
			lo, hi := math.Min(dx, dy), math.Max(dx, dy)
			if h := lo*diagMin + (hi-lo)*cardMin; h < best {
				best = h
			}
		}
		return best
	}
}
