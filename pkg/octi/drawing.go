package octi

import (
	"math"
	"sort"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

// SettledPos pins combinatorial nodes to tentative grid centres during
// local search.
type SettledPos map[combgraph.NodeID]basegraph.GridNodeID

// Score is the cost decomposition of a drawing.
type Score struct {
	Hop   float64 `json:"hop"`
	Bend  float64 `json:"bend"`
	Move  float64 `json:"move"`
	Dense float64 `json:"dense"`
	Total float64 `json:"total"`
}

// route is the recorded embedding of one combinatorial edge, oriented
// from the edge's from-node. Slices are never mutated after recording, so
// drawing copies share them structurally.
type route struct {
	nodes []basegraph.GridNodeID
	edges []basegraph.GridEdgeID
	costs []float64
	cost  float64
}

// Drawing is the reversible ledger of which grid nodes and edges every
// combinatorial entity occupies. It is bound to a base graph for settle
// replay but keeps all routing records itself, so it can be rebound to a
// fresh grid copy (SetBaseGraph) or duplicated cheaply (Copy).
type Drawing struct {
	cg *combgraph.Graph
	gg basegraph.BaseGraph

	routes map[combgraph.EdgeID]route
	nds    map[combgraph.NodeID]basegraph.GridNodeID
}

// NewDrawing creates an empty drawing over cg bound to gg.
func NewDrawing(cg *combgraph.Graph, gg basegraph.BaseGraph) *Drawing {
	return &Drawing{
		cg:     cg,
		gg:     gg,
		routes: map[combgraph.EdgeID]route{},
		nds:    map[combgraph.NodeID]basegraph.GridNodeID{},
	}
}

// SetBaseGraph rebinds the drawing to another grid without touching the
// routing record.
func (d *Drawing) SetBaseGraph(gg basegraph.BaseGraph) { d.gg = gg }

// BaseGraph returns the bound grid.
func (d *Drawing) BaseGraph() basegraph.BaseGraph { return d.gg }

// Copy returns an independent drawing sharing the immutable route slices.
func (d *Drawing) Copy() *Drawing {
	cp := &Drawing{
		cg:     d.cg,
		gg:     d.gg,
		routes: make(map[combgraph.EdgeID]route, len(d.routes)),
		nds:    make(map[combgraph.NodeID]basegraph.GridNodeID, len(d.nds)),
	}
	for k, v := range d.routes {
		cp.routes[k] = v
	}
	for k, v := range d.nds {
		cp.nds[k] = v
	}
	return cp
}

// Draw records the routed path for e. The path runs source→target as the
// router produced it; rev marks that the source side was the edge's
// to-node, in which case the record is flipped so it is always oriented
// from→to. Edge costs are captured now: sink costs are reset when the
// sinks close.
func (d *Drawing) Draw(e combgraph.EdgeID, nodes []basegraph.GridNodeID, edges []basegraph.GridEdgeID, rev bool) {
	if rev {
		nodes = reversedNodes(nodes)
		edges = reversedEdges(edges)
	}

	costs := make([]float64, len(edges))
	total := 0.0
	for i, id := range edges {
		costs[i] = d.gg.EdgeAt(id).Cost()
		total += costs[i]
	}

	d.routes[e] = route{nodes: nodes, edges: edges, costs: costs, cost: total}

	ed := d.cg.Edge(e)
	d.nds[ed.From] = nodes[0]
	d.nds[ed.To] = nodes[len(nodes)-1]
}

// Erase drops the record for e.
func (d *Drawing) Erase(e combgraph.EdgeID) { delete(d.routes, e) }

// EraseNd drops the centre assignment of nd.
func (d *Drawing) EraseNd(nd combgraph.NodeID) { delete(d.nds, nd) }

// GrNd returns the grid centre assigned to nd.
func (d *Drawing) GrNd(nd combgraph.NodeID) (basegraph.GridNodeID, bool) {
	n, ok := d.nds[nd]
	return n, ok
}

// Crumble discards every record.
func (d *Drawing) Crumble() {
	d.routes = map[combgraph.EdgeID]route{}
	d.nds = map[combgraph.NodeID]basegraph.GridNodeID{}
}

// Score returns the routing score: the sum of all recorded route costs,
// or +Inf for an empty drawing (nothing routed yet, or crumbled).
// Summation runs in edge order so identical drawings score bit-identical
// regardless of map iteration order.
func (d *Drawing) Score() float64 {
	if len(d.routes) == 0 {
		return math.Inf(1)
	}
	total := 0.0
	for _, e := range d.sortedEdges() {
		total += d.routes[e].cost
	}
	return total
}

func (d *Drawing) sortedEdges() []combgraph.EdgeID {
	out := make([]combgraph.EdgeID, 0, len(d.routes))
	for e := range d.routes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FullScore decomposes the drawing's cost into hop, bend, move and
// density shares. Density is read from the bound grid's resident counts.
func (d *Drawing) FullScore() Score {
	var s Score
	for _, e := range d.sortedEdges() {
		r := d.routes[e]
		for i, id := range r.edges {
			ge := d.gg.EdgeAt(id)
			switch {
			case ge.Kind == basegraph.KindSink:
				s.Move += r.costs[i]
			case ge.Kind == basegraph.KindBend && !ge.Straight:
				s.Bend += r.costs[i]
			default:
				s.Hop += r.costs[i]
			}
		}
	}

	pens := d.gg.Pens()
	for i := 0; i < d.gg.NumEdges(); i++ {
		e := d.gg.EdgeAt(basegraph.GridEdgeID(i))
		if e.Kind == basegraph.KindPrimary && e.ResCount() > 1 {
			s.Dense += pens.DensityPen * float64(e.ResCount()-1)
		}
	}

	s.Total = s.Hop + s.Bend + s.Move + s.Dense
	return s
}

// ApplyToGrid replays every recorded settle onto gg.
func (d *Drawing) ApplyToGrid(gg basegraph.BaseGraph) {
	for nd, n := range d.nds {
		gg.SettleNd(n, nd)
	}
	for e := range d.routes {
		d.ApplyEdgeToGrid(e, gg)
	}
}

// ApplyEdgeToGrid replays the edge settles of e's route onto gg.
func (d *Drawing) ApplyEdgeToGrid(e combgraph.EdgeID, gg basegraph.BaseGraph) {
	r, ok := d.routes[e]
	if !ok {
		return
	}
	for _, id := range r.edges {
		ge := gg.EdgeAt(id)
		if ge.Secondary() {
			continue
		}
		gg.SettleEdg(gg.NodeAt(ge.From).Parent, gg.NodeAt(ge.To).Parent, e)
	}
}

// EraseFromGrid reverses every recorded settle on gg.
func (d *Drawing) EraseFromGrid(gg basegraph.BaseGraph) {
	for e := range d.routes {
		d.EraseEdgeFromGrid(e, gg)
	}
	for nd := range d.nds {
		gg.UnSettleNd(nd)
	}
}

// EraseEdgeFromGrid reverses the edge settles of e's route on gg.
func (d *Drawing) EraseEdgeFromGrid(e combgraph.EdgeID, gg basegraph.BaseGraph) {
	r, ok := d.routes[e]
	if !ok {
		return
	}
	for _, id := range r.edges {
		ge := gg.EdgeAt(id)
		if ge.Secondary() {
			continue
		}
		gg.UnSettleEdg(gg.NodeAt(ge.From).Parent, gg.NodeAt(ge.To).Parent, e)
	}
}

// Complete reports whether every combinatorial edge has a recorded route.
func (d *Drawing) Complete() bool {
	return len(d.routes) == d.cg.NumEdges()
}

// LineGraph converts the drawing into an output line graph whose edge
// geometries follow the routed grid paths.
func (d *Drawing) LineGraph() *lingraph.Graph {
	out := lingraph.New()
	src := d.cg.Src()

	for _, l := range src.Lines() {
		out.AddLine(l)
	}

	// emit in sorted order so output ids are stable across runs
	sortedNds := make([]combgraph.NodeID, 0, len(d.nds))
	for nd := range d.nds {
		sortedNds = append(sortedNds, nd)
	}
	sort.Slice(sortedNds, func(i, j int) bool { return sortedNds[i] < sortedNds[j] })

	outNd := map[combgraph.NodeID]lingraph.NodeID{}
	origToOut := map[lingraph.NodeID]lingraph.NodeID{}
	for _, nd := range sortedNds {
		orig := d.cg.Node(nd).Orig
		id := out.AddNode(d.gg.NodeAt(d.nds[nd]).Pos, src.Node(orig).Stops...)
		outNd[nd] = id
		origToOut[orig] = id
	}

	for _, e := range d.sortedEdges() {
		r := d.routes[e]
		ed := d.cg.Edge(e)

		// the route passes cells port-to-port; the emitted polyline
		// follows the traversed cell centres
		pl := geo.NewPolyLine()
		last := basegraph.NoNode
		for _, n := range r.nodes {
			centre := d.gg.NodeAt(n).Parent
			if centre == last {
				continue
			}
			last = centre
			pl.Append(d.gg.NodeAt(centre).Pos)
		}

		occs := make([]lingraph.Occ, len(ed.Lines))
		for i, o := range ed.Lines {
			occs[i] = lingraph.Occ{Line: o.Line, Dir: lingraph.None}
			if o.Dir != lingraph.None {
				if mapped, ok := origToOut[o.Dir]; ok {
					occs[i].Dir = mapped
				}
			}
		}

		out.AddEdge(outNd[ed.From], outNd[ed.To], pl, occs)
	}

	return out
}

func reversedNodes(s []basegraph.GridNodeID) []basegraph.GridNodeID {
	out := make([]basegraph.GridNodeID, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func reversedEdges(s []basegraph.GridEdgeID) []basegraph.GridEdgeID {
	out := make([]basegraph.GridEdgeID, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
