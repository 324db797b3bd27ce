// Package basegraph implements the discrete embedding substrate of the
// octilinear layout engine: a lattice of grid cells overlaid on the padded
// bounding box of the input, each cell holding a centre node and one port
// node per compass direction. Three edge classes connect them:
//
//   - sink edges (port↔centre): closed by default, opened with a
//     displacement penalty while a combinatorial endpoint considers the
//     cell as its embedding position
//   - bend edges (port↔port within one cell): cost encodes the turn angle
//     of a route passing through the cell
//   - primary edges (port↔opposing port of the neighbouring cell): cost is
//     the Euclidean length scaled by a direction factor
//
// Two concrete variants share the substrate: GridGraph (square cells,
// crossing diagonals mutually exclusive) and OctiGridGraph (octilinear
// cost accounting, diagonals priced independently).
package basegraph

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
)

// GridNodeID addresses a node of the base graph.
type GridNodeID int32

// GridEdgeID addresses an edge of the base graph.
type GridEdgeID int32

// NoNode marks an absent node reference.
const NoNode = GridNodeID(-1)

// NoEdge marks an absent edge reference.
const NoEdge = GridEdgeID(-1)

// NoOwner marks an unsettled grid entity.
const NoOwner = combgraph.NodeID(-1)

// Compass direction indices, clockwise from north.
const (
	N = iota
	NE
	E
	SE
	S
	SW
	W
	NW
)

// dx/dy per compass direction.
var (
	dirDX = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	dirDY = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
)

// Penalties configures the cost model of the base graph.
type Penalties struct {
	// Turn penalties for routes bending inside a cell, named by the
	// angle remaining between the incoming and outgoing direction: P45
	// prices the sharpest turn, P135 the gentlest.
	P45  float64 `toml:"p_45"`
	P90  float64 `toml:"p_90"`
	P135 float64 `toml:"p_135"`
	P180 float64 `toml:"p_180"`

	// HopPen is charged for a straight crossing through a cell (two
	// colinear ports through the centre).
	HopPen float64 `toml:"hop_pen"`

	// Direction factors scaling the Euclidean length of primary edges.
	VertPen float64 `toml:"vert_pen"`
	HoriPen float64 `toml:"hori_pen"`
	DiagPen float64 `toml:"diag_pen"`

	// DensityPen prices every resident beyond the first on a primary
	// edge; MaxDensity caps residents per primary edge.
	DensityPen float64 `toml:"density_pen"`
	MaxDensity int     `toml:"max_density"`

	// NdMovePen scales the displacement penalty for embedding a
	// combinatorial node away from its geographic position, per cell of
	// displacement.
	NdMovePen float64 `toml:"nd_move_pen"`
}

// DefaultPenalties returns the default cost model.
func DefaultPenalties() Penalties {
	return Penalties{
		P45:        3,
		P90:        2,
		P135:       1,
		P180:       4,
		HopPen:     0.5,
		VertPen:    1,
		HoriPen:    1,
		DiagPen:    math.Sqrt2,
		DensityPen: 10,
		MaxDensity: 1,
		NdMovePen:  0.5,
	}
}

// NodeCost is a per-port cost vector written onto the sink edges of a
// candidate centre before routing. An infinite entry closes the port.
type NodeCost [8]float64

// Add accumulates another cost vector.
func (c *NodeCost) Add(o NodeCost) {
	for i := range c {
		c[i] += o[i]
	}
}

// GridNode is a centre or port node of one grid cell.
type GridNode struct {
	X, Y int  // cell coordinates
	Port int8 // -1 for the centre, else compass direction index
	Pos  orb.Point

	// Parent is the centre node of the cell (self for centres).
	Parent GridNodeID

	// Settled is the combinatorial node occupying this centre, or
	// NoOwner.
	Settled combgraph.NodeID

	closed bool
	adj    []GridEdgeID
}

// IsCentre reports whether the node is a cell centre.
func (n *GridNode) IsCentre() bool { return n.Port < 0 }

// Closed reports whether the node is excluded from candidate sets.
func (n *GridNode) Closed() bool { return n.closed }

// EdgeKind classifies a grid edge for cost decomposition.
type EdgeKind int8

const (
	// KindPrimary is an inter-cell edge; its cost counts as hop cost.
	KindPrimary EdgeKind = iota
	// KindBend is an intra-cell port↔port edge; a colinear pair counts
	// as hop, the rest as bend cost.
	KindBend
	// KindSink is a port↔centre edge; its cost counts as move cost.
	KindSink
)

// GridEdge is an edge of the base graph with its mutable routing state.
type GridEdge struct {
	From, To GridNodeID
	Kind     EdgeKind

	// Straight marks the colinear bend edge through a cell centre.
	Straight bool

	cost     float64
	baseCost float64

	closed  bool // hard block (sink not opened, obstacle, settled node)
	blocked bool // would cross a settled diagonal

	// Partner is the crossing diagonal (square grid only).
	Partner GridEdgeID

	res []combgraph.EdgeID
}

// Cost returns the current traversal cost.
func (e *GridEdge) Cost() float64 { return e.cost }

// SetCost overrides the current traversal cost.
func (e *GridEdge) SetCost(c float64) { e.cost = c }

// RawCost returns the geometric base cost.
func (e *GridEdge) RawCost() float64 { return e.baseCost }

// Closed reports whether the edge is hard-blocked.
func (e *GridEdge) Closed() bool { return e.closed }

// Blocked reports whether the edge would cross a settled edge.
func (e *GridEdge) Blocked() bool { return e.blocked }

// Secondary reports whether the edge lives inside a single cell.
func (e *GridEdge) Secondary() bool { return e.Kind != KindPrimary }

// ResCount returns the number of combinatorial edges settled onto this
// edge.
func (e *GridEdge) ResCount() int { return len(e.res) }

// Residents returns the combinatorial edges settled onto this edge.
func (e *GridEdge) Residents() []combgraph.EdgeID { return e.res }

// GeoPens maps primary grid edges to geographic-fidelity penalties for one
// combinatorial edge.
type GeoPens map[GridEdgeID]float64

// GeoPensMap holds the geo penalties of every combinatorial edge.
type GeoPensMap map[combgraph.EdgeID]GeoPens

// BaseGraph is the capability interface shared by the grid variants.
type BaseGraph interface {
	// Init builds the lattice. Must be called exactly once.
	Init()

	CellSize() float64
	Pens() *Penalties
	BBox() orb.Bound

	// Storage access.
	NumNodes() int
	NodeAt(GridNodeID) *GridNode
	EdgeAt(GridEdgeID) *GridEdge
	AdjEdges(GridNodeID) []GridEdgeID
	NumEdges() int

	// NumNeighbors returns the number of local-search neighbour
	// positions per centre.
	NumNeighbors() int
	// Neighbor returns the i-th neighbour centre of a centre node; the
	// last index (NumNeighbors()) yields the centre itself.
	Neighbor(n GridNodeID, i int) (GridNodeID, bool)

	// GrNdCands returns the unsettled, open centres within maxDis of
	// pos.
	GrNdCands(pos orb.Point, maxDis float64) []GridNodeID

	OpenSinkFr(n GridNodeID, extra float64)
	OpenSinkTo(n GridNodeID, extra float64)
	CloseSinkFr(n GridNodeID)
	CloseSinkTo(n GridNodeID)

	SettleNd(n GridNodeID, owner combgraph.NodeID)
	UnSettleNd(owner combgraph.NodeID)
	Settled(owner combgraph.NodeID) (GridNodeID, bool)

	SettleEdg(a, b GridNodeID, e combgraph.EdgeID)
	UnSettleEdg(a, b GridNodeID, e combgraph.EdgeID)
	PrimaryEdgeBetween(a, b GridNodeID) (GridEdgeID, bool)

	AddObstacle(poly orb.Polygon)

	NdMovePen(pos orb.Point, n GridNodeID) float64
	TopoBlockPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost
	SpacingPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost
	NodeBendPen(n GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID) NodeCost
	AddCostVec(n GridNodeID, c NodeCost)

	// WriteGeoCoursePens fills pens with a penalty per primary edge
	// proportional to weight times the distance between the edge
	// midpoint and the reference geometry, in cells.
	WriteGeoCoursePens(ref geo.PolyLine, pens GeoPens, weight float64)

	// Heur returns an admissible distance heuristic towards the target
	// centres.
	Heur(targets []GridNodeID) func(GridNodeID) float64
}

// bendCost returns the intra-cell traversal cost between two ports. A
// port pair 4 steps apart is the straight crossing; 3 steps leave 135°
// between the directions (the gentlest bend), 1 step leaves 45° (the
// sharpest).
func bendCost(pens *Penalties, a, b int) (cost float64, straight bool) {
	switch geo.DirDist(a, b) {
	case 4:
		return pens.HopPen, true
	case 3:
		return pens.P135, false
	case 2:
		return pens.P90, false
	default:
		return pens.P45, false
	}
}
