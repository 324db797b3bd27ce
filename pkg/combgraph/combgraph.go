// Package combgraph provides the contracted view of a line graph used by
// the octilinear embedder: maximal chains of degree-2 nodes carrying the
// same line bundle collapse into single combinatorial edges that keep the
// concatenated geographic geometry and the ordered line set.
package combgraph

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

// NodeID addresses a combinatorial node.
type NodeID int32

// EdgeID addresses a combinatorial edge.
type EdgeID int32

// Node is a combinatorial node. It keeps a reference to its underlying
// line graph node and the clockwise ordering of its incident edges.
type Node struct {
	Orig lingraph.NodeID
	Pos  orb.Point
	adj  []EdgeID

	// ordering is the clockwise edge ordering, built once after
	// construction.
	ordering []OrderedEdge
}

// OrderedEdge pairs an incident edge with its outgoing angle at the node.
type OrderedEdge struct {
	Edge  EdgeID
	Angle float64
}

// Edge is a combinatorial edge: a contracted chain of line graph edges with
// a consistent line bundle.
type Edge struct {
	From, To NodeID
	Geom     geo.PolyLine
	Lines    []lingraph.Occ

	// Orig lists the underlying line graph edges, in chain order from
	// From to To.
	Orig []lingraph.EdgeID
}

// Graph is the contraction of a line graph.
type Graph struct {
	src   *lingraph.Graph
	nodes []Node
	edges []Edge
}

// New contracts a line graph. With deg2heur set, every maximal path of
// degree-2 nodes whose incident edges carry the same line bundle collapses
// into a single combinatorial edge; without it, every line graph node
// becomes a combinatorial node.
func New(src *lingraph.Graph, deg2heur bool) *Graph {
	g := &Graph{src: src}
	byOrig := map[lingraph.NodeID]NodeID{}

	src.Nodes(func(id lingraph.NodeID, nd *lingraph.Node) {
		if deg2heur && contractible(src, id) {
			return
		}
		g.nodes = append(g.nodes, Node{Orig: id, Pos: nd.Pos})
		byOrig[id] = NodeID(len(g.nodes) - 1)
	})

	done := map[lingraph.EdgeID]bool{}
	contract := func(from NodeID) {
		for _, le := range src.Adj(g.nodes[from].Orig) {
			if done[le] {
				continue
			}
			chain, endOrig := walkChain(src, g.nodes[from].Orig, le, byOrig)
			for _, ce := range chain {
				done[ce] = true
			}
			g.addEdge(from, byOrig[endOrig], chain)
		}
	}
	for i := range g.nodes {
		contract(NodeID(i))
	}

	// a closed loop of degree-2 nodes has no anchor; promote one of its
	// nodes so the loop survives as a self-referencing chain
	src.Edges(func(le lingraph.EdgeID, ed *lingraph.Edge) {
		if done[le] {
			return
		}
		if _, ok := byOrig[ed.From]; !ok {
			g.nodes = append(g.nodes, Node{Orig: ed.From, Pos: src.Node(ed.From).Pos})
			byOrig[ed.From] = NodeID(len(g.nodes) - 1)
		}
		contract(byOrig[ed.From])
	})

	g.buildOrderings()
	return g
}

// contractible reports whether a node is part of a collapsible chain:
// degree 2 with the same line bundle continuing across it.
func contractible(src *lingraph.Graph, n lingraph.NodeID) bool {
	adj := src.Adj(n)
	if len(adj) != 2 {
		return false
	}
	return sameBundle(src, adj[0], adj[1], n)
}

// sameBundle reports whether the line bundles of a and b are identical and
// direction-continuous across their shared node.
func sameBundle(src *lingraph.Graph, a, b lingraph.EdgeID, via lingraph.NodeID) bool {
	ea, eb := src.Edge(a), src.Edge(b)
	if len(ea.Lines) != len(eb.Lines) {
		return false
	}
	for _, oa := range ea.Lines {
		found := false
		for _, ob := range eb.Lines {
			if oa.Line != ob.Line {
				continue
			}
			if dirContinues(src, oa, ob, a, b, via) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// dirContinues checks direction continuity of a line across the shared node:
// undirected on both, or travelling consistently through it.
func dirContinues(src *lingraph.Graph, oa, ob lingraph.Occ, a, b lingraph.EdgeID, via lingraph.NodeID) bool {
	if oa.Dir == lingraph.None && ob.Dir == lingraph.None {
		return true
	}
	if oa.Dir == lingraph.None || ob.Dir == lingraph.None {
		return false
	}
	// travelling towards via on a must continue away from via on b, and
	// vice versa
	if oa.Dir == via {
		return ob.Dir == src.OtherNode(b, via)
	}
	return ob.Dir == via
}

// walkChain follows a chain of contractible nodes starting at start along
// first, returning the traversed line graph edges and the terminating node.
func walkChain(src *lingraph.Graph, start lingraph.NodeID, first lingraph.EdgeID, comb map[lingraph.NodeID]NodeID) ([]lingraph.EdgeID, lingraph.NodeID) {
	chain := []lingraph.EdgeID{first}
	cur := src.OtherNode(first, start)
	prev := first

	for {
		if _, isComb := comb[cur]; isComb {
			return chain, cur
		}
		adj := src.Adj(cur)
		var next lingraph.EdgeID = -1
		for _, e := range adj {
			if e != prev {
				next = e
				break
			}
		}
		if next < 0 {
			return chain, cur
		}
		chain = append(chain, next)
		prev = next
		cur = src.OtherNode(next, cur)
	}
}

// addEdge appends a combinatorial edge for the given chain, orienting the
// concatenated geometry from the from-node.
func (g *Graph) addEdge(from, to NodeID, chain []lingraph.EdgeID) {
	src := g.src
	cur := g.nodes[from].Orig
	var pl geo.PolyLine

	for _, le := range chain {
		ed := src.Edge(le)
		seg := ed.Geom
		if ed.From != cur {
			seg = seg.Reversed()
		}
		if len(pl.Points()) == 0 {
			pl = seg
		} else {
			pl = pl.Concat(seg)
		}
		cur = src.OtherNode(le, cur)
	}

	// translate the first edge's occurrences to the comb endpoints
	firstEd := src.Edge(chain[0])
	occs := make([]lingraph.Occ, len(firstEd.Lines))
	frOrig, toOrig := g.nodes[from].Orig, g.nodes[to].Orig
	forward := firstEd.From == frOrig // chain orientation of the first edge
	for i, o := range firstEd.Lines {
		occs[i] = lingraph.Occ{Line: o.Line, Dir: lingraph.None}
		if o.Dir == lingraph.None {
			continue
		}
		towardsEnd := (o.Dir == firstEd.To) == forward
		if towardsEnd {
			occs[i].Dir = toOrig
		} else {
			occs[i].Dir = frOrig
		}
	}

	g.edges = append(g.edges, Edge{From: from, To: to, Geom: pl, Lines: occs, Orig: chain})
	id := EdgeID(len(g.edges) - 1)
	g.nodes[from].adj = append(g.nodes[from].adj, id)
	if to != from {
		g.nodes[to].adj = append(g.nodes[to].adj, id)
	}
}

// buildOrderings computes the clockwise edge ordering at every node from
// the node fronts of the underlying line graph.
func (g *Graph) buildOrderings() {
	for i := range g.nodes {
		nd := &g.nodes[i]
		nd.ordering = nd.ordering[:0]
		for _, e := range nd.adj {
			nd.ordering = append(nd.ordering, OrderedEdge{
				Edge:  e,
				Angle: g.FrontAngle(NodeID(i), e),
			})
		}
		// descending ccw angle = clockwise traversal
		sort.Slice(nd.ordering, func(a, b int) bool {
			return nd.ordering[a].Angle > nd.ordering[b].Angle
		})
	}
}

// Src returns the underlying line graph.
func (g *Graph) Src() *lingraph.Graph { return g.src }

// Node returns the node for an id.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }

// Edge returns the edge for an id.
func (g *Graph) Edge(id EdgeID) *Edge { return &g.edges[id] }

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int { return len(g.edges) }

// Adj returns the edges incident to n.
func (g *Graph) Adj(n NodeID) []EdgeID { return g.nodes[n].adj }

// Deg returns the degree of n.
func (g *Graph) Deg(n NodeID) int { return len(g.nodes[n].adj) }

// OtherNode returns the endpoint of e that is not n.
func (g *Graph) OtherNode(e EdgeID, n NodeID) NodeID {
	ed := &g.edges[e]
	if ed.From == n {
		return ed.To
	}
	return ed.From
}

// FrontAngle returns the outgoing angle of edge e at node n, following the
// first geometry segment leaving the node.
func (g *Graph) FrontAngle(n NodeID, e EdgeID) float64 {
	ed := &g.edges[e]
	pts := ed.Geom.Points()
	if len(pts) < 2 {
		return geo.Angle(g.nodes[ed.From].Pos, g.nodes[ed.To].Pos)
	}
	if ed.From == n {
		return geo.Angle(pts[0], pts[1])
	}
	return geo.Angle(pts[len(pts)-1], pts[len(pts)-2])
}

// EdgeOrdering returns the clockwise edge ordering at n.
func (g *Graph) EdgeOrdering(n NodeID) []OrderedEdge { return g.nodes[n].ordering }

// OrderDist returns the clockwise distance from edge a to edge b in the
// ordering at n, in positions (0..deg-1). Returns -1 if either edge is not
// incident.
func (g *Graph) OrderDist(n NodeID, a, b EdgeID) int {
	ord := g.nodes[n].ordering
	ai, bi := -1, -1
	for i, oe := range ord {
		if oe.Edge == a {
			ai = i
		}
		if oe.Edge == b {
			bi = i
		}
	}
	if ai < 0 || bi < 0 {
		return -1
	}
	d := bi - ai
	if d < 0 {
		d += len(ord)
	}
	return d
}

// LineDeg returns the total number of line occurrences over all edges
// incident to n. Used as a routing priority: nodes threading more lines are
// harder to place and go first.
func (g *Graph) LineDeg(n NodeID) int {
	total := 0
	for _, e := range g.nodes[n].adj {
		total += len(g.edges[e].Lines)
	}
	return total
}
