// Package lingraph implements the undirected line graph consumed and
// produced by the layout engine: stations and junctions as nodes, edges
// carrying ordered bundles of transit lines with geographic geometry.
//
// Nodes and edges live in per-graph arenas addressed by stable integer ids.
// Removed entries are tombstoned; ids stay valid for the lifetime of the
// graph.
package lingraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/geo"
)

var (
	// ErrUnknownNode is returned when an edge references a node id that is
	// not part of the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrMissingLine is returned when an edge carries a line occurrence
	// whose line was never registered.
	ErrMissingLine = errors.New("line not registered")

	// ErrBadDirection is returned when a line occurrence names a direction
	// node that is not an endpoint of its edge.
	ErrBadDirection = errors.New("line direction is not an edge endpoint")
)

// NodeID addresses a node in the graph arena.
type NodeID int32

// EdgeID addresses an edge in the graph arena.
type EdgeID int32

// None marks an absent node reference (e.g. an undirected line occurrence).
const None = NodeID(-1)

// Line is a named transit route.
type Line struct {
	ID    string `json:"id" bson:"id"`
	Label string `json:"label,omitempty" bson:"label,omitempty"`
	Color string `json:"color,omitempty" bson:"color,omitempty"`
}

// Occ ties a line to one edge, optionally with a travel direction given as
// one of the edge's endpoints.
type Occ struct {
	Line string
	Dir  NodeID // None if the line runs in both directions
}

// Station is the station identity attached to a node.
type Station struct {
	ID   string
	Name string
}

// Node is a vertex of the line graph.
type Node struct {
	Pos       orb.Point
	Stops     []Station
	notServed map[string]bool
	adj       []EdgeID
	dead      bool
}

// Edge connects two nodes with a polyline geometry and an ordered list of
// line occurrences.
type Edge struct {
	From, To NodeID
	Geom     geo.PolyLine
	Lines    []Occ
	dead     bool
}

// Graph is an undirected line graph.
type Graph struct {
	nodes []Node
	edges []Edge
	lines map[string]Line
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{lines: map[string]Line{}}
}

// AddLine registers a line. Re-registering an id overwrites its metadata.
func (g *Graph) AddLine(l Line) { g.lines[l.ID] = l }

// Line returns the metadata for a line id.
func (g *Graph) Line(id string) (Line, bool) {
	l, ok := g.lines[id]
	return l, ok
}

// Lines returns all registered lines, sorted by id.
func (g *Graph) Lines() []Line {
	out := make([]Line, 0, len(g.lines))
	for _, l := range g.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddNode appends a node and returns its id.
func (g *Graph) AddNode(pos orb.Point, stops ...Station) NodeID {
	g.nodes = append(g.nodes, Node{Pos: pos, Stops: stops})
	return NodeID(len(g.nodes) - 1)
}

// AddEdge appends an edge and links it to both endpoints. The polyline is
// oriented from → to.
func (g *Graph) AddEdge(from, to NodeID, pl geo.PolyLine, occs []Occ) (EdgeID, error) {
	if !g.validNode(from) || !g.validNode(to) {
		return 0, fmt.Errorf("%w: edge %d→%d", ErrUnknownNode, from, to)
	}
	for _, o := range occs {
		if o.Dir != None && o.Dir != from && o.Dir != to {
			return 0, fmt.Errorf("%w: line %s on edge %d→%d", ErrBadDirection, o.Line, from, to)
		}
	}
	if pl.Empty() {
		pl = geo.NewPolyLine(g.nodes[from].Pos, g.nodes[to].Pos)
	}
	g.edges = append(g.edges, Edge{From: from, To: to, Geom: pl, Lines: occs})
	id := EdgeID(len(g.edges) - 1)
	g.nodes[from].adj = append(g.nodes[from].adj, id)
	g.nodes[to].adj = append(g.nodes[to].adj, id)
	return id, nil
}

// Node returns the node for an id. The pointer stays valid until the next
// AddNode.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }

// Edge returns the edge for an id.
func (g *Graph) Edge(id EdgeID) *Edge { return &g.edges[id] }

// Nodes calls fn for every live node.
func (g *Graph) Nodes(fn func(NodeID, *Node)) {
	for i := range g.nodes {
		if !g.nodes[i].dead {
			fn(NodeID(i), &g.nodes[i])
		}
	}
}

// Edges calls fn for every live edge.
func (g *Graph) Edges(fn func(EdgeID, *Edge)) {
	for i := range g.edges {
		if !g.edges[i].dead {
			fn(EdgeID(i), &g.edges[i])
		}
	}
}

// NumNodes returns the number of live nodes.
func (g *Graph) NumNodes() int {
	n := 0
	for i := range g.nodes {
		if !g.nodes[i].dead {
			n++
		}
	}
	return n
}

// NumEdges returns the number of live edges.
func (g *Graph) NumEdges() int {
	n := 0
	for i := range g.edges {
		if !g.edges[i].dead {
			n++
		}
	}
	return n
}

// Adj returns the live edges incident to n.
func (g *Graph) Adj(n NodeID) []EdgeID {
	out := make([]EdgeID, 0, len(g.nodes[n].adj))
	for _, e := range g.nodes[n].adj {
		if !g.edges[e].dead {
			out = append(out, e)
		}
	}
	return out
}

// Deg returns the degree of n.
func (g *Graph) Deg(n NodeID) int { return len(g.Adj(n)) }

// OtherNode returns the endpoint of e that is not n.
func (g *Graph) OtherNode(e EdgeID, n NodeID) NodeID {
	ed := &g.edges[e]
	if ed.From == n {
		return ed.To
	}
	return ed.From
}

// FrontAngle returns the outgoing angle of edge e at node n: the node front
// of e at n. The angle follows the first polyline segment leaving n.
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

// ServedLines returns the ids of all lines occurring on edges incident to n,
// minus the lines marked as not served at n.
func (g *Graph) ServedLines(n NodeID) map[string]bool {
	out := map[string]bool{}
	for _, e := range g.Adj(n) {
		for _, o := range g.edges[e].Lines {
			if !g.nodes[n].notServed[o.Line] {
				out[o.Line] = true
			}
		}
	}
	return out
}

// AddLineNotServed marks a line as passing through n without serving it.
func (g *Graph) AddLineNotServed(n NodeID, line string) {
	nd := &g.nodes[n]
	if nd.notServed == nil {
		nd.notServed = map[string]bool{}
	}
	nd.notServed[line] = true
}

// LineNotServed reports whether line is marked not served at n.
func (g *Graph) LineNotServed(n NodeID, line string) bool {
	return g.nodes[n].notServed[line]
}

// RemoveEdge tombstones an edge.
func (g *Graph) RemoveEdge(e EdgeID) { g.edges[e].dead = true }

// MergeNodes merges node b into node a: b's edges are re-terminated at a,
// edges between a and b are dropped, and b is tombstoned. Station stops and
// not-served marks are inherited by a.
func (g *Graph) MergeNodes(a, b NodeID) {
	for _, e := range g.Adj(b) {
		ed := &g.edges[e]
		if ed.From == a || ed.To == a {
			ed.dead = true
			continue
		}
		if ed.From == b {
			ed.From = a
		}
		if ed.To == b {
			ed.To = a
		}
		for i := range ed.Lines {
			if ed.Lines[i].Dir == b {
				ed.Lines[i].Dir = a
			}
		}
		g.nodes[a].adj = append(g.nodes[a].adj, e)
	}
	g.nodes[a].Stops = append(g.nodes[a].Stops, g.nodes[b].Stops...)
	for l := range g.nodes[b].notServed {
		g.AddLineNotServed(a, l)
	}
	g.nodes[b].dead = true
	g.nodes[b].adj = nil
}

// BBox returns the bounding box of all live node positions and edge
// geometries.
func (g *Graph) BBox() orb.Bound {
	var box orb.Bound
	first := true
	g.Nodes(func(_ NodeID, nd *Node) {
		if first {
			box = orb.Bound{Min: nd.Pos, Max: nd.Pos}
			first = false
			return
		}
		box = box.Extend(nd.Pos)
	})
	g.Edges(func(_ EdgeID, ed *Edge) {
		if !ed.Geom.Empty() {
			box = box.Union(ed.Geom.Bound())
		}
	})
	return box
}

// Validate checks graph invariants: edges reference live nodes, every line
// occurrence names a registered line, and directions point at endpoints.
func (g *Graph) Validate() error {
	for i := range g.edges {
		ed := &g.edges[i]
		if ed.dead {
			continue
		}
		if !g.validNode(ed.From) || !g.validNode(ed.To) {
			return fmt.Errorf("%w: edge %d", ErrUnknownNode, i)
		}
		for _, o := range ed.Lines {
			if _, ok := g.lines[o.Line]; !ok {
				return fmt.Errorf("%w: %q on edge %d", ErrMissingLine, o.Line, i)
			}
			if o.Dir != None && o.Dir != ed.From && o.Dir != ed.To {
				return fmt.Errorf("%w: %q on edge %d", ErrBadDirection, o.Line, i)
			}
		}
	}
	return nil
}

func (g *Graph) validNode(n NodeID) bool {
	return n >= 0 && int(n) < len(g.nodes) && !g.nodes[n].dead
}
