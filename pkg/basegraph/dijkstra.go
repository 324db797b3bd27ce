package basegraph

import "math"

// CostFn prices a grid edge for the router. Infinity excludes the edge.
type CostFn func(id GridEdgeID, e *GridEdge) float64

// NewGridCost returns the plain routing cost function over g: the current
// edge cost, with closed, blocked and density-saturated edges excluded.
func NewGridCost(g BaseGraph) CostFn {
	maxDens := g.Pens().MaxDensity
	return func(_ GridEdgeID, e *GridEdge) float64 {
		if e.closed || e.blocked {
			return math.Inf(1)
		}
		if e.Kind == KindPrimary && len(e.res) >= maxDens {
			return math.Inf(1)
		}
		return e.cost
	}
}

// NewGridCostGeoPen returns the routing cost function with
// geographic-fidelity penalties added per primary edge.
func NewGridCostGeoPen(g BaseGraph, pens GeoPens) CostFn {
	plain := NewGridCost(g)
	return func(id GridEdgeID, e *GridEdge) float64 {
		c := plain(id, e)
		if math.IsInf(c, 1) {
			return c
		}
		return c + pens[id]
	}
}

// pqItem is a priority queue entry: the candidate node with its settled
// distance and its heuristic priority.
type pqItem struct {
	node GridNodeID
	dist float64
	prio float64
}

// minHeap is a concrete-typed min-heap keyed by prio, avoiding the
// interface boxing of container/heap in the router's hot loop.
type minHeap struct {
	items []pqItem
}

func (h *minHeap) len() int { return len(h.items) }

func (h *minHeap) push(it pqItem) {
	h.items = append(h.items, it)
	h.siftUp(len(h.items) - 1)
}

func (h *minHeap) pop() pqItem {
	n := len(h.items)
	it := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return it
}

func (h *minHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].prio >= h.items[parent].prio {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *minHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		if l := 2*i + 1; l < n && h.items[l].prio < h.items[smallest].prio {
			smallest = l
		}
		if r := 2*i + 2; r < n && h.items[r].prio < h.items[smallest].prio {
			smallest = r
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// ShortestPath runs A* from the source set to the nearest member of the
// target set. heur may be nil for plain Dijkstra. The search aborts once
// the settled distance exceeds cutoff.
//
// On success it returns the path's nodes (source first) and edges
// (edges[i] connects nodes[i] and nodes[i+1]) along with the path cost.
// On failure it returns nil slices and an infinite cost.
func ShortestPath(g BaseGraph, from, to []GridNodeID, cost CostFn, heur func(GridNodeID) float64, cutoff float64) ([]GridNodeID, []GridEdgeID, float64) {
	if len(from) == 0 || len(to) == 0 {
		return nil, nil, math.Inf(1)
	}

	n := g.NumNodes()
	dist := make([]float64, n)
	prevEdge := make([]GridEdgeID, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prevEdge[i] = NoEdge
	}

	targets := make(map[GridNodeID]bool, len(to))
	for _, t := range to {
		targets[t] = true
	}

	var pq minHeap
	for _, s := range from {
		dist[s] = 0
		prio := 0.0
		if heur != nil {
			prio = heur(s)
		}
		pq.push(pqItem{node: s, dist: 0, prio: prio})
	}

	var goal GridNodeID = NoNode
	for pq.len() > 0 {
		cur := pq.pop()
		if done[cur.node] {
			continue
		}
		done[cur.node] = true

		if cur.dist > cutoff {
			return nil, nil, math.Inf(1)
		}
		if targets[cur.node] {
			goal = cur.node
			break
		}

		for _, eid := range g.AdjEdges(cur.node) {
			e := g.EdgeAt(eid)
			c := cost(eid, e)
			if math.IsInf(c, 1) {
				continue
			}
			next := e.To
			if next == cur.node {
				next = e.From
			}
			if done[next] {
				continue
			}
			nd := cur.dist + c
			if nd < dist[next] {
				dist[next] = nd
				prevEdge[next] = eid
				prio := nd
				if heur != nil {
					prio += heur(next)
				}
				pq.push(pqItem{node: next, dist: nd, prio: prio})
			}
		}
	}

	if goal == NoNode {
		return nil, nil, math.Inf(1)
	}

	// walk back to a source
	var nodes []GridNodeID
	var edges []GridEdgeID
	cur := goal
	for {
		nodes = append(nodes, cur)
		eid := prevEdge[cur]
		if eid == NoEdge {
			break
		}
		edges = append(edges, eid)
		e := g.EdgeAt(eid)
		if e.From == cur {
			cur = e.To
		} else {
			cur = e.From
		}
	}
	reverseNodes(nodes)
	reverseEdges(edges)
	return nodes, edges, dist[goal]
}

func reverseNodes(s []GridNodeID) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseEdges(s []GridEdgeID) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
