package octi

import (
	"container/heap"
	"math/rand"

	"github.com/pvnkmrksk/magga/pkg/combgraph"
)

// nodePQ orders combinatorial nodes by routing difficulty: nodes threading
// more lines first, then higher degree, then by id for determinism.
type nodePQ struct {
	cg  *combgraph.Graph
	nds []combgraph.NodeID
}

func (q *nodePQ) Len() int { return len(q.nds) }

func (q *nodePQ) Less(i, j int) bool {
	a, b := q.nds[i], q.nds[j]
	la, lb := q.cg.LineDeg(a), q.cg.LineDeg(b)
	if la != lb {
		return la > lb
	}
	da, db := q.cg.Deg(a), q.cg.Deg(b)
	if da != db {
		return da > db
	}
	return a < b
}

func (q *nodePQ) Swap(i, j int) { q.nds[i], q.nds[j] = q.nds[j], q.nds[i] }

func (q *nodePQ) Push(x any) { q.nds = append(q.nds, x.(combgraph.NodeID)) }

func (q *nodePQ) Pop() any {
	n := len(q.nds)
	v := q.nds[n-1]
	q.nds = q.nds[:n-1]
	return v
}

// getOrdering produces the edge routing sequence: a two-level BFS with an
// outer priority queue over all nodes and an inner dangling queue that
// expands each popped node's incident edges in clockwise order. Every edge
// appears exactly once; hard nodes are routed first, their neighbours
// immediately after, keeping node-internal orderings consistent.
//
// With randr set, each node's clockwise edge list is randomly permuted
// before expansion, yielding the shuffled orders of the multi-start
// retries.
func getOrdering(cg *combgraph.Graph, randr bool, rnd *rand.Rand) []combgraph.EdgeID {
	global := &nodePQ{cg: cg}
	for i := 0; i < cg.NumNodes(); i++ {
		global.nds = append(global.nds, combgraph.NodeID(i))
	}
	heap.Init(global)

	settled := make(map[combgraph.NodeID]bool, cg.NumNodes())
	done := make(map[combgraph.EdgeID]bool, cg.NumEdges())
	order := make([]combgraph.EdgeID, 0, cg.NumEdges())

	for global.Len() > 0 {
		start := heap.Pop(global).(combgraph.NodeID)

		dangling := &nodePQ{cg: cg, nds: []combgraph.NodeID{start}}
		for dangling.Len() > 0 {
			n := heap.Pop(dangling).(combgraph.NodeID)
			if settled[n] {
				continue
			}

			ord := cg.EdgeOrdering(n)
			edges := make([]combgraph.EdgeID, len(ord))
			for i, oe := range ord {
				edges[i] = oe.Edge
			}
			if randr {
				rnd.Shuffle(len(edges), func(i, j int) {
					edges[i], edges[j] = edges[j], edges[i]
				})
			}

			for _, e := range edges {
				if done[e] {
					continue
				}
				done[e] = true
				heap.Push(dangling, cg.OtherNode(e, n))
				order = append(order, e)
			}
			settled[n] = true
		}
	}

	return order
}
