// Package octi implements the octilinear embedder: it routes the
// combinatorial edges of a contracted line graph onto a grid base graph
// with a sequential shortest-path heuristic, a randomised multi-start and
// a parallel local search, and emits a line graph with grid-aligned
// geometry.
package octi

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/observability"
)

// ErrNoEmbedding is returned when every multi-start attempt fails to
// route all combinatorial edges.
var ErrNoEmbedding = errors.New("no embedding found")

const (
	defaultJobs  = 4
	defaultTries = 100
	defaultIters = 100

	// candExpansions bounds the candidate-radius growth when a routing
	// pair comes up empty.
	candExpansions = 10

	// impThreshold terminates the local search once the per-iteration
	// improvement drops below it, in absolute score units.
	impThreshold = 0.05
)

// GridKind selects the base graph variant.
type GridKind int

const (
	// Grid is the square-grid base graph.
	Grid GridKind = iota
	// OctiGrid is the octilinear base graph.
	OctiGrid
)

// Options configures one embedding run.
type Options struct {
	Pens      basegraph.Penalties
	CellSize  float64
	BorderRad float64

	// Deg2Heur contracts same-bundle degree-2 chains before embedding.
	Deg2Heur bool

	// MaxGrDist caps the candidate radius around a combinatorial node,
	// in cells.
	MaxGrDist float64

	// RestrLocSearch keeps local-search moves inside the MaxGrDist
	// radius, for consistency with the ILP formulation.
	RestrLocSearch bool

	// EnfGeoPen biases routing towards the geographic course of each
	// edge; zero disables the bias.
	EnfGeoPen float64

	Obstacles []orb.Polygon
}

// Result is a finished embedding.
type Result struct {
	Graph   *lingraph.Graph
	Score   Score
	Grid    basegraph.BaseGraph
	Drawing *Drawing
}

// Octilinearizer drives the embedding heuristic. The zero value uses the
// square grid, four workers and the default iteration caps.
type Octilinearizer struct {
	Kind   GridKind
	Jobs   int
	Tries  int
	Iters  int
	Seed   int64
	Logger *log.Logger
}

func (oc *Octilinearizer) jobs() int {
	if oc.Jobs > 0 {
		return oc.Jobs
	}
	return defaultJobs
}

func (oc *Octilinearizer) logger() *log.Logger {
	if oc.Logger != nil {
		return oc.Logger
	}
	return log.Default()
}

// NewBaseGraph creates the configured base graph variant over box.
func (oc *Octilinearizer) NewBaseGraph(box orb.Bound, opts Options) basegraph.BaseGraph {
	if oc.Kind == OctiGrid {
		return basegraph.NewOctiGridGraph(box, opts.CellSize, opts.BorderRad, opts.Pens)
	}
	return basegraph.NewGridGraph(box, opts.CellSize, opts.BorderRad, opts.Pens)
}

// Draw embeds tg onto the grid. The input graph is modified: edges shorter
// than half a cell are collapsed before contraction.
func (oc *Octilinearizer) Draw(tg *lingraph.Graph, opts Options) (Result, error) {
	if err := tg.Validate(); err != nil {
		return Result{}, err
	}
	RemoveShortEdges(tg, opts.CellSize/2)

	cg := combgraph.New(tg, opts.Deg2Heur)
	box := geo.Pad(tg.BBox(), opts.CellSize+1)

	return oc.DrawComb(cg, box, opts)
}

// DrawComb embeds an already-contracted graph onto the grid over box.
func (oc *Octilinearizer) DrawComb(cg *combgraph.Graph, box orb.Bound, opts Options) (Result, error) {
	logger := oc.logger()
	jobs := oc.jobs()
	observability.Solver().OnDrawStart(cg.NumNodes(), cg.NumEdges())

	start := time.Now()
	ggs := make([]basegraph.BaseGraph, jobs)
	var wg sync.WaitGroup
	for i := range ggs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ggs[i] = oc.NewBaseGraph(box, opts)
			ggs[i].Init()
			for _, obst := range opts.Obstacles {
				ggs[i].AddObstacle(obst)
			}
		}(i)
	}
	wg.Wait()
	logger.Debug("created grid graphs", "jobs", jobs, "took", time.Since(start).Round(time.Millisecond))

	rnd := rand.New(rand.NewSource(oc.Seed))
	initOrder := getOrdering(cg, false, rnd)

	var geoPens basegraph.GeoPensMap
	if opts.EnfGeoPen > 0 {
		geoPens = basegraph.GeoPensMap{}
		start := time.Now()
		for _, ce := range initOrder {
			pens := basegraph.GeoPens{}
			ggs[0].WriteGeoCoursePens(cg.Edge(ce).Geom, pens, opts.EnfGeoPen)
			geoPens[ce] = pens
		}
		logger.Debug("wrote geo pens", "took", time.Since(start).Round(time.Millisecond))
	}

	drawing := NewDrawing(cg, ggs[0])

	tries := oc.Tries
	if tries <= 0 {
		tries = defaultTries
	}

	found := false
	for i := 0; i < tries; i++ {
		tryStart := time.Now()
		order := initOrder
		if i != 0 {
			order = getOrdering(cg, true, rnd)
		}

		ok := oc.drawOrder(order, nil, ggs[0], drawing, drawing.Score(), opts, geoPens)
		observability.Solver().OnTry(i, ok, drawing.Score())
		if ok {
			logger.Info("routing try succeeded", "try", i, "score",
				fmt.Sprintf("%.2f", drawing.Score()), "took", time.Since(tryStart).Round(time.Millisecond))
		} else {
			logger.Debug("routing try failed", "try", i, "took",
				time.Since(tryStart).Round(time.Millisecond))
		}

		drawing.EraseFromGrid(ggs[0])
		if ok {
			found = true
			break
		}
		drawing.Crumble()
	}

	if !found {
		observability.Solver().OnDrawComplete(math.Inf(1), time.Since(start), ErrNoEmbedding)
		return Result{}, ErrNoEmbedding
	}

	for _, gg := range ggs {
		drawing.ApplyToGrid(gg)
	}

	drawing = oc.localSearch(cg, drawing, ggs, opts, geoPens)

	out := drawing.LineGraph()
	score := drawing.FullScore()
	logger.Info("embedding done",
		"hop", fmt.Sprintf("%.2f", score.Hop),
		"bend", fmt.Sprintf("%.2f", score.Bend),
		"move", fmt.Sprintf("%.2f", score.Move),
		"dense", fmt.Sprintf("%.2f", score.Dense))
	observability.Solver().OnDrawComplete(score.Total, time.Since(start), nil)

	return Result{Graph: out, Score: score, Grid: ggs[0], Drawing: drawing}, nil
}

// localSearch iteratively re-places single combinatorial nodes onto
// neighbouring centres. Workers own private grid copies and evaluate
// disjoint node batches; per iteration exactly one best move is applied
// and replayed on every grid.
func (oc *Octilinearizer) localSearch(cg *combgraph.Graph, drawing *Drawing, ggs []basegraph.BaseGraph, opts Options, geoPens basegraph.GeoPensMap) *Drawing {
	logger := oc.logger()
	jobs := len(ggs)

	iters := oc.Iters
	if iters <= 0 {
		iters = defaultIters
	}

	batches := make([][]combgraph.NodeID, jobs)
	c := 0
	for i := 0; i < cg.NumNodes(); i++ {
		if cg.Deg(combgraph.NodeID(i)) == 0 {
			continue
		}
		batches[c%jobs] = append(batches[c%jobs], combgraph.NodeID(i))
		c++
	}

	for iter := 0; iter < iters; iter++ {
		iterStart := time.Now()
		best := make([]*Drawing, jobs)

		var wg sync.WaitGroup
		for b := 0; b < jobs; b++ {
			wg.Add(1)
			go func(b int) {
				defer wg.Done()
				best[b] = oc.searchBatch(cg, drawing, ggs[b], batches[b], opts, geoPens)
			}(b)
		}
		wg.Wait()

		bestScore := math.Inf(1)
		bestCore := -1
		for i, d := range best {
			if d != nil && d.Score() < bestScore {
				bestScore = d.Score()
				bestCore = i
			}
		}
		if bestCore < 0 {
			break
		}

		imp := drawing.Score() - bestScore
		logger.Info("local search iteration", "iter", iter,
			"prev", fmt.Sprintf("%.2f", drawing.Score()),
			"next", fmt.Sprintf("%.2f", bestScore),
			"imp", fmt.Sprintf("%.2f", imp),
			"took", time.Since(iterStart).Round(time.Millisecond))
		observability.Solver().OnLocalSearchIter(iter, drawing.Score(), bestScore)

		if imp <= 0 {
			break
		}

		for _, gg := range ggs {
			drawing.EraseFromGrid(gg)
			best[bestCore].ApplyToGrid(gg)
		}
		drawing = best[bestCore]
		drawing.SetBaseGraph(ggs[0])

		if imp < impThreshold {
			break
		}
	}

	return drawing
}

// searchBatch evaluates single-node moves for one worker's batch on its
// private grid and returns the best complete re-drawing, or nil.
func (oc *Octilinearizer) searchBatch(cg *combgraph.Graph, drawing *Drawing, gg basegraph.BaseGraph, batch []combgraph.NodeID, opts Options, geoPens basegraph.GeoPensMap) *Drawing {
	var best *Drawing
	bestScore := math.Inf(1)

	for _, a := range batch {
		curPos, ok := drawing.GrNd(a)
		if !ok {
			continue
		}
		adj := cg.Adj(a)

		// lift a and its incident edges off the grid
		drawingCp := drawing.Copy()
		drawingCp.SetBaseGraph(gg)
		for _, ce := range adj {
			drawingCp.EraseEdgeFromGrid(ce, gg)
			drawingCp.Erase(ce)
		}
		drawingCp.EraseNd(a)
		gg.UnSettleNd(a)

		for pos := 0; pos <= gg.NumNeighbors(); pos++ {
			p := SettledPos{}
			n, ok := gg.Neighbor(curPos, pos)
			if ok {
				p[a] = n
				if opts.RestrLocSearch {
					// positions outside the move radius would diverge
					// from the ILP search space
					gridD := geo.Dist(cg.Node(a).Pos, gg.NodeAt(n).Pos)
					if gridD >= opts.MaxGrDist*opts.CellSize {
						continue
					}
				}
			}

			run := drawingCp.Copy()

			// the best score so far is a valid cutoff: anything worse
			// will be discarded anyway
			cutoff := bestScore
			if best == nil {
				cutoff = math.Inf(1)
			}
			found := oc.drawOrder(adj, p, gg, run, cutoff, opts, geoPens)

			if found && run.Score() < bestScore {
				best = run
				bestScore = run.Score()
			}

			// reset the grid for the next candidate
			for _, ce := range adj {
				run.EraseEdgeFromGrid(ce, gg)
			}
			gg.UnSettleNd(a)
		}

		// restore the authoritative placement on this worker's grid
		gg.SettleNd(curPos, a)
		for _, ce := range adj {
			drawing.ApplyEdgeToGrid(ce, gg)
		}
	}

	return best
}

// drawOrder routes the given combinatorial edges in order onto gg,
// recording into drawing. Pre-settled tentative positions pin nodes to
// centres. Returns false as soon as one edge cannot be routed within the
// cutoff.
func (oc *Octilinearizer) drawOrder(order []combgraph.EdgeID, settled SettledPos, gg basegraph.BaseGraph, drawing *Drawing, globCutoff float64, opts Options, geoPens basegraph.GeoPensMap) bool {
	cg := drawing.cg

	for _, ce := range order {
		cutoff := globCutoff - drawing.Score()
		if math.IsInf(drawing.Score(), 1) {
			cutoff = math.Inf(1)
		}

		ed := cg.Edge(ce)
		frCmb, toCmb := ed.From, ed.To
		rev := false

		frGrNds, toGrNds := oc.getRtPair(cg, gg, frCmb, toCmb, settled, opts)
		if len(frGrNds) == 0 || len(toGrNds) == 0 {
			return false
		}

		// route from the larger candidate set towards the smaller one
		if len(toGrNds) > len(frGrNds) {
			frCmb, toCmb = toCmb, frCmb
			frGrNds, toGrNds = toGrNds, frGrNds
			rev = true
		}

		// open the sinks. A settled endpoint's displacement was counted
		// when it was first placed; fresh endpoints are offset by
		// p45−p135 so that stripping the offset afterwards leaves the
		// bend accounting intact.
		pens := gg.Pens()
		costOffsetFrom, costOffsetTo := 0.0, 0.0

		_, frSettled := gg.Settled(frCmb)
		for _, n := range frGrNds {
			if frSettled {
				gg.OpenSinkFr(n, 0)
			} else {
				costOffsetFrom = pens.P45 - pens.P135
				gg.OpenSinkFr(n, costOffsetFrom+gg.NdMovePen(cg.Node(frCmb).Pos, n))
			}
		}

		_, toSettled := gg.Settled(toCmb)
		for _, n := range toGrNds {
			if toSettled {
				gg.OpenSinkTo(n, 0)
			} else {
				costOffsetTo = pens.P45 - pens.P135
				gg.OpenSinkTo(n, costOffsetTo+gg.NdMovePen(cg.Node(toCmb).Pos, n))
			}
		}

		// node costs relate two or more adjacent edges and only apply
		// once a node's clockwise arrangement is fixed on the grid, i.e.
		// when the endpoint is already settled with its single centre
		if len(frGrNds) == 1 && frSettled {
			oc.writeNdCosts(frGrNds[0], cg, frCmb, ce, gg)
		}
		if len(toGrNds) == 1 && toSettled {
			oc.writeNdCosts(toGrNds[0], cg, toCmb, ce, gg)
		}

		var cost basegraph.CostFn
		if geoPens != nil {
			cost = basegraph.NewGridCostGeoPen(gg, geoPens[ce])
		} else {
			cost = basegraph.NewGridCost(gg)
		}
		heur := gg.Heur(toGrNds)

		nodes, edges, _ := basegraph.ShortestPath(gg, frGrNds, toGrNds, cost, heur,
			cutoff+costOffsetFrom+costOffsetTo)

		if len(nodes) == 0 {
			for _, n := range toGrNds {
				gg.CloseSinkTo(n)
			}
			for _, n := range frGrNds {
				gg.CloseSinkFr(n)
			}
			return false
		}

		// strip the offsets so recorded costs stay undistorted
		frSink := gg.EdgeAt(edges[0])
		frSink.SetCost(frSink.Cost() - costOffsetFrom)
		toSink := gg.EdgeAt(edges[len(edges)-1])
		toSink.SetCost(toSink.Cost() - costOffsetTo)

		drawing.Draw(ce, nodes, edges, rev)

		for _, n := range toGrNds {
			gg.CloseSinkTo(n)
		}
		for _, n := range frGrNds {
			gg.CloseSinkFr(n)
		}

		gg.SettleNd(nodes[len(nodes)-1], toCmb)
		gg.SettleNd(nodes[0], frCmb)
		drawing.ApplyEdgeToGrid(ce, gg)
	}

	return true
}

// writeNdCosts adds the topology, spacing and bend penalties for routing
// e into nd at centre n onto the centre's port edges.
func (oc *Octilinearizer) writeNdCosts(n basegraph.GridNodeID, cg *combgraph.Graph, nd combgraph.NodeID, e combgraph.EdgeID, gg basegraph.BaseGraph) {
	c := gg.TopoBlockPen(n, cg, nd, e)
	sp := gg.SpacingPen(n, cg, nd, e)
	c.Add(sp)
	bp := gg.NodeBendPen(n, cg, nd, e)
	c.Add(bp)
	gg.AddCostVec(n, c)
}

// getRtPair computes the candidate source and target centre sets for one
// combinatorial edge. Overlapping candidates go to the geographically
// nearer side (a Voronoi split over the two endpoints); empty sides grow
// the radius and retry.
func (oc *Octilinearizer) getRtPair(cg *combgraph.Graph, gg basegraph.BaseGraph, fr, to combgraph.NodeID, pre SettledPos, opts Options) ([]basegraph.GridNodeID, []basegraph.GridNodeID) {
	frSet, frFixed := oc.getCands(cg, gg, fr, pre, 0)
	toSet, toFixed := oc.getCands(cg, gg, to, pre, 0)
	if frFixed && toFixed {
		return frSet, toSet
	}

	maxDis := gg.CellSize() * opts.MaxGrDist

	for i := 0; i < candExpansions; i++ {
		frCands, _ := oc.getCands(cg, gg, fr, pre, maxDis)
		toCands, _ := oc.getCands(cg, gg, to, pre, maxDis)

		inFr := map[basegraph.GridNodeID]bool{}
		for _, n := range frCands {
			inFr[n] = true
		}

		var frOut, toOut []basegraph.GridNodeID
		isect := map[basegraph.GridNodeID]bool{}
		for _, n := range toCands {
			if inFr[n] {
				isect[n] = true
			}
		}

		for _, n := range frCands {
			if !isect[n] {
				frOut = append(frOut, n)
			}
		}
		for _, n := range toCands {
			if !isect[n] {
				toOut = append(toOut, n)
			}
		}

		frPos, toPos := cg.Node(fr).Pos, cg.Node(to).Pos
		for n := range isect {
			pos := gg.NodeAt(n).Pos
			if geo.Dist(pos, frPos) < geo.Dist(pos, toPos) {
				frOut = append(frOut, n)
			} else {
				toOut = append(toOut, n)
			}
		}

		if len(frOut) > 0 && len(toOut) > 0 {
			// candidate order feeds the router's tie-breaking; keep it
			// independent of map iteration order
			sort.Slice(frOut, func(i, j int) bool { return frOut[i] < frOut[j] })
			sort.Slice(toOut, func(i, j int) bool { return toOut[i] < toOut[j] })
			return frOut, toOut
		}
		maxDis += gg.CellSize()
	}

	return nil, nil
}

// getCands returns the candidate centres for one endpoint. A settled or
// pre-pinned endpoint yields its fixed singleton.
func (oc *Octilinearizer) getCands(cg *combgraph.Graph, gg basegraph.BaseGraph, nd combgraph.NodeID, pre SettledPos, maxDis float64) ([]basegraph.GridNodeID, bool) {
	if n, ok := gg.Settled(nd); ok {
		return []basegraph.GridNodeID{n}, true
	}
	if n, ok := pre[nd]; ok {
		gn := gg.NodeAt(n)
		if !gn.Closed() && gn.Settled == basegraph.NoOwner {
			return []basegraph.GridNodeID{n}, true
		}
		return nil, true
	}
	return gg.GrNdCands(cg.Node(nd).Pos, maxDis), false
}
