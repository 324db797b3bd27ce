// Package ilp formulates the octilinear embedding as a binary program
// over the same base graph the heuristic routes on: one edge-use variable
// per combinatorial edge and directed grid arc, one assignment variable
// per combinatorial node and candidate centre, flow conservation between
// the chosen endpoints, density and diagonal-crossing caps, and port
// exclusivity at shared centres.
//
// The optimizer seeds itself with the routing heuristic: a feasible
// drawing bounds the solve and survives as the incumbent when the program
// times out or comes back infeasible.
package ilp

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/combgraph"
	"github.com/pvnkmrksk/magga/pkg/geo"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/observability"
	"github.com/pvnkmrksk/magga/pkg/octi"
	"github.com/pvnkmrksk/magga/pkg/optim"
)

// Config controls the ILP solve.
type Config struct {
	// Backend selects the solver backend ("glpk").
	Backend string

	// TimeLim bounds the solve wall time in seconds; zero means no
	// limit.
	TimeLim int

	// NoSolve writes the program to Path without solving.
	NoSolve bool

	// Path receives the program in CPLEX LP format when set.
	Path string

	Logger *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Result is the outcome of an ILP embedding.
type Result struct {
	Graph   *lingraph.Graph
	Score   octi.Score
	Status  optim.Status
	Grid    basegraph.BaseGraph
	Drawing *octi.Drawing
}

// Draw embeds tg by integer programming, presolving with the routing
// heuristic. The heuristic result is kept when the program cannot improve
// on it.
func Draw(tg *lingraph.Graph, opts octi.Options, cfg Config, oc *octi.Octilinearizer) (Result, error) {
	if err := tg.Validate(); err != nil {
		return Result{}, err
	}
	octi.RemoveShortEdges(tg, opts.CellSize/2)

	cg := combgraph.New(tg, opts.Deg2Heur)
	box := geo.Pad(tg.BBox(), opts.CellSize+1)

	logger := cfg.logger()

	// presolve with the heuristic; the local search must stay inside the
	// ILP's move radius
	presolveOpts := opts
	presolveOpts.RestrLocSearch = true

	var gg basegraph.BaseGraph
	var drawing *octi.Drawing

	logger.Info("presolving with routing heuristic")
	res, err := oc.DrawComb(cg, box, presolveOpts)
	if err != nil {
		logger.Info("presolve found no embedding, starting from fresh grid")
		gg = oc.NewBaseGraph(box, opts)
		gg.Init()
		for _, obst := range opts.Obstacles {
			gg.AddObstacle(obst)
		}
		drawing = octi.NewDrawing(cg, gg)
	} else {
		gg = res.Grid
		drawing = res.Drawing
	}

	var geoPens basegraph.GeoPensMap
	if opts.EnfGeoPen > 0 {
		geoPens = basegraph.GeoPensMap{}
		for i := 0; i < cg.NumEdges(); i++ {
			e := combgraph.EdgeID(i)
			pens := basegraph.GeoPens{}
			gg.WriteGeoCoursePens(cg.Edge(e).Geom, pens, opts.EnfGeoPen)
			geoPens[e] = pens
		}
	}

	status, err := Optimize(gg, cg, drawing, opts, cfg, geoPens)
	if err != nil {
		return Result{}, err
	}

	out := drawing.LineGraph()
	return Result{
		Graph:   out,
		Score:   drawing.FullScore(),
		Status:  status,
		Grid:    gg,
		Drawing: drawing,
	}, nil
}

// arcKey identifies one directed grid arc for one combinatorial edge.
type arcKey struct {
	ce  combgraph.EdgeID
	ge  basegraph.GridEdgeID
	fwd bool
}

// program carries the model under construction.
type program struct {
	gg    basegraph.BaseGraph
	cg    *combgraph.Graph
	slv   optim.Solver
	cands map[combgraph.NodeID][]basegraph.GridNodeID

	arcCols  map[arcKey]int
	statCols map[combgraph.NodeID]map[basegraph.GridNodeID]int

	// usable grid edges per combinatorial edge (shared primary and bend
	// sets plus the endpoint sink sets)
	shared []basegraph.GridEdgeID
	sinks  map[combgraph.EdgeID][]basegraph.GridEdgeID
}

// Optimize formulates and solves the program over gg, replacing the
// routes in drawing on success. The incoming drawing is erased from the
// grid for the duration of the solve and restored when the program does
// not yield a better embedding.
func Optimize(gg basegraph.BaseGraph, cg *combgraph.Graph, drawing *octi.Drawing, opts octi.Options, cfg Config, geoPens basegraph.GeoPensMap) (optim.Status, error) {
	logger := cfg.logger()

	// formulate over the unsettled grid; obstacle closures stay
	drawing.EraseFromGrid(gg)
	restore := func() { drawing.ApplyToGrid(gg) }

	slv, err := optim.New("octilinearize", cfg.Backend, optim.Min)
	if err != nil {
		restore()
		return optim.Infeasible, err
	}

	p := &program{
		gg:       gg,
		cg:       cg,
		slv:      slv,
		cands:    map[combgraph.NodeID][]basegraph.GridNodeID{},
		arcCols:  map[arcKey]int{},
		statCols: map[combgraph.NodeID]map[basegraph.GridNodeID]int{},
		sinks:    map[combgraph.EdgeID][]basegraph.GridEdgeID{},
	}

	if err := p.build(opts, geoPens); err != nil {
		restore()
		return optim.Infeasible, err
	}

	logger.Info("ilp formulated", "cols", slv.NumCols(), "rows", slv.NumRows())
	observability.Solver().OnIlpStart(slv.NumCols(), slv.NumRows())

	if cfg.Path != "" {
		if err := slv.WriteLP(cfg.Path); err != nil {
			restore()
			return optim.Infeasible, err
		}
	}
	if cfg.NoSolve {
		restore()
		return optim.NonOptimal, nil
	}

	slv.SetTimeLim(cfg.TimeLim)
	start := time.Now()
	status, err := slv.Solve()
	if err != nil {
		restore()
		return optim.Infeasible, err
	}
	observability.Solver().OnIlpComplete(status.String(), slv.ObjVal(), time.Since(start))
	logger.Info("ilp solved", "status", status.String(),
		"objective", fmt.Sprintf("%.2f", slv.ObjVal()),
		"took", time.Since(start).Round(time.Millisecond))

	if status == optim.Infeasible {
		restore()
		return status, nil
	}

	// keep the heuristic incumbent when the time-limited solve is worse
	if heurScore := drawing.Score(); !math.IsInf(heurScore, 1) && slv.ObjVal() >= heurScore {
		restore()
		return optim.NonOptimal, nil
	}

	if err := p.extract(drawing); err != nil {
		restore()
		return optim.Infeasible, err
	}
	drawing.ApplyToGrid(gg)
	return status, nil
}

// build creates variables, constraints and the objective.
func (p *program) build(opts octi.Options, geoPens basegraph.GeoPensMap) error {
	gg, cg, slv := p.gg, p.cg, p.slv
	maxDis := gg.CellSize() * opts.MaxGrDist

	// assignment variables
	for i := 0; i < cg.NumNodes(); i++ {
		u := combgraph.NodeID(i)
		if cg.Deg(u) == 0 {
			continue
		}
		cands := gg.GrNdCands(cg.Node(u).Pos, maxDis)
		if len(cands) == 0 {
			return fmt.Errorf("no grid candidates for combinatorial node %d", u)
		}
		p.cands[u] = cands
		p.statCols[u] = map[basegraph.GridNodeID]int{}
		for _, n := range cands {
			obj := gg.NdMovePen(cg.Node(u).Pos, n)
			col := slv.AddCol(fmt.Sprintf("statpos_%d_%d", u, n), optim.Bin, obj)
			p.statCols[u][n] = col
		}
		row := slv.AddRow(fmt.Sprintf("onestat_%d", u), 1, optim.Fix)
		for _, n := range cands {
			slv.AddColToRow(row, p.statCols[u][n], 1)
		}
	}

	// at most one combinatorial node per centre
	perCentre := map[basegraph.GridNodeID][]int{}
	for _, cols := range p.statCols {
		for n, col := range cols {
			perCentre[n] = append(perCentre[n], col)
		}
	}
	for n, cols := range perCentre {
		if len(cols) < 2 {
			continue
		}
		row := slv.AddRow(fmt.Sprintf("onend_%d", n), 1, optim.Up)
		for _, col := range cols {
			slv.AddColToRow(row, col, 1)
		}
	}

	// shared usable edges: open primaries and bends
	for i := 0; i < gg.NumEdges(); i++ {
		id := basegraph.GridEdgeID(i)
		e := gg.EdgeAt(id)
		if e.Closed() || e.Blocked() {
			continue
		}
		if e.Kind == basegraph.KindPrimary || e.Kind == basegraph.KindBend {
			p.shared = append(p.shared, id)
		}
	}

	// per-edge sink sets: the sink edges of the endpoint candidate cells
	sinkOf := func(n basegraph.GridNodeID) []basegraph.GridEdgeID {
		var out []basegraph.GridEdgeID
		for _, eid := range gg.AdjEdges(n) {
			if gg.EdgeAt(eid).Kind == basegraph.KindSink {
				out = append(out, eid)
			}
		}
		return out
	}
	for i := 0; i < cg.NumEdges(); i++ {
		ce := combgraph.EdgeID(i)
		ed := cg.Edge(ce)
		seen := map[basegraph.GridEdgeID]bool{}
		for _, n := range append(append([]basegraph.GridNodeID{}, p.cands[ed.From]...), p.cands[ed.To]...) {
			for _, sid := range sinkOf(n) {
				if !seen[sid] {
					seen[sid] = true
					p.sinks[ce] = append(p.sinks[ce], sid)
				}
			}
		}
	}

	// edge-use variables
	for i := 0; i < cg.NumEdges(); i++ {
		ce := combgraph.EdgeID(i)
		for _, id := range p.shared {
			e := gg.EdgeAt(id)
			cost := e.Cost()
			if e.Kind == basegraph.KindPrimary && geoPens != nil {
				cost += geoPens[ce][id]
			}
			p.addArc(ce, id, cost)
		}
		for _, id := range p.sinks[ce] {
			p.addArc(ce, id, 0)
		}
	}

	p.flowRows()
	p.densityRows()
	p.crossingRows()
	p.portRows()
	p.passThroughRows()

	return nil
}

func (p *program) addArc(ce combgraph.EdgeID, ge basegraph.GridEdgeID, cost float64) {
	for _, fwd := range []bool{true, false} {
		name := fmt.Sprintf("edg_%d_%d_%t", ce, ge, fwd)
		p.arcCols[arcKey{ce, ge, fwd}] = p.slv.AddCol(name, optim.Bin, cost)
	}
}

// flowRows adds per combinatorial edge flow conservation at every grid
// node: the selected source centre emits one unit, the target centre
// absorbs one.
func (p *program) flowRows() {
	gg, cg, slv := p.gg, p.cg, p.slv

	for i := 0; i < cg.NumEdges(); i++ {
		ce := combgraph.EdgeID(i)
		ed := cg.Edge(ce)

		// incidence per grid node over this comb edge's usable arcs
		rows := map[basegraph.GridNodeID]int{}
		rowFor := func(n basegraph.GridNodeID) int {
			if r, ok := rows[n]; ok {
				return r
			}
			r := slv.AddRow(fmt.Sprintf("flow_%d_%d", ce, n), 0, optim.Fix)
			rows[n] = r

			// out − in − y_source + y_target = 0: a chosen source centre
			// emits one unit, a chosen target centre absorbs one
			if col, ok := p.statCols[ed.From][n]; ok {
				slv.AddColToRow(r, col, -1)
			}
			if col, ok := p.statCols[ed.To][n]; ok {
				slv.AddColToRow(r, col, 1)
			}
			return r
		}

		use := func(ge basegraph.GridEdgeID) {
			e := gg.EdgeAt(ge)
			fwdCol := p.arcCols[arcKey{ce, ge, true}]
			bwdCol := p.arcCols[arcKey{ce, ge, false}]
			// forward arc: out of From, into To
			slv.AddColToRow(rowFor(e.From), fwdCol, 1)
			slv.AddColToRow(rowFor(e.To), fwdCol, -1)
			slv.AddColToRow(rowFor(e.To), bwdCol, 1)
			slv.AddColToRow(rowFor(e.From), bwdCol, -1)
		}
		for _, id := range p.shared {
			use(id)
		}
		for _, id := range p.sinks[ce] {
			use(id)
		}
	}
}

// densityRows caps the combinatorial edges per primary grid edge.
func (p *program) densityRows() {
	gg, cg, slv := p.gg, p.cg, p.slv
	maxDens := gg.Pens().MaxDensity

	for _, id := range p.shared {
		if gg.EdgeAt(id).Kind != basegraph.KindPrimary {
			continue
		}
		row := slv.AddRow(fmt.Sprintf("dens_%d", id), float64(maxDens), optim.Up)
		for i := 0; i < cg.NumEdges(); i++ {
			ce := combgraph.EdgeID(i)
			slv.AddColToRow(row, p.arcCols[arcKey{ce, id, true}], 1)
			slv.AddColToRow(row, p.arcCols[arcKey{ce, id, false}], 1)
		}
	}
}

// crossingRows makes crossing diagonals mutually exclusive.
func (p *program) crossingRows() {
	gg, cg, slv := p.gg, p.cg, p.slv

	for _, id := range p.shared {
		e := gg.EdgeAt(id)
		if e.Partner == basegraph.NoEdge || e.Partner < id {
			continue
		}
		row := slv.AddRow(fmt.Sprintf("cross_%d_%d", id, e.Partner), 1, optim.Up)
		for i := 0; i < cg.NumEdges(); i++ {
			ce := combgraph.EdgeID(i)
			for _, ge := range []basegraph.GridEdgeID{id, e.Partner} {
				if _, ok := p.arcCols[arcKey{ce, ge, true}]; ok {
					slv.AddColToRow(row, p.arcCols[arcKey{ce, ge, true}], 1)
					slv.AddColToRow(row, p.arcCols[arcKey{ce, ge, false}], 1)
				}
			}
		}
	}
}

// portRows forces the edges terminating at a shared centre onto distinct
// ports, reflecting the clockwise node fronts.
func (p *program) portRows() {
	gg, cg, slv := p.gg, p.cg, p.slv

	for i := 0; i < cg.NumNodes(); i++ {
		u := combgraph.NodeID(i)
		adj := cg.Adj(u)
		if len(adj) < 2 {
			continue
		}
		for _, n := range p.cands[u] {
			for _, sid := range gg.AdjEdges(n) {
				if gg.EdgeAt(sid).Kind != basegraph.KindSink {
					continue
				}
				row := slv.AddRow(fmt.Sprintf("port_%d_%d", n, sid), 1, optim.Up)
				for _, ce := range adj {
					if _, ok := p.arcCols[arcKey{ce, sid, true}]; !ok {
						continue
					}
					slv.AddColToRow(row, p.arcCols[arcKey{ce, sid, true}], 1)
					slv.AddColToRow(row, p.arcCols[arcKey{ce, sid, false}], 1)
				}
			}
		}
	}
}

// passThroughRows forbids routes of unrelated combinatorial edges from
// crossing an occupied cell.
func (p *program) passThroughRows() {
	gg, cg, slv := p.gg, p.cg, p.slv

	bendArcsInCell := map[basegraph.GridNodeID][]basegraph.GridEdgeID{}
	for _, id := range p.shared {
		e := gg.EdgeAt(id)
		if e.Kind != basegraph.KindBend {
			continue
		}
		centre := gg.NodeAt(e.From).Parent
		bendArcsInCell[centre] = append(bendArcsInCell[centre], id)
	}

	for u, cands := range p.statCols {
		incident := map[combgraph.EdgeID]bool{}
		for _, ce := range cg.Adj(u) {
			incident[ce] = true
		}

		for n, statCol := range cands {
			bends := bendArcsInCell[n]
			if len(bends) == 0 {
				continue
			}
			bigM := float64(2 * len(bends) * cg.NumEdges())
			row := slv.AddRow(fmt.Sprintf("blk_%d_%d", u, n), bigM, optim.Up)
			slv.AddColToRow(row, statCol, bigM)
			for i := 0; i < cg.NumEdges(); i++ {
				ce := combgraph.EdgeID(i)
				if incident[ce] {
					continue
				}
				for _, ge := range bends {
					slv.AddColToRow(row, p.arcCols[arcKey{ce, ge, true}], 1)
					slv.AddColToRow(row, p.arcCols[arcKey{ce, ge, false}], 1)
				}
			}
		}
	}
}

// extract rebuilds the drawing from the solved arc and assignment
// variables.
func (p *program) extract(drawing *octi.Drawing) error {
	gg, cg, slv := p.gg, p.cg, p.slv

	centreOf := map[combgraph.NodeID]basegraph.GridNodeID{}
	for u, cols := range p.statCols {
		for n, col := range cols {
			if slv.VarVal(col) > 0.5 {
				centreOf[u] = n
				break
			}
		}
	}

	drawing.Crumble()

	for i := 0; i < cg.NumEdges(); i++ {
		ce := combgraph.EdgeID(i)
		ed := cg.Edge(ce)

		// adjacency over chosen arcs, undirected
		next := map[basegraph.GridNodeID][]basegraph.GridEdgeID{}
		addIf := func(ge basegraph.GridEdgeID) {
			fw := slv.VarVal(p.arcCols[arcKey{ce, ge, true}]) > 0.5
			bw := slv.VarVal(p.arcCols[arcKey{ce, ge, false}]) > 0.5
			if !fw && !bw {
				return
			}
			e := gg.EdgeAt(ge)
			next[e.From] = append(next[e.From], ge)
			next[e.To] = append(next[e.To], ge)
		}
		for _, id := range p.shared {
			addIf(id)
		}
		for _, id := range p.sinks[ce] {
			addIf(id)
		}

		start, ok := centreOf[ed.From]
		if !ok {
			return fmt.Errorf("no centre selected for combinatorial node %d", ed.From)
		}
		goal, ok := centreOf[ed.To]
		if !ok {
			return fmt.Errorf("no centre selected for combinatorial node %d", ed.To)
		}

		nodes := []basegraph.GridNodeID{start}
		var edges []basegraph.GridEdgeID
		used := map[basegraph.GridEdgeID]bool{}
		cur := start
		for cur != goal {
			progressed := false
			for _, ge := range next[cur] {
				if used[ge] {
					continue
				}
				used[ge] = true
				e := gg.EdgeAt(ge)
				other := e.To
				if other == cur {
					other = e.From
				}
				edges = append(edges, ge)
				nodes = append(nodes, other)
				cur = other
				progressed = true
				break
			}
			if !progressed {
				return fmt.Errorf("disconnected ilp route for combinatorial edge %d", ce)
			}
		}

		drawing.Draw(ce, nodes, edges, false)
	}

	return nil
}
