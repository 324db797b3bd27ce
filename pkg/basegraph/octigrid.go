package basegraph

import (
	"github.com/paulmach/orb"
)

// OctiGridGraph is the octilinear base graph variant: diagonals are
// first-class directions priced per unit length with the configured
// diagonal factor, and crossing diagonals are not mutually exclusive (the
// renderer resolves them with distinct render orders instead of the
// embedder forbidding them).
type OctiGridGraph struct {
	GridGraph
}

var _ BaseGraph = (*OctiGridGraph)(nil)

// NewOctiGridGraph creates an uninitialised octilinear base graph. Call
// Init before use.
func NewOctiGridGraph(bbox orb.Bound, cellSize, spacer float64, pens Penalties) *OctiGridGraph {
	return &OctiGridGraph{
		GridGraph: *newGrid(bbox, cellSize, spacer, pens, gridCfg{nativeDiag: true}),
	}
}
