package octi

import (
	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

// RemoveShortEdges collapses edges shorter than d by merging their
// endpoints, repeating until no such edge remains. The endpoint carrying a
// station survives; the merged node moves to the segment midpoint. Lines
// the surviving station did not serve before the merge are marked not
// served, so stops keep their original line sets.
//
// Edges whose removal would strand an endpoint (degree 1) and edges
// between two stations are kept.
func RemoveShortEdges(g *lingraph.Graph, d float64) {
	for changed := true; changed; {
		changed = false
		g.Edges(func(e lingraph.EdgeID, ed *lingraph.Edge) {
			if changed {
				return
			}
			if ed.Geom.Length() >= d {
				return
			}
			from, to := ed.From, ed.To
			if g.Deg(from) <= 1 || g.Deg(to) <= 1 {
				return
			}

			frStops := len(g.Node(from).Stops) > 0
			toStops := len(g.Node(to).Stops) > 0
			if frStops && toStops {
				return
			}

			keep, drop := from, to
			if toStops {
				keep, drop = to, from
			}

			a, b := g.Node(from).Pos, g.Node(to).Pos
			mid := orb.Point{(a.X() + b.X()) / 2, (a.Y() + b.Y()) / 2}

			var servedBefore map[string]bool
			if frStops || toStops {
				servedBefore = g.ServedLines(keep)
			}

			g.MergeNodes(keep, drop)
			g.Node(keep).Pos = mid

			if servedBefore != nil {
				for l := range g.ServedLines(keep) {
					if !servedBefore[l] {
						g.AddLineNotServed(keep, l)
					}
				}
			}

			changed = true
		})
	}
}
