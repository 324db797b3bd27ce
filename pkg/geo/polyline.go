package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PolyLine is an oriented polyline. The zero value is an empty line.
type PolyLine struct {
	ls orb.LineString
}

// NewPolyLine creates a polyline from the given points.
func NewPolyLine(pts ...orb.Point) PolyLine {
	return PolyLine{ls: orb.LineString(pts)}
}

// FromLineString wraps an existing line string without copying.
func FromLineString(ls orb.LineString) PolyLine {
	return PolyLine{ls: ls}
}

// LineString returns the underlying line string.
func (p PolyLine) LineString() orb.LineString { return p.ls }

// Points returns the polyline's points.
func (p PolyLine) Points() []orb.Point { return p.ls }

// Empty reports whether the polyline has fewer than two points.
func (p PolyLine) Empty() bool { return len(p.ls) < 2 }

// First returns the first point.
func (p PolyLine) First() orb.Point { return p.ls[0] }

// Last returns the last point.
func (p PolyLine) Last() orb.Point { return p.ls[len(p.ls)-1] }

// Length returns the total planar length.
func (p PolyLine) Length() float64 {
	return planar.Length(p.ls)
}

// Bound returns the bounding box.
func (p PolyLine) Bound() orb.Bound {
	return p.ls.Bound()
}

// Append adds a point to the end of the polyline.
func (p *PolyLine) Append(pt orb.Point) {
	p.ls = append(p.ls, pt)
}

// Reversed returns a copy of the polyline with opposite orientation.
func (p PolyLine) Reversed() PolyLine {
	rev := make(orb.LineString, len(p.ls))
	for i, pt := range p.ls {
		rev[len(p.ls)-1-i] = pt
	}
	return PolyLine{ls: rev}
}

// Concat returns the concatenation of p and q. If the shared endpoint is
// duplicated it is collapsed.
func (p PolyLine) Concat(q PolyLine) PolyLine {
	out := make(orb.LineString, 0, len(p.ls)+len(q.ls))
	out = append(out, p.ls...)
	for i, pt := range q.ls {
		if i == 0 && len(out) > 0 && out[len(out)-1].Equal(pt) {
			continue
		}
		out = append(out, pt)
	}
	return PolyLine{ls: out}
}

// DistTo returns the distance from pt to the nearest point on the polyline.
func (p PolyLine) DistTo(pt orb.Point) float64 {
	if len(p.ls) == 0 {
		return math.Inf(1)
	}
	if len(p.ls) == 1 {
		return planar.Distance(p.ls[0], pt)
	}
	return planar.DistanceFrom(p.ls, pt)
}

// Project returns the point on the polyline nearest to pt and its relative
// position along the line in [0, 1].
func (p PolyLine) Project(pt orb.Point) (orb.Point, float64) {
	if p.Empty() {
		if len(p.ls) == 1 {
			return p.ls[0], 0
		}
		return orb.Point{}, 0
	}

	best := p.ls[0]
	bestDist := math.Inf(1)
	bestAt := 0.0

	total := p.Length()
	walked := 0.0

	for i := 0; i+1 < len(p.ls); i++ {
		a, b := p.ls[i], p.ls[i+1]
		proj := projectOnSegment(a, b, pt)
		if d := planar.Distance(proj, pt); d < bestDist {
			bestDist = d
			best = proj
			if total > 0 {
				bestAt = (walked + planar.Distance(a, proj)) / total
			}
		}
		walked += planar.Distance(a, b)
	}

	return best, bestAt
}

// PointAt returns the point at relative position t in [0, 1] along the
// polyline.
func (p PolyLine) PointAt(t float64) orb.Point {
	if p.Empty() {
		if len(p.ls) == 1 {
			return p.ls[0]
		}
		return orb.Point{}
	}
	if t <= 0 {
		return p.First()
	}
	if t >= 1 {
		return p.Last()
	}

	target := t * p.Length()
	walked := 0.0
	for i := 0; i+1 < len(p.ls); i++ {
		a, b := p.ls[i], p.ls[i+1]
		seg := planar.Distance(a, b)
		if walked+seg >= target && seg > 0 {
			f := (target - walked) / seg
			return orb.Point{a.X() + (b.X()-a.X())*f, a.Y() + (b.Y()-a.Y())*f}
		}
		walked += seg
	}
	return p.Last()
}

// Offset returns a copy of the polyline translated perpendicular to each
// segment by d (positive = left of travel direction). Joints are averaged.
func (p PolyLine) Offset(d float64) PolyLine {
	if p.Empty() {
		return p
	}

	out := make(orb.LineString, len(p.ls))
	for i := range p.ls {
		var nx, ny float64
		var n int
		if i > 0 {
			dx, dy := segNormal(p.ls[i-1], p.ls[i])
			nx += dx
			ny += dy
			n++
		}
		if i+1 < len(p.ls) {
			dx, dy := segNormal(p.ls[i], p.ls[i+1])
			nx += dx
			ny += dy
			n++
		}
		if n > 0 {
			l := math.Hypot(nx, ny)
			if l > 0 {
				nx /= l
				ny /= l
			}
		}
		out[i] = orb.Point{p.ls[i].X() + nx*d, p.ls[i].Y() + ny*d}
	}
	return PolyLine{ls: out}
}

func segNormal(a, b orb.Point) (float64, float64) {
	dx := b.X() - a.X()
	dy := b.Y() - a.Y()
	l := math.Hypot(dx, dy)
	if l == 0 {
		return 0, 0
	}
	return -dy / l, dx / l
}

func projectOnSegment(a, b, pt orb.Point) orb.Point {
	dx := b.X() - a.X()
	dy := b.Y() - a.Y()
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a
	}
	t := ((pt.X()-a.X())*dx + (pt.Y()-a.Y())*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return orb.Point{a.X() + t*dx, a.Y() + t*dy}
}
