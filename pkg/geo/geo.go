// Package geo provides the planar geometry primitives used by the layout
// engine: points and bounding boxes (via paulmach/orb), oriented polylines,
// and angle arithmetic on the eight compass directions.
//
// All coordinates are planar. Inputs projected to a metric CRS (e.g. web
// mercator) work unchanged; the engine never interprets coordinates as
// lat/lon.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// NumDirs is the number of compass directions on the octilinear grid.
const NumDirs = 8

// Dist returns the Euclidean distance between two points.
func Dist(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// Pad grows a bounding box by d in every direction.
func Pad(b orb.Bound, d float64) orb.Bound {
	return b.Pad(d)
}

// Angle returns the angle of the vector a→b in radians, measured
// counter-clockwise from the positive x axis, in [0, 2π).
func Angle(a, b orb.Point) float64 {
	ang := math.Atan2(b.Y()-a.Y(), b.X()-a.X())
	if ang < 0 {
		ang += 2 * math.Pi
	}
	return ang
}

// Dir snaps an angle (radians, ccw from east) to the nearest compass
// direction index: 0=E, 1=NE, 2=N, ... 7=SE, counter-clockwise.
func Dir(ang float64) int {
	step := math.Pi / 4
	return int(math.Round(ang/step)) % NumDirs
}

// DirAngle returns the angle of compass direction index d.
func DirAngle(d int) float64 {
	return float64(((d % NumDirs) + NumDirs) % NumDirs) * math.Pi / 4
}

// DirDist returns the circular distance between two direction indices,
// in 45° steps (0..4).
func DirDist(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= NumDirs
	if d > NumDirs/2 {
		d = NumDirs - d
	}
	return d
}

// AngDist returns the absolute angular difference between two angles,
// normalized to [0, π].
func AngDist(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// SegIntersects reports whether the closed segments a1-a2 and b1-b2
// intersect.
func SegIntersects(a1, a2, b1, b2 orb.Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && onSeg(b1, b2, a1)) ||
		(d2 == 0 && onSeg(b1, b2, a2)) ||
		(d3 == 0 && onSeg(a1, a2, b1)) ||
		(d4 == 0 && onSeg(a1, a2, b2))
}

// SegIntersectsPolygon reports whether the segment a-b crosses or touches
// the polygon boundary, or lies inside it.
func SegIntersectsPolygon(a, b orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	for _, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			if SegIntersects(a, b, ring[i], ring[i+1]) {
				return true
			}
		}
	}
	return planar.PolygonContains(poly, a) || planar.PolygonContains(poly, b)
}

func cross(o, a, b orb.Point) float64 {
	return (a.X()-o.X())*(b.Y()-o.Y()) - (a.Y()-o.Y())*(b.X()-o.X())
}

func onSeg(a, b, p orb.Point) bool {
	return math.Min(a.X(), b.X()) <= p.X() && p.X() <= math.Max(a.X(), b.X()) &&
		math.Min(a.Y(), b.Y()) <= p.Y() && p.Y() <= math.Max(a.Y(), b.Y())
}
