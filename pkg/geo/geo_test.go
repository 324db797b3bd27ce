package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAngle(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Point
		want float64
	}{
		{"East", orb.Point{0, 0}, orb.Point{1, 0}, 0},
		{"North", orb.Point{0, 0}, orb.Point{0, 1}, math.Pi / 2},
		{"West", orb.Point{0, 0}, orb.Point{-1, 0}, math.Pi},
		{"South", orb.Point{0, 0}, orb.Point{0, -1}, 3 * math.Pi / 2},
		{"NorthEast", orb.Point{0, 0}, orb.Point{1, 1}, math.Pi / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Angle(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("Angle = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirDist(t *testing.T) {
	tests := []struct {
		a, b, want int
	}{
		{0, 0, 0},
		{0, 4, 4},
		{0, 7, 1},
		{7, 0, 1},
		{1, 5, 4},
		{2, 7, 3},
	}
	for _, tt := range tests {
		if got := DirDist(tt.a, tt.b); got != tt.want {
			t.Errorf("DirDist(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAngDist(t *testing.T) {
	if got := AngDist(0, math.Pi/2); !almostEqual(got, math.Pi/2) {
		t.Errorf("AngDist = %v", got)
	}
	// wraps around
	if got := AngDist(0.1, 2*math.Pi-0.1); !almostEqual(got, 0.2) {
		t.Errorf("AngDist wrap = %v", got)
	}
}

func TestSegIntersects(t *testing.T) {
	tests := []struct {
		name           string
		a1, a2, b1, b2 orb.Point
		want           bool
	}{
		{"Crossing", orb.Point{0, 0}, orb.Point{2, 2}, orb.Point{0, 2}, orb.Point{2, 0}, true},
		{"Parallel", orb.Point{0, 0}, orb.Point{2, 0}, orb.Point{0, 1}, orb.Point{2, 1}, false},
		{"Touching", orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{1, 1}, orb.Point{2, 0}, true},
		{"Disjoint", orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 1}, orb.Point{3, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegIntersects(tt.a1, tt.a2, tt.b1, tt.b2); got != tt.want {
				t.Errorf("SegIntersects = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegIntersectsPolygon(t *testing.T) {
	square := orb.Polygon{orb.Ring{
		{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1},
	}}

	if !SegIntersectsPolygon(orb.Point{0, 2}, orb.Point{4, 2}, square) {
		t.Error("segment through square should intersect")
	}
	if !SegIntersectsPolygon(orb.Point{2, 2}, orb.Point{2.5, 2.5}, square) {
		t.Error("segment inside square should intersect")
	}
	if SegIntersectsPolygon(orb.Point{0, 0}, orb.Point{0, 4}, square) {
		t.Error("segment left of square should not intersect")
	}
}

func TestPolyLineLength(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{3, 0}, orb.Point{3, 4})
	if got := pl.Length(); !almostEqual(got, 7) {
		t.Errorf("Length = %v, want 7", got)
	}
}

func TestPolyLineReversed(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 1})
	rev := pl.Reversed()
	if !rev.First().Equal(pl.Last()) || !rev.Last().Equal(pl.First()) {
		t.Errorf("Reversed endpoints wrong: %v", rev.Points())
	}
	// original untouched
	if !pl.First().Equal(orb.Point{0, 0}) {
		t.Error("Reversed mutated the original")
	}
}

func TestPolyLineConcat(t *testing.T) {
	a := NewPolyLine(orb.Point{0, 0}, orb.Point{1, 0})
	b := NewPolyLine(orb.Point{1, 0}, orb.Point{2, 0})
	c := a.Concat(b)
	if len(c.Points()) != 3 {
		t.Fatalf("Concat should collapse the shared point, got %d points", len(c.Points()))
	}
	if !c.Last().Equal(orb.Point{2, 0}) {
		t.Errorf("Concat end = %v", c.Last())
	}
}

func TestPolyLineDistTo(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{10, 0})
	if got := pl.DistTo(orb.Point{5, 3}); !almostEqual(got, 3) {
		t.Errorf("DistTo = %v, want 3", got)
	}
	if got := pl.DistTo(orb.Point{-4, 0}); !almostEqual(got, 4) {
		t.Errorf("DistTo beyond end = %v, want 4", got)
	}
}

func TestPolyLineProject(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{10, 0})
	pt, at := pl.Project(orb.Point{5, 3})
	if !pt.Equal(orb.Point{5, 0}) {
		t.Errorf("Project point = %v", pt)
	}
	if !almostEqual(at, 0.5) {
		t.Errorf("Project position = %v, want 0.5", at)
	}
}

func TestPolyLinePointAt(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{10, 0})
	tests := []struct {
		at   float64
		want orb.Point
	}{
		{0, orb.Point{0, 0}},
		{0.5, orb.Point{5, 0}},
		{1, orb.Point{10, 0}},
		{-1, orb.Point{0, 0}},
		{2, orb.Point{10, 0}},
	}
	for _, tt := range tests {
		got := pl.PointAt(tt.at)
		if !almostEqual(got.X(), tt.want.X()) || !almostEqual(got.Y(), tt.want.Y()) {
			t.Errorf("PointAt(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestPolyLineOffset(t *testing.T) {
	pl := NewPolyLine(orb.Point{0, 0}, orb.Point{10, 0})
	off := pl.Offset(2)
	for _, pt := range off.Points() {
		if !almostEqual(pt.Y(), 2) {
			t.Errorf("Offset point %v should be at y=2", pt)
		}
	}
}
