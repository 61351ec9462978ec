// Package geom implements the region algebra described in spec §4.1:
// integer/float points and rectangles, a non-overlapping rectangle-list
// Region with the standard set operations, and a Cohen-Sutherland-style
// line clip.
package geom

// Point is an integer screen coordinate.
type Point struct {
	X, Y int
}

func (p Point) Add(o Point) Point { return Point{p.X + o.X, p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }

// PointF is a floating-point coordinate, used by clients before rounding
// into view-local integer space.
type PointF struct {
	X, Y float64
}

func (p PointF) Round() Point { return Point{int(p.X + 0.5), int(p.Y + 0.5)} }
