// Package geometry provides the point and rectangle primitives used by the
// layout engine. Rectangles are stored as a center point plus half-extents,
// which keeps edge and midpoint math symmetric.
package geometry

import "math"

// Point represents a position or extent in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum of two points.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the component-wise difference of two points.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns the point scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// DistanceTo returns the euclidean distance between two points.
func (p Point) DistanceTo(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Component returns the point's coordinate along the given axis.
func (p Point) Component(axis Axis) float64 {
	if axis == AxisX {
		return p.X
	}
	return p.Y
}

// Axis identifies one of the two screen axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Other returns the perpendicular axis.
func (a Axis) Other() Axis {
	if a == AxisX {
		return AxisY
	}
	return AxisX
}

// Side identifies one outer edge of a rectangle. Sides are ordered so that
// Opposite is a constant-time flip.
type Side int

const (
	SideLeft Side = iota
	SideTop
	SideRight
	SideBottom
)

// Axis returns the axis perpendicular to the side, i.e. the axis along which
// a window travels when snapping to that side.
func (s Side) Axis() Axis {
	if s == SideLeft || s == SideRight {
		return AxisX
	}
	return AxisY
}

// Opposite returns the facing side.
func (s Side) Opposite() Side {
	return (s + 2) % 4
}

// Sign is -1 for left/top and +1 for right/bottom.
func (s Side) Sign() float64 {
	if s == SideLeft || s == SideTop {
		return -1
	}
	return 1
}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideTop:
		return "top"
	case SideRight:
		return "right"
	case SideBottom:
		return "bottom"
	}
	return "unknown"
}

// Sides lists all four rectangle sides in a stable order.
var Sides = []Side{SideLeft, SideTop, SideRight, SideBottom}

// Rect represents an axis-aligned rectangle as a center plus half-extents.
// Width is 2*Half.X and height is 2*Half.Y.
type Rect struct {
	Center Point `json:"center"`
	Half   Point `json:"halfSize"`
}

// NewRect builds a rect from its center coordinates and half-extents.
func NewRect(cx, cy, hx, hy float64) Rect {
	return Rect{Center: Point{X: cx, Y: cy}, Half: Point{X: hx, Y: hy}}
}

// FromCorners builds a rect spanning two opposite corner points.
func FromCorners(min, max Point) Rect {
	return Rect{
		Center: min.Add(max).Scale(0.5),
		Half:   max.Sub(min).Scale(0.5),
	}
}

// Min returns the top-left corner.
func (r Rect) Min() Point {
	return r.Center.Sub(r.Half)
}

// Max returns the bottom-right corner.
func (r Rect) Max() Point {
	return r.Center.Add(r.Half)
}

// Width returns the full width of the rect.
func (r Rect) Width() float64 {
	return 2 * r.Half.X
}

// Height returns the full height of the rect.
func (r Rect) Height() float64 {
	return 2 * r.Half.Y
}

// IsZero reports whether the rect is the zero value.
func (r Rect) IsZero() bool {
	return r.Center == Point{} && r.Half == Point{}
}

// Edge returns the coordinate of the given side along its axis.
func (r Rect) Edge(s Side) float64 {
	axis := s.Axis()
	return r.Center.Component(axis) + s.Sign()*r.Half.Component(axis)
}

// Translate returns the rect moved by delta.
func (r Rect) Translate(delta Point) Rect {
	return Rect{Center: r.Center.Add(delta), Half: r.Half}
}

// Contains reports whether the point lies inside or on the rect boundary.
func (r Rect) Contains(p Point) bool {
	min, max := r.Min(), r.Max()
	return p.X >= min.X && p.X <= max.X && p.Y >= min.Y && p.Y <= max.Y
}

// Union returns the smallest rect covering both rects.
func (r Rect) Union(o Rect) Rect {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	rMin, rMax := r.Min(), r.Max()
	oMin, oMax := o.Min(), o.Max()
	return FromCorners(
		Point{X: math.Min(rMin.X, oMin.X), Y: math.Min(rMin.Y, oMin.Y)},
		Point{X: math.Max(rMax.X, oMax.X), Y: math.Max(rMax.Y, oMax.Y)},
	)
}

// Overlap returns the length of the shared interval between the two rects
// along the given axis. A negative result is the gap between them.
func (r Rect) Overlap(o Rect, axis Axis) float64 {
	rMin, rMax := r.Min().Component(axis), r.Max().Component(axis)
	oMin, oMax := o.Min().Component(axis), o.Max().Component(axis)
	return math.Min(rMax, oMax) - math.Max(rMin, oMin)
}

// Intersects reports whether the two rect interiors overlap by more than eps
// on both axes.
func (r Rect) Intersects(o Rect, eps float64) bool {
	return r.Overlap(o, AxisX) > eps && r.Overlap(o, AxisY) > eps
}

// EdgeGap returns the signed distance from r's side s to o's facing side,
// measured along the side's axis. Zero means the edges are flush; positive
// means the rects are separated.
func (r Rect) EdgeGap(o Rect, s Side) float64 {
	return s.Sign() * (o.Edge(s.Opposite()) - r.Edge(s))
}
