// Package layout places dashboard cards and computes the curves that
// connect them.
package layout

import (
	"fmt"
	"strconv"
)

// Point is a position in diagram pixels
type Point struct {
	X float64
	Y float64
}

// Rect is a card's bounding box relative to the diagram origin
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// RightMid is the midpoint of the right edge
func (r Rect) RightMid() Point {
	return Point{X: r.X + r.W, Y: r.Y + r.H/2}
}

// LeftMid is the midpoint of the left edge
func (r Rect) LeftMid() Point {
	return Point{X: r.X, Y: r.Y + r.H/2}
}

// Bottom is the y coordinate of the bottom edge
func (r Rect) Bottom() float64 {
	return r.Y + r.H
}

// Right is the x coordinate of the right edge
func (r Rect) Right() float64 {
	return r.X + r.W
}

// Path is a cubic Bézier curve
type Path struct {
	Start Point
	C1    Point
	C2    Point
	End   Point
}

// Connector returns the curve from the right edge of from to the left edge
// of to. Both control points sit half the horizontal gap away from their
// end, level with it, so the curve leaves and enters horizontally.
func Connector(from, to Rect) Path {
	start := from.RightMid()
	end := to.LeftMid()
	half := (end.X - start.X) / 2

	return Path{
		Start: start,
		C1:    Point{X: start.X + half, Y: start.Y},
		C2:    Point{X: end.X - half, Y: end.Y},
		End:   end,
	}
}

// D renders the path as an SVG d attribute
func (p Path) D() string {
	return fmt.Sprintf("M %s %s C %s %s, %s %s, %s %s",
		num(p.Start.X), num(p.Start.Y),
		num(p.C1.X), num(p.C1.Y),
		num(p.C2.X), num(p.C2.Y),
		num(p.End.X), num(p.End.Y))
}

// num formats without trailing zeros
func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
