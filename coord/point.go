package coord

import (
	"math"
)

// Point is a 2-D position in millimeters.
type Point struct{ X, Y float64 }

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Equal reports exact coordinate equality. No tolerance is applied.
func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y
}

// Cross returns the z component of the cross product of p and op.
func (p Point) Cross(op Point) float64 {
	return p.X*op.Y - p.Y*op.X
}
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y
}
func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	return p
}

func (p Point) Div(val float64) Point {
	p.X /= val
	p.Y /= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	return p
}

// Lerp returns the point at fraction t along the segment from p to target.
func (p Point) Lerp(target Point, t float64) Point {
	return Point{
		X: p.X + (target.X-p.X)*t,
		Y: p.Y + (target.Y-p.Y)*t,
	}
}

// Split will return a set of evenly spaced points
// from p to the target, excluding p itself.
func (p Point) Split(target Point, n int) []Point {
	res := make([]Point, n)
	for i := range res {
		res[i] = p.Lerp(target, float64(i+1)/float64(n))
	}
	return res
}

// Distance will return the distance from p to the target.
func (p Point) Distance(target Point) float64 {
	return math.Hypot(target.X-p.X, target.Y-p.Y)
}
