package curve

import (
	"math"

	"github.com/mastercactapus/lasermx/coord"
)

// Arc is an elliptical arc in center parametrization.
//
// Rotation, Start and Sweep are in radians. A negative Sweep runs clockwise.
type Arc struct {
	Center   coord.Point
	Radii    coord.Point
	Rotation float64
	Start    float64
	Sweep    float64
}

// Circle returns a full circle starting at angle 0.
func Circle(center coord.Point, r float64) Arc {
	return Arc{Center: center, Radii: coord.Pt(r, r), Sweep: 2 * math.Pi}
}

func (a Arc) Eval(t float64) coord.Point {
	ang := a.Start + t*a.Sweep
	sinR, cosR := math.Sincos(a.Rotation)
	sinA, cosA := math.Sincos(ang)
	x := a.Radii.X * cosA
	y := a.Radii.Y * sinA
	return coord.Point{
		X: a.Center.X + x*cosR - y*sinR,
		Y: a.Center.Y + x*sinR + y*cosR,
	}
}

func (a Arc) Arclen() float64 {
	if a.Radii.X == a.Radii.Y {
		return math.Abs(a.Radii.X * a.Sweep)
	}
	return arclen(a.Eval)
}

// EndpointArc converts an SVG style endpoint arc description into a Curve.
//
// rotation is in degrees. Degenerate arcs follow the SVG rules: equal endpoints
// yield nil and zero radii yield a Line.
func EndpointArc(from coord.Point, rx, ry, rotation float64, largeArc, sweep bool, to coord.Point) Curve {
	if from.Equal(to) {
		return nil
	}
	rx, ry = math.Abs(rx), math.Abs(ry)
	if rx == 0 || ry == 0 {
		return Line{P0: from, P1: to}
	}

	phi := rotation * math.Pi / 180
	sinPhi, cosPhi := math.Sincos(phi)

	dx := (from.X - to.X) / 2
	dy := (from.Y - to.Y) / 2
	x1 := cosPhi*dx + sinPhi*dy
	y1 := -sinPhi*dx + cosPhi*dy

	lambda := x1*x1/(rx*rx) + y1*y1/(ry*ry)
	if lambda > 1 {
		s := math.Sqrt(lambda)
		rx *= s
		ry *= s
	}

	num := rx*rx*ry*ry - rx*rx*y1*y1 - ry*ry*x1*x1
	den := rx*rx*y1*y1 + ry*ry*x1*x1
	coef := 0.0
	if den != 0 && num > 0 {
		coef = math.Sqrt(num / den)
	}
	if largeArc == sweep {
		coef = -coef
	}
	cx1 := coef * rx * y1 / ry
	cy1 := coef * -ry * x1 / rx

	center := coord.Point{
		X: cosPhi*cx1 - sinPhi*cy1 + (from.X+to.X)/2,
		Y: sinPhi*cx1 + cosPhi*cy1 + (from.Y+to.Y)/2,
	}

	start := vectorAngle(1, 0, (x1-cx1)/rx, (y1-cy1)/ry)
	delta := vectorAngle((x1-cx1)/rx, (y1-cy1)/ry, (-x1-cx1)/rx, (-y1-cy1)/ry)
	delta = math.Mod(delta, 2*math.Pi)
	if !sweep && delta > 0 {
		delta -= 2 * math.Pi
	} else if sweep && delta < 0 {
		delta += 2 * math.Pi
	}

	return Arc{
		Center:   center,
		Radii:    coord.Pt(rx, ry),
		Rotation: phi,
		Start:    start,
		Sweep:    delta,
	}
}

func vectorAngle(ux, uy, vx, vy float64) float64 {
	return math.Atan2(ux*vy-uy*vx, ux*vx+uy*vy)
}
