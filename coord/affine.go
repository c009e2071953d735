package coord

import "math"

// Affine is a 2-D affine transform in SVG matrix order (a b c d e f):
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
type Affine [6]float64

// Identity is the transform that leaves points unchanged.
var Identity = Affine{1, 0, 0, 1, 0, 0}

func Translate(tx, ty float64) Affine { return Affine{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Affine     { return Affine{sx, 0, 0, sy, 0, 0} }

// Rotate returns a rotation by deg degrees around the origin.
func Rotate(deg float64) Affine {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Affine{c, s, -s, c, 0, 0}
}

// SkewX and SkewY return shear transforms by deg degrees.
func SkewX(deg float64) Affine { return Affine{1, 0, math.Tan(deg * math.Pi / 180), 1, 0, 0} }
func SkewY(deg float64) Affine { return Affine{1, math.Tan(deg * math.Pi / 180), 0, 1, 0, 0} }

// Mul returns m*n, the transform that applies n first and then m.
func (m Affine) Mul(n Affine) Affine {
	return Affine{
		m[0]*n[0] + m[2]*n[1],
		m[1]*n[0] + m[3]*n[1],
		m[0]*n[2] + m[2]*n[3],
		m[1]*n[2] + m[3]*n[3],
		m[0]*n[4] + m[2]*n[5] + m[4],
		m[1]*n[4] + m[3]*n[5] + m[5],
	}
}

func (m Affine) IsIdentity() bool { return m == Identity }

func (m Affine) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}
