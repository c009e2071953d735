// Package curve flattens parametric 2-D curves into polylines.
//
// All curves are parametrized over t in [0,1]. Sampling density is
// proportional to arc length, see Sample.
package curve

import (
	"github.com/mastercactapus/lasermx/coord"
)

// A Curve can be evaluated at t in [0,1] and knows its arc length.
type Curve interface {
	Eval(t float64) coord.Point
	Arclen() float64
}

// A Linearizer is implemented by curves that may already be piecewise-linear.
// Vertices returns false if the curve needs to be sampled.
type Linearizer interface {
	Vertices() (coord.Polyline, bool)
}

// Line is a straight segment.
type Line struct{ P0, P1 coord.Point }

func (l Line) Eval(t float64) coord.Point { return l.P0.Lerp(l.P1, t) }
func (l Line) Arclen() float64            { return l.P0.Distance(l.P1) }
func (l Line) Vertices() (coord.Polyline, bool) {
	return coord.Polyline{l.P0, l.P1}, true
}

// QuadBez is a quadratic Bézier segment.
type QuadBez struct{ P0, P1, P2 coord.Point }

func (q QuadBez) Eval(t float64) coord.Point {
	mt := 1 - t
	return q.P0.Mul(mt * mt).
		Add(q.P1.Mul(2 * mt * t)).
		Add(q.P2.Mul(t * t))
}
func (q QuadBez) Arclen() float64 { return arclen(q.Eval) }

// CubicBez is a cubic Bézier segment.
type CubicBez struct{ P0, P1, P2, P3 coord.Point }

func (c CubicBez) Eval(t float64) coord.Point {
	mt := 1 - t
	return c.P0.Mul(mt * mt * mt).
		Add(c.P1.Mul(3 * mt * mt * t)).
		Add(c.P2.Mul(3 * mt * t * t)).
		Add(c.P3.Mul(t * t * t))
}
func (c CubicBez) Arclen() float64 { return arclen(c.Eval) }

// Vertices is an already discretized vertex list.
type Vertices coord.Polyline

func (v Vertices) Vertices() (coord.Polyline, bool) { return coord.Polyline(v).Clone(), true }
func (v Vertices) Arclen() float64                  { return coord.Polyline(v).Length() }

// Eval walks the vertex list by arc length.
func (v Vertices) Eval(t float64) coord.Point {
	switch len(v) {
	case 0:
		return coord.Point{}
	case 1:
		return v[0]
	}
	segs := make([]Curve, len(v)-1)
	for i := range segs {
		segs[i] = Line{P0: v[i], P1: v[i+1]}
	}
	return NewPath(segs...).Eval(t)
}

const (
	arclenAccuracy = 1e-4
	arclenMinDepth = 5
	arclenMaxDepth = 24
)

// arclen approximates the length of eval over [0,1] by recursive
// chord subdivision until successive estimates agree.
func arclen(eval func(float64) coord.Point) float64 {
	return segmentLength(eval, 0, 1, eval(0), eval(1), 0)
}

func segmentLength(eval func(float64) coord.Point, t0, t1 float64, p0, p1 coord.Point, depth int) float64 {
	mid := (t0 + t1) / 2
	pm := eval(mid)
	whole := p0.Distance(p1)
	split := p0.Distance(pm) + pm.Distance(p1)
	if depth >= arclenMaxDepth || (depth >= arclenMinDepth && split-whole <= arclenAccuracy) {
		// chord error shrinks by 4x per halving
		return split + (split-whole)/3
	}
	return segmentLength(eval, t0, mid, p0, pm, depth+1) +
		segmentLength(eval, mid, t1, pm, p1, depth+1)
}
