package curve

import (
	"github.com/mastercactapus/lasermx/coord"
)

// Spline is a (possibly rational) B-spline.
//
// If Knots is empty a clamped uniform knot vector is used. If Weights
// is empty all weights are 1.
type Spline struct {
	Degree  int
	Control []coord.Point
	Knots   []float64
	Weights []float64
}

func (s Spline) knots() []float64 {
	n := len(s.Control)
	p := s.degree()
	if len(s.Knots) == n+p+1 {
		return s.Knots
	}
	k := make([]float64, n+p+1)
	inner := n - p
	for i := range k {
		switch {
		case i <= p:
			k[i] = 0
		case i >= n:
			k[i] = 1
		default:
			k[i] = float64(i-p) / float64(inner)
		}
	}
	return k
}

func (s Spline) degree() int {
	p := s.Degree
	if p < 1 {
		p = 1
	}
	if p > len(s.Control)-1 {
		p = len(s.Control) - 1
	}
	return p
}

func (s Spline) weight(i int) float64 {
	if i < len(s.Weights) && s.Weights[i] > 0 {
		return s.Weights[i]
	}
	return 1
}

// Eval evaluates the spline with de Boor's algorithm; t is mapped onto
// the knot domain.
func (s Spline) Eval(t float64) coord.Point {
	n := len(s.Control)
	switch n {
	case 0:
		return coord.Point{}
	case 1:
		return s.Control[0]
	}
	p := s.degree()
	k := s.knots()

	lo, hi := k[p], k[n]
	u := lo + t*(hi-lo)

	span := p
	for span < n-1 && k[span+1] <= u {
		span++
	}

	type hpt struct{ x, y, w float64 }
	d := make([]hpt, p+1)
	for j := 0; j <= p; j++ {
		i := j + span - p
		w := s.weight(i)
		d[j] = hpt{s.Control[i].X * w, s.Control[i].Y * w, w}
	}
	for r := 1; r <= p; r++ {
		for j := p; j >= r; j-- {
			i := j + span - p
			den := k[i+p-r+1] - k[i]
			a := 0.0
			if den != 0 {
				a = (u - k[i]) / den
			}
			d[j] = hpt{
				(1-a)*d[j-1].x + a*d[j].x,
				(1-a)*d[j-1].y + a*d[j].y,
				(1-a)*d[j-1].w + a*d[j].w,
			}
		}
	}
	res := d[p]
	if res.w == 0 {
		return coord.Point{X: res.x, Y: res.y}
	}
	return coord.Point{X: res.x / res.w, Y: res.y / res.w}
}

func (s Spline) Arclen() float64 { return arclen(s.Eval) }
