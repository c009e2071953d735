package curve

import (
	"sort"

	"github.com/mastercactapus/lasermx/coord"
)

// Path is a continuous sequence of segments evaluated as a single curve.
//
// The parameter is distributed over segments in proportion to their length.
type Path struct {
	Segments []Curve

	cum   []float64
	total float64
}

// NewPath creates a Path from the given segments.
func NewPath(segs ...Curve) *Path {
	p := &Path{Segments: segs}
	p.measure()
	return p
}

func (p *Path) measure() {
	p.cum = make([]float64, len(p.Segments))
	p.total = 0
	for i, s := range p.Segments {
		p.total += s.Arclen()
		p.cum[i] = p.total
	}
}

func (p *Path) Arclen() float64 {
	if len(p.cum) != len(p.Segments) {
		p.measure()
	}
	return p.total
}

func (p *Path) Eval(t float64) coord.Point {
	n := len(p.Segments)
	if n == 0 {
		return coord.Point{}
	}
	total := p.Arclen()
	if t <= 0 {
		return p.Segments[0].Eval(0)
	}
	if t >= 1 {
		return p.Segments[n-1].Eval(1)
	}
	if total == 0 {
		i := int(t * float64(n))
		return p.Segments[i].Eval(t*float64(n) - float64(i))
	}

	s := t * total
	i := sort.SearchFloat64s(p.cum, s)
	if i >= n {
		i = n - 1
	}
	var start float64
	if i > 0 {
		start = p.cum[i-1]
	}
	segLen := p.cum[i] - start
	if segLen == 0 {
		return p.Segments[i].Eval(1)
	}
	return p.Segments[i].Eval((s - start) / segLen)
}

// Vertices returns the joined segment vertices if every segment is linear.
func (p *Path) Vertices() (coord.Polyline, bool) {
	var res coord.Polyline
	for _, s := range p.Segments {
		lin, ok := s.(Linearizer)
		if !ok {
			return nil, false
		}
		v, ok := lin.Vertices()
		if !ok {
			return nil, false
		}
		if len(res) > 0 && len(v) > 0 && res[len(res)-1].Equal(v[0]) {
			v = v[1:]
		}
		res = append(res, v...)
	}
	return res, true
}
