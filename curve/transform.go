package curve

import "github.com/mastercactapus/lasermx/coord"

// Transformed is a curve mapped through an affine transform.
type Transformed struct {
	Curve Curve
	M     coord.Affine
}

// Transform returns c mapped through m. The identity returns c itself.
func Transform(c Curve, m coord.Affine) Curve {
	if m.IsIdentity() {
		return c
	}
	return Transformed{Curve: c, M: m}
}

func (t Transformed) Eval(v float64) coord.Point { return t.M.Apply(t.Curve.Eval(v)) }
func (t Transformed) Arclen() float64           { return arclen(t.Eval) }

func (t Transformed) Vertices() (coord.Polyline, bool) {
	lin, ok := t.Curve.(Linearizer)
	if !ok {
		return nil, false
	}
	v, ok := lin.Vertices()
	if !ok {
		return nil, false
	}
	for i, p := range v {
		v[i] = t.M.Apply(p)
	}
	return v, true
}
