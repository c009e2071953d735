package coord

// Polyline is an ordered list of points; order is traversal order.
//
// Consecutive duplicates are allowed, they are collapsed when
// the polyline is compiled into motion commands.
type Polyline []Point

// Length returns the sum of the segment lengths.
func (pl Polyline) Length() float64 {
	var l float64
	for i := 1; i < len(pl); i++ {
		l += pl[i-1].Distance(pl[i])
	}
	return l
}

// Clone returns a copy of pl that shares no memory with it.
func (pl Polyline) Clone() Polyline {
	if pl == nil {
		return nil
	}
	c := make(Polyline, len(pl))
	copy(c, pl)
	return c
}

// Closed reports if the first and last points are equal.
func (pl Polyline) Closed() bool {
	return len(pl) > 1 && pl[0].Equal(pl[len(pl)-1])
}
