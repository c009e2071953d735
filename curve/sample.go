package curve

import (
	"math"

	"github.com/mastercactapus/lasermx/coord"
)

const (
	// MinSamples and MaxSamples bound the number of segments a curve is split into.
	MinSamples = 2
	MaxSamples = 1000

	// DefaultSamplesPerUnit is the sampling density used by the vector loaders.
	DefaultSamplesPerUnit = 50

	lengthEpsilon = 1e-6
)

// Count returns the number of segments used for a curve of the given length.
func Count(length, samplesPerUnit float64) int {
	v := samplesPerUnit * (length + lengthEpsilon)
	switch {
	case math.IsNaN(v) || v < MinSamples:
		return MinSamples
	case v > MaxSamples:
		return MaxSamples
	}
	n := int(math.Round(v))
	if n < MinSamples {
		return MinSamples
	}
	if n > MaxSamples {
		return MaxSamples
	}
	return n
}

// Sample flattens c into a polyline with a vertex count proportional to its length.
//
// Piecewise-linear curves are returned unchanged.
func Sample(c Curve, samplesPerUnit float64) coord.Polyline {
	if lin, ok := c.(Linearizer); ok {
		if v, ok := lin.Vertices(); ok {
			return v
		}
	}
	return SampleN(c, Count(c.Arclen(), samplesPerUnit))
}

// SampleN evaluates c at t = i/n for i in 0..n, returning n+1 points.
func SampleN(c Curve, n int) coord.Polyline {
	if n < 1 {
		n = 1
	}
	res := make(coord.Polyline, n+1)
	for i := range res {
		res[i] = c.Eval(float64(i) / float64(n))
	}
	return res
}
