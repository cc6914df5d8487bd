// Package distance computes distances between row vectors.
//
// All functions assume a and b have the same length; callers slice rows out
// of a row-major matrix with a fixed column count so the check is not
// repeated in the hot loop.
package distance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/23skdu/nclust/internal/core"
)

// Func computes the distance between two equal-length vectors.
type Func func(a, b []float64) float64

// SquaredEuclidean returns sum((a[i]-b[i])^2).
func SquaredEuclidean(a, b []float64) float64 {
	var s0, s1, s2, s3 float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

// Euclidean returns the L2 distance.
func Euclidean(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// Taxicab returns the L1 distance.
func Taxicab(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// Cosine returns 1 - cos(a, b), clamped to [0, 2].
// A zero vector is orthogonal to everything (distance 1).
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Dot returns the inner product of a and b.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// Distance computes the distance between a and b under metric m.
// Unknown metrics yield NaN; use Provider to validate a metric up front.
func Distance(a, b []float64, m core.DistanceMetric) float64 {
	f, err := Provider(m)
	if err != nil {
		return math.NaN()
	}
	return f(a, b)
}

// Provider returns the distance function for m.
func Provider(m core.DistanceMetric) (Func, error) {
	switch m {
	case core.MetricEuclidean:
		return Euclidean, nil
	case core.MetricSqEuclidean:
		return SquaredEuclidean, nil
	case core.MetricCosine:
		return Cosine, nil
	case core.MetricTaxicab:
		return Taxicab, nil
	}
	return nil, fmt.Errorf("distance: unsupported metric %q", m)
}

// Comparator returns the function used for arg-min comparisons under m.
// Euclidean comparisons use the squared form since only ordering matters.
func Comparator(m core.DistanceMetric) (Func, error) {
	if m == core.MetricEuclidean {
		return SquaredEuclidean, nil
	}
	return Provider(m)
}

// NormalizeInPlace scales v to unit L2 norm. It reports false and leaves v
// untouched when v has zero norm.
func NormalizeInPlace(v []float64) bool {
	n := floats.Norm(v, 2)
	if n == 0 {
		return false
	}
	floats.Scale(1/n, v)
	return true
}
