package distance

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/nclust/internal/core"
)

var allMetrics = []core.DistanceMetric{
	core.MetricEuclidean,
	core.MetricSqEuclidean,
	core.MetricCosine,
	core.MetricTaxicab,
}

func TestDistance_KnownValues(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{3, 4}

	assert.InDelta(t, 5.0, Distance(a, b, core.MetricEuclidean), 1e-12)
	assert.InDelta(t, 25.0, Distance(a, b, core.MetricSqEuclidean), 1e-12)
	assert.InDelta(t, 7.0, Distance(a, b, core.MetricTaxicab), 1e-12)
	// zero vector is treated as orthogonal
	assert.InDelta(t, 1.0, Distance(a, b, core.MetricCosine), 1e-12)

	assert.InDelta(t, 0.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 2.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-12)
	assert.InDelta(t, 1.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
}

func TestSquaredEuclidean_UnrolledTail(t *testing.T) {
	// 7 columns exercises both the 4-wide body and the scalar tail
	a := []float64{1, 2, 3, 4, 5, 6, 7}
	b := []float64{0, 0, 0, 0, 0, 0, 0}
	assert.InDelta(t, 140.0, SquaredEuclidean(a, b), 1e-12)
}

func TestProvider_UnknownMetric(t *testing.T) {
	_, err := Provider(core.DistanceMetric("chebyshev"))
	require.Error(t, err)
	assert.True(t, math.IsNaN(Distance([]float64{1}, []float64{2}, "chebyshev")))
}

func TestComparator_EuclideanUsesSquared(t *testing.T) {
	f, err := Comparator(core.MetricEuclidean)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, f([]float64{0, 0}, []float64{3, 4}), 1e-12)

	f, err = Comparator(core.MetricTaxicab)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, f([]float64{0, 0}, []float64{3, 4}), 1e-12)
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float64{3, 4}
	require.True(t, NormalizeInPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)

	z := []float64{0, 0}
	assert.False(t, NormalizeInPlace(z))
	assert.Equal(t, []float64{0, 0}, z)
}

// TestDistanceProperties checks symmetry, non-negativity and the cosine bound.
func TestDistanceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	vec := gen.SliceOfN(6, gen.Float64Range(-1e3, 1e3))

	properties.Property("symmetric and non-negative", prop.ForAll(
		func(a, b []float64) bool {
			for _, m := range allMetrics {
				ab := Distance(a, b, m)
				ba := Distance(b, a, m)
				if ab < 0 || math.Abs(ab-ba) > 1e-9*math.Max(1, math.Abs(ab)) {
					return false
				}
			}
			return true
		},
		vec, vec,
	))

	properties.Property("cosine bounded in [0,2]", prop.ForAll(
		func(a, b []float64) bool {
			d := Cosine(a, b)
			return d >= 0 && d <= 2
		},
		vec, vec,
	))

	properties.Property("self distance is zero", prop.ForAll(
		func(a []float64) bool {
			return Distance(a, a, core.MetricSqEuclidean) == 0 &&
				Distance(a, a, core.MetricTaxicab) == 0
		},
		vec,
	))

	properties.TestingRun(t)
}
