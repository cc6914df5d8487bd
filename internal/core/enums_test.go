package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistanceMetric(t *testing.T) {
	cases := map[string]DistanceMetric{
		"euclidean":   MetricEuclidean,
		"EUCL":        MetricEuclidean,
		"sqeuclidean": MetricSqEuclidean,
		"cos":         MetricCosine,
		" taxi ":      MetricTaxicab,
	}
	for in, want := range cases {
		got, err := ParseDistanceMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.True(t, got.Valid())
	}

	_, err := ParseDistanceMetric("hamming")
	assert.Error(t, err)
	assert.False(t, DistanceMetric("hamming").Valid())
}

func TestParseInitMethod(t *testing.T) {
	for in, want := range map[string]InitMethod{
		"random":   InitRandom,
		"forgy":    InitForgy,
		"kmeans++": InitPlusPlus,
		"kmeanspp": InitPlusPlus,
		"none":     InitNone,
	} {
		got, err := ParseInitMethod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseInitMethod("bisect")
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	got, err := ParseAlgorithm("hclust")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmXMeans, got)

	got, err = ParseAlgorithm("GMM")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmGaussianM, got)

	_, err = ParseAlgorithm("dbscan")
	assert.Error(t, err)
}

func TestRunRecord_Centroid(t *testing.T) {
	r := &RunRecord{NCol: 2, K: 2, Centroids: []float64{0, 0.5, 10, 0.5}}
	assert.Equal(t, []float64{10, 0.5}, r.Centroid(1))
}
