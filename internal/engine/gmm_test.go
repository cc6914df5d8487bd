package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/nclust/internal/core"
)

func TestGMM_TwoBlobs(t *testing.T) {
	rows, labels := gaussianBlobs(43, 200, 1, []float64{0, 0}, []float64{20, 20})
	opts := testOptions(2)
	opts.Algorithm = core.AlgorithmGaussianM
	opts.Init = core.InitPlusPlus
	opts.Tolerance = 1e-8
	opts.MaxIters = 200

	rec, _ := run(t, mustMatrix(t, rows), opts, nil)
	requireValid(t, rec)
	requirePure(t, rec, labels)
	require.NotNil(t, rec.Mixture)
	assert.True(t, rec.Converged)

	mix := rec.Mixture
	assert.InDelta(t, 1.0, mix.Weights[0]+mix.Weights[1], 1e-9)
	for _, w := range mix.Weights {
		assert.InDelta(t, 0.5, w, 1e-6)
	}
	assert.False(t, math.IsNaN(mix.LogLikelihood))
	assert.Less(t, mix.LogLikelihood, 0.0)
	assert.Equal(t, rec.Objective, mix.LogLikelihood)
	assert.Zero(t, mix.SingularComponents)

	require.Len(t, mix.Covariances, 2)
	for _, cov := range mix.Covariances {
		require.Len(t, cov, 4)
		assert.InDelta(t, 1.0, cov[0], 0.35)
		assert.InDelta(t, 1.0, cov[3], 0.35)
		assert.Equal(t, cov[1], cov[2])
	}
}

func TestGMM_SuppliedMeans(t *testing.T) {
	rows, labels := gaussianBlobs(47, 100, 0.5, []float64{-5, 0}, []float64{5, 0})
	opts := testOptions(2)
	opts.Algorithm = core.AlgorithmGaussianM
	opts.Tolerance = -1

	rec, _ := run(t, mustMatrix(t, rows), opts, []float64{-4, 0, 4, 0})
	requirePure(t, rec, labels)
	assert.Less(t, rec.Centroid(0)[0], 0.0)
	assert.Greater(t, rec.Centroid(1)[0], 0.0)
}

func TestGMM_SingularCovarianceKeepsPrevious(t *testing.T) {
	// the second column is constant, so every fitted covariance is singular
	// without a ridge
	var rows [][]float64
	for i := 0; i < 20; i++ {
		rows = append(rows, []float64{float64(i % 5), 0})
		rows = append(rows, []float64{100 + float64(i%5), 0})
	}
	opts := testOptions(2)
	opts.Algorithm = core.AlgorithmGaussianM
	opts.Regularization = 0
	opts.MaxIters = 3

	rec, _ := run(t, mustMatrix(t, rows), opts, []float64{2, 0, 102, 0})
	require.NotNil(t, rec.Mixture)
	assert.Positive(t, rec.Mixture.SingularComponents)
	for _, cov := range rec.Mixture.Covariances {
		assert.Equal(t, 1.0, cov[3], "initial unit variance retained")
	}
	requireValid(t, rec)
}

func TestLogSumExp(t *testing.T) {
	assert.InDelta(t, math.Log(3), logSumExp([]float64{0, 0, 0}), 1e-12)
	assert.InDelta(t, 1000+math.Log(2), logSumExp([]float64{1000, 1000}), 1e-9)
	assert.True(t, math.IsInf(logSumExp([]float64{math.Inf(-1), math.Inf(-1)}), -1))
}
