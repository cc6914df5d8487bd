package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/nclust/internal/distance"
	nerrors "github.com/23skdu/nclust/internal/errors"
)

func TestTable_CommitRetainsEmptyClusters(t *testing.T) {
	tbl := NewTable(3, 2, false)
	require.NoError(t, tbl.Set([]float64{0, 0, 5, 5, 100, 100}))

	acc := NewAccumulator(3, 2, false)
	acc.Add(0, []float64{0, 1})
	acc.Add(0, []float64{2, 1})
	acc.Add(1, []float64{4, 6})

	empty := tbl.Commit(acc)
	assert.Equal(t, []int{2}, empty)
	assert.Equal(t, []float64{1, 1}, tbl.Centroid(0))
	assert.Equal(t, []float64{4, 6}, tbl.Centroid(1))
	assert.Equal(t, []float64{100, 100}, tbl.Centroid(2), "empty cluster keeps its centroid")
	assert.Equal(t, []int64{2, 1, 0}, tbl.Counts())
}

func TestTable_SetValidatesLength(t *testing.T) {
	tbl := NewTable(2, 2, false)
	err := tbl.Set([]float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, nerrors.IsConfiguration(err))
}

func TestTable_SphericalRenormalises(t *testing.T) {
	tbl := NewTable(1, 2, true)
	require.NoError(t, tbl.Set([]float64{3, 4}))
	assert.InDelta(t, 0.6, tbl.Centroid(0)[0], 1e-12)
	assert.InDelta(t, 0.8, tbl.Centroid(0)[1], 1e-12)

	acc := NewAccumulator(1, 2, false)
	acc.Add(0, []float64{1, 0})
	acc.Add(0, []float64{0, 1})
	tbl.Commit(acc)
	c := tbl.Centroid(0)
	assert.InDelta(t, 1.0, math.Hypot(c[0], c[1]), 1e-12)
	assert.InDelta(t, c[0], c[1], 1e-12)
}

func TestTable_NearestLowestIndexWinsTies(t *testing.T) {
	tbl := NewTable(3, 1, false)
	require.NoError(t, tbl.Set([]float64{-1, 1, 1}))
	c, d := tbl.Nearest([]float64{0}, distance.SquaredEuclidean)
	assert.Equal(t, 0, c)
	assert.Equal(t, 1.0, d)

	c, _ = tbl.Nearest([]float64{2}, distance.SquaredEuclidean)
	assert.Equal(t, 1, c)

	snap := tbl.Snapshot()
	snap[0] = 42
	assert.Equal(t, -1.0, tbl.Centroid(0)[0])
}
