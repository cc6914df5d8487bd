package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_AddMerge(t *testing.T) {
	a := NewAccumulator(2, 2, true)
	a.Add(0, []float64{1, 2})
	a.Add(0, []float64{3, 4})
	a.Add(1, []float64{10, 0})
	a.Objective = 1.5
	a.Changed = 2

	b := NewAccumulator(2, 2, true)
	b.Add(1, []float64{20, 2})
	b.Objective = 0.5
	b.Changed = 1

	a.Merge(b)
	assert.Equal(t, []int64{2, 2}, a.Counts)
	assert.Equal(t, []float64{4, 6, 30, 2}, a.Sums)
	assert.Equal(t, []float64{10, 20, 500, 4}, a.SumSq)
	assert.Equal(t, 2.0, a.Objective)
	assert.Equal(t, 3, a.Changed)

	st := a.Stats(1)
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, []float64{30, 2}, st.Sum)

	a.Reset()
	assert.Equal(t, []int64{0, 0}, a.Counts)
	assert.Equal(t, []float64{0, 0, 0, 0}, a.Sums)
	assert.Zero(t, a.Objective)
	assert.Zero(t, a.Changed)
}

func TestAccumulator_ReshapeAndPool(t *testing.T) {
	a := AcquireAccumulator(4, 3, false)
	assert.Equal(t, 4, a.K())
	assert.Equal(t, 3, a.Dim())
	assert.Len(t, a.Sums, 12)
	assert.Nil(t, a.SumSq)
	a.Add(3, []float64{1, 1, 1})
	ReleaseAccumulator(a)

	b := AcquireAccumulator(2, 3, true)
	defer ReleaseAccumulator(b)
	require.Len(t, b.Sums, 6)
	require.Len(t, b.SumSq, 6)
	for _, v := range b.Sums {
		assert.Zero(t, v)
	}
	for _, c := range b.Counts {
		assert.Zero(t, c)
	}
}

func TestAccumulator_AddWeighted(t *testing.T) {
	a := NewAccumulator(1, 2, false)
	a.AddWeighted(0, 0.5, []float64{2, 4})
	a.AddWeighted(0, 0.25, []float64{4, 4})
	assert.Equal(t, []float64{2, 3}, a.Sums)
	assert.Equal(t, int64(0), a.Counts[0])
}
