// Package cluster holds the global cluster state mutated by the
// coordinator between phases: the flat centroid table, the running
// sum/count accumulators that workers fill and the coordinator reduces,
// and the split arena used by hierarchical runs.
package cluster

import "sync"

// Accumulator collects per-cluster running sums and counts over a set of
// rows. Each worker owns one; the coordinator merges them in worker order
// during reduction.
type Accumulator struct {
	k, dim int

	Sums   []float64 // k x dim
	SumSq  []float64 // k x dim, nil unless squares are tracked
	Counts []int64

	// Objective is the sum of comparator distances of the added rows.
	Objective float64
	// Changed counts rows whose assignment moved.
	Changed int
}

var accumulatorPool = sync.Pool{
	New: func() any {
		return &Accumulator{}
	},
}

// NewAccumulator returns a zeroed accumulator for k clusters of dim
// columns. When squares is set, per-dimension sums of squares are kept
// as well.
func NewAccumulator(k, dim int, squares bool) *Accumulator {
	a := &Accumulator{}
	a.Reshape(k, dim, squares)
	return a
}

// AcquireAccumulator takes a zeroed accumulator from the pool.
func AcquireAccumulator(k, dim int, squares bool) *Accumulator {
	a := accumulatorPool.Get().(*Accumulator)
	a.Reshape(k, dim, squares)
	return a
}

// ReleaseAccumulator returns a to the pool. a must not be used afterwards.
func ReleaseAccumulator(a *Accumulator) {
	accumulatorPool.Put(a)
}

// Reshape resizes a for k clusters, reusing capacity, and zeroes it.
func (a *Accumulator) Reshape(k, dim int, squares bool) {
	a.k, a.dim = k, dim
	a.Sums = grow(a.Sums, k*dim)
	a.Counts = growInt(a.Counts, k)
	if squares {
		a.SumSq = grow(a.SumSq, k*dim)
	} else {
		a.SumSq = nil
	}
	a.Reset()
}

// Reset zeroes sums, counts and counters without changing the shape.
func (a *Accumulator) Reset() {
	clear(a.Sums)
	clear(a.SumSq)
	clear(a.Counts)
	a.Objective = 0
	a.Changed = 0
}

func (a *Accumulator) K() int   { return a.k }
func (a *Accumulator) Dim() int { return a.dim }

// Add folds row into cluster c.
func (a *Accumulator) Add(c int, row []float64) {
	a.Counts[c]++
	sum := a.Sums[c*a.dim : (c+1)*a.dim]
	for j, v := range row {
		sum[j] += v
	}
	if a.SumSq != nil {
		sq := a.SumSq[c*a.dim : (c+1)*a.dim]
		for j, v := range row {
			sq[j] += v * v
		}
	}
}

// AddWeighted folds w*row into cluster c without touching the counts.
func (a *Accumulator) AddWeighted(c int, w float64, row []float64) {
	sum := a.Sums[c*a.dim : (c+1)*a.dim]
	for j, v := range row {
		sum[j] += w * v
	}
}

// Merge adds o into a. Both must have the same shape.
func (a *Accumulator) Merge(o *Accumulator) {
	for i, v := range o.Sums {
		a.Sums[i] += v
	}
	if a.SumSq != nil && o.SumSq != nil {
		for i, v := range o.SumSq {
			a.SumSq[i] += v
		}
	}
	for i, v := range o.Counts {
		a.Counts[i] += v
	}
	a.Objective += o.Objective
	a.Changed += o.Changed
}

// Stats returns a view of cluster c. The slices alias a.
func (a *Accumulator) Stats(c int) Stats {
	s := Stats{
		Count: a.Counts[c],
		Sum:   a.Sums[c*a.dim : (c+1)*a.dim],
	}
	if a.SumSq != nil {
		s.SumSq = a.SumSq[c*a.dim : (c+1)*a.dim]
	}
	return s
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

func growInt(s []int64, n int) []int64 {
	if cap(s) < n {
		return make([]int64, n)
	}
	return s[:n]
}
