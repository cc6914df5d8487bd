package cluster

import (
	"fmt"

	"github.com/23skdu/nclust/internal/distance"
	nerrors "github.com/23skdu/nclust/internal/errors"
)

// Table is the flat k x dim centroid table. Only the coordinator mutates
// it, and only while no phase is running.
type Table struct {
	k, dim    int
	centroids []float64
	counts    []int64
	spherical bool
}

// NewTable returns a zeroed table. A spherical table renormalises every
// committed centroid to unit length.
func NewTable(k, dim int, spherical bool) *Table {
	return &Table{
		k:         k,
		dim:       dim,
		centroids: make([]float64, k*dim),
		counts:    make([]int64, k),
		spherical: spherical,
	}
}

func (t *Table) K() int   { return t.k }
func (t *Table) Dim() int { return t.dim }

// Centroid returns centroid c, aliasing the table.
func (t *Table) Centroid(c int) []float64 {
	return t.centroids[c*t.dim : (c+1)*t.dim]
}

// Centroids returns the row-major centroid storage.
func (t *Table) Centroids() []float64 { return t.centroids }

// Counts returns the member counts from the last commit.
func (t *Table) Counts() []int64 { return t.counts }

// Set replaces every centroid with a copy of centroids.
func (t *Table) Set(centroids []float64) error {
	if len(centroids) != t.k*t.dim {
		return nerrors.NewConfigurationError("cluster.set",
			fmt.Sprintf("centroid buffer holds %d values, need %dx%d", len(centroids), t.k, t.dim))
	}
	copy(t.centroids, centroids)
	if t.spherical {
		for c := 0; c < t.k; c++ {
			distance.NormalizeInPlace(t.Centroid(c))
		}
	}
	return nil
}

// SetCentroid copies v into centroid c.
func (t *Table) SetCentroid(c int, v []float64) {
	dst := t.Centroid(c)
	copy(dst, v)
	if t.spherical {
		distance.NormalizeInPlace(dst)
	}
}

// Commit recomputes every centroid as the mean of its accumulated rows.
// Clusters that received no rows keep their previous centroid and are
// returned as empty ids.
func (t *Table) Commit(acc *Accumulator) (empty []int) {
	copy(t.counts, acc.Counts)
	for c := 0; c < t.k; c++ {
		n := acc.Counts[c]
		if n == 0 {
			empty = append(empty, c)
			continue
		}
		inv := 1 / float64(n)
		cent := t.Centroid(c)
		sum := acc.Sums[c*t.dim : (c+1)*t.dim]
		for j := range cent {
			cent[j] = sum[j] * inv
		}
		if t.spherical {
			distance.NormalizeInPlace(cent)
		}
	}
	return empty
}

// Snapshot returns a copy of the centroids.
func (t *Table) Snapshot() []float64 {
	out := make([]float64, len(t.centroids))
	copy(out, t.centroids)
	return out
}

// Nearest returns the index of the centroid closest to row under cmp and
// that distance. Ties go to the lowest index.
func (t *Table) Nearest(row []float64, cmp distance.Func) (int, float64) {
	best, bestDist := 0, cmp(row, t.Centroid(0))
	for c := 1; c < t.k; c++ {
		if d := cmp(row, t.Centroid(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}
