package engine

import (
	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/dataset"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/phase"
)

// seed returns k starting centroids chosen by method. Rows are read from
// the workers' local copies so spherical runs seed from normalised rows.
func (c *Coordinator) seed(method core.InitMethod, k int) ([]float64, error) {
	switch method {
	case core.InitForgy:
		out := make([]float64, k*c.ncol)
		for j, row := range distinctRows(c, k) {
			copy(out[j*c.ncol:(j+1)*c.ncol], c.localRow(row))
		}
		c.log.Debug().Int("k", k).Msg("Forgy seeding complete")
		return out, nil
	case core.InitPlusPlus:
		return c.plusPlus(k)
	}
	return nil, nerrors.NewConfigurationErrorf("engine.seed", "init %q cannot seed centroids", method)
}

// distinctRows picks k distinct row indices uniformly at random (Floyd's
// algorithm), in selection order.
func distinctRows(c *Coordinator, k int) []int {
	chosen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := c.nrow - k; j < c.nrow; j++ {
		t := c.rng.Intn(j + 1)
		if _, dup := chosen[t]; dup {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// localRow returns global row r from the owning worker's local copy.
func (c *Coordinator) localRow(r int) []float64 {
	w := c.workers[dataset.Owner(c.ranges, r)]
	return w.Row(r - w.rows.Start)
}

// plusPlus runs parallel D^2 seeding. Each round workers fold the newest
// centroid into their local minimum weights; the coordinator then samples
// the next centroid proportionally to those weights.
func (c *Coordinator) plusPlus(k int) ([]float64, error) {
	out := make([]float64, k*c.ncol)
	copy(out[:c.ncol], c.localRow(c.rng.Intn(c.nrow)))
	for j := 1; j < k; j++ {
		c.ppCentroid = out[(j-1)*c.ncol : j*c.ncol]
		if err := c.runPhase(phase.InitPlusPlus); err != nil {
			return nil, err
		}
		copy(out[j*c.ncol:(j+1)*c.ncol], c.localRow(c.sampleD2()))
	}
	c.ppCentroid = nil
	for _, w := range c.workers {
		w.ppDist = nil
		w.ppSum = 0
	}
	c.log.Debug().Int("k", k).Msg("kmeans++ seeding complete")
	return out, nil
}

// sampleD2 draws a row with probability proportional to its weight by
// walking the worker sums and then the owning worker's weights. When every
// weight is zero a uniformly random row is returned.
func (c *Coordinator) sampleD2() int {
	var total float64
	for _, w := range c.workers {
		total += w.ppSum
	}
	if !(total > 0) {
		return c.rng.Intn(c.nrow)
	}

	target := c.rng.Float64() * total
	last := -1
	for _, w := range c.workers {
		if w.ppSum <= 0 {
			continue
		}
		if target < w.ppSum {
			for i, d := range w.ppDist {
				if d <= 0 {
					continue
				}
				last = w.rows.Start + i
				target -= d
				if target < 0 {
					return last
				}
			}
		} else {
			target -= w.ppSum
		}
		for i := len(w.ppDist) - 1; i >= 0; i-- {
			if w.ppDist[i] > 0 {
				last = w.rows.Start + i
				break
			}
		}
	}
	// rounding left target just past the final positive weight
	return last
}

// randomCluster maps (seed, row) to a cluster in [0, k) with a splitmix64
// mix, so random partitions do not depend on the worker count.
func randomCluster(seed int64, row, k int) int {
	z := uint64(seed) + uint64(row+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return int(z % uint64(k))
}
