// Package engine drives a persistent, NUMA-pinned worker pool through the
// phases of an iterative clustering algorithm.
//
// A Coordinator partitions the dataset into contiguous row ranges, starts
// one worker per range, and then repeats: publish a phase, wait for every
// worker, reduce the per-worker partial results into global cluster state,
// and test for convergence. Workers only ever touch their own rows and
// their own accumulators; all shared state is mutated by the coordinator
// between phases.
package engine

import (
	"math"

	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/phase"
)

// Progress summarises one iteration of the main loop.
type Progress struct {
	Iter      int
	Changed   int
	Objective float64
	Done      bool
}

// Algorithm is one clustering variant. The coordinator calls Init, Step
// and Result from its own goroutine between phases; workers call Execute
// for every phase the variant publishes.
type Algorithm interface {
	Kind() core.Algorithm
	Supports(core.InitMethod) bool
	// Init builds the starting cluster state. It may publish phases.
	Init(c *Coordinator, centroids []float64) error
	// Step runs one iteration and reports whether the run has converged.
	Step(c *Coordinator, iter int) (Progress, error)
	// Execute runs phase p over w's partition.
	Execute(w *Worker, p phase.Phase) error
	// Result builds the run record once the pool has exited.
	Result(c *Coordinator, iters int, converged bool) *core.RunRecord
}

func newAlgorithm(o Options, ncol int) Algorithm {
	switch o.Algorithm {
	case core.AlgorithmSKMeans:
		return newSpherical(o.K, ncol)
	case core.AlgorithmXMeans:
		return newSplitter(o.K, ncol)
	case core.AlgorithmGaussianM:
		return newMixture(o.K, ncol, o.Regularization)
	default:
		return newFlat(o.K, ncol, false)
	}
}

// withinTolerance reports whether the objective moved by at most the
// configured relative tolerance since the previous iteration.
func (c *Coordinator) withinTolerance(iter int, prev, cur float64) bool {
	tol := c.opts.Tolerance
	if tol < 0 || iter < 2 || math.IsNaN(prev) || math.IsNaN(cur) {
		return false
	}
	return math.Abs(prev-cur) <= tol*math.Abs(prev)
}
