package engine

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/nclust/internal/cluster"
	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/dataset"
	"github.com/23skdu/nclust/internal/distance"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/metrics"
	"github.com/23skdu/nclust/internal/numa"
	"github.com/23skdu/nclust/internal/phase"
)

// Worker owns one contiguous row range. It runs on its own goroutine,
// locked to one OS thread for its whole life, and executes exactly one
// phase per wake-up.
type Worker struct {
	id   int
	node int
	rows dataset.Range
	c    *Coordinator
	log  zerolog.Logger

	state  atomic.Int32
	exited bool

	// data is the worker-local copy of rows [rows.Start, rows.End).
	data []float64
	acc  *cluster.Accumulator

	// k-means++ seeding: per-row weight to the nearest chosen centroid.
	ppDist []float64
	ppSum  float64

	checksum float64

	// split refinement: rows moved per active node slot.
	slotChanged []int
	// mixture: responsibilities (rows x k), soft counts and scatter.
	resp    []float64
	nk      []float64
	scatter []*mat.SymDense
}

func newWorker(c *Coordinator, id, node int, rows dataset.Range) *Worker {
	return &Worker{
		id:   id,
		node: node,
		rows: rows,
		c:    c,
		log:  c.log.With().Int("worker", id).Int("numa_node", node).Logger(),
	}
}

// State returns the phase the worker is executing, or phase.Wait.
func (w *Worker) State() phase.Phase { return phase.Phase(w.state.Load()) }

// NRows returns the number of rows in the worker's partition.
func (w *Worker) NRows() int { return w.rows.Len() }

// Row returns local row i.
func (w *Worker) Row(i int) []float64 {
	n := w.c.ncol
	return w.data[i*n : (i+1)*n]
}

func (w *Worker) run() {
	defer w.c.wg.Done()
	if w.c.opts.Pin {
		if err := numa.PinToNode(w.c.topo, w.node); err != nil {
			metrics.NumaPinFailuresTotal.Inc()
			w.log.Warn().Err(err).Msg("Failed to pin worker to NUMA node")
		}
	} else {
		runtime.LockOSThread()
	}

	ctrl := w.c.ctrl
	var seen uint64
	for {
		p, gen := ctrl.Await(seen)
		seen = gen
		err := w.Execute(p)
		ctrl.Done(err)
		if p == phase.Exit {
			return
		}
	}
}

// Execute runs phase p over the worker's partition and returns the worker
// to Wait. Undefined phases and any phase after Exit are protocol errors.
func (w *Worker) Execute(p phase.Phase) (err error) {
	if w.exited {
		return nerrors.NewThreadStateError("worker.execute", "worker already exited").
			WithContext("worker", w.id).
			WithContext("phase", p.String())
	}
	if p == phase.Wait || !p.Known() {
		return nerrors.NewThreadStateError("worker.execute", "undefined phase "+p.String()).
			WithContext("worker", w.id)
	}

	w.state.Store(int32(p))
	defer w.state.Store(int32(phase.Wait))

	switch p {
	case phase.Exit:
		w.exited = true
		return nil
	case phase.Alloc:
		return w.alloc()
	case phase.Test:
		w.checksum = checksum(w.data)
		return nil
	case phase.InitPlusPlus:
		w.plusPlus()
		return nil
	}
	return w.c.algo.Execute(w, p)
}

// alloc copies the worker's rows into memory first touched by this thread
// and marks them unassigned.
func (w *Worker) alloc() error {
	n := w.rows.Len()
	w.data = make([]float64, n*w.c.ncol)
	if n > 0 {
		if err := w.c.src.ReadRows(w.data, w.rows.Start, w.rows.End); err != nil {
			return err
		}
	}
	if w.c.normalize {
		zero := 0
		for i := 0; i < n; i++ {
			if !distance.NormalizeInPlace(w.Row(i)) {
				zero++
			}
		}
		if zero > 0 {
			w.log.Warn().Int("rows", zero).Msg("Zero rows cannot be normalised")
		}
	}
	for r := w.rows.Start; r < w.rows.End; r++ {
		w.c.assignments[r] = core.InvalidClusterID
	}
	w.log.Debug().Int("rows", n).Msg("Partition allocated")
	return nil
}

// accumulator returns w's accumulator reshaped and zeroed.
func (w *Worker) accumulator(k int, squares bool) *cluster.Accumulator {
	if w.acc == nil {
		w.acc = cluster.NewAccumulator(k, w.c.ncol, squares)
		return w.acc
	}
	w.acc.Reshape(k, w.c.ncol, squares)
	return w.acc
}

// plusPlus folds the newest centroid into the local minimum weights.
func (w *Worker) plusPlus() {
	n := w.rows.Len()
	if len(w.ppDist) != n {
		w.ppDist = make([]float64, n)
		for i := range w.ppDist {
			w.ppDist[i] = math.Inf(1)
		}
	}
	cent := w.c.ppCentroid
	square := w.c.opts.Metric != core.MetricEuclidean && w.c.opts.Metric != core.MetricSqEuclidean
	var sum float64
	for i := 0; i < n; i++ {
		d := w.c.cmp(w.Row(i), cent)
		if square {
			d *= d
		}
		if d < w.ppDist[i] {
			w.ppDist[i] = d
		}
		sum += w.ppDist[i]
	}
	w.ppSum = sum
}

func unsupportedPhase(w *Worker, p phase.Phase) error {
	return nerrors.NewThreadStateError("worker.execute", "phase not supported by "+string(w.c.opts.Algorithm)).
		WithContext("worker", w.id).
		WithContext("phase", p.String())
}
