package engine

import (
	"math"

	"github.com/23skdu/nclust/internal/cluster"
	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/phase"
)

// flat is Lloyd's algorithm over a fixed k x dim centroid table.
type flat struct {
	k, dim    int
	spherical bool
	table     *cluster.Table

	objective float64
	prev      float64
}

func newFlat(k, dim int, spherical bool) *flat {
	return &flat{
		k:         k,
		dim:       dim,
		spherical: spherical,
		table:     cluster.NewTable(k, dim, spherical),
		prev:      math.NaN(),
	}
}

func (f *flat) Kind() core.Algorithm {
	if f.spherical {
		return core.AlgorithmSKMeans
	}
	return core.AlgorithmKMeans
}

func (f *flat) Supports(m core.InitMethod) bool {
	switch m {
	case core.InitRandom, core.InitForgy, core.InitPlusPlus, core.InitNone:
		return true
	}
	return false
}

func (f *flat) Init(c *Coordinator, centroids []float64) error {
	switch c.opts.Init {
	case core.InitNone:
		return f.table.Set(centroids)
	case core.InitRandom:
		if err := c.runPhase(phase.InitRandom); err != nil {
			return err
		}
		if err := c.runPhase(phase.MeanUpdate); err != nil {
			return err
		}
		total := c.reduce(f.k, false)
		defer cluster.ReleaseAccumulator(total)
		if empty := f.table.Commit(total); len(empty) > 0 {
			c.reportEmpty(0, empty)
		}
		return nil
	}
	seeds, err := c.seed(c.opts.Init, f.k)
	if err != nil {
		return err
	}
	return f.table.Set(seeds)
}

func (f *flat) Step(c *Coordinator, iter int) (Progress, error) {
	if err := c.runPhase(phase.Assign); err != nil {
		return Progress{}, err
	}
	total := c.reduce(f.k, false)
	defer cluster.ReleaseAccumulator(total)

	if empty := f.table.Commit(total); len(empty) > 0 {
		c.reportEmpty(iter, empty)
	}
	p := Progress{Changed: total.Changed, Objective: total.Objective}
	p.Done = p.Changed == 0 || c.withinTolerance(iter, f.prev, p.Objective)
	f.prev = p.Objective
	f.objective = p.Objective
	return p, nil
}

func (f *flat) Execute(w *Worker, p phase.Phase) error {
	switch p {
	case phase.Assign:
		f.assign(w)
	case phase.MeanUpdate:
		f.meanUpdate(w)
	case phase.InitRandom:
		f.randomPartition(w)
	default:
		return unsupportedPhase(w, p)
	}
	return nil
}

// assign moves every local row to its nearest centroid and accumulates
// the partial sums for the next commit.
func (f *flat) assign(w *Worker) {
	acc := w.accumulator(f.k, false)
	assignments := w.c.assignments
	cmp := w.c.cmp
	for i := 0; i < w.NRows(); i++ {
		v := w.Row(i)
		best, d := f.table.Nearest(v, cmp)
		row := w.rows.Start + i
		if id := core.ClusterID(best); assignments[row] != id {
			assignments[row] = id
			acc.Changed++
		}
		acc.Add(best, v)
		acc.Objective += d
	}
}

// meanUpdate rebuilds the partial sums from the current assignments.
func (f *flat) meanUpdate(w *Worker) {
	acc := w.accumulator(f.k, false)
	for i := 0; i < w.NRows(); i++ {
		if id := w.c.assignments[w.rows.Start+i]; id != core.InvalidClusterID {
			acc.Add(int(id), w.Row(i))
		}
	}
}

// randomPartition assigns every local row a pseudo-random cluster.
func (f *flat) randomPartition(w *Worker) {
	seed := w.c.opts.Seed
	for r := w.rows.Start; r < w.rows.End; r++ {
		w.c.assignments[r] = core.ClusterID(randomCluster(seed, r, f.k))
	}
}

func (f *flat) Result(c *Coordinator, iters int, converged bool) *core.RunRecord {
	rec := c.newRecord(f.k, iters, converged)
	rec.Counts = append([]int64(nil), f.table.Counts()...)
	rec.Centroids = f.table.Snapshot()
	rec.Objective = f.objective
	return rec
}
