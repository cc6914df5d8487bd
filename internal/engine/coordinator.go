package engine

import (
	stderrors "errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/23skdu/nclust/internal/cluster"
	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/dataset"
	"github.com/23skdu/nclust/internal/distance"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/metrics"
	"github.com/23skdu/nclust/internal/numa"
	"github.com/23skdu/nclust/internal/phase"
)

// Coordinator owns the dataset handle, the worker pool and the phase
// controller for a single run.
type Coordinator struct {
	src  dataset.Source
	opts Options
	log  zerolog.Logger

	nrow, ncol int
	topo       *numa.Topology
	ranges     []dataset.Range
	ctrl       *phase.Controller
	workers    []*Worker
	wg         sync.WaitGroup

	algo      Algorithm
	cmp       distance.Func
	normalize bool
	rng       *rand.Rand
	runID     string

	// assignments is shared by all workers; each writes only its own range.
	assignments []core.ClusterID
	// ppCentroid is the newest centroid folded in by InitPlusPlus.
	ppCentroid []float64

	history []Progress
	used    bool
}

// New returns a coordinator for src. Options are validated by Run.
func New(src dataset.Source, opts Options) (*Coordinator, error) {
	if src == nil {
		return nil, nerrors.NewConfigurationError("engine.new", "nil dataset")
	}
	return &Coordinator{
		src:  src,
		opts: opts,
		log:  opts.Logger,
		nrow: src.NRow(),
		ncol: src.NCol(),
	}, nil
}

// Run clusters the dataset. centroids, when non-nil, holds K x NCol
// starting centroids and implies the none init method.
//
// Configuration errors are returned before any worker starts. Any worker
// failure aborts the run; the pool is always torn down before Run returns.
func (c *Coordinator) Run(centroids []float64) (*core.RunRecord, error) {
	if c.used {
		return nil, nerrors.NewThreadStateError("engine.run", "coordinator already ran")
	}
	c.used = true

	if err := c.configure(centroids); err != nil {
		return nil, err
	}

	start := time.Now()
	c.log.Info().
		Int("rows", c.nrow).
		Int("cols", c.ncol).
		Int("k", c.opts.K).
		Int("threads", c.opts.NThreads).
		Str("init", string(c.opts.Init)).
		Str("metric", string(c.opts.Metric)).
		Msg("Starting clustering run")

	c.start()
	iters, converged, err := c.drive(centroids)
	if stopErr := c.stop(); err == nil {
		err = stopErr
	}

	kind := string(c.opts.Algorithm)
	metrics.RunDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues(kind, "error").Inc()
		c.log.Error().Err(err).Int("iters", iters).Msg("Clustering run aborted")
		return nil, err
	}

	rec := c.algo.Result(c, iters, converged)
	status := "converged"
	if !converged {
		status = "max_iters"
	}
	metrics.RunsTotal.WithLabelValues(kind, status).Inc()
	c.log.Info().
		Int("iters", iters).
		Int("k", rec.K).
		Bool("converged", converged).
		Float64("objective", rec.Objective).
		Dur("elapsed", time.Since(start)).
		Msg("Clustering run finished")
	return rec, nil
}

// configure resolves options and selects the algorithm.
func (c *Coordinator) configure(centroids []float64) error {
	opts, err := c.opts.resolve(c.nrow, c.ncol, centroids)
	if err != nil {
		return err
	}
	algo := newAlgorithm(opts, c.ncol)
	if !algo.Supports(opts.Init) {
		return nerrors.NewConfigurationErrorf("engine.configure",
			"init %q is not supported by %s", opts.Init, opts.Algorithm)
	}
	cmp, err := distance.Comparator(opts.Metric)
	if err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeConfiguration, "engine.configure", "metric")
	}

	c.opts = opts
	c.algo = algo
	c.cmp = cmp
	c.normalize = opts.Algorithm == core.AlgorithmSKMeans
	c.rng = rand.New(rand.NewSource(opts.Seed))
	c.runID = uuid.New().String()[:8]
	c.log = opts.Logger.With().
		Str("run_id", c.runID).
		Str("algorithm", string(opts.Algorithm)).
		Logger()
	return nil
}

// drive runs ALLOC, initialisation and the main loop.
func (c *Coordinator) drive(centroids []float64) (iters int, converged bool, err error) {
	if err := c.runPhase(phase.Alloc); err != nil {
		return 0, false, err
	}
	if c.opts.Verify {
		if err := c.verify(); err != nil {
			return 0, false, err
		}
	}
	if err := c.algo.Init(c, centroids); err != nil {
		return 0, false, err
	}

	kind := string(c.opts.Algorithm)
	for iter := 1; iter <= c.opts.MaxIters; iter++ {
		p, err := c.algo.Step(c, iter)
		if err != nil {
			return iter, false, err
		}
		p.Iter = iter
		iters = iter
		c.history = append(c.history, p)
		metrics.IterationsTotal.WithLabelValues(kind).Inc()
		metrics.RowsChangedTotal.WithLabelValues(kind).Add(float64(p.Changed))
		c.log.Debug().
			Int("iter", iter).
			Int("changed", p.Changed).
			Float64("objective", p.Objective).
			Msg("Iteration complete")
		if p.Done {
			return iters, true, nil
		}
	}
	return iters, false, nil
}

// start partitions the rows and launches one worker per range.
func (c *Coordinator) start() {
	topo := c.opts.Topology
	if topo == nil {
		var err error
		topo, err = numa.DetectTopology()
		if err != nil {
			c.log.Warn().Err(err).Msg("NUMA detection failed, assuming a single node")
			topo = numa.SingleNode()
		}
	}
	c.topo = topo

	n := c.opts.NThreads
	c.ranges = dataset.Partition(c.nrow, n)
	c.ctrl = phase.NewController(n)
	c.assignments = make([]core.ClusterID, c.nrow)
	c.workers = make([]*Worker, n)

	perNode := make(map[int]int)
	for i := 0; i < n; i++ {
		node := topo.NodeForWorker(i, c.opts.NNodes)
		c.workers[i] = newWorker(c, i, node, c.ranges[i])
		perNode[node]++
	}
	for node, count := range perNode {
		metrics.NumaWorkerDistribution.WithLabelValues(strconv.Itoa(node)).Set(float64(count))
	}

	c.wg.Add(n)
	for _, w := range c.workers {
		go w.run()
	}
}

// stop publishes EXIT unless it was already published and waits for every
// worker goroutine to return.
func (c *Coordinator) stop() error {
	if c.ctrl == nil {
		return nil
	}
	var err error
	if !c.ctrl.Closed() {
		err = c.runPhase(phase.Exit)
	}
	c.wg.Wait()
	return err
}

// runPhase publishes p, waits for the pool and records the phase latency.
func (c *Coordinator) runPhase(p phase.Phase) error {
	start := time.Now()
	err := c.ctrl.Run(p)
	metrics.PhaseDurationSeconds.WithLabelValues(p.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		countWorkerErrors(err)
		return err
	}
	return nil
}

func countWorkerErrors(err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		kind := string(nerrors.TypeOf(e))
		if kind == "" {
			kind = "unknown"
		}
		metrics.WorkerErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// verify runs the TEST phase and compares every worker checksum with one
// computed from the source.
func (c *Coordinator) verify() error {
	if err := c.runPhase(phase.Test); err != nil {
		return err
	}
	var errs []error
	for _, w := range c.workers {
		n := w.rows.Len()
		if n == 0 {
			continue
		}
		buf := make([]float64, n*c.ncol)
		if err := c.src.ReadRows(buf, w.rows.Start, w.rows.End); err != nil {
			return err
		}
		if c.normalize {
			for i := 0; i < n; i++ {
				distance.NormalizeInPlace(buf[i*c.ncol : (i+1)*c.ncol])
			}
		}
		if want := checksum(buf); want != w.checksum {
			errs = append(errs, nerrors.NewValidationError("engine.verify", "partition checksum mismatch").
				WithContext("worker", w.id).
				WithContext("want", want).
				WithContext("got", w.checksum))
		}
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	c.log.Debug().Int("workers", len(c.workers)).Msg("Partition checksums verified")
	return nil
}

// reduce merges every worker accumulator, in worker order, into a pooled
// accumulator. The caller releases it.
func (c *Coordinator) reduce(k int, squares bool) *cluster.Accumulator {
	total := cluster.AcquireAccumulator(k, c.ncol, squares)
	for _, w := range c.workers {
		total.Merge(w.acc)
	}
	return total
}

// reportEmpty logs clusters left without rows by the last reduction.
func (c *Coordinator) reportEmpty(iter int, empty []int) {
	metrics.EmptyClustersTotal.Add(float64(len(empty)))
	c.log.Warn().
		Int("iter", iter).
		Ints("clusters", empty).
		Msg("Empty clusters keep their previous centroid")
}

func (c *Coordinator) newRecord(k, iters int, converged bool) *core.RunRecord {
	return &core.RunRecord{
		NRow:        c.nrow,
		NCol:        c.ncol,
		Iters:       iters,
		K:           k,
		Algorithm:   c.opts.Algorithm,
		RunID:       c.runID,
		Assignments: c.assignments,
		Converged:   converged,
	}
}

func checksum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
