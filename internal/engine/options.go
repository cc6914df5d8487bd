package engine

import (
	"github.com/rs/zerolog"

	"github.com/23skdu/nclust/internal/core"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/numa"
)

// DefaultRegularization is the ridge added to mixture covariance diagonals.
const DefaultRegularization = 1e-6

// Options configures a clustering run.
type Options struct {
	// K is the number of clusters, or the upper bound on clusters for
	// x-means.
	K        int
	MaxIters int
	// NNodes limits the NUMA nodes workers are spread over. Zero uses
	// every detected node.
	NNodes int
	// NThreads is the worker count. Zero uses one worker per usable CPU.
	NThreads int
	// Init defaults to kmeans++ when empty, or to none when centroids are
	// supplied.
	Init core.InitMethod
	// Tolerance is the relative objective change below which the run
	// stops. -1 disables the check.
	Tolerance float64
	Metric    core.DistanceMetric
	Algorithm core.Algorithm
	Seed      int64
	// Pin binds each worker thread to the CPUs of its NUMA node.
	Pin bool
	// Verify checksums every worker partition against the source after
	// ALLOC.
	Verify bool
	// Regularization is added to every mixture covariance diagonal.
	Regularization float64

	Logger zerolog.Logger
	// Topology overrides NUMA detection.
	Topology *numa.Topology
}

// DefaultOptions returns options for a k-means run with k-means++ seeding.
func DefaultOptions() Options {
	return Options{
		K:              8,
		MaxIters:       100,
		Init:           core.InitPlusPlus,
		Tolerance:      -1,
		Metric:         core.MetricEuclidean,
		Algorithm:      core.AlgorithmKMeans,
		Seed:           1,
		Pin:            true,
		Regularization: DefaultRegularization,
		Logger:         zerolog.Nop(),
	}
}

// resolve validates o against the dataset shape and the optional centroid
// buffer, and returns a copy with defaults filled in.
func (o Options) resolve(nrow, ncol int, centroids []float64) (Options, error) {
	const op = "engine.options"
	if nrow < 1 || ncol < 1 {
		return o, nerrors.NewConfigurationErrorf(op, "dataset shape %dx%d is empty", nrow, ncol)
	}
	if o.K < 1 {
		return o, nerrors.NewConfigurationErrorf(op, "k must be positive, got %d", o.K)
	}
	if o.K > nrow {
		return o, nerrors.NewConfigurationErrorf(op, "k=%d exceeds the %d rows", o.K, nrow)
	}
	if o.MaxIters < 1 {
		return o, nerrors.NewConfigurationErrorf(op, "max_iters must be positive, got %d", o.MaxIters)
	}
	if o.NThreads < 0 {
		return o, nerrors.NewConfigurationErrorf(op, "threads must not be negative, got %d", o.NThreads)
	}
	if o.NThreads == 0 {
		o.NThreads = numa.DefaultThreads()
	}
	if o.NNodes < 0 {
		return o, nerrors.NewConfigurationErrorf(op, "nodes must not be negative, got %d", o.NNodes)
	}
	if o.Tolerance < 0 && o.Tolerance != -1 {
		return o, nerrors.NewConfigurationErrorf(op, "tolerance must be >= 0 or -1, got %g", o.Tolerance)
	}
	if o.Regularization < 0 {
		return o, nerrors.NewConfigurationErrorf(op, "regularization must not be negative, got %g", o.Regularization)
	}

	if o.Algorithm == "" {
		o.Algorithm = core.AlgorithmKMeans
	}
	switch o.Algorithm {
	case core.AlgorithmKMeans, core.AlgorithmSKMeans, core.AlgorithmXMeans, core.AlgorithmGaussianM:
	default:
		return o, nerrors.NewConfigurationErrorf(op, "unknown algorithm %q", o.Algorithm)
	}

	if o.Metric == "" {
		o.Metric = core.MetricEuclidean
	}
	if o.Algorithm == core.AlgorithmSKMeans {
		o.Metric = core.MetricCosine
	}
	if !o.Metric.Valid() {
		return o, nerrors.NewConfigurationErrorf(op, "unknown distance metric %q", o.Metric)
	}

	if centroids != nil {
		if o.Init != "" && o.Init != core.InitNone {
			o.Logger.Warn().
				Str("init", string(o.Init)).
				Msg("initial centroids supplied, init method overridden to none")
		}
		o.Init = core.InitNone
		if len(centroids) != o.K*ncol {
			return o, nerrors.NewConfigurationErrorf(op,
				"centroid buffer holds %d values, need %dx%d", len(centroids), o.K, ncol)
		}
	}
	if o.Init == "" {
		o.Init = core.InitPlusPlus
	}
	if o.Init == core.InitNone && centroids == nil {
		return o, nerrors.NewConfigurationError(op, "init none requires initial centroids")
	}
	return o, nil
}
