package core

import "math"

// ClusterID identifies a cluster. For flat algorithms it is an index into
// the centroid table; for x-means it is an arena node id.
type ClusterID = uint32

// InvalidClusterID marks a row that has not been assigned yet.
const InvalidClusterID ClusterID = math.MaxUint32

// RunRecord is the final output of a successful run. It is produced once,
// after the worker pool has exited, and is not modified afterwards.
type RunRecord struct {
	NRow      int
	NCol      int
	Iters     int
	K         int
	Algorithm Algorithm
	// RunID is a short random id shared with the run's log lines.
	RunID string

	// Assignments maps row -> cluster id in [0, K).
	Assignments []ClusterID
	// Counts holds the number of rows per cluster.
	Counts []int64
	// Centroids is the K x NCol row-major centroid table.
	Centroids []float64

	// Converged is false when the run stopped on MaxIters.
	Converged bool
	// Objective is the sum of in-cluster distances for flat and
	// hierarchical runs, or the log-likelihood for mixture runs.
	Objective float64

	// Mixture is set for Gaussian mixture runs only.
	Mixture *Mixture
}

// Centroid returns the centroid of cluster c.
func (r *RunRecord) Centroid(c int) []float64 {
	return r.Centroids[c*r.NCol : (c+1)*r.NCol]
}

// Mixture holds the fitted parameters of a Gaussian mixture run.
type Mixture struct {
	Weights []float64
	// Covariances holds K row-major NCol x NCol matrices.
	Covariances [][]float64
	// LogLikelihood is the sum over rows of log p(x).
	LogLikelihood float64
	// SingularComponents counts covariance updates that were skipped
	// because the matrix was not positive definite.
	SingularComponents int
}
