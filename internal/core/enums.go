package core

import (
	"fmt"
	"strings"
)

// DistanceMetric defines the distance metric used to compare rows with centroids.
type DistanceMetric string

const (
	// MetricEuclidean is the L2 distance (lower is closer).
	MetricEuclidean DistanceMetric = "euclidean"
	// MetricSqEuclidean is the squared L2 distance. Order-equivalent to
	// MetricEuclidean and cheaper, so comparisons use it internally.
	MetricSqEuclidean DistanceMetric = "sqeuclidean"
	// MetricCosine is the Cosine distance (1.0 - cosine_similarity).
	MetricCosine DistanceMetric = "cosine"
	// MetricTaxicab is the L1 (Manhattan) distance.
	MetricTaxicab DistanceMetric = "taxicab"
)

// ParseDistanceMetric maps a user supplied name to a DistanceMetric.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "eucl", "l2":
		return MetricEuclidean, nil
	case "sqeuclidean", "sqeucl":
		return MetricSqEuclidean, nil
	case "cosine", "cos":
		return MetricCosine, nil
	case "taxicab", "taxi", "l1", "manhattan":
		return MetricTaxicab, nil
	}
	return "", fmt.Errorf("unknown distance metric %q", s)
}

// Valid reports whether m is one of the known metrics.
func (m DistanceMetric) Valid() bool {
	switch m {
	case MetricEuclidean, MetricSqEuclidean, MetricCosine, MetricTaxicab:
		return true
	}
	return false
}

// InitMethod selects how initial centroids are chosen.
type InitMethod string

const (
	// InitRandom assigns every row to a uniformly random cluster and uses
	// the resulting means as the first centroids.
	InitRandom InitMethod = "random"
	// InitForgy picks k distinct rows uniformly at random.
	InitForgy InitMethod = "forgy"
	// InitPlusPlus picks centroids by D^2 weighted sampling (k-means++).
	InitPlusPlus InitMethod = "kmeans++"
	// InitNone uses externally supplied centroids.
	InitNone InitMethod = "none"
)

// ParseInitMethod maps a user supplied name to an InitMethod.
func ParseInitMethod(s string) (InitMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return InitRandom, nil
	case "forgy":
		return InitForgy, nil
	case "kmeans++", "kmeanspp", "plusplus":
		return InitPlusPlus, nil
	case "none":
		return InitNone, nil
	}
	return "", fmt.Errorf("unknown init method %q", s)
}

// Algorithm selects the clustering variant driven by the coordinator.
type Algorithm string

const (
	AlgorithmKMeans    Algorithm = "kmeans"
	AlgorithmSKMeans   Algorithm = "skmeans"
	AlgorithmXMeans    Algorithm = "xmeans"
	AlgorithmGaussianM Algorithm = "gmm"
)

// ParseAlgorithm maps a user supplied name to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kmeans", "k-means":
		return AlgorithmKMeans, nil
	case "skmeans", "spherical":
		return AlgorithmSKMeans, nil
	case "xmeans", "x-means", "hclust":
		return AlgorithmXMeans, nil
	case "gmm", "mixture":
		return AlgorithmGaussianM, nil
	}
	return "", fmt.Errorf("unknown algorithm %q", s)
}
