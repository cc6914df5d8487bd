package cluster

import "math"

// minVariance floors the pooled variance so that clusters of identical
// rows still score finitely.
const minVariance = 1e-12

// Stats summarises the rows of one cluster: count, per-dimension sums and
// per-dimension sums of squares.
type Stats struct {
	Count int64
	Sum   []float64
	SumSq []float64
}

// Merge returns the combined statistics of s and o in new slices.
func (s Stats) Merge(o Stats) Stats {
	out := Stats{
		Count: s.Count + o.Count,
		Sum:   make([]float64, len(s.Sum)),
		SumSq: make([]float64, len(s.SumSq)),
	}
	for j := range s.Sum {
		out.Sum[j] = s.Sum[j] + o.Sum[j]
	}
	for j := range s.SumSq {
		out.SumSq[j] = s.SumSq[j] + o.SumSq[j]
	}
	return out
}

// Mean writes the per-dimension mean into dst.
func (s Stats) Mean(dst []float64) {
	if s.Count == 0 {
		clear(dst)
		return
	}
	inv := 1 / float64(s.Count)
	for j, v := range s.Sum {
		dst[j] = v * inv
	}
}

// StdDev writes the per-dimension population standard deviation into dst.
func (s Stats) StdDev(dst []float64) {
	if s.Count == 0 {
		clear(dst)
		return
	}
	n := float64(s.Count)
	for j := range s.Sum {
		m := s.Sum[j] / n
		v := s.SumSq[j]/n - m*m
		if v < 0 {
			v = 0
		}
		dst[j] = math.Sqrt(v)
	}
}

// SSE returns the sum of squared Euclidean distances of the rows to their
// mean.
func (s Stats) SSE() float64 {
	if s.Count == 0 {
		return 0
	}
	n := float64(s.Count)
	var sse float64
	for j := range s.Sum {
		sse += s.SumSq[j] - s.Sum[j]*s.Sum[j]/n
	}
	if sse < 0 {
		return 0
	}
	return sse
}

// BIC scores a model of len(clusters) spherical Gaussians sharing one
// variance (Pelleg and Moore, 2000). Higher is better.
func BIC(clusters ...Stats) float64 {
	k := len(clusters)
	if k == 0 {
		return math.Inf(-1)
	}
	dim := float64(len(clusters[0].Sum))
	var r int64
	var sse float64
	for _, c := range clusters {
		r += c.Count
		sse += c.SSE()
	}
	if r <= int64(k) {
		return math.Inf(-1)
	}
	R := float64(r)
	K := float64(k)
	variance := sse / (dim * (R - K))
	if variance < minVariance {
		variance = minVariance
	}

	var ll float64
	for _, c := range clusters {
		if c.Count == 0 {
			continue
		}
		rn := float64(c.Count)
		ll += rn*math.Log(rn) - rn*math.Log(R) -
			rn/2*math.Log(2*math.Pi) -
			rn*dim/2*math.Log(variance) -
			(rn-K)/2
	}
	params := K * (dim + 1)
	return ll - params/2*math.Log(R)
}
