package engine

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/nclust/internal/cluster"
	"github.com/23skdu/nclust/internal/core"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/metrics"
	"github.com/23skdu/nclust/internal/phase"
)

// minComponentWeight is the soft count below which a component is treated
// as empty and keeps its previous parameters.
const minComponentWeight = 1e-10

var log2Pi = math.Log(2 * math.Pi)

// mixture fits k full-covariance Gaussians by EM. Densities are evaluated
// in log space and normalised with log-sum-exp.
type mixture struct {
	k, dim int
	reg    float64

	means      *cluster.Table
	weights    []float64
	logWeights []float64
	covs       []*mat.SymDense
	prec       []*mat.SymDense
	logDet     []float64

	nk       []float64
	singular int
	loglik   float64
	prev     float64
}

func newMixture(k, dim int, reg float64) *mixture {
	m := &mixture{
		k:          k,
		dim:        dim,
		reg:        reg,
		means:      cluster.NewTable(k, dim, false),
		weights:    make([]float64, k),
		logWeights: make([]float64, k),
		covs:       make([]*mat.SymDense, k),
		prec:       make([]*mat.SymDense, k),
		logDet:     make([]float64, k),
		nk:         make([]float64, k),
		prev:       math.NaN(),
	}
	for j := 0; j < k; j++ {
		m.weights[j] = 1 / float64(k)
		m.logWeights[j] = math.Log(m.weights[j])
		m.prec[j] = mat.NewSymDense(dim, nil)
	}
	return m
}

func (m *mixture) Kind() core.Algorithm { return core.AlgorithmGaussianM }

func (m *mixture) Supports(init core.InitMethod) bool {
	switch init {
	case core.InitForgy, core.InitPlusPlus, core.InitNone:
		return true
	}
	return false
}

// Init sets the means from the seeds and every covariance to the diagonal
// of the global per-dimension variance.
func (m *mixture) Init(c *Coordinator, centroids []float64) error {
	seeds := centroids
	if c.opts.Init != core.InitNone {
		var err error
		if seeds, err = c.seed(c.opts.Init, m.k); err != nil {
			return err
		}
	}
	if err := m.means.Set(seeds); err != nil {
		return err
	}

	if err := c.runPhase(phase.MeanUpdate); err != nil {
		return err
	}
	total := c.reduce(1, true)
	sd := make([]float64, m.dim)
	total.Stats(0).StdDev(sd)
	cluster.ReleaseAccumulator(total)

	for j := 0; j < m.k; j++ {
		cov := mat.NewSymDense(m.dim, nil)
		for d, s := range sd {
			v := s * s
			if v == 0 {
				v = 1
			}
			cov.SetSym(d, d, v+m.reg)
		}
		if err := m.factor(j, cov); err != nil {
			return err
		}
	}
	return nil
}

// factor installs cov for component j if it is positive definite.
func (m *mixture) factor(j int, cov *mat.SymDense) error {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nerrors.NewSingularInputError("gmm.factor", "covariance is not positive definite").
			WithContext("component", j)
	}
	if err := chol.InverseTo(m.prec[j]); err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeSingularInput, "gmm.factor", "inverse").
			WithContext("component", j)
	}
	m.covs[j] = cov
	m.logDet[j] = chol.LogDet()
	return nil
}

func (m *mixture) Step(c *Coordinator, iter int) (Progress, error) {
	if err := c.runPhase(phase.EStep); err != nil {
		return Progress{}, err
	}
	total := c.reduce(m.k, false)
	clear(m.nk)
	for _, w := range c.workers {
		for j, v := range w.nk {
			m.nk[j] += v
		}
	}
	p := Progress{Changed: total.Changed, Objective: total.Objective}

	n := float64(c.nrow)
	var empty []int
	for j := 0; j < m.k; j++ {
		if m.nk[j] < minComponentWeight {
			empty = append(empty, j)
			continue
		}
		mean := m.means.Centroid(j)
		inv := 1 / m.nk[j]
		sum := total.Sums[j*m.dim : (j+1)*m.dim]
		for d := range mean {
			mean[d] = sum[d] * inv
		}
		m.weights[j] = m.nk[j] / n
		m.logWeights[j] = math.Log(m.weights[j])
	}
	cluster.ReleaseAccumulator(total)
	if len(empty) > 0 {
		c.reportEmpty(iter, empty)
	}

	if err := c.runPhase(phase.MStep); err != nil {
		return Progress{}, err
	}
	for j := 0; j < m.k; j++ {
		if m.nk[j] < minComponentWeight {
			continue
		}
		cov := mat.NewSymDense(m.dim, nil)
		for _, w := range c.workers {
			cov.AddSym(cov, w.scatter[j])
		}
		cov.ScaleSym(1/m.nk[j], cov)
		for d := 0; d < m.dim; d++ {
			cov.SetSym(d, d, cov.At(d, d)+m.reg)
		}
		if err := m.factor(j, cov); err != nil {
			m.singular++
			metrics.SingularCovariancesTotal.Inc()
			c.log.Warn().Err(err).Int("iter", iter).Int("component", j).
				Msg("Keeping previous covariance")
		}
	}

	m.loglik = p.Objective
	if c.opts.Tolerance >= 0 {
		p.Done = c.withinTolerance(iter, m.prev, p.Objective)
	} else {
		p.Done = p.Changed == 0
	}
	m.prev = p.Objective
	return p, nil
}

func (m *mixture) Execute(w *Worker, p phase.Phase) error {
	switch p {
	case phase.MeanUpdate:
		acc := w.accumulator(1, true)
		for i := 0; i < w.NRows(); i++ {
			acc.Add(0, w.Row(i))
		}
	case phase.EStep:
		m.expectation(w)
	case phase.MStep:
		m.scatter(w)
	default:
		return unsupportedPhase(w, p)
	}
	return nil
}

// expectation computes responsibilities for the local rows, keeps them in
// worker memory, and accumulates soft counts, weighted sums and the
// log-likelihood. Rows are hard-assigned to their most likely component.
func (m *mixture) expectation(w *Worker) {
	acc := w.accumulator(m.k, false)
	n := w.NRows()
	if len(w.resp) != n*m.k {
		w.resp = make([]float64, n*m.k)
	}
	if len(w.nk) != m.k {
		w.nk = make([]float64, m.k)
	}
	clear(w.nk)

	diff := make([]float64, m.dim)
	dv := mat.NewVecDense(m.dim, diff)
	logp := make([]float64, m.k)
	assignments := w.c.assignments
	for i := 0; i < n; i++ {
		v := w.Row(i)
		best := 0
		for j := 0; j < m.k; j++ {
			mu := m.means.Centroid(j)
			for d := range diff {
				diff[d] = v[d] - mu[d]
			}
			maha := mat.Inner(dv, m.prec[j], dv)
			logp[j] = m.logWeights[j] - 0.5*(float64(m.dim)*log2Pi+m.logDet[j]+maha)
			if logp[j] > logp[best] {
				best = j
			}
		}
		lse := logSumExp(logp)
		resp := w.resp[i*m.k : (i+1)*m.k]
		for j := range resp {
			r := math.Exp(logp[j] - lse)
			resp[j] = r
			w.nk[j] += r
			acc.AddWeighted(j, r, v)
		}
		acc.Objective += lse

		row := w.rows.Start + i
		if id := core.ClusterID(best); assignments[row] != id {
			assignments[row] = id
			acc.Changed++
		}
		acc.Counts[best]++
	}
}

// scatter accumulates responsibility-weighted outer products around the
// updated means.
func (m *mixture) scatter(w *Worker) {
	if len(w.scatter) != m.k {
		w.scatter = make([]*mat.SymDense, m.k)
		for j := range w.scatter {
			w.scatter[j] = mat.NewSymDense(m.dim, nil)
		}
	}
	for _, s := range w.scatter {
		s.Zero()
	}
	diff := make([]float64, m.dim)
	dv := mat.NewVecDense(m.dim, diff)
	for i := 0; i < w.NRows(); i++ {
		v := w.Row(i)
		resp := w.resp[i*m.k : (i+1)*m.k]
		for j, r := range resp {
			if r == 0 {
				continue
			}
			mu := m.means.Centroid(j)
			for d := range diff {
				diff[d] = v[d] - mu[d]
			}
			w.scatter[j].SymRankOne(w.scatter[j], r, dv)
		}
	}
}

func logSumExp(x []float64) float64 {
	hi := math.Inf(-1)
	for _, v := range x {
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(hi, 0) {
		return hi
	}
	var s float64
	for _, v := range x {
		s += math.Exp(v - hi)
	}
	return hi + math.Log(s)
}

func (m *mixture) Result(c *Coordinator, iters int, converged bool) *core.RunRecord {
	rec := c.newRecord(m.k, iters, converged)
	rec.Counts = make([]int64, m.k)
	for _, id := range rec.Assignments {
		if id != core.InvalidClusterID {
			rec.Counts[id]++
		}
	}
	rec.Centroids = m.means.Snapshot()
	rec.Objective = m.loglik

	mix := &core.Mixture{
		Weights:            append([]float64(nil), m.weights...),
		Covariances:        make([][]float64, m.k),
		LogLikelihood:      m.loglik,
		SingularComponents: m.singular,
	}
	for j, cov := range m.covs {
		dense := make([]float64, m.dim*m.dim)
		for a := 0; a < m.dim; a++ {
			for b := 0; b < m.dim; b++ {
				dense[a*m.dim+b] = cov.At(a, b)
			}
		}
		mix.Covariances[j] = dense
	}
	rec.Mixture = mix
	return rec
}
