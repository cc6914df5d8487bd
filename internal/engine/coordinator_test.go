package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/nclust/internal/core"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/phase"
)

func TestRun_ConfigurationErrors(t *testing.T) {
	rows, init := fourPoints(t)
	m := mustMatrix(t, rows)

	tests := []struct {
		name      string
		mutate    func(o *Options)
		centroids []float64
	}{
		{"zero k", func(o *Options) { o.K = 0 }, nil},
		{"k above rows", func(o *Options) { o.K = 5 }, nil},
		{"zero max iters", func(o *Options) { o.MaxIters = 0 }, nil},
		{"negative threads", func(o *Options) { o.NThreads = -1 }, nil},
		{"negative nodes", func(o *Options) { o.NNodes = -2 }, nil},
		{"bad tolerance", func(o *Options) { o.Tolerance = -0.5 }, nil},
		{"negative ridge", func(o *Options) { o.Regularization = -1 }, nil},
		{"unknown metric", func(o *Options) { o.Metric = "hamming" }, nil},
		{"unknown algorithm", func(o *Options) { o.Algorithm = "dbscan" }, nil},
		{"none without centroids", func(o *Options) { o.Init = core.InitNone }, nil},
		{"short centroid buffer", func(o *Options) {}, []float64{1, 2, 3}},
		{"xmeans random", func(o *Options) {
			o.Algorithm = core.AlgorithmXMeans
			o.Init = core.InitRandom
		}, nil},
		{"xmeans with centroids", func(o *Options) { o.Algorithm = core.AlgorithmXMeans }, init},
		{"gmm random", func(o *Options) {
			o.Algorithm = core.AlgorithmGaussianM
			o.Init = core.InitRandom
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(2)
			tt.mutate(&opts)
			c, err := New(m, opts)
			require.NoError(t, err)
			rec, err := c.Run(tt.centroids)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, nerrors.IsConfiguration(err), "got %v", err)
			assert.Nil(t, c.ctrl, "no worker may start")
		})
	}
}

func TestNew_NilSource(t *testing.T) {
	_, err := New(nil, testOptions(1))
	assert.True(t, nerrors.IsConfiguration(err))
}

func TestRun_OnlyOnce(t *testing.T) {
	rows, init := fourPoints(t)
	c, err := New(mustMatrix(t, rows), testOptions(2))
	require.NoError(t, err)
	_, err = c.Run(init)
	require.NoError(t, err)
	_, err = c.Run(init)
	assert.True(t, nerrors.IsThreadState(err))
}

func TestRun_CentroidsImplyNone(t *testing.T) {
	rows, init := fourPoints(t)
	opts := testOptions(2)
	opts.Init = core.InitForgy
	rec, c := run(t, mustMatrix(t, rows), opts, init)
	assert.Equal(t, core.InitNone, c.opts.Init)
	assert.Equal(t, []float64{0, 0.5}, rec.Centroid(0))
}

func TestRun_MoreThreadsThanRows(t *testing.T) {
	rows, init := fourPoints(t)
	opts := testOptions(2)
	opts.NThreads = 7
	opts.Verify = true
	rec, c := run(t, mustMatrix(t, rows), opts, init)
	assert.Len(t, c.workers, 7)
	assert.Equal(t, 0, c.workers[6].NRows())
	assert.Equal(t, []core.ClusterID{0, 0, 1, 1}, rec.Assignments)
}

// startPool configures c and runs ALLOC without entering the main loop.
func startPool(t *testing.T, c *Coordinator, centroids []float64) {
	t.Helper()
	c.used = true
	require.NoError(t, c.configure(centroids))
	c.start()
	require.NoError(t, c.runPhase(phase.Alloc))
}

func TestBarrier_WorkersIdleAfterEveryPhase(t *testing.T) {
	rows, init := fourPoints(t)
	opts := testOptions(2)
	opts.NThreads = 4
	c, err := New(mustMatrix(t, rows), opts)
	require.NoError(t, err)
	startPool(t, c, init)

	requireIdle := func(after string) {
		assert.Equal(t, 0, c.ctrl.Pending(), after)
		for _, w := range c.workers {
			assert.Equal(t, phase.Wait, w.State(), "worker %d after %s", w.id, after)
		}
	}
	requireIdle("alloc")
	for _, id := range c.assignments {
		assert.Equal(t, core.InvalidClusterID, id)
	}

	require.NoError(t, c.algo.Init(c, init))
	for i := 0; i < 3; i++ {
		require.NoError(t, c.runPhase(phase.Assign))
		requireIdle("assign")
		for _, id := range c.assignments {
			assert.Less(t, int(id), 2)
		}
		require.NoError(t, c.runPhase(phase.MeanUpdate))
		requireIdle("mean_update")
	}
	require.NoError(t, c.runPhase(phase.Test))
	requireIdle("test")
	require.NoError(t, c.stop())
	assert.True(t, c.ctrl.Closed())
}

func TestWorker_UnsupportedPhaseAbortsPhase(t *testing.T) {
	rows, init := fourPoints(t)
	c, err := New(mustMatrix(t, rows), testOptions(2))
	require.NoError(t, err)
	startPool(t, c, init)

	err = c.runPhase(phase.EStep)
	require.Error(t, err)
	assert.True(t, nerrors.IsThreadState(err))
	require.NoError(t, c.stop())
}

func TestWorker_ExecuteAfterExit(t *testing.T) {
	rows, init := fourPoints(t)
	c, err := New(mustMatrix(t, rows), testOptions(2))
	require.NoError(t, err)
	startPool(t, c, init)
	require.NoError(t, c.stop())

	w := c.workers[0]
	err = w.Execute(phase.Assign)
	require.Error(t, err)
	assert.True(t, nerrors.IsThreadState(err))

	fresh := newWorker(c, 99, 0, c.ranges[0])
	assert.True(t, nerrors.IsThreadState(fresh.Execute(phase.Wait)))
	assert.True(t, nerrors.IsThreadState(fresh.Execute(phase.Phase(42))))
}

func TestVerify_DetectsMismatch(t *testing.T) {
	rows, init := fourPoints(t)
	c, err := New(mustMatrix(t, rows), testOptions(2))
	require.NoError(t, err)
	startPool(t, c, init)

	c.workers[1].data[0] += 1
	err = c.verify()
	require.Error(t, err)
	assert.Equal(t, nerrors.ErrorTypeValidation, nerrors.TypeOf(err))
	require.NoError(t, c.stop())
}

func TestSampleD2_ZeroWeightsFallsBackToUniform(t *testing.T) {
	rows := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	opts := testOptions(2)
	opts.Init = core.InitPlusPlus
	rec, _ := run(t, mustMatrix(t, rows), opts, nil)
	requireValid(t, rec)
	assert.Equal(t, []float64{1, 1, 1, 1}, rec.Centroids)
}

func TestRandomCluster_Deterministic(t *testing.T) {
	seen := make(map[int]bool)
	for row := 0; row < 200; row++ {
		c := randomCluster(5, row, 4)
		assert.Equal(t, c, randomCluster(5, row, 4))
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, 4)
		seen[c] = true
	}
	assert.Len(t, seen, 4)
}
