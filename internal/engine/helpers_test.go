package engine

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/dataset"
	"github.com/23skdu/nclust/internal/numa"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOptions(k int) Options {
	o := DefaultOptions()
	o.K = k
	o.MaxIters = 50
	o.NThreads = 3
	o.Pin = false
	o.Topology = numa.SingleNode()
	o.Logger = zerolog.Nop()
	return o
}

func mustMatrix(t *testing.T, rows [][]float64) *dataset.Matrix {
	t.Helper()
	m, err := dataset.FromRows(rows)
	require.NoError(t, err)
	return m
}

// blobs returns n integer-valued points around each center, labelled by
// blob index. Integer coordinates keep partial sums exact regardless of
// how rows are split across workers.
func blobs(seed int64, n int, centers ...[]float64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	var rows [][]float64
	var labels []int
	for b, c := range centers {
		for i := 0; i < n; i++ {
			row := make([]float64, len(c))
			for j := range c {
				row[j] = c[j] + float64(r.Intn(7)-3)
			}
			rows = append(rows, row)
			labels = append(labels, b)
		}
	}
	return rows, labels
}

// gaussianBlobs returns n normally distributed points around each center.
func gaussianBlobs(seed int64, n int, sd float64, centers ...[]float64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	var rows [][]float64
	var labels []int
	for b, c := range centers {
		for i := 0; i < n; i++ {
			row := make([]float64, len(c))
			for j := range c {
				row[j] = c[j] + r.NormFloat64()*sd
			}
			rows = append(rows, row)
			labels = append(labels, b)
		}
	}
	return rows, labels
}

func run(t *testing.T, src dataset.Source, opts Options, centroids []float64) (*core.RunRecord, *Coordinator) {
	t.Helper()
	c, err := New(src, opts)
	require.NoError(t, err)
	rec, err := c.Run(centroids)
	require.NoError(t, err)
	return rec, c
}

// requirePure checks that rows sharing a cluster share a label.
func requirePure(t *testing.T, rec *core.RunRecord, labels []int) {
	t.Helper()
	owner := make(map[core.ClusterID]int)
	for row, id := range rec.Assignments {
		if l, ok := owner[id]; ok {
			require.Equal(t, l, labels[row], "cluster %d mixes labels", id)
		} else {
			owner[id] = labels[row]
		}
	}
}

func requireValid(t *testing.T, rec *core.RunRecord) {
	t.Helper()
	require.Len(t, rec.Assignments, rec.NRow)
	require.Len(t, rec.Counts, rec.K)
	require.Len(t, rec.Centroids, rec.K*rec.NCol)
	var total int64
	counts := make([]int64, rec.K)
	for _, id := range rec.Assignments {
		require.Less(t, int(id), rec.K)
		counts[id]++
	}
	for c, n := range rec.Counts {
		total += n
		require.Equal(t, counts[c], n, "count of cluster %d", c)
	}
	require.Equal(t, int64(rec.NRow), total)
}
