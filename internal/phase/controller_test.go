package phase

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

// startPool runs n minimal workers that record every phase they execute.
func startPool(c *Controller, n int, run func(id int, p Phase) error) *sync.WaitGroup {
	var wg sync.WaitGroup
	for id := 0; id < n; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			var seen uint64
			for {
				p, gen := c.Await(seen)
				seen = gen
				if p == Exit {
					c.Done(nil)
					return
				}
				c.Done(run(id, p))
			}
		}(id)
	}
	return &wg
}

func TestController_LockStep(t *testing.T) {
	defer goleak.VerifyNone(t)

	const workers = 8
	const rounds = 50
	c := NewController(workers)

	var inFlight atomic.Int32
	var maxRound atomic.Int32
	counts := make([]int, workers)
	var round atomic.Int32

	wg := startPool(c, workers, func(id int, p Phase) error {
		inFlight.Add(1)
		defer inFlight.Add(-1)
		// every worker must observe the round the coordinator set before publishing
		r := round.Load()
		if r > maxRound.Load() {
			maxRound.Store(r)
		}
		counts[id]++
		return nil
	})

	for r := 1; r <= rounds; r++ {
		round.Store(int32(r))
		require.NoError(t, c.Run(Assign))
		assert.Equal(t, 0, c.Pending())
		assert.Equal(t, int32(0), inFlight.Load())
	}
	require.NoError(t, c.Run(Exit))
	wg.Wait()

	for id, n := range counts {
		assert.Equal(t, rounds, n, "worker %d", id)
	}
	assert.Equal(t, int32(rounds), maxRound.Load())
	assert.True(t, c.Closed())
}

func TestController_WorkerErrorsSurface(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewController(3)
	wg := startPool(c, 3, func(id int, p Phase) error {
		if id == 1 && p == Test {
			return nerrors.NewThreadStateError("worker.run", "boom")
		}
		return nil
	})

	require.NoError(t, c.Run(Assign))
	err := c.Run(Test)
	require.Error(t, err)
	assert.True(t, nerrors.IsThreadState(err))

	// errors are consumed by AwaitAll
	require.NoError(t, c.Run(Assign))
	require.NoError(t, c.Run(Exit))
	wg.Wait()
}

func TestController_PublishWhilePending(t *testing.T) {
	c := NewController(1)
	require.NoError(t, c.Publish(Assign))
	assert.Equal(t, 1, c.Pending())

	err := c.Publish(MeanUpdate)
	require.Error(t, err)
	assert.True(t, nerrors.IsThreadState(err))

	c.Done(nil)
	require.NoError(t, c.AwaitAll())
	p, gen := c.Current()
	assert.Equal(t, Assign, p)
	assert.Equal(t, uint64(1), gen)
}

func TestController_RejectsInvalidPhases(t *testing.T) {
	c := NewController(0)
	assert.Error(t, c.Publish(Wait))
	assert.Error(t, c.Publish(Phase(99)))

	// an empty pool completes immediately
	require.NoError(t, c.Run(Assign))
	require.NoError(t, c.Run(Exit))

	err := c.Publish(Assign)
	require.Error(t, err)
	var se *nerrors.StructuredError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "pool already exited", se.Message)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "assign", Assign.String())
	assert.Equal(t, "split_em", SplitEM.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
	assert.True(t, Exit.Known())
	assert.False(t, Phase(-1).Known())
}
