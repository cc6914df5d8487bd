package phase

import (
	"errors"
	"sync"
	"sync/atomic"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

// Controller is the coordinator-owned barrier. One mutex guards the
// published phase and its generation; wake is broadcast on publication and
// idle is signalled by the last worker to finish.
type Controller struct {
	workers int

	mu    sync.Mutex
	wake  *sync.Cond
	idle  *sync.Cond
	phase Phase
	gen   uint64
	// errs collects worker failures for the current phase.
	errs   []error
	closed bool

	pending atomic.Int32
}

// NewController returns a controller for a pool of n workers.
func NewController(n int) *Controller {
	c := &Controller{workers: n}
	c.wake = sync.NewCond(&c.mu)
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Workers returns the pool size the controller was built for.
func (c *Controller) Workers() int { return c.workers }

// Publish makes p the current phase and wakes every worker. It fails if the
// previous phase has not been fully consumed or Exit was already published.
func (c *Controller) Publish(p Phase) error {
	if p == Wait || !p.Known() {
		return nerrors.NewThreadStateError("phase.publish", "cannot publish "+p.String())
	}

	c.mu.Lock()
	if n := c.pending.Load(); n != 0 {
		c.mu.Unlock()
		return nerrors.NewThreadStateError("phase.publish", "previous phase still running").
			WithContext("pending", n).
			WithContext("phase", p.String())
	}
	if c.closed {
		c.mu.Unlock()
		return nerrors.NewThreadStateError("phase.publish", "pool already exited").
			WithContext("phase", p.String())
	}
	c.phase = p
	c.gen++
	c.pending.Store(int32(c.workers))
	if p == Exit {
		c.closed = true
	}
	c.mu.Unlock()

	c.wake.Broadcast()
	return nil
}

// Await blocks a worker until a generation newer than seen is published and
// returns that phase with its generation.
func (c *Controller) Await(seen uint64) (Phase, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.gen == seen {
		c.wake.Wait()
	}
	return c.phase, c.gen
}

// Done reports that one worker finished the current phase. A non-nil err is
// surfaced by the next AwaitAll.
func (c *Controller) Done(err error) {
	if err != nil {
		c.mu.Lock()
		c.errs = append(c.errs, err)
		c.mu.Unlock()
	}
	if c.pending.Add(-1) == 0 {
		c.mu.Lock()
		c.idle.Broadcast()
		c.mu.Unlock()
	}
}

// AwaitAll blocks the coordinator until every worker has called Done for
// the current phase and returns the joined worker errors.
func (c *Controller) AwaitAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending.Load() != 0 {
		c.idle.Wait()
	}
	err := errors.Join(c.errs...)
	c.errs = nil
	return err
}

// Run publishes p and waits for the pool to finish it.
func (c *Controller) Run(p Phase) error {
	if err := c.Publish(p); err != nil {
		return err
	}
	return c.AwaitAll()
}

// Pending returns the number of workers still executing the current phase.
func (c *Controller) Pending() int {
	return int(c.pending.Load())
}

// Current returns the last published phase and its generation.
func (c *Controller) Current() (Phase, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.gen
}

// Closed reports whether Exit has been published.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
