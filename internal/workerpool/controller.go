// Package workerpool tracks the population of disk worker goroutines. The
// controller never starts or stops workers itself; each worker's main loop
// reports its own lifecycle transitions and consults ShouldExit while idle.
//
// Worker protocol:
//
//	ThreadStarted -> { work ... ThreadIdle -> wait -> ThreadActive } -> ThreadExited
//
// A worker must not call ThreadIdle twice without an intervening ThreadActive;
// the controller keeps the idle count explicit so the accounting cannot drift.
package workerpool

import "sync"

// Controller holds the pool counters behind one mutex. All operations are
// pure bookkeeping and cannot fail; misuse of the worker protocol panics.
type Controller struct {
	mu           sync.Mutex
	max          int
	current      int
	idle         int
	exitRequests int
}

// NewController creates a controller with the given thread ceiling.
func NewController(maxThreads int) *Controller {
	if maxThreads < 0 {
		maxThreads = 0
	}

	return &Controller{max: maxThreads}
}

// SetMaxThreads sets the ceiling on concurrently running workers. It does not
// stop anything directly: when the ceiling drops below the population the
// excess becomes pending exit requests and idle workers self-terminate, one
// per affirmative ShouldExit. Raising the ceiling cancels pending requests.
func (c *Controller) SetMaxThreads(n int) {
	if n < 0 {
		n = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.max = n

	if c.current > c.max {
		c.exitRequests = c.current - c.max
	} else {
		c.exitRequests = 0
	}
}

// MaxThreads returns the current ceiling.
func (c *Controller) MaxThreads() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.max
}

// NumThreads returns the count of registered workers, idle ones included.
func (c *Controller) NumThreads() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// NumIdle returns how many registered workers are currently idle.
func (c *Controller) NumIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.idle
}

// ThreadStarted registers a new worker with the pool.
func (c *Controller) ThreadStarted() {
	c.mu.Lock()
	c.current++
	c.mu.Unlock()
}

// ThreadIdle is called by a worker that has no work and is about to wait.
func (c *Controller) ThreadIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle++
	if c.idle > c.current {
		panic("workerpool: idle count exceeds thread count")
	}
}

// ThreadActive is called by an idle worker that picked up work again.
func (c *Controller) ThreadActive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle--
	if c.idle < 0 {
		panic("workerpool: ThreadActive without matching ThreadIdle")
	}
}

// ThreadExited deregisters an idle worker as its final controller call.
func (c *Controller) ThreadExited() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle--
	c.current--

	if c.idle < 0 || c.current < 0 {
		panic("workerpool: ThreadExited without matching registration")
	}
}

// ShouldExit is called by an idle worker to decide whether to terminate
// rather than keep waiting. A true return consumes exactly one pending exit
// slot, so only the necessary number of workers terminate, not every idle
// worker at once. The caller must follow up with ThreadExited.
func (c *Controller) ShouldExit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exitRequests > 0 && c.current > c.max {
		c.exitRequests--
		return true
	}

	return false
}
