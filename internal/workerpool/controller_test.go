package workerpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NamanBalaji/tds/internal/workerpool"
)

func registerIdleWorkers(c *workerpool.Controller, n int) {
	for i := 0; i < n; i++ {
		c.ThreadStarted()
		c.ThreadIdle()
	}
}

func TestNewController(t *testing.T) {
	c := workerpool.NewController(4)

	assert.Equal(t, 4, c.MaxThreads())
	assert.Equal(t, 0, c.NumThreads())
	assert.Equal(t, 0, c.NumIdle())

	neg := workerpool.NewController(-1)
	assert.Equal(t, 0, neg.MaxThreads())
}

func TestThreadAccounting(t *testing.T) {
	c := workerpool.NewController(8)

	registerIdleWorkers(c, 3)
	assert.Equal(t, 3, c.NumThreads())
	assert.Equal(t, 3, c.NumIdle())

	c.ThreadActive()
	assert.Equal(t, 3, c.NumThreads())
	assert.Equal(t, 2, c.NumIdle())

	c.ThreadIdle()
	c.ThreadExited()
	assert.Equal(t, 2, c.NumThreads())
	assert.Equal(t, 2, c.NumIdle())
}

func TestShouldExitUnderCeiling(t *testing.T) {
	c := workerpool.NewController(4)
	registerIdleWorkers(c, 3)

	assert.False(t, c.ShouldExit(), "no exit while population is within the ceiling")
}

func TestShrinkConsumesExactSlots(t *testing.T) {
	const n, m = 5, 2

	c := workerpool.NewController(n)
	registerIdleWorkers(c, n)

	c.SetMaxThreads(m)
	assert.Equal(t, m, c.MaxThreads())

	exits := 0
	for i := 0; i < n; i++ {
		if c.ShouldExit() {
			exits++
		}
	}

	assert.Equal(t, n-m, exits, "exactly the excess workers may exit, no more")
}

func TestShrinkThenWorkersActuallyExit(t *testing.T) {
	c := workerpool.NewController(4)
	registerIdleWorkers(c, 4)

	c.SetMaxThreads(1)

	for c.ShouldExit() {
		c.ThreadExited()
	}

	assert.Equal(t, 1, c.NumThreads())
	assert.Equal(t, 1, c.NumIdle())
	assert.False(t, c.ShouldExit())
}

func TestRaisingCeilingCancelsPendingExits(t *testing.T) {
	c := workerpool.NewController(4)
	registerIdleWorkers(c, 4)

	c.SetMaxThreads(1)
	c.SetMaxThreads(8)

	assert.False(t, c.ShouldExit(), "raising the ceiling must cancel the shrink")
}

func TestProtocolViolationsPanic(t *testing.T) {
	assert.Panics(t, func() {
		c := workerpool.NewController(1)
		c.ThreadIdle() // idle without a started thread
	})

	assert.Panics(t, func() {
		c := workerpool.NewController(1)
		c.ThreadStarted()
		c.ThreadActive() // active without a matching idle
	})

	assert.Panics(t, func() {
		c := workerpool.NewController(1)
		c.ThreadExited() // exit without registration
	})
}
