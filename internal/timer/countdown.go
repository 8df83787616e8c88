// Package timer owns one client's countdown and keeps it converging
// with every other client in the room through the shared room
// document. Each client ticks independently; there is no authoritative
// ticking source anywhere.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown is a one-second interval countdown. It is the per-client
// engine: Start and Stop come either from the local user (via the
// Synchronizer) or from a remote client's state forcing ours to match.
type Countdown struct {
	clock clockwork.Clock

	mu        sync.Mutex
	remaining int
	active    bool
	stop      chan struct{}

	// finished fires once per run that reaches zero. Buffered so a
	// consumer that is momentarily away doesn't stall the tick loop.
	finished chan struct{}
}

func NewCountdown(seconds int, clock clockwork.Clock) *Countdown {
	return &Countdown{
		clock:     clock,
		remaining: seconds,
		finished:  make(chan struct{}, 1),
	}
}

// Start begins ticking. No-op when already running.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()
	go c.run(stop)
}

// Stop halts ticking, keeping the remaining time. No-op when stopped.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Reset stops the countdown and sets a new remaining time.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = seconds
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Finished signals each time a run counts down to zero.
func (c *Countdown) Finished() <-chan struct{} {
	return c.finished
}

func (c *Countdown) stopLocked() {
	if !c.active {
		return
	}
	c.active = false
	close(c.stop)
	c.stop = nil
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if !c.active {
				c.mu.Unlock()
				return
			}
			if c.remaining > 0 {
				c.remaining--
			}
			if c.remaining == 0 {
				c.active = false
				c.stop = nil
				c.mu.Unlock()
				select {
				case c.finished <- struct{}{}:
				default:
				}
				return
			}
			c.mu.Unlock()
		}
	}
}
