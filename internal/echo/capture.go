// Package echo captures the width of the sensor's echo pulse. The capture
// handler runs in interrupt context on either edge of the echo line: it
// starts the pulse timer on the rising edge and latches the elapsed ticks on
// the falling edge, handing only the most recent reading to the consumer.
package echo

import (
	"sync"

	"github.com/sweeney/prox-alert/internal/gpio"
	"github.com/sweeney/prox-alert/internal/timer"
)

// State is the capture state machine's position.
type State int

const (
	AwaitingRise State = iota
	AwaitingFall
)

func (s State) String() string {
	if s == AwaitingFall {
		return "awaiting_fall"
	}
	return "awaiting_rise"
}

// Stats counts capture outcomes since startup.
type Stats struct {
	Captures   uint64 // completed pulses
	Spurious   uint64 // interrupts raised by another line
	Duplicates uint64 // edges repeating the current level
	Timeouts   uint64 // pulses abandoned by Expire
	Overrange  uint64 // pulses too long to trust
	Faults     uint64 // level read failures
}

// Capture is the edge capture handler for one echo line.
type Capture struct {
	in     gpio.EdgeInput
	latest chan timer.Ticks

	// mu brackets the read-modify-write of the fields below; it is the
	// critical section shared with the measurement task.
	mu    sync.Mutex
	timer *timer.PulseTimer
	state State
	last  timer.Ticks
	stats Stats
}

// New creates a capture handler for in, timing pulses with t. Call Start to
// register it for interrupts.
func New(in gpio.EdgeInput, t *timer.PulseTimer) *Capture {
	return &Capture{
		in:     in,
		timer:  t,
		latest: make(chan timer.Ticks, 1),
	}
}

// Start registers the handler on the echo line.
func (c *Capture) Start() {
	c.in.Watch(c.HandleInterrupt)
}

// HandleInterrupt processes one interrupt from the echo line's port.
func (c *Capture) HandleInterrupt() {
	if c.in.Pending()&c.in.Mask() == 0 {
		c.mu.Lock()
		c.stats.Spurious++
		c.mu.Unlock()
		return
	}
	defer c.in.ClearPending()

	level, err := c.in.Level()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.Faults++
		return
	}

	switch {
	case c.state == AwaitingRise && level == gpio.High:
		c.state = AwaitingFall
		c.timer.Start()

	case c.state == AwaitingFall && level == gpio.Low:
		c.state = AwaitingRise
		ticks, err := c.timer.StopAndRead()
		if err != nil {
			c.stats.Overrange++
			return
		}
		c.last = ticks
		c.stats.Captures++
		c.post(ticks)

	default:
		c.stats.Duplicates++
	}
}

// post stores ticks in the single-slot channel, replacing any unread value.
// Only the handler sends, so the second send cannot block.
func (c *Capture) post(ticks timer.Ticks) {
	select {
	case c.latest <- ticks:
		return
	default:
	}
	select {
	case <-c.latest:
	default:
	}
	select {
	case c.latest <- ticks:
	default:
	}
}

// Samples delivers completed pulse widths. Only the newest unread value is
// kept.
func (c *Capture) Samples() <-chan timer.Ticks {
	return c.latest
}

// Expire abandons a pulse that has been high for more than limit ticks,
// e.g. when no echo returns. It reports whether a pulse was abandoned.
func (c *Capture) Expire(limit timer.Ticks) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AwaitingFall || c.timer.Elapsed() <= limit {
		return false
	}
	c.timer.Stop()
	c.state = AwaitingRise
	c.stats.Timeouts++
	return true
}

// Reset returns the handler to AwaitingRise, discarding any pulse in
// progress.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.timer.Stop()
	c.state = AwaitingRise
	c.mu.Unlock()
}

// State returns the current state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns the most recent completed pulse width, or 0 before the
// first capture.
func (c *Capture) Last() timer.Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stats returns a copy of the counters.
func (c *Capture) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
