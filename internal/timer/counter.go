package timer

import (
	"sync/atomic"
	"time"
)

// DefaultFrequency is a 1 MHz tick: one tick per microsecond of echo.
const DefaultFrequency = 1000000

// EdgeCounter is a Counter on CLOCK_MONOTONIC, the clock gpiocdev stamps
// edge events with. While an edge is latched, Count returns the edge's
// kernel timestamp instead of the current time, so a handler reading the
// counter sees when the edge happened rather than when it was scheduled.
type EdgeCounter struct {
	now    func() time.Duration
	period time.Duration
	freq   uint32
	bits   uint
	edge   atomic.Int64 // latched timestamp in ns, or -1
}

// NewEdgeCounter returns a 32-bit counter ticking at freq Hz.
// freq must divide one second into at least one nanosecond.
func NewEdgeCounter(freq uint32) *EdgeCounter {
	return newEdgeCounter(freq, monotonicNow)
}

func newEdgeCounter(freq uint32, now func() time.Duration) *EdgeCounter {
	if freq == 0 || freq > uint32(time.Second) {
		freq = DefaultFrequency
	}
	c := &EdgeCounter{
		now:    now,
		period: time.Second / time.Duration(freq),
		freq:   freq,
		bits:   32,
	}
	c.edge.Store(-1)
	return c
}

// Latch pins Count to the edge timestamp ts until Unlatch. Readers on
// other goroutines see ts too, which is never later than the current time.
func (c *EdgeCounter) Latch(ts time.Duration) {
	if ts < 0 {
		ts = 0
	}
	c.edge.Store(int64(ts))
}

// Unlatch returns Count to the current time.
func (c *EdgeCounter) Unlatch() {
	c.edge.Store(-1)
}

// Count returns the latched edge time, or the current time, in ticks modulo
// 2^32.
func (c *EdgeCounter) Count() uint32 {
	if e := c.edge.Load(); e >= 0 {
		return uint32(time.Duration(e) / c.period)
	}
	return uint32(c.now() / c.period)
}

// Frequency returns the tick rate in Hz.
func (c *EdgeCounter) Frequency() uint32 { return c.freq }

// Bits returns the counter width.
func (c *EdgeCounter) Bits() uint { return c.bits }

// FakeCounter is a test double whose value only moves when told to.
type FakeCounter struct {
	value atomic.Uint32
	freq  uint32
	bits  uint
}

// NewFakeCounter creates a FakeCounter with the given frequency and width.
func NewFakeCounter(freq uint32, bits uint) *FakeCounter {
	return &FakeCounter{freq: freq, bits: bits}
}

// Count returns the current value, masked to the counter width.
func (c *FakeCounter) Count() uint32 {
	return c.value.Load() & counterMask(c.bits)
}

// Frequency returns the configured tick rate.
func (c *FakeCounter) Frequency() uint32 { return c.freq }

// Bits returns the configured width.
func (c *FakeCounter) Bits() uint { return c.bits }

// Set sets the raw counter value.
func (c *FakeCounter) Set(v uint32) {
	c.value.Store(v)
}

// Advance moves the counter forward by n ticks.
func (c *FakeCounter) Advance(n uint32) {
	c.value.Add(n)
}
