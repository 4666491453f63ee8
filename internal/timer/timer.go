// Package timer provides the pulse timer used to measure echo pulse widths.
// It wraps a free-running counter and reports elapsed ticks between Start
// and StopAndRead, modulo the counter width.
package timer

import (
	"errors"
	"time"
)

// Ticks is a count of counter periods.
type Ticks uint32

// Counter is a free-running hardware counter.
type Counter interface {
	// Count returns the current counter value. It wraps modulo 2^Bits().
	Count() uint32

	// Frequency returns the tick rate in Hz.
	Frequency() uint32

	// Bits returns the counter width.
	Bits() uint
}

var (
	// ErrNotRunning is returned by StopAndRead when Start was not called.
	ErrNotRunning = errors.New("timer: not running")

	// ErrOverrange is returned when a reading is too close to the wrap period
	// to be trusted.
	ErrOverrange = errors.New("timer: reading exceeds plausible range")
)

// PulseTimer measures a single interval on a free-running Counter.
// Not safe for concurrent use; the owner serialises access.
type PulseTimer struct {
	counter Counter
	mask    uint32
	max     Ticks
	start   uint32
	running bool
}

// NewPulseTimer creates a stopped timer over c. Readings above half the
// counter's wrap period are rejected as over-range.
func NewPulseTimer(c Counter) *PulseTimer {
	mask := counterMask(c.Bits())
	return &PulseTimer{
		counter: c,
		mask:    mask,
		max:     Ticks(mask / 2),
	}
}

func counterMask(bits uint) uint32 {
	if bits == 0 || bits >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<bits - 1
}

// SetMaxTicks sets the plausibility limit. Values above the wrap period
// are clamped to it.
func (p *PulseTimer) SetMaxTicks(max Ticks) {
	if uint32(max) > p.mask {
		max = Ticks(p.mask)
	}
	p.max = max
}

// MaxTicks returns the plausibility limit.
func (p *PulseTimer) MaxTicks() Ticks {
	return p.max
}

// Start resets the interval and begins counting.
func (p *PulseTimer) Start() {
	p.start = p.counter.Count() & p.mask
	p.running = true
}

// StopAndRead stops counting and returns the ticks since Start.
func (p *PulseTimer) StopAndRead() (Ticks, error) {
	if !p.running {
		return 0, ErrNotRunning
	}
	elapsed := p.elapsed()
	p.running = false
	if elapsed > p.max {
		return elapsed, ErrOverrange
	}
	return elapsed, nil
}

// Stop discards the interval in progress.
func (p *PulseTimer) Stop() {
	p.running = false
}

// Running reports whether an interval is being measured.
func (p *PulseTimer) Running() bool {
	return p.running
}

// Elapsed returns the ticks counted so far, or 0 when stopped.
func (p *PulseTimer) Elapsed() Ticks {
	if !p.running {
		return 0
	}
	return p.elapsed()
}

func (p *PulseTimer) elapsed() Ticks {
	now := p.counter.Count() & p.mask
	return Ticks((now - p.start) & p.mask)
}

// Frequency returns the underlying counter frequency in Hz.
func (p *PulseTimer) Frequency() uint32 {
	return p.counter.Frequency()
}

// ToDuration converts ticks at freq Hz to a duration.
func ToDuration(t Ticks, freq uint32) time.Duration {
	if freq == 0 {
		return 0
	}
	return time.Duration(uint64(t) * uint64(time.Second) / uint64(freq))
}

// FromDuration converts a duration to ticks at freq Hz, saturating at the
// largest representable count.
func FromDuration(d time.Duration, freq uint32) Ticks {
	if d <= 0 {
		return 0
	}
	n := uint64(d) / uint64(time.Second) * uint64(freq)
	n += (uint64(d) % uint64(time.Second)) * uint64(freq) / uint64(time.Second)
	if n > uint64(^uint32(0)) {
		return Ticks(^uint32(0))
	}
	return Ticks(n)
}
