//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip hands out lines from a Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *RealChip) Close() error {
	return c.chip.Close()
}

// RealEdgeInput is an input line with kernel edge detection on both edges.
// Edge events arrive on gpiocdev's event goroutine, which plays the role of
// the interrupt context.
type RealEdgeInput struct {
	line    *gpiocdev.Line
	offset  int
	level   atomic.Int32
	handler atomic.Pointer[func()]
	clock   atomic.Pointer[EdgeClock]

	mu      sync.Mutex
	pending uint64
}

// EdgeInput requests offset as an input with pull-down and both-edge events.
func (c *RealChip) EdgeInput(offset int) (*RealEdgeInput, error) {
	in := &RealEdgeInput{offset: offset}
	line, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithMonotonicEventClock,
		gpiocdev.WithEventHandler(in.onEvent))
	if err != nil {
		return nil, fmt.Errorf("request echo pin %d: %w", offset, err)
	}
	in.line = line
	v, err := line.Value()
	if err != nil {
		line.Close()
		return nil, fmt.Errorf("read echo pin %d: %w", offset, err)
	}
	in.level.Store(int32(v))
	return in, nil
}

func (in *RealEdgeInput) onEvent(evt gpiocdev.LineEvent) {
	// The event carries the level the edge settled on; a direct read here
	// could already see the next edge.
	if evt.Type == gpiocdev.LineEventRisingEdge {
		in.level.Store(int32(High))
	} else {
		in.level.Store(int32(Low))
	}
	in.mu.Lock()
	in.pending |= in.Mask()
	in.mu.Unlock()

	var clock EdgeClock
	if c := in.clock.Load(); c != nil {
		clock = *c
	}
	var handler func()
	if h := in.handler.Load(); h != nil {
		handler = *h
	}
	dispatch(clock, evt.Timestamp, handler)
}

// SetClock latches clock to each event's kernel timestamp while the handler
// runs. Call before Watch.
func (in *RealEdgeInput) SetClock(clock EdgeClock) {
	in.clock.Store(&clock)
}

// Level returns the level of the most recent edge.
func (in *RealEdgeInput) Level() (Level, error) {
	return Level(in.level.Load()), nil
}

// Pending returns the emulated flag register.
func (in *RealEdgeInput) Pending() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pending
}

// Mask returns this line's flag bit.
func (in *RealEdgeInput) Mask() uint64 {
	return uint64(1) << (uint(in.offset) % 64)
}

// ClearPending clears this line's flag bit.
func (in *RealEdgeInput) ClearPending() {
	in.mu.Lock()
	in.pending &^= in.Mask()
	in.mu.Unlock()
}

// Watch registers the edge handler.
func (in *RealEdgeInput) Watch(handler func()) {
	in.handler.Store(&handler)
}

// Close reconfigures the line to the boot default (input, pull-down) and
// releases it.
func (in *RealEdgeInput) Close() error {
	in.handler.Store(nil)
	return closeLine(in.line, "echo", in.offset)
}

// RealOutput drives an output line.
type RealOutput struct {
	mu     sync.Mutex
	line   *gpiocdev.Line
	offset int
	value  int
}

// Output requests offset as an output, initially at level initial.
func (c *RealChip) Output(offset int, initial Level) (*RealOutput, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return &RealOutput{line: line, offset: offset, value: int(initial)}, nil
}

// High drives the line high.
func (o *RealOutput) High() error {
	return o.set(1)
}

// Low drives the line low.
func (o *RealOutput) Low() error {
	return o.set(0)
}

// Toggle inverts the last driven level.
func (o *RealOutput) Toggle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setLocked(o.value ^ 1)
}

func (o *RealOutput) set(v int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setLocked(v)
}

func (o *RealOutput) setLocked(v int) error {
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.offset, err)
	}
	o.value = v
	return nil
}

// Close reconfigures the line to the boot default and releases it.
func (o *RealOutput) Close() error {
	return closeLine(o.line, "output", o.offset)
}

// closeLine reconfigures a line to match Raspberry Pi boot defaults (input
// with pull-down) before closing it, so nothing is left driven after exit.
func closeLine(line *gpiocdev.Line, name string, offset int) error {
	if line == nil {
		return nil
	}
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s pin %d: %w", name, offset, err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s pin %d: %w", name, offset, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
