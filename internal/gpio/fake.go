package gpio

import "sync"

// FakeEdgeInput is a test double for an edge-triggered input. Edges are
// injected with Edge; the registered handler runs synchronously on the
// caller's goroutine, as an interrupt would preempt it.
type FakeEdgeInput struct {
	mu       sync.Mutex
	level    Level
	pending  uint64
	mask     uint64
	handler  func()
	cleared  int
	closed   bool
	levelErr error
}

// NewFakeEdgeInput creates a low input whose flag is bit in the register.
func NewFakeEdgeInput(bit uint) *FakeEdgeInput {
	return &FakeEdgeInput{mask: uint64(1) << (bit % 64)}
}

// Edge sets the level, latches this line's flag and runs the handler.
func (f *FakeEdgeInput) Edge(l Level) {
	f.mu.Lock()
	f.level = l
	f.pending |= f.mask
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// Interrupt latches flags for other lines on the same port and runs the
// handler without touching this line.
func (f *FakeEdgeInput) Interrupt(others uint64) {
	f.mu.Lock()
	f.pending |= others &^ f.mask
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// SetLevel changes the level without raising an interrupt.
func (f *FakeEdgeInput) SetLevel(l Level) {
	f.mu.Lock()
	f.level = l
	f.mu.Unlock()
}

// SetLevelError makes Level fail with err.
func (f *FakeEdgeInput) SetLevelError(err error) {
	f.mu.Lock()
	f.levelErr = err
	f.mu.Unlock()
}

// Level returns the scripted level.
func (f *FakeEdgeInput) Level() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, f.levelErr
}

// Pending returns the flag register.
func (f *FakeEdgeInput) Pending() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Mask returns this line's flag bit.
func (f *FakeEdgeInput) Mask() uint64 {
	return f.mask
}

// ClearPending clears this line's flag and counts the call.
func (f *FakeEdgeInput) ClearPending() {
	f.mu.Lock()
	f.pending &^= f.mask
	f.cleared++
	f.mu.Unlock()
}

// Cleared returns how many times ClearPending was called.
func (f *FakeEdgeInput) Cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// Watch registers the handler.
func (f *FakeEdgeInput) Watch(handler func()) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

// Close marks the input as closed.
func (f *FakeEdgeInput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeEdgeInput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu      sync.Mutex
	level   Level
	history []Level
	closed  bool
	setErr  error
}

// NewFakeOutput creates an output at the given level.
func NewFakeOutput(initial Level) *FakeOutput {
	return &FakeOutput{level: initial}
}

// High drives the output high.
func (f *FakeOutput) High() error { return f.set(High) }

// Low drives the output low.
func (f *FakeOutput) Low() error { return f.set(Low) }

// Toggle inverts the output.
func (f *FakeOutput) Toggle() error {
	f.mu.Lock()
	l := f.level
	f.mu.Unlock()
	return f.set(l ^ 1)
}

func (f *FakeOutput) set(l Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.level = l
	f.history = append(f.history, l)
	return nil
}

// SetError makes every write fail with err (nil restores normal behaviour).
func (f *FakeOutput) SetError(err error) {
	f.mu.Lock()
	f.setErr = err
	f.mu.Unlock()
}

// Level returns the last written level.
func (f *FakeOutput) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// History returns a copy of every level written.
func (f *FakeOutput) History() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.history...)
}

// Rises counts low-to-high transitions in the history.
func (f *FakeOutput) Rises() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := Low
	for _, l := range f.history {
		if prev == Low && l == High {
			n++
		}
		prev = l
	}
	return n
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
