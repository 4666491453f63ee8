package actuator

// Signal is a single-permit wake signal. Posting while a permit is already
// pending is a no-op, so a slow consumer sees one wake per burst.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a signal with no permit.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Post makes a permit available without blocking.
func (s *Signal) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that yields the permit.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}
