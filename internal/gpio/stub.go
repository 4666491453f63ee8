//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*RealChip, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *RealChip) Close() error { return nil }

// RealEdgeInput is not available on non-Linux platforms.
type RealEdgeInput struct{}

// EdgeInput returns an error on non-Linux platforms.
func (c *RealChip) EdgeInput(offset int) (*RealEdgeInput, error) {
	return nil, errUnsupported
}

func (in *RealEdgeInput) Level() (Level, error) { return Low, errUnsupported }
func (in *RealEdgeInput) Pending() uint64        { return 0 }
func (in *RealEdgeInput) Mask() uint64           { return 0 }
func (in *RealEdgeInput) ClearPending()          {}
func (in *RealEdgeInput) Watch(handler func())   {}
func (in *RealEdgeInput) Close() error           { return nil }

// SetClock is a no-op on non-Linux platforms.
func (in *RealEdgeInput) SetClock(clock EdgeClock) {}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// Output returns an error on non-Linux platforms.
func (c *RealChip) Output(offset int, initial Level) (*RealOutput, error) {
	return nil, errUnsupported
}

func (o *RealOutput) High() error   { return errUnsupported }
func (o *RealOutput) Low() error    { return errUnsupported }
func (o *RealOutput) Toggle() error { return errUnsupported }
func (o *RealOutput) Close() error  { return nil }
