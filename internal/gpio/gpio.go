// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Level is the logical level of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// EdgeInput is an input line that raises an interrupt on either edge.
type EdgeInput interface {
	// Level returns the current level of the line.
	Level() (Level, error)

	// Pending returns the port's sticky interrupt flag register. A port
	// may share one interrupt among several lines.
	Pending() uint64

	// Mask returns this line's bit in the flag register.
	Mask() uint64

	// ClearPending clears this line's interrupt flag.
	ClearPending()

	// Watch registers the interrupt handler. Only one handler is kept.
	Watch(handler func())

	// Close releases GPIO resources.
	Close() error
}

// EdgeClock receives the kernel timestamp of each edge, held for the
// duration of the handler call.
type EdgeClock interface {
	Latch(ts time.Duration)
	Unlatch()
}

// dispatch runs handler with clock latched to the edge time ts.
func dispatch(clock EdgeClock, ts time.Duration, handler func()) {
	if clock != nil {
		clock.Latch(ts)
		defer clock.Unlatch()
	}
	if handler != nil {
		handler()
	}
}

// Output is a digital output line.
type Output interface {
	High() error
	Low() error
	Toggle() error

	// Close releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24
	DefaultPinRed     = 17
	DefaultPinGreen   = 27
	DefaultPinBlue    = 22
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
