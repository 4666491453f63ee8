// Package monitor runs the measurement task: it waits for captured echo
// pulses, classifies them into distance bands and wakes the actuator only
// when the band changes. Observability consumers receive Events; nothing
// they do feeds back into the loop.
package monitor

import (
	"time"

	"github.com/sweeney/prox-alert/internal/ranging"
	"github.com/sweeney/prox-alert/internal/timer"
)

// EventKind classifies monitor events.
type EventKind string

const (
	EventMeasurement EventKind = "MEASUREMENT"
	EventRangeChange EventKind = "RANGE_CHANGE"
	EventTimeout     EventKind = "ECHO_TIMEOUT"
	EventRejected    EventKind = "REJECTED"
)

// Event describes one outcome of the measurement task.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Ticks     timer.Ticks
	Distance  float64 // centimetres
	Band      int
	Previous  int
	Command   ranging.Command
	Err       error
}

// Stats counts measurement task outcomes since startup.
type Stats struct {
	Measurements uint64
	Changes      uint64
	Timeouts     uint64
	Rejected     uint64
	Dropped      uint64 // events not delivered because the consumer lagged
}
