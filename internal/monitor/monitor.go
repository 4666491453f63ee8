package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/prox-alert/internal/echo"
	"github.com/sweeney/prox-alert/internal/ranging"
	"github.com/sweeney/prox-alert/internal/timer"
)

// DefaultEchoTimeout bounds how long the echo line may stay high. HC-SR04
// modules report no obstacle with a ~38ms pulse.
const DefaultEchoTimeout = 50 * time.Millisecond

const eventBuffer = 32

// Commander receives a new command whenever the band changes.
type Commander interface {
	Publish(cmd ranging.Command)
}

// Config configures the measurement task.
type Config struct {
	EchoTimeout time.Duration
	Now         func() time.Time
}

// Monitor is the measurement task. The classifier is owned by the task:
// only Process mutates it.
type Monitor struct {
	capture    *echo.Capture
	classifier *ranging.Classifier
	act        Commander
	timeout    time.Duration
	limit      timer.Ticks
	now        func() time.Time
	events     chan Event

	mu    sync.Mutex
	stats Stats
}

// New creates a measurement task. freq is the pulse timer frequency used to
// convert the echo timeout into ticks.
func New(c *echo.Capture, cl *ranging.Classifier, act Commander, freq uint32, cfg Config) (*Monitor, error) {
	if cfg.EchoTimeout <= 0 {
		return nil, errors.New("echo timeout must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{
		capture:    c,
		classifier: cl,
		act:        act,
		timeout:    cfg.EchoTimeout,
		limit:      timer.FromDuration(cfg.EchoTimeout, freq),
		now:        cfg.Now,
		events:     make(chan Event, eventBuffer),
	}, nil
}

// Events delivers measurement outcomes. Events are dropped, not queued,
// when the consumer falls behind.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Run waits for captured pulses until ctx is cancelled. The ticker abandons
// pulses that outlive the echo timeout while no trigger is running; the
// trigger generator calls Expire itself before every pulse.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ticks := <-m.capture.Samples():
			m.Process(ticks)
		case <-ticker.C:
			m.Expire()
		}
	}
}

// Process classifies one captured pulse and wakes the actuator if the band
// changed.
func (m *Monitor) Process(ticks timer.Ticks) ranging.Decision {
	now := m.now()
	d, err := m.classifier.ClassifyTicks(ticks)
	if err != nil {
		m.count(func(s *Stats) { s.Rejected++ })
		m.emit(Event{Timestamp: now, Kind: EventRejected, Ticks: ticks, Err: err})
		return d
	}

	kind := EventMeasurement
	if d.Changed {
		m.act.Publish(d.Command)
		kind = EventRangeChange
	}
	m.count(func(s *Stats) {
		s.Measurements++
		if d.Changed {
			s.Changes++
		}
	})
	m.emit(Event{
		Timestamp: now,
		Kind:      kind,
		Ticks:     ticks,
		Distance:  d.Distance,
		Band:      d.Band,
		Previous:  d.Previous,
		Command:   d.Command,
	})
	return d
}

// Expire abandons a pulse that has outlived the echo timeout. It reports
// whether one was abandoned.
func (m *Monitor) Expire() bool {
	if !m.capture.Expire(m.limit) {
		return false
	}
	m.count(func(s *Stats) { s.Timeouts++ })
	m.emit(Event{Timestamp: m.now(), Kind: EventTimeout, Band: -1, Previous: -1})
	return true
}

func (m *Monitor) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}

func (m *Monitor) emit(e Event) {
	select {
	case m.events <- e:
	default:
		m.count(func(s *Stats) { s.Dropped++ })
	}
}
