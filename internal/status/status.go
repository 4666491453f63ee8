// Package status provides a thread-safe status tracker for the prox-alert daemon.
// It is read by HTTP handlers and by the lifecycle telemetry.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/prox-alert/internal/echo"
	"github.com/sweeney/prox-alert/internal/monitor"
	"github.com/sweeney/prox-alert/internal/ranging"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing cmd-level helpers from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PeriodMs      int64
	PulseUs       int64
	EchoTimeoutMs int64
	HeartbeatMs   int64
	TickHz        uint32
	Bands         string
	Broker        string
	HTTPPort      string
	Diag          string
}

// Counters are the pipeline counters sampled on every tick.
type Counters struct {
	Capture       echo.Stats
	Monitor       monitor.Stats
	ActuatorState string
	Wakes         uint64
	TriggerCycles uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Band            int // -1 until the first measurement
	Command         ranging.Command
	Distance        float64
	LastMeasurement time.Time
	LastTimeout     time.Time
	Counters        Counters
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Measured reports whether any pulse has been classified yet.
func (s Snapshot) Measured() bool {
	return s.Command != nil
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Band:      -1,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Observe folds a measurement task event into the snapshot.
func (t *Tracker) Observe(e monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Kind {
	case monitor.EventMeasurement, monitor.EventRangeChange:
		t.snap.Band = e.Band
		t.snap.Command = e.Command
		t.snap.Distance = e.Distance
		t.snap.LastMeasurement = e.Timestamp
	case monitor.EventTimeout:
		t.snap.LastTimeout = e.Timestamp
	}
}

// Update sets the pipeline counters.
// Called from runLoop on every tick.
func (t *Tracker) Update(c Counters) {
	t.mu.Lock()
	t.snap.Counters = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
