package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/prox-alert/internal/ranging"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Range         RangeJSON    `json:"range"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Actuator      ActuatorJSON `json:"actuator"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RangeJSON reports the latest classification.
type RangeJSON struct {
	Ready           bool    `json:"ready"`
	Band            int     `json:"band"`
	DistanceCm      float64 `json:"distance_cm"`
	Color           string  `json:"color"`
	Mode            string  `json:"mode"`
	HalfPeriodMs    int64   `json:"half_period_ms,omitempty"`
	LastMeasurement string  `json:"last_measurement,omitempty"`
	LastTimeout     string  `json:"last_timeout,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	TriggerCycles uint64 `json:"trigger_cycles"`
	Captures      uint64 `json:"captures"`
	Spurious      uint64 `json:"spurious"`
	Duplicates    uint64 `json:"duplicates"`
	Overrange     uint64 `json:"overrange"`
	Faults        uint64 `json:"faults"`
	Measurements  uint64 `json:"measurements"`
	Changes       uint64 `json:"range_changes"`
	Timeouts      uint64 `json:"echo_timeouts"`
	Rejected      uint64 `json:"rejected"`
	Dropped       uint64 `json:"dropped_events"`
}

// ActuatorJSON reports the LED task.
type ActuatorJSON struct {
	State string `json:"state"`
	Wakes uint64 `json:"wakes"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PeriodMs      int64  `json:"period_ms"`
	PulseUs       int64  `json:"pulse_us"`
	EchoTimeoutMs int64  `json:"echo_timeout_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	TickHz        uint32 `json:"tick_hz"`
	Bands         string `json:"bands"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
	Diag          string `json:"diag,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildRange(snap Snapshot) RangeJSON {
	r := RangeJSON{
		Ready:           snap.Measured(),
		Band:            snap.Band,
		Color:           "UNKNOWN",
		Mode:            "UNKNOWN",
		LastMeasurement: formatTime(snap.LastMeasurement),
		LastTimeout:     formatTime(snap.LastTimeout),
	}
	if snap.Command == nil {
		return r
	}
	r.DistanceCm = math.Round(snap.Distance*100) / 100
	r.Color = string(ranging.ColorOf(snap.Command))
	r.Mode = "steady"
	if hp := ranging.HalfPeriodOf(snap.Command); hp > 0 {
		r.Mode = "blink"
		r.HalfPeriodMs = hp.Milliseconds()
	}
	return r
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Counters
	state := c.ActuatorState
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		Range:         buildRange(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			TriggerCycles: c.TriggerCycles,
			Captures:      c.Capture.Captures,
			Spurious:      c.Capture.Spurious,
			Duplicates:    c.Capture.Duplicates,
			Overrange:     c.Capture.Overrange,
			Faults:        c.Capture.Faults,
			Measurements:  c.Monitor.Measurements,
			Changes:       c.Monitor.Changes,
			Timeouts:      c.Monitor.Timeouts,
			Rejected:      c.Monitor.Rejected,
			Dropped:       c.Monitor.Dropped,
		},
		Actuator: ActuatorJSON{State: state, Wakes: c.Wakes},
		Config: ConfigJSON{
			PeriodMs:      snap.Config.PeriodMs,
			PulseUs:       snap.Config.PulseUs,
			EchoTimeoutMs: snap.Config.EchoTimeoutMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			TickHz:        snap.Config.TickHz,
			Bands:         snap.Config.Bands,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
			Diag:          snap.Config.Diag,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
