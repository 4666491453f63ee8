// Package mqtt publishes range telemetry to MQTT, with an abstraction for
// testing. Telemetry is observational: nothing received from the broker
// affects the measurement loop.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/prox-alert/internal/monitor"
	"github.com/sweeney/prox-alert/internal/ranging"
)

// Topic is the MQTT topic for range change events.
const Topic = "sensors/prox-alert/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/prox-alert/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a range event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event monitor.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Range RangePayload `json:"range"`
}

// RangePayload contains the range event details.
type RangePayload struct {
	Timestamp    string  `json:"timestamp"`
	Event        string  `json:"event"`
	DistanceCm   float64 `json:"distance_cm"`
	Band         int     `json:"band"`
	PreviousBand int     `json:"previous_band"`
	Color        string  `json:"color"`
	Mode         string  `json:"mode"`
	HalfPeriodMs int64   `json:"half_period_ms,omitempty"`
}

// FormatPayload creates the JSON payload for a range event.
func FormatPayload(event monitor.Event) ([]byte, error) {
	mode := "steady"
	if _, ok := event.Command.(ranging.Blink); ok {
		mode = "blink"
	}
	payload := Payload{
		Range: RangePayload{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Event:        string(event.Kind),
			DistanceCm:   math.Round(event.Distance*100) / 100,
			Band:         event.Band,
			PreviousBand: event.Previous,
			Color:        string(ranging.ColorOf(event.Command)),
			Mode:         mode,
			HalfPeriodMs: ranging.HalfPeriodOf(event.Command).Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// willPayload is registered with the broker as the last will, published if
// the connection drops without a clean disconnect.
func willPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	return data
}

// Discard is the Publisher used when no broker is configured.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(monitor.Event) error { return nil }

// PublishSystem drops the event.
func (Discard) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
