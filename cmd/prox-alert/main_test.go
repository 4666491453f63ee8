package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/prox-alert/internal/echo"
	"github.com/sweeney/prox-alert/internal/gpio"
	"github.com/sweeney/prox-alert/internal/monitor"
	"github.com/sweeney/prox-alert/internal/mqtt"
	"github.com/sweeney/prox-alert/internal/ranging"
	"github.com/sweeney/prox-alert/internal/status"
	"github.com/sweeney/prox-alert/internal/timer"
	"github.com/sweeney/prox-alert/internal/trigger"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" {
		t.Errorf("expected empty Type and IP, got %+v", info)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// recorder collects diagnostic lines.
type recorder struct {
	lines []string
}

func (r *recorder) Printf(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

type loopRun struct {
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	diag    *recorder
	counts  status.Counters
}

func newLoopRun() *loopRun {
	return &loopRun{
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
		diag:    &recorder{},
	}
}

// run drives runLoop with the given events, then nTicks ticks, then the
// signal. Channels are unbuffered so every input is consumed in order.
func (r *loopRun) run(t *testing.T, events []monitor.Event, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	evCh := make(chan monitor.Event)
	tick := make(chan time.Time)
	sig := make(chan os.Signal)
	sample := func() status.Counters { return r.counts }

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(evCh, r.pub, r.pub, r.tracker, sample, r.diag, heartbeat, clock, tick, sig, nil)
	}()

	for _, e := range events {
		evCh <- e
	}
	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func measurement(kind monitor.EventKind, cm float64, band, prev int, cmd ranging.Command) monitor.Event {
	return monitor.Event{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		Kind:      kind,
		Distance:  cm,
		Band:      band,
		Previous:  prev,
		Command:   cmd,
	}
}

var clockStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRunLoopRangeChangePublished(t *testing.T) {
	r := newLoopRun()
	events := []monitor.Event{
		measurement(monitor.EventRangeChange, 5, 0, -1, ranging.Steady{Color: ranging.Red}),
		measurement(monitor.EventMeasurement, 6, 0, 0, ranging.Steady{Color: ranging.Red}),
		measurement(monitor.EventRangeChange, 12, 1, 0, ranging.Blink{Color: ranging.Red, HalfPeriod: 200 * time.Millisecond}),
	}

	if err := r.run(t, events, 0, fakeClock(clockStart, time.Second), 0, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 2 {
		t.Fatalf("expected 2 range events, got %d", len(r.pub.Events))
	}
	if r.pub.Events[1].Band != 1 || r.pub.Events[1].Previous != 0 {
		t.Errorf("unexpected second event: %+v", r.pub.Events[1])
	}
	if len(r.diag.lines) != 3 {
		t.Fatalf("expected a diagnostic line per measurement, got %v", r.diag.lines)
	}
	if r.diag.lines[2] != "Measured distance = 12.000000 cm" {
		t.Errorf("unexpected diagnostic line: %q", r.diag.lines[2])
	}

	snap := r.tracker.Snapshot()
	if snap.Band != 1 || snap.Distance != 12 {
		t.Errorf("tracker not updated: band %d distance %v", snap.Band, snap.Distance)
	}
}

func TestRunLoopTimeoutAndRejectedNotPublished(t *testing.T) {
	r := newLoopRun()
	events := []monitor.Event{
		{Kind: monitor.EventTimeout, Band: -1, Previous: -1},
		{Kind: monitor.EventRejected, Ticks: 9, Err: ranging.ErrDistance},
	}

	if err := r.run(t, events, 0, fakeClock(clockStart, time.Second), 0, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 0 {
		t.Errorf("expected no range events, got %d", len(r.pub.Events))
	}
	if len(r.diag.lines) != 0 {
		t.Errorf("expected no diagnostic lines, got %v", r.diag.lines)
	}
	if r.tracker.Snapshot().Measured() {
		t.Error("timeouts must not count as measurements")
	}
}

func TestRunLoopTickUpdatesTracker(t *testing.T) {
	r := newLoopRun()
	r.pub.Connected = true
	r.counts = status.Counters{
		Capture:       echo.Stats{Captures: 4},
		Monitor:       monitor.Stats{Measurements: 4, Changes: 1},
		ActuatorState: "idle",
		Wakes:         1,
		TriggerCycles: 5,
	}

	if err := r.run(t, nil, 0, fakeClock(clockStart, time.Second), 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := r.tracker.Snapshot()
	if snap.Counters.TriggerCycles != 5 || snap.Counters.Capture.Captures != 4 {
		t.Errorf("counters not copied: %+v", snap.Counters)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: start (t0), ticks at +5m, +10m, +15m, +20m.
	// The 15-minute heartbeat fires once, on the third tick.
	r := newLoopRun()
	step := 5 * time.Minute

	if err := r.run(t, nil, 15*time.Minute, fakeClock(clockStart, step), 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for _, se := range r.pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			if !se.Timestamp.Equal(clockStart.Add(15 * time.Minute)) {
				t.Errorf("heartbeat timestamp: got %v", se.Timestamp)
			}
			if se.RawPayload == nil {
				t.Error("HEARTBEAT event missing status payload")
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	r := newLoopRun()

	if err := r.run(t, nil, 0, fakeClock(clockStart, time.Hour), 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.SystemEvents) != 1 || r.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected only SHUTDOWN, got %+v", r.pub.SystemEvents)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "associated")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	r := newLoopRun()
	if err := r.run(t, nil, time.Minute, fakeClock(clockStart, time.Minute), 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var hb *mqtt.SystemEvent
	for i := range r.pub.SystemEvents {
		if r.pub.SystemEvents[i].Event == "HEARTBEAT" {
			hb = &r.pub.SystemEvents[i]
			break
		}
	}
	if hb == nil {
		t.Fatal("expected a HEARTBEAT system event")
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &parsed); err != nil {
		t.Fatalf("invalid heartbeat payload: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	n := parsed.Status.Network
	if n == nil {
		t.Fatal("HEARTBEAT payload missing network info")
	}
	if n.IP != "192.168.1.42" || n.SSID != "HomeNet" || n.WifiStatus != "associated" {
		t.Errorf("unexpected network info: %+v", n)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	r := newLoopRun()
	r.pub.PublishError = errors.New("broker unavailable")
	events := []monitor.Event{
		measurement(monitor.EventRangeChange, 5, 0, -1, ranging.Steady{Color: ranging.Red}),
		measurement(monitor.EventRangeChange, 30, 2, 0, ranging.Blink{Color: ranging.Red, HalfPeriod: 300 * time.Millisecond}),
	}

	if err := r.run(t, events, 0, fakeClock(clockStart, time.Second), 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(r.pub.Events))
	}
	if r.tracker.Snapshot().Band != 2 {
		t.Error("tracker should follow events even when publishing fails")
	}
	found := false
	for _, se := range r.pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopShutdown(t *testing.T) {
	for _, tc := range []struct {
		signal os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	} {
		t.Run(tc.reason, func(t *testing.T) {
			r := newLoopRun()
			if err := r.run(t, nil, 0, fakeClock(clockStart, time.Second), 0, tc.signal); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if len(r.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(r.pub.SystemEvents))
			}
			se := r.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tc.reason {
				t.Errorf("expected reason %s, got %q", tc.reason, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}

			var parsed status.StatusJSON
			if err := json.Unmarshal(se.RawPayload, &parsed); err != nil {
				t.Fatalf("invalid shutdown payload: %v", err)
			}
			if parsed.Status.Reason != tc.reason {
				t.Errorf("payload reason: got %q, want %s", parsed.Status.Reason, tc.reason)
			}
		})
	}
}

func TestRunLoopPipelineStopped(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	done := make(chan struct{})
	close(done)

	err := runLoop(nil, pub, pub, nil, nil, &recorder{}, 0, fakeClock(clockStart, time.Second), nil, nil, done)
	if err == nil {
		t.Fatal("expected error when the pipeline stops")
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("expected no system events, got %d", len(pub.SystemEvents))
	}
}

// --- single measurement ---

func measureRig(t *testing.T, trig *gpio.FakeOutput) (*trigger.Generator, *echo.Capture, *ranging.Classifier, *gpio.FakeEdgeInput, *timer.FakeCounter) {
	t.Helper()
	gen, err := trigger.New(trig, trigger.Config{
		PulseWidth: 10 * time.Microsecond,
		Recovery:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("trigger.New: %v", err)
	}
	in := gpio.NewFakeEdgeInput(24)
	counter := timer.NewFakeCounter(timer.DefaultFrequency, 32)
	capture := echo.New(in, timer.NewPulseTimer(counter))
	capture.Start()
	cl, err := ranging.NewClassifier(ranging.DefaultTable(), ranging.Converter{
		Frequency:         timer.DefaultFrequency,
		MicrosecondsPerCm: ranging.DefaultMicrosecondsPerCm,
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return gen, capture, cl, in, counter
}

func TestMeasureOnce(t *testing.T) {
	gen, capture, cl, in, counter := measureRig(t, gpio.NewFakeOutput(gpio.Low))

	// 58 us per cm: a 2320-tick echo is 40 cm.
	in.Edge(gpio.High)
	counter.Advance(2320)
	in.Edge(gpio.Low)

	d, err := measureOnce(context.Background(), gen, capture, cl, time.Second)
	if err != nil {
		t.Fatalf("measureOnce: %v", err)
	}
	if d.Distance != 40 {
		t.Errorf("distance: got %v, want 40", d.Distance)
	}
	if d.Command != (ranging.Blink{Color: ranging.Red, HalfPeriod: 300 * time.Millisecond}) {
		t.Errorf("command: got %v", d.Command)
	}
}

func TestMeasureOnceNoEcho(t *testing.T) {
	gen, capture, cl, in, _ := measureRig(t, gpio.NewFakeOutput(gpio.Low))
	in.Edge(gpio.High) // echo never falls

	_, err := measureOnce(context.Background(), gen, capture, cl, 20*time.Millisecond)
	if !errors.Is(err, errNoEcho) {
		t.Fatalf("expected errNoEcho, got %v", err)
	}
	if capture.State() != echo.AwaitingRise {
		t.Errorf("capture should be reset, got %s", capture.State())
	}
}

func TestMeasureOnceTriggerFault(t *testing.T) {
	trig := gpio.NewFakeOutput(gpio.Low)
	trig.SetError(errors.New("line busy"))
	gen, capture, cl, _, _ := measureRig(t, trig)

	_, err := measureOnce(context.Background(), gen, capture, cl, time.Second)
	if err == nil {
		t.Fatal("expected trigger error")
	}
	if errors.Is(err, errNoEcho) {
		t.Fatalf("trigger fault reported as missing echo: %v", err)
	}
	if !strings.Contains(err.Error(), "line busy") {
		t.Errorf("error should carry the gpio fault, got %v", err)
	}
}
