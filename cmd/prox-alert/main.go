// Command prox-alert measures distance with an ultrasonic echo sensor and
// shows the distance band on an RGB LED.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/prox-alert/internal/actuator"
	"github.com/sweeney/prox-alert/internal/diag"
	"github.com/sweeney/prox-alert/internal/echo"
	"github.com/sweeney/prox-alert/internal/gpio"
	"github.com/sweeney/prox-alert/internal/monitor"
	"github.com/sweeney/prox-alert/internal/mqtt"
	"github.com/sweeney/prox-alert/internal/ranging"
	"github.com/sweeney/prox-alert/internal/status"
	"github.com/sweeney/prox-alert/internal/timer"
	"github.com/sweeney/prox-alert/internal/trigger"
	"github.com/sweeney/prox-alert/internal/web"
)

// statusInterval is how often pipeline counters are copied into the tracker.
const statusInterval = time.Second

var errNoEcho = errors.New("no echo received")

type options struct {
	chip       string
	pinTrigger int
	pinEcho    int
	pinRed     int
	pinGreen   int
	pinBlue    int
	activeLow  bool

	period      time.Duration
	pulse       time.Duration
	echoTimeout time.Duration
	tickHz      uint
	usPerCm     float64
	bands       string

	broker    string
	heartbeat time.Duration
	httpAddr  string
	diag      string
	diagBaud  int
	measure   bool
}

func main() {
	var o options
	flag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO character device")
	flag.IntVar(&o.pinTrigger, "pin-trigger", gpio.DefaultPinTrigger, "BCM pin number for the sensor trigger")
	flag.IntVar(&o.pinEcho, "pin-echo", gpio.DefaultPinEcho, "BCM pin number for the sensor echo")
	flag.IntVar(&o.pinRed, "pin-red", gpio.DefaultPinRed, "BCM pin number for the red LED")
	flag.IntVar(&o.pinGreen, "pin-green", gpio.DefaultPinGreen, "BCM pin number for the green LED")
	flag.IntVar(&o.pinBlue, "pin-blue", gpio.DefaultPinBlue, "BCM pin number for the blue LED")
	flag.BoolVar(&o.activeLow, "active-low", false, "LEDs light when driven low (common anode)")
	flag.DurationVar(&o.period, "period", trigger.DefaultPulseWidth+trigger.DefaultRecovery, "Trigger period")
	flag.DurationVar(&o.pulse, "pulse", trigger.DefaultPulseWidth, "Trigger pulse width")
	flag.DurationVar(&o.echoTimeout, "echo-timeout", monitor.DefaultEchoTimeout, "Abandon echo pulses longer than this")
	flag.UintVar(&o.tickHz, "tick-hz", timer.DefaultFrequency, "Pulse timer frequency")
	flag.Float64Var(&o.usPerCm, "us-per-cm", ranging.DefaultMicrosecondsPerCm, "Echo microseconds per centimetre of distance")
	flag.StringVar(&o.bands, "bands", "", `Band table, e.g. "0=red,10=red/200ms,200=green/1s" (empty for the default)`)
	flag.StringVar(&o.broker, "broker", "tcp://localhost:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&o.diag, "diag", "", `Diagnostic output: serial device, "-" for stdout, empty to disable`)
	flag.IntVar(&o.diagBaud, "diag-baud", 115200, "Diagnostic serial baud rate")
	flag.BoolVar(&o.measure, "measure", false, "Take one measurement, print it and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	table := ranging.DefaultTable()
	if o.bands != "" {
		t, err := ranging.ParseTable(o.bands)
		if err != nil {
			return fmt.Errorf("parse bands: %w", err)
		}
		table = t
	}
	if o.period <= o.pulse {
		return fmt.Errorf("trigger period %v must exceed pulse width %v", o.period, o.pulse)
	}

	counter := timer.NewEdgeCounter(uint32(o.tickHz))
	freq := counter.Frequency()
	classifier, err := ranging.NewClassifier(table, ranging.Converter{Frequency: freq, MicrosecondsPerCm: o.usPerCm})
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}

	// Initialize GPIO
	chip, err := gpio.OpenChip(o.chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	trig, err := chip.Output(o.pinTrigger, gpio.Low)
	if err != nil {
		return fmt.Errorf("init trigger: %w", err)
	}
	defer trig.Close()

	off := gpio.Low
	if o.activeLow {
		off = gpio.High
	}
	leds := make(map[ranging.Color]gpio.Output, len(ranging.Colors))
	for color, pin := range map[ranging.Color]int{ranging.Red: o.pinRed, ranging.Green: o.pinGreen, ranging.Blue: o.pinBlue} {
		out, err := chip.Output(pin, off)
		if err != nil {
			return fmt.Errorf("init %s LED: %w", color, err)
		}
		defer out.Close()
		leds[color] = out
	}

	echoIn, err := chip.EdgeInput(o.pinEcho)
	if err != nil {
		return fmt.Errorf("init echo: %w", err)
	}
	defer echoIn.Close()
	echoIn.SetClock(counter)

	pt := timer.NewPulseTimer(counter)
	pt.SetMaxTicks(timer.FromDuration(o.echoTimeout, freq))
	capture := echo.New(echoIn, pt)
	capture.Start()

	gen, err := trigger.New(trig, trigger.Config{
		PulseWidth: o.pulse,
		Recovery:   o.period - o.pulse,
		MaxEcho:    o.echoTimeout,
	})
	if err != nil {
		return fmt.Errorf("init trigger: %w", err)
	}

	// Single measurement mode
	if o.measure {
		d, err := measureOnce(context.Background(), gen, capture, classifier, o.period+o.echoTimeout)
		if err != nil {
			return fmt.Errorf("measure: %w", err)
		}
		fmt.Printf("distance: %.1f cm, band %d, LED %s\n", d.Distance, d.Band, d.Command)
		return nil
	}

	act, err := actuator.New(leds, o.activeLow)
	if err != nil {
		return fmt.Errorf("init actuator: %w", err)
	}
	mon, err := monitor.New(capture, classifier, act, freq, monitor.Config{EchoTimeout: o.echoTimeout})
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	gen.BeforePulse(func() { mon.Expire() })

	out, closer, err := diag.Open(o.diag, o.diagBaud)
	if err != nil {
		return fmt.Errorf("init diag: %w", err)
	}
	defer closer.Close()

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if o.broker != "" {
		p := mqtt.NewRealPublisher(o.broker)
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PeriodMs:      o.period.Milliseconds(),
		PulseUs:       o.pulse.Microseconds(),
		EchoTimeoutMs: o.echoTimeout.Milliseconds(),
		HeartbeatMs:   o.heartbeat.Milliseconds(),
		TickHz:        freq,
		Bands:         table.String(),
		Broker:        o.broker,
		HTTPPort:      o.httpAddr,
		Diag:          o.diag,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return act.Run(gctx) })
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return gen.Run(gctx) })

	log.Printf("started: period=%v pulse=%v echo-timeout=%v tick=%dHz bands=%s broker=%s heartbeat=%v",
		gen.Period(), o.pulse, o.echoTimeout, freq, table, o.broker, o.heartbeat)

	sample := func() status.Counters {
		return status.Counters{
			Capture:       capture.Stats(),
			Monitor:       mon.Stats(),
			ActuatorState: act.State().String(),
			Wakes:         act.Wakes(),
			TriggerCycles: gen.Cycles(),
		}
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(mon.Events(), publisher, mqttStatus, tracker, sample, out, o.heartbeat, time.Now, ticker.C, sigCh, gctx.Done())
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

// measureOnce fires one trigger pulse and classifies the echo that follows.
func measureOnce(ctx context.Context, gen *trigger.Generator, capture *echo.Capture, classifier *ranging.Classifier, wait time.Duration) (ranging.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	cycleErr := make(chan error, 1)
	go func() { cycleErr <- gen.Cycle(ctx) }()

	for {
		select {
		case ticks := <-capture.Samples():
			return classifier.ClassifyTicks(ticks)
		case err := <-cycleErr:
			if err != nil && ctx.Err() == nil {
				capture.Reset()
				return ranging.Decision{}, err
			}
			cycleErr = nil
		case <-ctx.Done():
			capture.Reset()
			return ranging.Decision{}, errNoEcho
		}
	}
}

func runLoop(events <-chan monitor.Event, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sample func() status.Counters, out diag.Writer, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, done <-chan struct{}) error {
	lastBeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refresh(tracker, sample, mqttStatus)
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-done:
			log.Printf("measurement pipeline stopped")
			return errors.New("measurement pipeline stopped")

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if tracker != nil {
				tracker.Observe(e)
			}
			switch e.Kind {
			case monitor.EventMeasurement:
				out.Printf("Measured distance = %f cm", e.Distance)
			case monitor.EventRangeChange:
				out.Printf("Measured distance = %f cm", e.Distance)
				log.Printf("range: band %d -> %d at %.1f cm (%s)", e.Previous, e.Band, e.Distance, e.Command)
				if err := publisher.Publish(e); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			case monitor.EventTimeout:
				log.Printf("echo timeout: pulse abandoned")
			case monitor.EventRejected:
				log.Printf("rejected reading of %d ticks: %v", e.Ticks, e.Err)
			}

		case <-tick:
			t := now()

			if heartbeat > 0 && t.Sub(lastBeat) >= heartbeat {
				lastBeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					refresh(tracker, sample, mqttStatus)
					snap := tracker.Snapshot()
					log.Printf("heartbeat: uptime=%v band=%d measurements=%d changes=%d timeouts=%d",
						snap.Uptime().Truncate(time.Second), snap.Band, snap.Counters.Monitor.Measurements,
						snap.Counters.Monitor.Changes, snap.Counters.Monitor.Timeouts)
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				refresh(tracker, sample, mqttStatus)
			}
		}
	}
}

func refresh(tracker *status.Tracker, sample func() status.Counters, mqttStatus mqtt.ConnectionStatus) {
	if sample != nil {
		tracker.Update(sample())
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
