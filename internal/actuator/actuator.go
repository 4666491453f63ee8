// Package actuator drives the status LED from the latest range command.
//
// The actuator goroutine is idle until woken. Each wake runs one actuation
// cycle for the newest command: steady commands light the LED and return
// to idle, blink commands toggle the LED every half period until the next
// wake. The blink loop checks for a wake between half periods, so a band
// change takes effect within one half period rather than after a full
// blink cycle.
package actuator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/prox-alert/internal/gpio"
	"github.com/sweeney/prox-alert/internal/ranging"
)

// State is the actuator task's state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Actuator owns one output per color; at most one is on at a time.
type Actuator struct {
	leds      map[ranging.Color]gpio.Output
	activeLow bool
	wake      *Signal
	cmd       atomic.Pointer[ranging.Command]
	state     atomic.Int32
	wakes     atomic.Uint64

	mu      sync.Mutex
	applied ranging.Command
}

// New creates an idle actuator. With activeLow the LEDs light when their
// line is driven low, as on common-anode RGB LEDs.
func New(leds map[ranging.Color]gpio.Output, activeLow bool) (*Actuator, error) {
	for _, c := range ranging.Colors {
		if leds[c] == nil {
			return nil, fmt.Errorf("no output for %s LED", c)
		}
	}
	return &Actuator{
		leds:      leds,
		activeLow: activeLow,
		wake:      NewSignal(),
	}, nil
}

// Publish stores cmd as the latest command and wakes the actuator.
// Only the newest command is kept.
func (a *Actuator) Publish(cmd ranging.Command) {
	a.cmd.Store(&cmd)
	a.wake.Post()
}

// State returns whether an actuation cycle is in progress.
func (a *Actuator) State() State {
	return State(a.state.Load())
}

// Wakes returns the number of actuation cycles started.
func (a *Actuator) Wakes() uint64 {
	return a.wakes.Load()
}

// Applied returns the command of the current or last cycle, nil before
// the first wake.
func (a *Actuator) Applied() ranging.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

// Run serves wakes until ctx is cancelled, then turns every LED off.
func (a *Actuator) Run(ctx context.Context) error {
	a.allOff()
	defer a.allOff()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.wake.C():
		}

		for {
			p := a.cmd.Load()
			if p == nil {
				break
			}
			a.wakes.Add(1)
			a.state.Store(int32(Running))
			rewoken := a.cycle(ctx, *p)
			a.state.Store(int32(Idle))
			if ctx.Err() != nil {
				return nil
			}
			if !rewoken {
				break
			}
		}
	}
}

// cycle performs one actuation for cmd. It reports whether it ended
// because of a new wake.
func (a *Actuator) cycle(ctx context.Context, cmd ranging.Command) bool {
	a.mu.Lock()
	a.applied = cmd
	a.mu.Unlock()

	color := ranging.ColorOf(cmd)
	a.exclusive(color)

	blink, ok := cmd.(ranging.Blink)
	if !ok {
		return false
	}

	t := time.NewTimer(blink.HalfPeriod)
	defer t.Stop()
	lit := true
	for {
		select {
		case <-ctx.Done():
			return false
		case <-a.wake.C():
			return true
		case <-t.C:
		}
		lit = !lit
		a.set(color, lit)
		t.Reset(blink.HalfPeriod)
	}
}

// exclusive turns every other LED off, then turns color on.
func (a *Actuator) exclusive(color ranging.Color) {
	for _, c := range ranging.Colors {
		if c != color {
			a.set(c, false)
		}
	}
	a.set(color, true)
}

func (a *Actuator) allOff() {
	for _, c := range ranging.Colors {
		a.set(c, false)
	}
}

func (a *Actuator) set(c ranging.Color, on bool) {
	out := a.leds[c]
	var err error
	if on != a.activeLow {
		err = out.High()
	} else {
		err = out.Low()
	}
	if err != nil {
		log.Printf("actuator: set %s LED: %v", c, err)
	}
}
