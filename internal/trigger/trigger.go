// Package trigger generates the periodic ranging pulse on the sensor's
// trigger line.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/prox-alert/internal/gpio"
)

// HC-SR04 timing: at least 10us of trigger, and a 60ms measurement cycle.
const (
	DefaultPulseWidth = 10 * time.Microsecond
	DefaultRecovery   = 60 * time.Millisecond
)

// Config sets the trigger timing.
type Config struct {
	PulseWidth time.Duration // how long the trigger is held high
	Recovery   time.Duration // idle time after the pulse, before the next one
	MaxEcho    time.Duration // worst-case echo duration; Recovery must exceed it
}

// Generator pulses the trigger line with a fixed period. Triggers never
// overlap an echo because Recovery is checked against MaxEcho up front.
type Generator struct {
	out    gpio.Output
	cfg    Config
	sleep  func(context.Context, time.Duration) error
	before func()
	cycles atomic.Uint64
}

// New validates cfg and returns a generator driving out.
func New(out gpio.Output, cfg Config) (*Generator, error) {
	if cfg.PulseWidth <= 0 {
		return nil, fmt.Errorf("trigger pulse width %v must be positive", cfg.PulseWidth)
	}
	if cfg.Recovery <= 0 {
		return nil, fmt.Errorf("trigger recovery %v must be positive", cfg.Recovery)
	}
	if cfg.Recovery <= cfg.MaxEcho {
		return nil, fmt.Errorf("trigger recovery %v must exceed the echo timeout %v", cfg.Recovery, cfg.MaxEcho)
	}
	return &Generator{out: out, cfg: cfg, sleep: sleepContext}, nil
}

// Period returns the time between successive triggers.
func (g *Generator) Period() time.Duration {
	return g.cfg.PulseWidth + g.cfg.Recovery
}

// Cycles returns the number of completed trigger pulses.
func (g *Generator) Cycles() uint64 {
	return g.cycles.Load()
}

// Run triggers until ctx is cancelled. Output errors are logged and the
// cycle is retried after the recovery interval.
func (g *Generator) Run(ctx context.Context) error {
	for {
		if err := g.Cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				g.out.Low()
				return nil
			}
			log.Printf("trigger: %v", err)
			if err := g.sleep(ctx, g.cfg.Recovery); err != nil {
				g.out.Low()
				return nil
			}
		}
	}
}

// BeforePulse registers f to run at the start of every cycle, before the
// trigger is asserted. Since Recovery exceeds MaxEcho, an echo still high
// at that point is overdue and f can abandon it. Call before Run.
func (g *Generator) BeforePulse(f func()) {
	g.before = f
}

// Cycle emits one trigger pulse and waits out the recovery interval.
func (g *Generator) Cycle(ctx context.Context) error {
	if g.before != nil {
		g.before()
	}
	if err := g.out.High(); err != nil {
		return fmt.Errorf("assert trigger: %w", err)
	}
	pulseErr := g.sleep(ctx, g.cfg.PulseWidth)
	if err := g.out.Low(); err != nil {
		return fmt.Errorf("release trigger: %w", err)
	}
	if pulseErr != nil {
		return pulseErr
	}
	g.cycles.Add(1)
	return g.sleep(ctx, g.cfg.Recovery)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
