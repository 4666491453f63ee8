// Package ranging converts echo pulse widths to distances and maps them to
// LED commands through an ordered table of contiguous distance bands.
// This package has no hardware or scheduling dependencies.
package ranging

import (
	"fmt"
	"time"
)

// Color identifies one LED output.
type Color string

const (
	Red   Color = "red"
	Green Color = "green"
	Blue  Color = "blue"
)

// Colors lists every supported color in output order.
var Colors = []Color{Red, Green, Blue}

// ParseColor parses a color name.
func ParseColor(s string) (Color, error) {
	for _, c := range Colors {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown color %q", s)
}

// Command is what the actuator should do: either Steady or Blink.
type Command interface {
	fmt.Stringer
	command()
}

// Steady keeps one LED on.
type Steady struct {
	Color Color
}

// Blink toggles one LED, holding each level for HalfPeriod.
type Blink struct {
	Color      Color
	HalfPeriod time.Duration
}

func (Steady) command() {}
func (Blink) command()  {}

func (s Steady) String() string { return string(s.Color) + " steady" }

func (b Blink) String() string {
	return fmt.Sprintf("%s blink %v", b.Color, b.HalfPeriod)
}

// ColorOf returns the LED a command drives.
func ColorOf(cmd Command) Color {
	switch c := cmd.(type) {
	case Steady:
		return c.Color
	case Blink:
		return c.Color
	}
	return ""
}

// HalfPeriodOf returns the blink half period, or 0 for steady commands.
func HalfPeriodOf(cmd Command) time.Duration {
	if b, ok := cmd.(Blink); ok {
		return b.HalfPeriod
	}
	return 0
}

// Decision is the result of classifying one distance.
type Decision struct {
	Distance float64
	Band     int
	Previous int // -1 before the first classification
	Command  Command
	Changed  bool
}
