package ranging

import (
	"errors"
	"fmt"
	"math"

	"github.com/sweeney/prox-alert/internal/timer"
)

// DefaultMicrosecondsPerCm is the HC-SR04 datasheet round-trip time per
// centimetre at room temperature.
const DefaultMicrosecondsPerCm = 58.0

// ErrDistance is returned for distances that cannot be classified.
var ErrDistance = errors.New("invalid distance")

// Converter turns counter ticks into centimetres.
type Converter struct {
	Frequency         uint32  // counter tick rate in Hz
	MicrosecondsPerCm float64 // round-trip echo time per centimetre
}

// Distance returns the distance in centimetres for a pulse of t ticks.
func (c Converter) Distance(t timer.Ticks) float64 {
	us := float64(t) * 1e6 / float64(c.Frequency)
	return us / c.MicrosecondsPerCm
}

// Ticks returns the pulse width for a distance, rounded to the nearest tick.
func (c Converter) Ticks(cm float64) timer.Ticks {
	return timer.Ticks(math.Round(cm * c.MicrosecondsPerCm * float64(c.Frequency) / 1e6))
}

func (c Converter) validate() error {
	if c.Frequency == 0 {
		return errors.New("converter frequency must be positive")
	}
	if !(c.MicrosecondsPerCm > 0) {
		return fmt.Errorf("microseconds per cm %g must be positive", c.MicrosecondsPerCm)
	}
	return nil
}

// Classifier maps distances to bands, staying in the current band for as
// long as the distance remains inside it. Not safe for concurrent use.
type Classifier struct {
	table   Table
	conv    Converter
	current int
}

// NewClassifier validates table and returns a classifier with no current
// band.
func NewClassifier(table Table, conv Converter) (*Classifier, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if err := conv.validate(); err != nil {
		return nil, err
	}
	return &Classifier{table: table, conv: conv, current: -1}, nil
}

// Classify returns the band for d. Changed is true only when the band
// differs from the previous classification, including the first one.
func (c *Classifier) Classify(d float64) (Decision, error) {
	if math.IsNaN(d) || d < 0 {
		return Decision{}, fmt.Errorf("%w: %g", ErrDistance, d)
	}

	if c.current >= 0 && c.table[c.current].Contains(d) {
		return Decision{
			Distance: d,
			Band:     c.current,
			Previous: c.current,
			Command:  c.table[c.current].Command,
		}, nil
	}

	i, ok := c.table.Lookup(d)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %g not covered by table", ErrDistance, d)
	}
	prev := c.current
	c.current = i
	return Decision{
		Distance: d,
		Band:     i,
		Previous: prev,
		Command:  c.table[i].Command,
		Changed:  true,
	}, nil
}

// ClassifyTicks converts t to a distance and classifies it.
func (c *Classifier) ClassifyTicks(t timer.Ticks) (Decision, error) {
	return c.Classify(c.conv.Distance(t))
}

// Current returns the current band index, or false before the first
// classification.
func (c *Classifier) Current() (int, bool) {
	return c.current, c.current >= 0
}

// Table returns the classifier's band table.
func (c *Classifier) Table() Table {
	return c.table
}

// Converter returns the tick to distance conversion in use.
func (c *Classifier) Converter() Converter {
	return c.conv
}
