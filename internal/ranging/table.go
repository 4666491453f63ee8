package ranging

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrTable wraps every band table configuration error.
var ErrTable = errors.New("invalid band table")

// Band is the half-open distance interval [Lower, Upper) in centimetres.
type Band struct {
	Lower   float64
	Upper   float64
	Command Command
}

// Contains reports whether d lies in the band.
func (b Band) Contains(d float64) bool {
	return d >= b.Lower && d < b.Upper
}

// Table is an ordered list of contiguous bands covering [0, +Inf).
type Table []Band

// DefaultTable returns the proximity alert table: red closest, blue in
// the middle distances, green beyond two metres.
func DefaultTable() Table {
	ms := time.Millisecond
	return Table{
		{0, 10, Steady{Red}},
		{10, 25, Blink{Red, 200 * ms}},
		{25, 50, Blink{Red, 300 * ms}},
		{50, 75, Blink{Red, 400 * ms}},
		{75, 100, Blink{Red, 500 * ms}},
		{100, 120, Blink{Blue, 100 * ms}},
		{120, 140, Blink{Blue, 200 * ms}},
		{140, 160, Blink{Blue, 300 * ms}},
		{160, 180, Blink{Blue, 400 * ms}},
		{180, 200, Blink{Blue, 500 * ms}},
		{200, math.Inf(1), Blink{Green, 1000 * ms}},
	}
}

// Validate checks that the table starts at zero, is strictly ordered,
// contiguous, open-ended, and that every command is well formed.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no bands", ErrTable)
	}
	if t[0].Lower != 0 {
		return fmt.Errorf("%w: first band starts at %g, want 0", ErrTable, t[0].Lower)
	}
	for i, b := range t {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
			return fmt.Errorf("%w: band %d has NaN bound", ErrTable, i)
		}
		if !(b.Lower < b.Upper) {
			return fmt.Errorf("%w: band %d is empty [%g, %g)", ErrTable, i, b.Lower, b.Upper)
		}
		if i+1 < len(t) && b.Upper != t[i+1].Lower {
			return fmt.Errorf("%w: band %d ends at %g but band %d starts at %g", ErrTable, i, b.Upper, i+1, t[i+1].Lower)
		}
		if err := validateCommand(b.Command); err != nil {
			return fmt.Errorf("%w: band %d: %v", ErrTable, i, err)
		}
	}
	if last := t[len(t)-1]; !math.IsInf(last.Upper, 1) {
		return fmt.Errorf("%w: last band ends at %g, want +Inf", ErrTable, last.Upper)
	}
	return nil
}

func validateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case Steady:
		_, err := ParseColor(string(c.Color))
		return err
	case Blink:
		if _, err := ParseColor(string(c.Color)); err != nil {
			return err
		}
		if c.HalfPeriod <= 0 {
			return fmt.Errorf("blink half period %v must be positive", c.HalfPeriod)
		}
		return nil
	case nil:
		return errors.New("missing command")
	}
	return fmt.Errorf("unsupported command %T", cmd)
}

// Lookup returns the index of the band containing d. The table must be
// valid and d non-negative.
func (t Table) Lookup(d float64) (int, bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].Lower > d }) - 1
	if i < 0 || !t[i].Contains(d) {
		return -1, false
	}
	return i, true
}

// ParseTable parses a comma-separated list of "lower=color[/halfperiod]"
// entries, e.g. "0=red,10=red/200ms,200=green/1s". Each band ends where the
// next begins and the last band is open-ended. The result is validated.
func ParseTable(s string) (Table, error) {
	var t Table
	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		lowerStr, cmdStr, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("%w: entry %d %q: want lower=color[/halfperiod]", ErrTable, i, field)
		}
		lower, err := strconv.ParseFloat(strings.TrimSpace(lowerStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d lower bound: %v", ErrTable, i, err)
		}
		cmd, err := parseCommand(strings.TrimSpace(cmdStr))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrTable, i, err)
		}
		if n := len(t); n > 0 {
			t[n-1].Upper = lower
		}
		t = append(t, Band{Lower: lower, Upper: math.Inf(1), Command: cmd})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseCommand(s string) (Command, error) {
	colorStr, periodStr, blink := strings.Cut(s, "/")
	c, err := ParseColor(colorStr)
	if err != nil {
		return nil, err
	}
	if !blink {
		return Steady{Color: c}, nil
	}
	d, err := time.ParseDuration(periodStr)
	if err != nil {
		return nil, fmt.Errorf("half period: %v", err)
	}
	return Blink{Color: c, HalfPeriod: d}, nil
}

// String formats the table in the form accepted by ParseTable.
func (t Table) String() string {
	parts := make([]string, len(t))
	for i, b := range t {
		entry := strconv.FormatFloat(b.Lower, 'g', -1, 64) + "=" + string(ColorOf(b.Command))
		if hp := HalfPeriodOf(b.Command); hp > 0 {
			entry += "/" + hp.String()
		}
		parts[i] = entry
	}
	return strings.Join(parts, ",")
}
