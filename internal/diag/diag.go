// Package diag writes human-readable diagnostic lines to a serial console
// or any other writer. Diagnostics are for observation only.
package diag

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/tarm/serial"
)

// Writer writes one formatted diagnostic line.
type Writer interface {
	Printf(format string, args ...any)
}

// Line writes CRLF-terminated lines, as a serial terminal expects.
type Line struct {
	mu     sync.Mutex
	w      io.Writer
	failed bool
}

// New returns a Line writing to w.
func New(w io.Writer) *Line {
	return &Line{w: w}
}

// Printf formats and writes one line. A write failure is logged once and
// otherwise ignored.
func (l *Line) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.w, format+"\r\n", args...); err != nil {
		if !l.failed {
			log.Printf("diag: write failed: %v", err)
			l.failed = true
		}
		return
	}
	l.failed = false
}

// Nop discards every line.
type Nop struct{}

// Printf does nothing.
func (Nop) Printf(string, ...any) {}

// Close does nothing.
func (Nop) Close() error { return nil }

// Open resolves a diagnostic target: "" disables output, "-" writes to
// stdout, anything else is opened as a serial device at baud.
func Open(target string, baud int) (Writer, io.Closer, error) {
	switch target {
	case "":
		return Nop{}, Nop{}, nil
	case "-":
		return New(os.Stdout), Nop{}, nil
	}
	port, err := serial.OpenPort(&serial.Config{Name: target, Baud: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial %s: %w", target, err)
	}
	return New(port), port, nil
}
