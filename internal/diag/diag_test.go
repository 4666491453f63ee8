package diag

import (
	"bytes"
	"errors"
	"testing"
)

type failWriter struct{ calls int }

func (f *failWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("port gone")
}

func TestLinePrintf(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Printf("Measured distance = %.2f cm", 12.5)
	l.Printf("range %d -> %d", 0, 1)

	want := "Measured distance = 12.50 cm\r\nrange 0 -> 1\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLineWriteErrorIgnored(t *testing.T) {
	w := &failWriter{}
	l := New(w)
	l.Printf("one")
	l.Printf("two")
	if w.calls != 2 {
		t.Errorf("writes attempted: got %d, want 2", w.calls)
	}
}

func TestOpenDisabled(t *testing.T) {
	w, c, err := Open("", 115200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := w.(Nop); !ok {
		t.Errorf("expected Nop writer, got %T", w)
	}
	w.Printf("ignored %d", 1)
	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOpenStdout(t *testing.T) {
	w, _, err := Open("-", 115200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := w.(*Line); !ok {
		t.Errorf("expected *Line, got %T", w)
	}
}

func TestOpenMissingSerialDevice(t *testing.T) {
	if _, _, err := Open("/dev/does-not-exist-prox-alert", 115200); err == nil {
		t.Error("expected error opening a missing device")
	}
}
