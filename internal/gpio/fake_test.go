package gpio

import (
	"errors"
	"testing"
)

func TestFakeEdgeInputEdge(t *testing.T) {
	f := NewFakeEdgeInput(9)
	if f.Mask() != 1<<9 {
		t.Fatalf("mask: got %#x, want %#x", f.Mask(), 1<<9)
	}

	calls := 0
	f.Watch(func() {
		calls++
		l, err := f.Level()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l != High {
			t.Errorf("handler saw %s, want high", l)
		}
		if f.Pending()&f.Mask() == 0 {
			t.Error("flag should be pending inside the handler")
		}
		f.ClearPending()
	})

	f.Edge(High)

	if calls != 1 {
		t.Errorf("handler calls: got %d, want 1", calls)
	}
	if f.Pending() != 0 {
		t.Errorf("pending after clear: got %#x", f.Pending())
	}
	if f.Cleared() != 1 {
		t.Errorf("cleared: got %d, want 1", f.Cleared())
	}
}

func TestFakeEdgeInputInterruptFromOtherLine(t *testing.T) {
	f := NewFakeEdgeInput(9)
	var seen uint64
	f.Watch(func() { seen = f.Pending() })

	f.Interrupt(1<<3 | 1<<9)

	if seen != 1<<3 {
		t.Errorf("pending: got %#x, want only bit 3", seen)
	}
}

func TestFakeEdgeInputLevelError(t *testing.T) {
	f := NewFakeEdgeInput(0)
	f.SetLevelError(errors.New("simulated error"))
	if _, err := f.Level(); err == nil {
		t.Error("expected error")
	}
}

func TestFakeEdgeInputClose(t *testing.T) {
	f := NewFakeEdgeInput(0)
	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
}

func TestFakeOutput(t *testing.T) {
	f := NewFakeOutput(Low)

	f.High()
	f.Low()
	f.Toggle()
	f.Toggle()

	want := []Level{High, Low, High, Low}
	got := f.History()
	if len(got) != len(want) {
		t.Fatalf("history: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
	if f.Rises() != 2 {
		t.Errorf("rises: got %d, want 2", f.Rises())
	}
	if f.Level() != Low {
		t.Errorf("level: got %s, want low", f.Level())
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput(Low)
	f.SetError(errors.New("simulated error"))

	if err := f.High(); err == nil {
		t.Error("expected error")
	}
	if f.Level() != Low {
		t.Error("failed write must not change the level")
	}

	f.SetError(nil)
	if err := f.High(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLevelString(t *testing.T) {
	if High.String() != "high" || Low.String() != "low" {
		t.Errorf("got %q/%q", High.String(), Low.String())
	}
}
