package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(true, false, true)

	want := []bool{true, false, true, true}
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderScriptedErrors(t *testing.T) {
	f := NewFakeReader(true, true, false)
	f.Errors = []error{nil, errors.New("glitch")}

	if v, err := f.Read(); err != nil || !v {
		t.Fatalf("read 0: got (%v, %v)", v, err)
	}
	if _, err := f.Read(); err == nil {
		t.Fatal("read 1: expected scripted error")
	}
	if v, err := f.Read(); err != nil || v {
		t.Fatalf("read 2: got (%v, %v)", v, err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader(true, false)
	f.Read()
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("reset should clear Closed")
	}
	if v, _ := f.Read(); !v {
		t.Error("after reset: expected first sample again")
	}
}

func TestFakeOutputPulses(t *testing.T) {
	o := NewFakeOutput()
	for _, l := range []bool{false, true, false, true, true, false} {
		if err := o.Set(l); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if got := o.Pulses(); got != 2 {
		t.Errorf("Pulses: got %d, want 2", got)
	}
	if o.Level() {
		t.Error("expected last level low")
	}
}

func TestPulser(t *testing.T) {
	o := NewFakeOutput()
	p := NewPulser(o, 100*time.Millisecond)
	var slept time.Duration
	p.sleep = func(d time.Duration) { slept += d }

	if err := p.Pulse(); err != nil {
		t.Fatalf("pulse: %v", err)
	}
	if slept != 100*time.Millisecond {
		t.Errorf("pulse width: got %v, want 100ms", slept)
	}
	levels := o.Levels()
	if len(levels) != 2 || !levels[0] || levels[1] {
		t.Errorf("expected high then low, got %v", levels)
	}
}

func TestPulserFailure(t *testing.T) {
	o := NewFakeOutput()
	o.SetError = errors.New("busy")
	p := NewPulser(o, time.Millisecond)
	p.sleep = func(time.Duration) {}

	if err := p.Pulse(); err == nil {
		t.Error("expected error from failing output")
	}
}

func TestParsePull(t *testing.T) {
	tests := map[string]Pull{"": PullNone, "none": PullNone, "up": PullUp, "down": PullDown}
	for in, want := range tests {
		got, err := ParsePull(in)
		if err != nil || got != want {
			t.Errorf("ParsePull(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParsePull("sideways"); err == nil {
		t.Error("expected error for invalid pull")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("smoke-signals", ""); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestFakeDriver(t *testing.T) {
	d := NewFakeDriver()
	d.Inputs[12] = NewFakeReader(true)

	r, err := d.Input(12, PullUp, true)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if v, _ := r.Read(); !v {
		t.Error("expected registered reader")
	}
	if _, err := d.Input(13, PullUp, true); err == nil {
		t.Error("expected error for unregistered pin")
	}

	o, _ := d.Output(26, true)
	o.Set(true)
	if !d.Outputs[26].Level() {
		t.Error("output should be registered on first use")
	}
}
