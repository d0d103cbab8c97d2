package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted logical levels.
type FakeReader struct {
	// Samples contains scripted values. Each call to Read consumes the next
	// one; once exhausted the last value repeats.
	Samples []bool

	// Errors, if set, is consulted with the same index as Samples; a non-nil
	// entry is returned instead of the sample.
	Errors []error

	index int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, is returned by every Read.
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	i := f.index
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	if i < len(f.Errors) && f.Errors[i] != nil {
		return false, f.Errors[i]
	}
	return f.Samples[i], nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the reader to the first sample.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeOutput records every level written to it. It is safe for concurrent use
// so tests can inspect it while a loop is running.
type FakeOutput struct {
	mu     sync.Mutex
	levels []bool

	// SetError, if set, is returned by Set and the level is not recorded.
	SetError error

	closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels = append(f.levels, on)
	return nil
}

// Levels returns a copy of the recorded levels.
func (f *FakeOutput) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// Level returns the last level written, false if none.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}

// Pulses counts rising edges.
func (f *FakeOutput) Pulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := false
	for _, l := range f.levels {
		if l && !prev {
			n++
		}
		prev = l
	}
	return n
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeDriver hands out pre-registered fakes by pin number.
type FakeDriver struct {
	Inputs  map[int]*FakeReader
	Outputs map[int]*FakeOutput
	Closed  bool
}

// NewFakeDriver creates a driver with no pins.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Inputs:  make(map[int]*FakeReader),
		Outputs: make(map[int]*FakeOutput),
	}
}

// Input returns the registered reader for pin.
func (d *FakeDriver) Input(pin int, _ Pull, _ bool) (Reader, error) {
	r, ok := d.Inputs[pin]
	if !ok {
		return nil, errors.New("no fake input registered")
	}
	return r, nil
}

// Output returns the registered output for pin, creating one on first use.
func (d *FakeDriver) Output(pin int, _ bool) (Output, error) {
	o, ok := d.Outputs[pin]
	if !ok {
		o = NewFakeOutput()
		d.Outputs[pin] = o
	}
	return o, nil
}

// Close marks the driver as closed.
func (d *FakeDriver) Close() error {
	d.Closed = true
	return nil
}
