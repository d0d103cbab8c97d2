package adc

import (
	"errors"
	"sync"
)

// FakeReader replays scripted voltages. Once exhausted, the last value
// repeats. It is safe for concurrent use.
type FakeReader struct {
	mu     sync.Mutex
	values []float64
	errs   []error
	index  int
	reads  int
	closed bool
}

// NewFakeReader creates a reader over values.
func NewFakeReader(values ...float64) *FakeReader {
	return &FakeReader{values: values}
}

// FailAt makes the read with the given index return err.
func (f *FakeReader) FailAt(index int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.errs) <= index {
		f.errs = append(f.errs, nil)
	}
	f.errs[index] = err
}

// Voltage returns the next scripted value.
func (f *FakeReader) Voltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0, errors.New("no values configured")
	}

	n := f.reads
	f.reads++
	i := f.index
	if f.index < len(f.values)-1 {
		f.index++
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return 0, f.errs[n]
	}
	return f.values[i], nil
}

// Reads returns how many times Voltage was called.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeReader) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
