package logic

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Source performs one physical read of a scalar sensor.
type Source func() (float64, error)

// Sample is the output of one Filter read.
type Sample struct {
	Raw  float64
	Mean float64
	// OK is false when the sensor read failed and Raw/Mean carry the default.
	OK  bool
	Err error
}

// Filter smooths a scalar signal with a fixed-size moving average and
// detects anomalies relative to a learned Baseline.
//
// Read and StartCalibration must be called from a single goroutine (the poll
// loop). Baseline and Anomalous may be called from any goroutine.
type Filter struct {
	source Source
	def    float64
	buf    []float64
	head   int
	count  int
	base   atomic.Pointer[Baseline]
	calib  *Calibration
}

// NewFilter creates a filter averaging the last window samples. Failed reads
// produce def.
func NewFilter(source Source, window int, def float64) *Filter {
	if window < 1 {
		window = 1
	}
	return &Filter{
		source: source,
		def:    def,
		buf:    make([]float64, window),
	}
}

// Read takes one sample from the source, folds it into the moving average and
// feeds any calibration in progress. A failed read never touches the buffer.
func (f *Filter) Read(now time.Time) Sample {
	v, err := f.source()
	if err != nil {
		if f.calib != nil && f.calib.Due(now) {
			f.calib.Add(0, false)
		}
		return Sample{Raw: f.def, Mean: f.def, Err: err}
	}

	f.push(v)
	if f.calib != nil && f.calib.Due(now) {
		f.calib.Add(v, true)
	}
	return Sample{Raw: v, Mean: f.Mean(), OK: true}
}

func (f *Filter) push(v float64) {
	if f.count < len(f.buf) {
		f.count++
	}
	f.buf[f.head] = v
	f.head = (f.head + 1) % len(f.buf)
}

// Mean returns the average of the filled part of the buffer, or the default
// before any successful read.
func (f *Filter) Mean() float64 {
	if f.count == 0 {
		return f.def
	}
	var sum float64
	for _, v := range f.buf[:f.count] {
		sum += v
	}
	return sum / float64(f.count)
}

// Filled reports whether the buffer holds a full window of samples.
func (f *Filter) Filled() bool {
	return f.count == len(f.buf)
}

// Baseline returns the current baseline, or nil before the first calibration.
func (f *Filter) Baseline() *Baseline {
	return f.base.Load()
}

// SetBaseline atomically replaces the baseline.
func (f *Filter) SetBaseline(b Baseline) {
	f.base.Store(&b)
}

// Anomalous applies the detection band of the current baseline. Without a
// usable baseline nothing is anomalous.
func (f *Filter) Anomalous(v, factor float64) bool {
	b := f.base.Load()
	if b == nil || b.Degenerate() {
		return false
	}
	return b.Anomalous(v, factor)
}

// StartCalibration begins an incremental calibration. Subsequent Reads take
// samples when due; the old baseline stays in effect until FinishCalibration
// installs the new one. Starting again discards a calibration in progress.
func (f *Filter) StartCalibration(now time.Time, duration time.Duration, count int) {
	f.calib = NewCalibration(now, duration, count)
}

// Calibrating reports whether a calibration is in progress.
func (f *Filter) Calibrating() bool {
	return f.calib != nil
}

// FinishCalibration installs the baseline once every slot has been consumed.
// It returns done=false while the calibration is still running. A degenerate
// baseline is still installed (detection stays off until a usable one
// arrives); a window with no samples keeps the previous baseline.
func (f *Filter) FinishCalibration(now time.Time) (b Baseline, done bool, err error) {
	if f.calib == nil || !f.calib.Done() {
		return Baseline{}, false, nil
	}
	b, err = f.calib.Result(now)
	f.calib = nil
	if errors.Is(err, ErrNoSamples) {
		return b, true, err
	}
	f.SetBaseline(b)
	return b, true, err
}

// Calibrate is the blocking variant: it reads count samples spaced evenly
// across duration directly from the source and installs the result. It does
// not touch the moving-average buffer, so concurrent readers see the old
// baseline until the swap.
func (f *Filter) Calibrate(ctx context.Context, duration time.Duration, count int) (Baseline, error) {
	c := NewCalibration(time.Now(), duration, count)
	interval := duration / time.Duration(max(count, 1))
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !c.Done() {
		v, err := f.source()
		c.Add(v, err == nil)
		if c.Done() {
			break
		}
		select {
		case <-ctx.Done():
			return Baseline{}, ctx.Err()
		case <-ticker.C:
		}
	}

	b, err := c.Result(time.Now())
	if errors.Is(err, ErrNoSamples) {
		return b, err
	}
	f.SetBaseline(b)
	return b, err
}
