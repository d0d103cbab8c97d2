package logic

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNoSamples is returned when a calibration window produced no usable reads.
	ErrNoSamples = errors.New("calibration produced no samples")
	// ErrDegenerateBaseline marks a baseline that cannot be used for detection.
	ErrDegenerateBaseline = errors.New("degenerate baseline")
)

// Baseline is a learned rest-state reference used for anomaly detection.
// It is immutable once computed.
type Baseline struct {
	Mean      float64
	Tolerance float64
	Samples   int
	Taken     time.Time
}

// ComputeBaseline sets Mean to the sample average and Tolerance to the largest
// absolute deviation of any sample from that average.
func ComputeBaseline(samples []float64, taken time.Time) (Baseline, error) {
	if len(samples) == 0 {
		return Baseline{}, ErrNoSamples
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var tol float64
	for _, s := range samples {
		if d := math.Abs(s - mean); d > tol {
			tol = d
		}
	}

	b := Baseline{Mean: mean, Tolerance: tol, Samples: len(samples), Taken: taken}
	if b.Degenerate() {
		return b, ErrDegenerateBaseline
	}
	return b, nil
}

// Degenerate reports whether b is unusable for detection: zero spread or
// non-finite values.
func (b Baseline) Degenerate() bool {
	if b.Samples == 0 {
		return true
	}
	if math.IsNaN(b.Mean) || math.IsInf(b.Mean, 0) || math.IsNaN(b.Tolerance) || math.IsInf(b.Tolerance, 0) {
		return true
	}
	return b.Tolerance == 0
}

// Anomalous reports whether v lies outside
// [Mean - Tolerance*factor, Mean + Tolerance*factor]. Both bounds are inclusive.
func (b Baseline) Anomalous(v, factor float64) bool {
	band := b.Tolerance * factor
	return v < b.Mean-band || v > b.Mean+band
}

// Calibration collects evenly spaced samples across a window. It is driven by
// the caller's clock so it can run inside a polling loop without blocking.
type Calibration struct {
	start    time.Time
	interval time.Duration
	count    int
	taken    int
	samples  []float64
}

// NewCalibration plans count samples spread across duration starting at start.
func NewCalibration(start time.Time, duration time.Duration, count int) *Calibration {
	if count < 1 {
		count = 1
	}
	return &Calibration{
		start:    start,
		interval: duration / time.Duration(count),
		count:    count,
		samples:  make([]float64, 0, count),
	}
}

// Due reports whether the next sample slot has been reached.
func (c *Calibration) Due(now time.Time) bool {
	if c.Done() {
		return false
	}
	next := c.start.Add(time.Duration(c.taken) * c.interval)
	return !now.Before(next)
}

// Add records the result of one slot. Failed reads consume the slot without
// contributing a sample.
func (c *Calibration) Add(v float64, ok bool) {
	if c.Done() {
		return
	}
	c.taken++
	if ok {
		c.samples = append(c.samples, v)
	}
}

// Done reports whether every planned slot has been consumed.
func (c *Calibration) Done() bool {
	return c.taken >= c.count
}

// Result computes the baseline from the collected samples.
func (c *Calibration) Result(now time.Time) (Baseline, error) {
	return ComputeBaseline(c.samples, now)
}
