package logic

import "time"

// Debouncer turns a noisy boolean signal into a stable logical value.
type Debouncer interface {
	// Update feeds one raw sample. It returns a change only when the
	// debounced value actually flips (or is first established).
	Update(raw bool, now time.Time) (StateChange, bool)

	// Stable returns the debounced value and whether one has been established.
	Stable() (value bool, ok bool)
}

// DurationDebouncer accepts a raw value once it has held continuously for a
// minimum duration. Any flip back during the window restarts the timer.
type DurationDebouncer struct {
	window time.Duration

	stable    bool
	baselined bool

	pending      bool
	hasPending   bool
	pendingSince time.Time
}

// NewDurationDebouncer creates a debouncer with the given stabilization window.
func NewDurationDebouncer(window time.Duration) *DurationDebouncer {
	return &DurationDebouncer{window: window}
}

// Update implements Debouncer.
func (d *DurationDebouncer) Update(raw bool, now time.Time) (StateChange, bool) {
	// Already stable at this value: drop any pending flip.
	if d.baselined && raw == d.stable {
		d.hasPending = false
		return StateChange{}, false
	}

	if !d.hasPending || d.pending != raw {
		d.pending = raw
		d.hasPending = true
		d.pendingSince = now
		return StateChange{}, false
	}

	if now.Sub(d.pendingSince) < d.window {
		return StateChange{}, false
	}

	initial := !d.baselined
	d.stable = raw
	d.baselined = true
	d.hasPending = false
	return StateChange{Time: now, Value: raw, Initial: initial}, true
}

// Stable implements Debouncer.
func (d *DurationDebouncer) Stable() (bool, bool) {
	return d.stable, d.baselined
}

// CountDebouncer accepts a false→true edge immediately and a true→false edge
// only after a run of consecutive false samples. Missing the start of an
// event is worse than reporting its end late.
type CountDebouncer struct {
	release int

	stable bool
	falses int
}

// NewCountDebouncer creates an asymmetric debouncer that releases after
// release consecutive false samples. A release below 1 is treated as 1.
func NewCountDebouncer(release int) *CountDebouncer {
	if release < 1 {
		release = 1
	}
	return &CountDebouncer{release: release}
}

// Update implements Debouncer.
func (c *CountDebouncer) Update(raw bool, now time.Time) (StateChange, bool) {
	if raw {
		c.falses = 0
		if c.stable {
			return StateChange{}, false
		}
		c.stable = true
		return StateChange{Time: now, Value: true}, true
	}

	if !c.stable {
		return StateChange{}, false
	}

	c.falses++
	if c.falses < c.release {
		return StateChange{}, false
	}
	c.stable = false
	c.falses = 0
	return StateChange{Time: now, Value: false}, true
}

// Stable implements Debouncer. The count debouncer starts out established
// at false.
func (c *CountDebouncer) Stable() (bool, bool) {
	return c.stable, true
}
