// Package gpio provides digital input and output with hardware abstraction.
// Real backends use the Linux GPIO character device (gpiocdev) or the
// memory-mapped register interface (go-rpio). Fakes allow testing without
// hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Reader reads one digital input as a logical level.
type Reader interface {
	// Read returns true when the pin is at its active level.
	Read() (bool, error)

	// Close releases the pin.
	Close() error
}

// Output drives one digital output.
type Output interface {
	// Set drives the pin to its active level when on is true.
	Set(on bool) error

	// Close returns the pin to a safe input state.
	Close() error
}

// Driver opens pins on one GPIO controller.
type Driver interface {
	Input(pin int, pull Pull, activeHigh bool) (Reader, error)
	Output(pin int, activeHigh bool) (Output, error)
	Close() error
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Backend names accepted by Open.
const (
	BackendCdev = "cdev"
	BackendRpio = "rpio"
)

// DefaultChip is the character device used by the cdev backend.
const DefaultChip = "gpiochip0"

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown gpio backend")

// Open returns a driver for the named backend.
func Open(backend, chip string) (Driver, error) {
	switch backend {
	case "", BackendCdev:
		if chip == "" {
			chip = DefaultChip
		}
		return openCdev(chip)
	case BackendRpio:
		return openRpio()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// ParsePull converts a config string to a Pull.
func ParsePull(s string) (Pull, error) {
	switch s {
	case "", "none":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	default:
		return PullNone, fmt.Errorf("invalid pull %q", s)
	}
}

// Pulser drives an output high for a fixed width and then low again. It
// satisfies logic.Actuator.
type Pulser struct {
	out   Output
	width time.Duration
	sleep func(time.Duration)
}

// NewPulser creates a pulser of the given width.
func NewPulser(out Output, width time.Duration) *Pulser {
	return &Pulser{out: out, width: width, sleep: time.Sleep}
}

// Pulse performs one synchronous pulse. The output is always driven back low,
// even if raising it failed part way.
func (p *Pulser) Pulse() error {
	if err := p.out.Set(true); err != nil {
		_ = p.out.Set(false)
		return fmt.Errorf("raise output: %w", err)
	}
	p.sleep(p.width)
	if err := p.out.Set(false); err != nil {
		return fmt.Errorf("lower output: %w", err)
	}
	return nil
}
