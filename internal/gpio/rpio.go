//go:build linux

package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio"
)

// rpioDriver uses /dev/gpiomem. go-rpio keeps global state, so only one
// driver should be open at a time.
type rpioDriver struct{}

func openRpio() (Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &rpioDriver{}, nil
}

func (d *rpioDriver) Input(pin int, pull Pull, activeHigh bool) (Reader, error) {
	p := rpio.Pin(pin)
	p.Input()
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	return &rpioPin{pin: p, activeHigh: activeHigh}, nil
}

func (d *rpioDriver) Output(pin int, activeHigh bool) (Output, error) {
	p := rpio.Pin(pin)
	p.Output()
	out := &rpioPin{pin: p, activeHigh: activeHigh}
	if err := out.Set(false); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *rpioDriver) Close() error {
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}

type rpioPin struct {
	pin        rpio.Pin
	activeHigh bool
}

func (p *rpioPin) Read() (bool, error) {
	high := p.pin.Read() == rpio.High
	return high == p.activeHigh, nil
}

func (p *rpioPin) Set(on bool) error {
	if on == p.activeHigh {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	return nil
}

func (p *rpioPin) Close() error {
	p.pin.Input()
	p.pin.PullDown()
	return nil
}
