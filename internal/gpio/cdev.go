//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type cdevDriver struct {
	chip *gpiocdev.Chip
}

func openCdev(name string) (Driver, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &cdevDriver{chip: chip}, nil
}

func (d *cdevDriver) Input(pin int, pull Pull, activeHigh bool) (Reader, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if !activeHigh {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := d.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &cdevLine{line: line, pin: pin}, nil
}

func (d *cdevDriver) Output(pin int, activeHigh bool) (Output, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if !activeHigh {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := d.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &cdevLine{line: line, pin: pin}, nil
}

func (d *cdevDriver) Close() error {
	if err := d.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// cdevLine is a requested line. Active-low handling is done by the kernel, so
// values are already logical.
type cdevLine struct {
	line *gpiocdev.Line
	pin  int
}

func (l *cdevLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", l.pin, err)
	}
	return v == 1, nil
}

func (l *cdevLine) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", l.pin, err)
	}
	return nil
}

// Close reconfigures the line as a pulled-down input (the Pi boot default)
// before releasing it so a relay is never left energised.
func (l *cdevLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.pin, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
