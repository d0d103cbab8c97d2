//go:build linux

package adc

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADS1115 is one converter on an I2C bus. Channels opened from it share the
// bus handle.
type ADS1115 struct {
	bus i2c.BusCloser
	dev *ads1x15.Dev
}

// OpenADS1115 initialises the host drivers and opens the converter at addr on
// the named bus ("" selects the first bus).
func OpenADS1115(busName string, addr uint16) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open ads1115 at %#x: %w", addr, err)
	}

	return &ADS1115{bus: bus, dev: dev}, nil
}

var channels = [Channels]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// Channel opens a single-ended channel with the given full-scale voltage.
func (a *ADS1115) Channel(ch int, fullScale float64) (Reader, error) {
	if ch < 0 || ch >= Channels {
		return nil, fmt.Errorf("channel %d out of range", ch)
	}
	max := physic.ElectricPotential(fullScale * float64(physic.Volt))
	pin, err := a.dev.PinForChannel(channels[ch], max, 250*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return nil, fmt.Errorf("open channel %d: %w", ch, err)
	}
	return &adsChannel{pin: pin, ch: ch}, nil
}

// Close releases the bus.
func (a *ADS1115) Close() error {
	return a.bus.Close()
}

type adsChannel struct {
	pin analog.PinADC
	ch  int
}

func (c *adsChannel) Voltage() (float64, error) {
	s, err := c.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read channel %d: %w", c.ch, err)
	}
	return float64(s.V) / float64(physic.Volt), nil
}

func (c *adsChannel) Close() error {
	return c.pin.Halt()
}
