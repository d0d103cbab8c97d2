// Package adc reads analog voltages from an I2C ADC. The real backend drives
// an ADS1115 through periph.io; the fake replays scripted voltages.
package adc

// Reader reads one analog channel.
type Reader interface {
	// Voltage returns the current channel voltage in volts.
	Voltage() (float64, error)

	// Close releases the channel.
	Close() error
}

// DefaultAddress is the ADS1115 address with ADDR tied to ground.
const DefaultAddress = 0x48

// Channels is the number of single-ended inputs on an ADS1115.
const Channels = 4
