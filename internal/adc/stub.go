//go:build !linux

package adc

import "errors"

// ADS1115 is not available on non-Linux platforms.
type ADS1115 struct{}

// OpenADS1115 returns an error on non-Linux platforms.
func OpenADS1115(string, uint16) (*ADS1115, error) {
	return nil, errors.New("adc: not supported on this platform (requires Linux)")
}

// Channel is not implemented on non-Linux platforms.
func (a *ADS1115) Channel(int, float64) (Reader, error) {
	return nil, errors.New("adc: not supported")
}

// Close is a no-op on non-Linux platforms.
func (a *ADS1115) Close() error {
	return nil
}
