//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

func openCdev(string) (Driver, error) {
	return nil, errUnsupported
}

func openRpio() (Driver, error) {
	return nil, errUnsupported
}
