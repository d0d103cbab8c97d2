// Command home-sensors runs one home sensor controller (garage door, doorbell,
// garden or rtl_433 bridge) and reports its state to Home Assistant over MQTT.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
