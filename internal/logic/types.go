// Package logic contains the pure state-observation and actuation logic shared
// by every device. This package has NO external dependencies (no GPIO, MQTT,
// logging or time.Sleep). Time is always injectable via time.Time parameters.
package logic

import (
	"strings"
	"time"
)

// Position is the logical state of a two-endpoint actuator such as a garage door.
// Endpoint A is "closed" and endpoint B is "open".
type Position int

const (
	PositionUnknown Position = iota
	PositionClosed
	PositionOpen
	PositionOpening
	PositionClosing
)

// String returns the lower-case state name used on the wire.
func (p Position) String() string {
	switch p {
	case PositionClosed:
		return "closed"
	case PositionOpen:
		return "open"
	case PositionOpening:
		return "opening"
	case PositionClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Moving reports whether p is one of the transitioning labels.
func (p Position) Moving() bool {
	return p == PositionOpening || p == PositionClosing
}

// Command is an external request arriving asynchronously from the bus.
type Command string

const (
	CommandOpen  Command = "OPEN"
	CommandClose Command = "CLOSE"
	CommandStop  Command = "STOP"
	CommandOn    Command = "ON"
	CommandOff   Command = "OFF"
)

// ParseCommand maps a bus payload onto a known command. Surrounding
// whitespace and letter case are ignored.
func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CommandOpen, CommandClose, CommandStop, CommandOn, CommandOff:
		return c, true
	}
	return "", false
}

// TimedCommand pairs a command with the time it was received.
type TimedCommand struct {
	Command  Command
	Received time.Time
}

// StateChange is emitted by a Debouncer when its stable value flips.
type StateChange struct {
	Time  time.Time
	Value bool
	// Initial is set when the debouncer leaves the undetermined state.
	Initial bool
}

// Counts tracks what a device has done since startup.
type Counts struct {
	Reports     int
	Triggers    int
	Suppressed  int
	ReadErrors  int
	Calibration int
}

// HeartbeatData contains information for a heartbeat report.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}

// NewHeartbeat builds heartbeat data for the given instant.
func NewHeartbeat(start, now time.Time, counts Counts) HeartbeatData {
	return HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(start),
		Counts:    counts,
	}
}
