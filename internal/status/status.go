// Package status provides a thread-safe status tracker for the home-sensors
// daemon. It is read by the HTTP handlers and by the heartbeat publisher.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/home-sensors/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Mode        string // subcommand: garage, doorbell, garden or bridge
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Device is the externally visible state of one controller.
type Device struct {
	ID    string
	Name  string
	Kind  string
	State string
	// Ready is false until the device has settled or calibrated.
	Ready      bool
	Counts     logic.Counts
	LastChange time.Time
	Attributes map[string]string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Devices       []Device
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every device is ready. No devices means not ready.
func (s Snapshot) Ready() bool {
	if len(s.Devices) == 0 {
		return false
	}
	for _, d := range s.Devices {
		if !d.Ready {
			return false
		}
	}
	return true
}

// Device returns the device with the given id.
func (s Snapshot) Device(id string) (Device, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	startTime time.Time
	cfg       Config
	connected bool
	devices   map[string]Device
	now       func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		startTime: startTime,
		cfg:       cfg,
		devices:   make(map[string]Device),
		now:       time.Now,
	}
}

// UpdateDevice replaces the state of one device. Called from the run loop.
func (t *Tracker) UpdateDevice(d Device) {
	attrs := make(map[string]string, len(d.Attributes))
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	d.Attributes = attrs

	t.mu.Lock()
	t.devices[d.ID] = d
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state with devices
// sorted by id. The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		StartTime:     t.startTime,
		MQTTConnected: t.connected,
		Config:        t.cfg,
		Devices:       make([]Device, 0, len(t.devices)),
	}
	for _, d := range t.devices {
		s.Devices = append(s.Devices, d)
	}
	now := t.now
	t.mu.RUnlock()

	sort.Slice(s.Devices, func(i, j int) bool { return s.Devices[i].ID < s.Devices[j].ID })
	s.Now = now()
	return s
}
