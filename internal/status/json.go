package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Mode          string       `json:"mode"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Devices       []DeviceJSON `json:"devices"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DeviceJSON is the JSON representation of one device.
type DeviceJSON struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	State      string            `json:"state"`
	Ready      bool              `json:"ready"`
	LastChange string            `json:"last_change,omitempty"`
	Counts     CountsJSON        `json:"counts"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CountsJSON is the JSON representation of device counters.
type CountsJSON struct {
	Reports      int `json:"reports"`
	Triggers     int `json:"triggers"`
	Suppressed   int `json:"suppressed"`
	ReadErrors   int `json:"read_errors"`
	Calibrations int `json:"calibrations"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr,omitempty"`
}

// DeviceToJSON converts one device.
func DeviceToJSON(d Device) DeviceJSON {
	state := d.State
	if state == "" {
		state = "unknown"
	}
	dj := DeviceJSON{
		ID:    d.ID,
		Name:  d.Name,
		Kind:  d.Kind,
		State: state,
		Ready: d.Ready,
		Counts: CountsJSON{
			Reports:      d.Counts.Reports,
			Triggers:     d.Counts.Triggers,
			Suppressed:   d.Counts.Suppressed,
			ReadErrors:   d.Counts.ReadErrors,
			Calibrations: d.Counts.Calibration,
		},
	}
	if !d.LastChange.IsZero() {
		dj.LastChange = d.LastChange.UTC().Format(time.RFC3339)
	}
	if len(d.Attributes) > 0 {
		dj.Attributes = d.Attributes
	}
	return dj
}

func buildInner(snap Snapshot) StatusInner {
	devices := make([]DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, DeviceToJSON(d))
	}

	return StatusInner{
		Mode:          snap.Config.Mode,
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Devices:       devices,
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT lifecycle event
// (STARTUP, HEARTBEAT, SHUTDOWN).
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
