package mqtt

import (
	"time"

	"github.com/sweeney/home-sensors/internal/logic"
)

// Event is an inbound message resolved to one of a closed set of variants:
// CommandEvent, RegisterRequest, Telemetry or Unrecognized.
type Event interface {
	event()
}

// CommandEvent is a command addressed to one device.
type CommandEvent struct {
	Device   string
	Command  logic.Command
	Received time.Time
}

// RegisterRequest asks every device to re-announce its descriptors.
type RegisterRequest struct {
	Received time.Time
}

// Telemetry is a raw reading from a routed source topic, such as rtl_433.
type Telemetry struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Unrecognized is anything else.
type Unrecognized struct {
	Topic   string
	Payload []byte
	Reason  string
}

func (CommandEvent) event()    {}
func (RegisterRequest) event() {}
func (Telemetry) event()       {}
func (Unrecognized) event()    {}

// Dispatcher classifies inbound messages by exact topic. Routes must be added
// before the first call to Classify.
type Dispatcher struct {
	register  string
	commands  map[string]string
	telemetry map[string]bool
}

// NewDispatcher creates a dispatcher that recognises the register topic.
func NewDispatcher(topics Topics) *Dispatcher {
	return &Dispatcher{
		register:  topics.Register(),
		commands:  make(map[string]string),
		telemetry: make(map[string]bool),
	}
}

// RouteCommand maps a command topic to a device id.
func (d *Dispatcher) RouteCommand(topic, device string) {
	d.commands[topic] = device
}

// RouteTelemetry marks topic as a telemetry source.
func (d *Dispatcher) RouteTelemetry(topic string) {
	d.telemetry[topic] = true
}

// Topics returns every topic the dispatcher recognises, for subscribing.
func (d *Dispatcher) Topics() []string {
	out := []string{d.register}
	for t := range d.commands {
		out = append(out, t)
	}
	for t := range d.telemetry {
		out = append(out, t)
	}
	return out
}

// Classify resolves one inbound message.
func (d *Dispatcher) Classify(topic string, payload []byte, now time.Time) Event {
	if topic == d.register {
		return RegisterRequest{Received: now}
	}
	if device, ok := d.commands[topic]; ok {
		cmd, ok := logic.ParseCommand(string(payload))
		if !ok {
			return Unrecognized{Topic: topic, Payload: payload, Reason: "unknown command"}
		}
		return CommandEvent{Device: device, Command: cmd, Received: now}
	}
	if d.telemetry[topic] {
		return Telemetry{Topic: topic, Payload: payload, Received: now}
	}
	return Unrecognized{Topic: topic, Payload: payload, Reason: "no route"}
}
