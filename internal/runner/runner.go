// Package runner drives device controllers from a single goroutine. Poll and
// heartbeat ticks, recalibration requests and inbound MQTT messages are all
// serialised through one select loop so controllers are never mutated
// concurrently.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/status"
)

// Device is a controller the runner drives.
type Device interface {
	ID() string
	Descriptors() []mqtt.Descriptor
	Tick(now time.Time) []mqtt.Message
	Heartbeat(now time.Time) []mqtt.Message
	Status() []status.Device
}

// Commander is a Device that accepts commands.
type Commander interface {
	CommandTopics() []string
	Post(cmd logic.TimedCommand)
}

// TelemetryHandler is a Device that consumes raw telemetry topics.
type TelemetryHandler interface {
	TelemetryTopics() []string
	Telemetry(topic string, payload []byte, now time.Time) ([]mqtt.Message, error)
}

// Recalibrator is a Device with a baseline that can be refreshed.
type Recalibrator interface {
	Recalibrate(now time.Time)
}

// Announcer is a Device with state to publish after its descriptors.
type Announcer interface {
	Announced() []mqtt.Message
}

// connectNotifier is implemented by clients that report (re)connections.
type connectNotifier interface {
	OnConnect(fn func())
}

// Lifecycle events published on the status topic.
const (
	EventStartup   = "STARTUP"
	EventHeartbeat = "HEARTBEAT"
	EventShutdown  = "SHUTDOWN"
)

// DefaultEventQueue bounds inbound messages waiting for the loop.
const DefaultEventQueue = 64

// Config configures a Runner.
type Config struct {
	// Node names this process in status topics.
	Node   string
	Topics mqtt.Topics
	// EventQueue bounds the inbound queue; zero means DefaultEventQueue.
	EventQueue int
}

// Ticks carries the loop's timers. A nil channel never fires.
type Ticks struct {
	Poll        <-chan time.Time
	Heartbeat   <-chan time.Time
	Recalibrate <-chan time.Time
}

// Runner owns the controllers and the loop that drives them.
type Runner struct {
	cfg        Config
	client     mqtt.Client
	tracker    *status.Tracker
	log        *zap.SugaredLogger
	devices    []Device
	commanders map[string]Commander
	dispatcher *mqtt.Dispatcher
	events     chan mqtt.Event
	now        func() time.Time
	start      time.Time

	publishErrors int
}

// New creates a runner for devices. Device ids must be unique.
func New(cfg Config, client mqtt.Client, tracker *status.Tracker, log *zap.SugaredLogger, devices ...Device) (*Runner, error) {
	if len(devices) == 0 {
		return nil, errors.New("no devices")
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = DefaultEventQueue
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Runner{
		cfg:        cfg,
		client:     client,
		tracker:    tracker,
		log:        log.Named("runner"),
		devices:    devices,
		commanders: make(map[string]Commander),
		dispatcher: mqtt.NewDispatcher(cfg.Topics),
		events:     make(chan mqtt.Event, cfg.EventQueue),
		now:        time.Now,
	}

	seen := make(map[string]bool)
	for _, d := range devices {
		if seen[d.ID()] {
			return nil, fmt.Errorf("duplicate device id %q", d.ID())
		}
		seen[d.ID()] = true

		if c, ok := d.(Commander); ok {
			r.commanders[d.ID()] = c
			for _, topic := range c.CommandTopics() {
				r.dispatcher.RouteCommand(topic, d.ID())
			}
		}
		if h, ok := d.(TelemetryHandler); ok {
			for _, topic := range h.TelemetryTopics() {
				r.dispatcher.RouteTelemetry(topic)
			}
		}
	}
	return r, nil
}

// StatusTopic is where lifecycle events are published.
func (r *Runner) StatusTopic() string {
	return r.cfg.Topics.Path("status", mqtt.Normalize(r.cfg.Node))
}

// receive classifies an inbound message and queues it for the loop. It runs
// on the client's goroutine and never blocks.
func (r *Runner) receive(topic string, payload []byte) {
	ev := r.dispatcher.Classify(topic, payload, r.now())
	select {
	case r.events <- ev:
	default:
		r.log.Warnw("event queue full, dropping message", "topic", topic)
	}
}

// requestAnnounce queues a re-announcement, as if a register request had
// arrived.
func (r *Runner) requestAnnounce() {
	select {
	case r.events <- mqtt.RegisterRequest{Received: r.now()}:
	default:
	}
}

// Run subscribes, announces every device and then loops until ctx is done.
// The cancellation cause, if any, is reported as the shutdown reason.
func (r *Runner) Run(ctx context.Context, ticks Ticks) error {
	r.start = r.now()
	for _, topic := range r.dispatcher.Topics() {
		if err := r.client.Subscribe(topic, r.receive); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	if n, ok := r.client.(connectNotifier); ok {
		n.OnConnect(r.requestAnnounce)
	}

	r.announce()
	r.updateStatus()
	r.publishEvent(EventStartup, "")
	r.log.Infow("started", "devices", len(r.devices), "status_topic", r.StatusTopic())

	for {
		select {
		case <-ctx.Done():
			reason := ""
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				reason = cause.Error()
			}
			r.log.Infow("shutting down", "reason", reason)
			r.updateStatus()
			r.publishEvent(EventShutdown, reason)
			return nil

		case <-ticks.Poll:
			now := r.now()
			for _, d := range r.devices {
				r.publish(d.Tick(now))
			}
			r.updateStatus()

		case <-ticks.Heartbeat:
			r.heartbeat(r.now())

		case <-ticks.Recalibrate:
			now := r.now()
			for _, d := range r.devices {
				if rc, ok := d.(Recalibrator); ok {
					r.log.Infow("recalibrating", "device", d.ID())
					rc.Recalibrate(now)
				}
			}

		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Runner) handle(ev mqtt.Event) {
	switch e := ev.(type) {
	case mqtt.CommandEvent:
		c, ok := r.commanders[e.Device]
		if !ok {
			return
		}
		r.log.Infow("command", "device", e.Device, "command", e.Command)
		c.Post(logic.TimedCommand{Command: e.Command, Received: e.Received})
	case mqtt.RegisterRequest:
		r.log.Infow("register request, announcing")
		r.announce()
	case mqtt.Telemetry:
		for _, d := range r.devices {
			h, ok := d.(TelemetryHandler)
			if !ok || !handles(h, e.Topic) {
				continue
			}
			msgs, err := h.Telemetry(e.Topic, e.Payload, e.Received)
			if err != nil {
				r.log.Warnw("telemetry rejected", "device", d.ID(), "error", err)
			}
			r.publish(msgs)
		}
	case mqtt.Unrecognized:
		r.log.Debugw("ignoring message", "topic", e.Topic, "reason", e.Reason)
	}
}

func handles(h TelemetryHandler, topic string) bool {
	for _, t := range h.TelemetryTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// announce publishes every device's discovery descriptors followed by its
// current state.
func (r *Runner) announce() {
	now := r.now()
	for _, d := range r.devices {
		for _, desc := range d.Descriptors() {
			msg, err := r.cfg.Topics.DescriptorMessage(desc)
			if err != nil {
				r.log.Errorw("encode descriptor", "device", d.ID(), "error", err)
				continue
			}
			r.publish([]mqtt.Message{msg})
		}
		if a, ok := d.(Announcer); ok {
			r.publish(a.Announced())
		}
		r.publish(d.Heartbeat(now))
	}
}

func (r *Runner) heartbeat(now time.Time) {
	var total logic.Counts
	for _, d := range r.devices {
		r.publish(d.Heartbeat(now))
		for _, s := range d.Status() {
			total.Reports += s.Counts.Reports
			total.Triggers += s.Counts.Triggers
			total.Suppressed += s.Counts.Suppressed
			total.ReadErrors += s.Counts.ReadErrors
			total.Calibration += s.Counts.Calibration
		}
	}
	hb := logic.NewHeartbeat(r.start, now, total)
	r.log.Infow("heartbeat",
		"uptime", hb.Uptime,
		"reports", hb.Counts.Reports,
		"triggers", hb.Counts.Triggers,
		"suppressed", hb.Counts.Suppressed,
		"read_errors", hb.Counts.ReadErrors,
		"publish_errors", r.publishErrors,
	)
	r.updateStatus()
	r.publishEvent(EventHeartbeat, "")
}

// publish hands messages to the client. Delivery is best effort: failures
// are logged and the loop carries on.
func (r *Runner) publish(msgs []mqtt.Message) {
	for _, m := range msgs {
		if err := r.client.Publish(m); err != nil {
			r.publishErrors++
			r.log.Warnw("publish failed", "topic", m.Topic, "error", err)
		}
	}
}

func (r *Runner) publishEvent(event, reason string) {
	if r.tracker == nil {
		return
	}
	payload := status.FormatStatusEvent(r.tracker.Snapshot(), event, reason)
	r.publish([]mqtt.Message{{Topic: r.StatusTopic(), Payload: payload, QoS: 1, Retained: true}})
}

func (r *Runner) updateStatus() {
	if r.tracker == nil {
		return
	}
	for _, d := range r.devices {
		for _, s := range d.Status() {
			r.tracker.UpdateDevice(s)
		}
	}
	r.tracker.SetMQTTConnected(r.client.IsConnected())
}
