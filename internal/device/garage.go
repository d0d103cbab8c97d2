package device

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/gpio"
	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/status"
)

// GarageConfig configures a GarageDoor.
type GarageConfig struct {
	Name     string
	Debounce time.Duration
	Guard    time.Duration
}

// Garage door defaults.
const (
	DefaultGarageName     = "Garage Door"
	DefaultGarageDebounce = 2 * time.Second
	DefaultGarageGuard    = 5 * time.Second
)

func (c *GarageConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultGarageName
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultGarageDebounce
	}
	if c.Guard <= 0 {
		c.Guard = DefaultGarageGuard
	}
}

// GarageDoor tracks a door with one reed switch at the open endpoint and a
// momentary opener relay.
type GarageDoor struct {
	id        string
	cfg       GarageConfig
	env       Env
	log       *zap.SugaredLogger
	sensor    gpio.Reader
	debouncer logic.Debouncer
	machine   *logic.PositionMachine
	pending   PendingCommand
	health    readHealth

	counts      logic.Counts
	reported    logic.Position
	hasReported bool
	lastChange  time.Time
}

// NewGarageDoor creates a controller. sensor reads true when the door is at
// the open endpoint; opener pulses the relay.
func NewGarageDoor(cfg GarageConfig, env Env, sensor gpio.Reader, opener logic.Actuator) *GarageDoor {
	cfg.applyDefaults()
	id := mqtt.Normalize(cfg.Name)
	return &GarageDoor{
		id:        id,
		cfg:       cfg,
		env:       env,
		log:       env.logger(id),
		sensor:    sensor,
		debouncer: logic.NewDurationDebouncer(cfg.Debounce),
		machine:   logic.NewPositionMachine(logic.NewTriggerGuard(opener, cfg.Guard)),
	}
}

// ID returns the normalized device name.
func (g *GarageDoor) ID() string { return g.id }

// State returns the current position.
func (g *GarageDoor) State() logic.Position { return g.machine.State() }

// StateTopic is where positions are reported.
func (g *GarageDoor) StateTopic() string {
	return g.env.Topics.Path("garage_door", g.id, "state")
}

// CommandTopics lists the topics carrying commands for this door.
func (g *GarageDoor) CommandTopics() []string {
	return []string{g.env.Topics.Path("garage_door", g.id, "command")}
}

// Post queues a command for the next tick.
func (g *GarageDoor) Post(cmd logic.TimedCommand) {
	if g.pending.Offer(cmd) {
		g.log.Debugw("pending command replaced", "command", cmd.Command)
	}
}

// Tick samples the sensor, applies any pending command and returns a report
// if the position changed.
func (g *GarageDoor) Tick(now time.Time) []mqtt.Message {
	atOpen, err := g.sensor.Read()
	if err != nil {
		g.counts.ReadErrors++
		g.health.fail(g.log, err)
	} else {
		g.health.ok(g.log)
		if c, ok := g.debouncer.Update(atOpen, now); ok {
			g.apply(g.machine.Observe(c.Value, now), "sensor")
		}
	}

	if cmd, ok := g.pending.Next(); ok {
		g.apply(g.machine.Command(cmd.Command, now), string(cmd.Command))
	}

	return g.report(now)
}

func (g *GarageDoor) apply(tr logic.Transition, cause string) {
	switch {
	case tr.Err != nil:
		g.log.Warnw("actuation failed", "cause", cause, "error", tr.Err)
	case tr.Suppressed:
		g.counts.Suppressed++
		g.log.Infow("actuation suppressed", "cause", cause, "state", tr.From)
	case tr.Triggered:
		g.counts.Triggers++
	}
	if tr.Anomaly {
		g.log.Warnw("door reads open while closing", "from", tr.From)
	}
	if tr.Changed() {
		g.log.Infow("state changed", "from", tr.From, "to", tr.To, "cause", cause)
	}
}

// report emits the position when it differs from the last one reported. The
// initial unknown position is never reported.
func (g *GarageDoor) report(now time.Time) []mqtt.Message {
	state := g.machine.State()
	if g.hasReported && state == g.reported {
		return nil
	}
	if !g.hasReported && state == logic.PositionUnknown {
		return nil
	}
	g.reported = state
	g.hasReported = true
	g.lastChange = now
	g.counts.Reports++
	return []mqtt.Message{mqtt.Text(g.StateTopic(), state.String())}
}

// Heartbeat repeats the last reported position.
func (g *GarageDoor) Heartbeat(time.Time) []mqtt.Message {
	if !g.hasReported {
		return nil
	}
	return []mqtt.Message{mqtt.Text(g.StateTopic(), g.reported.String())}
}

// Descriptors announces the door as a Home Assistant cover.
func (g *GarageDoor) Descriptors() []mqtt.Descriptor {
	return []mqtt.Descriptor{{
		Component:         mqtt.ComponentCover,
		ObjectID:          g.id,
		Name:              g.cfg.Name,
		UniqueID:          g.id,
		DeviceClass:       "garage",
		StateTopic:        g.StateTopic(),
		CommandTopic:      g.CommandTopics()[0],
		AvailabilityTopic: g.env.Availability,
		Device: mqtt.DeviceInfo{
			Identifiers: g.id,
			Name:        g.cfg.Name,
			Model:       "Garage Door",
		},
	}}
}

// Status returns the door for the status page.
func (g *GarageDoor) Status() []status.Device {
	attrs := map[string]string{}
	if last, ok := g.machine.LastTrigger(); ok {
		attrs["last_trigger"] = last.UTC().Format(time.RFC3339)
	}
	atOpen, settled := g.debouncer.Stable()
	if settled {
		attrs["sensor"] = "closed"
		if atOpen {
			attrs["sensor"] = "open"
		}
	}
	return []status.Device{{
		ID:         g.id,
		Name:       g.cfg.Name,
		Kind:       "garage_door",
		State:      g.machine.State().String(),
		Ready:      settled,
		Counts:     g.counts,
		LastChange: g.lastChange,
		Attributes: attrs,
	}}
}
