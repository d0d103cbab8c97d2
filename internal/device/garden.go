package device

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/gpio"
	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/status"
)

// GardenConfig configures a Garden.
type GardenConfig struct {
	Name      string
	ValveName string
	Window    int
	Dry       float64
	Wet       float64
	Sample    time.Duration
	Blink     time.Duration

	// AutoWater opens the valve when the average moisture drops below
	// AutoLow and closes it again above AutoHigh.
	AutoWater bool
	AutoLow   float64
	AutoHigh  float64

	OverrideDebounce time.Duration
}

// Garden defaults.
const (
	DefaultGardenName       = "Garden Watering System"
	DefaultValveName        = "Garden Watering Valve"
	DefaultMoistureWindow   = 100
	DefaultDryVoltage       = 4.1
	DefaultWetVoltage       = 1.0
	DefaultMoistureSample   = time.Second
	DefaultBlink            = 750 * time.Millisecond
	DefaultOverrideDebounce = 200 * time.Millisecond
)

func (c *GardenConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultGardenName
	}
	if c.ValveName == "" {
		c.ValveName = DefaultValveName
	}
	if c.Window <= 0 {
		c.Window = DefaultMoistureWindow
	}
	if c.Dry == 0 && c.Wet == 0 {
		c.Dry, c.Wet = DefaultDryVoltage, DefaultWetVoltage
	}
	if c.Sample <= 0 {
		c.Sample = DefaultMoistureSample
	}
	if c.Blink <= 0 {
		c.Blink = DefaultBlink
	}
	if c.OverrideDebounce <= 0 {
		c.OverrideDebounce = DefaultOverrideDebounce
	}
}

// MoistureChannel is one probe.
type MoistureChannel struct {
	Name   string
	Source logic.Source
}

type moistureSensor struct {
	id       string
	name     string
	filter   *logic.Filter
	last     logic.Sample
	moisture float64
	health   readHealth
	errors   int
}

// GardenIO is the hardware a Garden drives. LED and Override are optional.
type GardenIO struct {
	Valve    gpio.Output
	LED      gpio.Output
	Override gpio.Reader
}

// Garden reads soil moisture probes and drives the watering valve.
type Garden struct {
	cfg     GardenConfig
	env     Env
	log     *zap.SugaredLogger
	sensors []*moistureSensor
	io      GardenIO

	valveID    string
	valve      *logic.SwitchMachine
	hysteresis *logic.Hysteresis
	override   logic.Debouncer
	pending    PendingCommand

	nextSample time.Time
	nextBlink  time.Time
	ledOn      bool
	counts     logic.Counts
	lastChange time.Time
}

// NewGarden creates a controller and drives the valve to its initial closed
// state.
func NewGarden(cfg GardenConfig, env Env, channels []MoistureChannel, hw GardenIO) (*Garden, error) {
	cfg.applyDefaults()
	if hw.Valve == nil {
		return nil, errors.New("garden: valve output required")
	}
	if cfg.AutoWater && cfg.AutoLow >= cfg.AutoHigh {
		return nil, fmt.Errorf("garden: auto-water low %.1f must be below high %.1f", cfg.AutoLow, cfg.AutoHigh)
	}

	g := &Garden{
		cfg:      cfg,
		env:      env,
		log:      env.logger(mqtt.Normalize(cfg.Name)),
		io:       hw,
		valveID:  mqtt.Normalize(cfg.ValveName),
		valve:    logic.NewSwitchMachine(hw.Valve),
		override: logic.NewDurationDebouncer(cfg.OverrideDebounce),
	}
	for i, ch := range channels {
		name := ch.Name
		if name == "" {
			name = fmt.Sprintf("Garden Moisture %d", i+1)
		}
		g.sensors = append(g.sensors, &moistureSensor{
			id:     mqtt.Normalize(name),
			name:   name,
			filter: logic.NewFilter(ch.Source, cfg.Window, 0),
		})
	}
	if cfg.AutoWater {
		g.hysteresis = &logic.Hysteresis{Low: cfg.AutoLow, High: cfg.AutoHigh}
	}

	if err := g.valve.Sync(); err != nil {
		return nil, fmt.Errorf("garden: close valve: %w", err)
	}
	return g, nil
}

// ID returns the normalized system name.
func (g *Garden) ID() string { return mqtt.Normalize(g.cfg.Name) }

// Valve exposes the valve state machine.
func (g *Garden) Valve() *logic.SwitchMachine { return g.valve }

// Moisture returns the current moisture percentage of each probe.
func (g *Garden) Moisture() []float64 {
	out := make([]float64, len(g.sensors))
	for i, s := range g.sensors {
		out[i] = s.moisture
	}
	return out
}

func (g *Garden) sensorTopic(s *moistureSensor) string {
	return g.env.Topics.Path("garden", s.id)
}

func (g *Garden) valveTopic() string {
	return g.env.Topics.Path("garden", g.valveID)
}

// CommandTopics lists the valve command topic.
func (g *Garden) CommandTopics() []string {
	return []string{g.env.Topics.Path("garden", g.valveID, "command")}
}

// Post queues a valve command for the next tick.
func (g *Garden) Post(cmd logic.TimedCommand) {
	if g.pending.Offer(cmd) {
		g.log.Debugw("pending command replaced", "command", cmd.Command)
	}
}

// Tick samples the probes when due, applies the override switch, pending
// commands and auto-water, toggles the status LED and returns a valve report
// if the valve changed.
func (g *Garden) Tick(now time.Time) []mqtt.Message {
	changed := false

	if !now.Before(g.nextSample) {
		g.nextSample = now.Add(g.cfg.Sample)
		g.sample(now)
		changed = g.autoWater() || changed
	}

	if g.io.Override != nil {
		changed = g.readOverride(now) || changed
	}

	if cmd, ok := g.pending.Next(); ok {
		changed = g.command(cmd.Command, "mqtt") || changed
	}

	if g.io.LED != nil && !now.Before(g.nextBlink) {
		g.nextBlink = now.Add(g.cfg.Blink)
		g.ledOn = !g.ledOn
		if err := g.io.LED.Set(g.ledOn); err != nil {
			g.log.Debugw("status led", "error", err)
		}
	}

	if !changed {
		return nil
	}
	g.lastChange = now
	g.counts.Reports++
	return g.valveMessages()
}

func (g *Garden) sample(now time.Time) {
	for _, s := range g.sensors {
		smp := s.filter.Read(now)
		s.last = smp
		if !smp.OK {
			s.errors++
			g.counts.ReadErrors++
			s.health.fail(g.log.With("probe", s.id), smp.Err)
			continue
		}
		s.health.ok(g.log.With("probe", s.id))
		s.moisture = logic.Moisture(smp.Mean, g.cfg.Dry, g.cfg.Wet)
	}
}

// filled reports whether every probe has a full averaging window.
func (g *Garden) filled() bool {
	for _, s := range g.sensors {
		if !s.filter.Filled() {
			return false
		}
	}
	return len(g.sensors) > 0
}

func (g *Garden) autoWater() bool {
	if g.hysteresis == nil || !g.filled() {
		return false
	}
	var sum float64
	for _, s := range g.sensors {
		sum += s.moisture
	}
	avg := sum / float64(len(g.sensors))

	before := g.valve.Auto()
	changed, err := g.valve.SetAuto(g.hysteresis.Update(avg))
	if err != nil {
		g.log.Warnw("valve auto-water failed", "error", err)
		return false
	}
	if before != g.valve.Auto() {
		g.log.Infow("auto-water", "on", g.valve.Auto(), "moisture", round(avg, 1))
		return true
	}
	return changed
}

func (g *Garden) readOverride(now time.Time) bool {
	on, err := g.io.Override.Read()
	if err != nil {
		return false
	}
	c, ok := g.override.Update(on, now)
	if !ok {
		return false
	}
	cmd := logic.CommandOff
	if c.Value {
		cmd = logic.CommandOn
	}
	return g.command(cmd, "switch")
}

// command applies an override command and reports whether the valve level
// or override flag changed.
func (g *Garden) command(cmd logic.Command, cause string) bool {
	before := g.valve.Override()
	changed, err := g.valve.Command(cmd)
	if err != nil {
		g.log.Warnw("valve command failed", "command", cmd, "cause", cause, "error", err)
		return false
	}
	if before == g.valve.Override() {
		return changed
	}
	g.log.Infow("valve override", "command", cmd, "cause", cause, "on", g.valve.On())
	return true
}

type moisturePayload struct {
	Moisture       float64 `json:"moisture"`
	VoltageAverage float64 `json:"voltage_average"`
	Voltage        float64 `json:"voltage"`
}

type valvePayload struct {
	State    string `json:"state"`
	Override bool   `json:"override"`
	Auto     bool   `json:"auto"`
}

func (g *Garden) valveMessages() []mqtt.Message {
	msg, err := mqtt.JSON(g.valveTopic(), valvePayload{
		State:    onOff(g.valve.On()),
		Override: g.valve.Override(),
		Auto:     g.valve.Auto(),
	})
	if err != nil {
		g.log.Errorw("encode valve state", "error", err)
		return nil
	}
	return []mqtt.Message{msg}
}

// Heartbeat reports every probe and the valve.
func (g *Garden) Heartbeat(time.Time) []mqtt.Message {
	var out []mqtt.Message
	for _, s := range g.sensors {
		msg, err := mqtt.JSON(g.sensorTopic(s), moisturePayload{
			Moisture:       round(s.moisture, 2),
			VoltageAverage: round(s.filter.Mean(), 3),
			Voltage:        round(s.last.Raw, 3),
		})
		if err != nil {
			g.log.Errorw("encode moisture", "probe", s.id, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return append(out, g.valveMessages()...)
}

func (g *Garden) deviceInfo() mqtt.DeviceInfo {
	id := mqtt.Normalize(g.cfg.Name)
	return mqtt.DeviceInfo{Identifiers: id, Name: g.cfg.Name, Model: g.cfg.Name}
}

// Descriptors announces each probe as a moisture sensor and the valve as a
// switch, grouped under one device.
func (g *Garden) Descriptors() []mqtt.Descriptor {
	var out []mqtt.Descriptor
	for _, s := range g.sensors {
		out = append(out, mqtt.Descriptor{
			Component:         mqtt.ComponentSensor,
			ObjectID:          s.id,
			Name:              s.name,
			UniqueID:          s.id,
			DeviceClass:       "moisture",
			Icon:              "mdi:water-percent",
			Unit:              "%",
			StateTopic:        g.sensorTopic(s),
			AvailabilityTopic: g.env.Availability,
			ValueTemplate:     "{{ value_json.moisture }}",
			Device:            g.deviceInfo(),
		})
	}
	return append(out, mqtt.Descriptor{
		Component:         mqtt.ComponentSwitch,
		ObjectID:          g.valveID,
		Name:              g.cfg.ValveName,
		UniqueID:          g.valveID,
		DeviceClass:       "switch",
		Icon:              "mdi:pipe-valve",
		StateTopic:        g.valveTopic(),
		CommandTopic:      g.CommandTopics()[0],
		AvailabilityTopic: g.env.Availability,
		ValueTemplate:     "{{ value_json.state }}",
		Device:            g.deviceInfo(),
	})
}

// Status returns one entry per probe plus the valve.
func (g *Garden) Status() []status.Device {
	var out []status.Device
	for _, s := range g.sensors {
		out = append(out, status.Device{
			ID:     s.id,
			Name:   s.name,
			Kind:   "moisture",
			State:  fmt.Sprintf("%.1f%%", s.moisture),
			Ready:  s.filter.Filled(),
			Counts: logic.Counts{ReadErrors: s.errors},
			Attributes: map[string]string{
				"voltage":         fmt.Sprintf("%.3f", s.last.Raw),
				"voltage_average": fmt.Sprintf("%.3f", s.filter.Mean()),
			},
		})
	}
	return append(out, status.Device{
		ID:         g.valveID,
		Name:       g.cfg.ValveName,
		Kind:       "valve",
		State:      onOff(g.valve.On()),
		Ready:      true,
		Counts:     g.counts,
		LastChange: g.lastChange,
		Attributes: map[string]string{
			"override": fmt.Sprint(g.valve.Override()),
			"auto":     fmt.Sprint(g.valve.Auto()),
		},
	})
}
