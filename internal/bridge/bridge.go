// Package bridge forwards rtl_433 radio decodes to Home Assistant, announcing
// each newly seen transmitter on first sight.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/registry"
	"github.com/sweeney/home-sensors/internal/status"
)

// Decoder models handled by the bridge.
const (
	ModelAcuriteTower  = "Acurite-Tower"
	ModelGenericRemote = "Generic-Remote"
	ModelSmokeGS558    = "Smoke-GS558"
)

// Generic-Remote door sensor codes.
const (
	DoorOpenCode   = 115
	DoorClosedCode = 121
)

// DefaultSourceTopic is where rtl_433 publishes decodes.
const DefaultSourceTopic = "rtl_433"

// Config configures a Bridge.
type Config struct {
	SourceTopic string
	// Acurite readings outside (MinTempF, MaxTempF) are dropped as decode
	// errors.
	MinTempF float64
	MaxTempF float64
}

// Temperature bounds used when none are configured.
const (
	DefaultMinTempF = -20
	DefaultMaxTempF = 120
)

// ErrNoID is returned for decodes without a transmitter id.
var ErrNoID = errors.New("decode has no id")

// Bridge turns rtl_433 decodes into Home Assistant state and discovery
// messages. Known transmitters are tracked in one registry per model.
type Bridge struct {
	cfg    Config
	topics mqtt.Topics
	log    *zap.SugaredLogger

	towers  *registry.Registry
	remotes *registry.Registry
	buttons *registry.Registry

	counts   logic.Counts
	dropped  int
	lastSeen time.Time
}

// New creates a bridge.
func New(cfg Config, topics mqtt.Topics, log *zap.SugaredLogger) *Bridge {
	if cfg.SourceTopic == "" {
		cfg.SourceTopic = DefaultSourceTopic
	}
	if cfg.MinTempF == 0 && cfg.MaxTempF == 0 {
		cfg.MinTempF, cfg.MaxTempF = DefaultMinTempF, DefaultMaxTempF
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{
		cfg:     cfg,
		topics:  topics,
		log:     log.Named("bridge"),
		towers:  registry.New("acurite-tower"),
		remotes: registry.New("generic-remote"),
		buttons: registry.New("button"),
	}
}

// ID identifies the bridge in status output.
func (b *Bridge) ID() string { return "rtl_433_bridge" }

// TelemetryTopics lists the topics the bridge consumes.
func (b *Bridge) TelemetryTopics() []string { return []string{b.cfg.SourceTopic} }

// decode is the subset of an rtl_433 JSON decode the bridge inspects. The
// raw decode is forwarded untouched.
type decode struct {
	Model        string          `json:"model"`
	ID           json.RawMessage `json:"id"`
	TemperatureC *float64        `json:"temperature_C"`
}

// transmitterID renders the id whether rtl_433 sent it as a number or a
// string.
func (d decode) transmitterID() (string, bool) {
	raw := bytes.TrimSpace(d.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	return string(raw), true
}

// Telemetry handles one decode. Unknown models are ignored.
func (b *Bridge) Telemetry(topic string, payload []byte, now time.Time) ([]mqtt.Message, error) {
	var d decode
	if err := json.Unmarshal(payload, &d); err != nil {
		b.dropped++
		return nil, fmt.Errorf("decode %s payload: %w", topic, err)
	}

	var msgs []mqtt.Message
	var err error
	switch d.Model {
	case ModelAcuriteTower:
		msgs, err = b.tower(d, payload)
	case ModelGenericRemote:
		msgs, err = b.remote(d, payload)
	case ModelSmokeGS558:
		msgs, err = b.button(d, payload)
	default:
		return nil, nil
	}
	if err != nil {
		b.dropped++
		return msgs, fmt.Errorf("%s: %w", d.Model, err)
	}
	b.lastSeen = now
	b.counts.Reports++
	return msgs, nil
}

func (b *Bridge) tower(d decode, payload []byte) ([]mqtt.Message, error) {
	id, ok := d.transmitterID()
	if !ok {
		return nil, ErrNoID
	}
	var msgs []mqtt.Message
	if b.towers.RegisterIfAbsent(id) {
		b.log.Infow("registering transmitter", "model", d.Model, "id", id)
		msgs = append(msgs, b.encode(towerDescriptors(b.topics, id))...)
	}
	if d.TemperatureC == nil {
		return msgs, errors.New("no temperature")
	}
	f := *d.TemperatureC*9/5 + 32
	if f <= b.cfg.MinTempF || f >= b.cfg.MaxTempF {
		return msgs, fmt.Errorf("temperature %.1fF out of range", f)
	}
	b.log.Debugw("forwarding", "model", d.Model, "id", id)
	return append(msgs, mqtt.Message{Topic: towerTopic(b.topics, id), Payload: payload}), nil
}

func (b *Bridge) remote(d decode, payload []byte) ([]mqtt.Message, error) {
	id, ok := d.transmitterID()
	if !ok {
		return nil, ErrNoID
	}
	var msgs []mqtt.Message
	if b.remotes.RegisterIfAbsent(id) {
		b.log.Infow("registering transmitter", "model", d.Model, "id", id)
		msgs = append(msgs, b.encode(remoteDescriptors(b.topics, id))...)
	}
	b.log.Debugw("forwarding", "model", d.Model, "id", id)
	return append(msgs, mqtt.Message{Topic: remoteTopic(b.topics, id), Payload: payload}), nil
}

// button forwards a press as a pressed report immediately followed by a
// released one.
func (b *Bridge) button(d decode, payload []byte) ([]mqtt.Message, error) {
	id, ok := d.transmitterID()
	if !ok {
		return nil, ErrNoID
	}
	var msgs []mqtt.Message
	if b.buttons.RegisterIfAbsent(id) {
		b.log.Infow("registering transmitter", "model", d.Model, "id", id)
		msgs = append(msgs, b.encode(buttonDescriptors(b.topics, id))...)
		msgs = append(msgs, b.released(id)...)
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return msgs, err
	}
	for _, press := range []bool{true, false} {
		doc["press"] = press
		m, err := mqtt.JSON(buttonTopic(b.topics, id), doc)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	b.log.Debugw("forwarding", "model", d.Model, "id", id)
	return msgs, nil
}

func (b *Bridge) released(id string) []mqtt.Message {
	m, err := mqtt.JSON(buttonTopic(b.topics, id), map[string]any{
		"model": ModelSmokeGS558,
		"id":    id,
		"press": false,
	})
	if err != nil {
		return nil
	}
	return []mqtt.Message{m}
}

func (b *Bridge) encode(ds []mqtt.Descriptor) []mqtt.Message {
	var out []mqtt.Message
	for _, d := range ds {
		m, err := b.topics.DescriptorMessage(d)
		if err != nil {
			b.log.Errorw("encode descriptor", "object_id", d.ObjectID, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Descriptors returns the descriptors of every known transmitter.
func (b *Bridge) Descriptors() []mqtt.Descriptor {
	var out []mqtt.Descriptor
	for _, id := range b.towers.IDs() {
		out = append(out, towerDescriptors(b.topics, id)...)
	}
	for _, id := range b.remotes.IDs() {
		out = append(out, remoteDescriptors(b.topics, id)...)
	}
	for _, id := range b.buttons.IDs() {
		out = append(out, buttonDescriptors(b.topics, id)...)
	}
	return out
}

// Announced returns the state messages that follow a re-announcement: door
// sensors are reset to closed and buttons to released.
func (b *Bridge) Announced() []mqtt.Message {
	var out []mqtt.Message
	for _, id := range b.remotes.IDs() {
		m, err := mqtt.JSON(remoteTopic(b.topics, id), map[string]int{"cmd": DoorClosedCode})
		if err == nil {
			out = append(out, m)
		}
	}
	for _, id := range b.buttons.IDs() {
		out = append(out, b.released(id)...)
	}
	return out
}

// Tick is a no-op; the bridge is driven by telemetry.
func (b *Bridge) Tick(time.Time) []mqtt.Message { return nil }

// Heartbeat is a no-op; transmitters report on their own schedule.
func (b *Bridge) Heartbeat(time.Time) []mqtt.Message { return nil }

// Status summarises the bridge.
func (b *Bridge) Status() []status.Device {
	counts := b.counts
	counts.ReadErrors = b.dropped
	return []status.Device{{
		ID:         b.ID(),
		Name:       "rtl_433 bridge",
		Kind:       "bridge",
		State:      fmt.Sprintf("%d transmitters", b.towers.Len()+b.remotes.Len()+b.buttons.Len()),
		Ready:      true,
		Counts:     counts,
		LastChange: b.lastSeen,
		Attributes: map[string]string{
			b.towers.Kind():  fmt.Sprint(b.towers.IDs()),
			b.remotes.Kind(): fmt.Sprint(b.remotes.IDs()),
			b.buttons.Kind(): fmt.Sprint(b.buttons.IDs()),
		},
	}}
}
