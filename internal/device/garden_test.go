package device

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/home-sensors/internal/gpio"
	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
)

type gardenRig struct {
	garden *Garden
	valve  *gpio.FakeOutput
	led    *gpio.FakeOutput
	probes []*scriptedSource
}

func newGardenRig(t *testing.T, cfg GardenConfig, volts ...float64) *gardenRig {
	t.Helper()
	r := &gardenRig{valve: gpio.NewFakeOutput(), led: gpio.NewFakeOutput()}
	var channels []MoistureChannel
	for _, v := range volts {
		src := &scriptedSource{values: []float64{v}}
		r.probes = append(r.probes, src)
		channels = append(channels, MoistureChannel{Source: src.read})
	}
	g, err := NewGarden(cfg, testEnv(), channels, GardenIO{Valve: r.valve, LED: r.led})
	require.NoError(t, err)
	r.garden = g
	return r
}

func (r *gardenRig) run(from, to int) []mqtt.Message {
	var out []mqtt.Message
	for ms := from; ms <= to; ms += 50 {
		out = append(out, r.garden.Tick(at(ms))...)
	}
	return out
}

func decodeValve(t *testing.T, m mqtt.Message) valvePayload {
	t.Helper()
	var v valvePayload
	require.NoError(t, json.Unmarshal(m.Payload, &v))
	return v
}

func TestNewGardenClosesValve(t *testing.T) {
	r := newGardenRig(t, GardenConfig{}, 2.0)
	assert.Equal(t, []bool{false}, r.valve.Levels())
	assert.Equal(t, "garden_watering_system", r.garden.ID())
	assert.Equal(t, []string{"homeassistant/garden/garden_watering_valve/command"}, r.garden.CommandTopics())
}

func TestNewGardenValidation(t *testing.T) {
	_, err := NewGarden(GardenConfig{}, testEnv(), nil, GardenIO{})
	assert.Error(t, err, "valve is required")

	_, err = NewGarden(GardenConfig{AutoWater: true, AutoLow: 60, AutoHigh: 30}, testEnv(), nil,
		GardenIO{Valve: gpio.NewFakeOutput()})
	assert.Error(t, err)

	out := gpio.NewFakeOutput()
	out.SetError = errors.New("gpio")
	_, err = NewGarden(GardenConfig{}, testEnv(), nil, GardenIO{Valve: out})
	assert.Error(t, err)
}

func TestGardenMoistureSampledOncePerInterval(t *testing.T) {
	r := newGardenRig(t, GardenConfig{Window: 4}, 2.55, 4.1)

	r.run(0, 2950)
	assert.Equal(t, 3, r.probes[0].calls, "one read per second")
	m := r.garden.Moisture()
	assert.InDelta(t, 50.0, m[0], 1e-9)
	assert.InDelta(t, 0.0, m[1], 1e-9)
}

func TestGardenValveCommand(t *testing.T) {
	r := newGardenRig(t, GardenConfig{}, 2.0)
	r.run(0, 100)

	r.garden.Post(logic.TimedCommand{Command: logic.CommandOn, Received: at(150)})
	msgs := r.garden.Tick(at(150))
	require.Len(t, msgs, 1)
	assert.Equal(t, "homeassistant/garden/garden_watering_valve", msgs[0].Topic)
	assert.Equal(t, valvePayload{State: "ON", Override: true}, decodeValve(t, msgs[0]))
	assert.True(t, r.valve.Level())

	r.garden.Post(logic.TimedCommand{Command: logic.CommandOn, Received: at(200)})
	assert.Empty(t, r.garden.Tick(at(200)), "repeated ON is idempotent")

	r.garden.Post(logic.TimedCommand{Command: logic.CommandOpen, Received: at(250)})
	assert.Empty(t, r.garden.Tick(at(250)), "cover commands do not apply to the valve")

	r.garden.Post(logic.TimedCommand{Command: logic.CommandOff, Received: at(300)})
	msgs = r.garden.Tick(at(300))
	require.Len(t, msgs, 1)
	assert.Equal(t, "OFF", decodeValve(t, msgs[0]).State)
	assert.False(t, r.valve.Level())
}

func TestGardenAutoWater(t *testing.T) {
	r := newGardenRig(t, GardenConfig{Window: 2, AutoWater: true, AutoLow: 30, AutoHigh: 60}, 4.1, 4.1)

	msgs := r.run(0, 950)
	assert.Empty(t, msgs, "no decision before every window is full")

	msgs = r.run(1000, 1000)
	require.Len(t, msgs, 1)
	assert.Equal(t, valvePayload{State: "ON", Auto: true}, decodeValve(t, msgs[0]))

	// Soil gets wet: 1.0 V is 100%. The average leaves the band after the
	// window refills.
	for _, p := range r.probes {
		p.values = []float64{1.0}
		p.calls = 0
	}
	msgs = r.run(2000, 2000)
	assert.Empty(t, msgs, "a half-wet window reads 50%, inside the band")
	msgs = r.run(3000, 3000)
	require.Len(t, msgs, 1)
	assert.Equal(t, valvePayload{State: "OFF"}, decodeValve(t, msgs[0]))
}

func TestGardenFailedCommandLeavesValveClosed(t *testing.T) {
	r := newGardenRig(t, GardenConfig{Window: 2, AutoWater: true, AutoLow: 30, AutoHigh: 60}, 1.0, 1.0)
	assert.Empty(t, r.run(0, 1000), "wet soil keeps auto-water off")

	r.valve.SetError = errors.New("gpio")
	r.garden.Post(logic.TimedCommand{Command: logic.CommandOn, Received: at(1050)})
	assert.Empty(t, r.garden.Tick(at(1050)))
	assert.False(t, r.garden.Valve().Override())

	r.valve.SetError = nil
	assert.Empty(t, r.run(1100, 3000), "later samples must not apply the failed command")
	assert.False(t, r.valve.Level())
	assert.False(t, r.garden.Valve().On())
}

func TestGardenOverrideSwitch(t *testing.T) {
	sw := &levelReader{}
	valve := gpio.NewFakeOutput()
	g, err := NewGarden(GardenConfig{OverrideDebounce: 200 * time.Millisecond}, testEnv(), nil,
		GardenIO{Valve: valve, Override: sw})
	require.NoError(t, err)

	for ms := 0; ms <= 300; ms += 50 {
		assert.Empty(t, g.Tick(at(ms)), "switch off at startup changes nothing")
	}

	sw.level = true
	var msgs []mqtt.Message
	for ms := 350; ms <= 600; ms += 50 {
		msgs = append(msgs, g.Tick(at(ms))...)
	}
	require.Len(t, msgs, 1)
	assert.True(t, valve.Level())
	assert.True(t, g.Valve().Override())
}

func TestGardenStatusLEDBlinks(t *testing.T) {
	r := newGardenRig(t, GardenConfig{}, 2.0)
	r.run(0, 2250)
	assert.Equal(t, []bool{true, false, true, false}, r.led.Levels())
}

func TestGardenHeartbeat(t *testing.T) {
	r := newGardenRig(t, GardenConfig{Window: 2}, 2.55, 1.0)
	r.run(0, 1000)

	msgs := r.garden.Heartbeat(at(1000))
	require.Len(t, msgs, 3)
	assert.Equal(t, "homeassistant/garden/garden_moisture_1", msgs[0].Topic)
	assert.Equal(t, "homeassistant/garden/garden_moisture_2", msgs[1].Topic)
	assert.Equal(t, "homeassistant/garden/garden_watering_valve", msgs[2].Topic)

	var m moisturePayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &m))
	assert.Equal(t, moisturePayload{Moisture: 50, VoltageAverage: 2.55, Voltage: 2.55}, m)
}

func TestGardenDescriptorsAndStatus(t *testing.T) {
	r := newGardenRig(t, GardenConfig{Window: 2}, 2.0, 2.0)

	ds := r.garden.Descriptors()
	require.Len(t, ds, 3)
	assert.Equal(t, mqtt.ComponentSensor, ds[0].Component)
	assert.Equal(t, "moisture", ds[0].DeviceClass)
	assert.Equal(t, mqtt.ComponentSwitch, ds[2].Component)
	assert.Equal(t, r.garden.CommandTopics()[0], ds[2].CommandTopic)
	assert.Equal(t, ds[0].Device, ds[2].Device, "probes and valve share one device")

	st := r.garden.Status()
	require.Len(t, st, 3)
	assert.False(t, st[0].Ready, "window not yet filled")
	r.run(0, 1000)
	st = r.garden.Status()
	assert.True(t, st[0].Ready)
	assert.Equal(t, "valve", st[2].Kind)
	assert.Equal(t, "OFF", st[2].State)
}
