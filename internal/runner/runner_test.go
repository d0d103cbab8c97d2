package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/status"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// fakeDevice records how the loop drives it.
type fakeDevice struct {
	mu           sync.Mutex
	id           string
	ticks        int
	heartbeats   int
	recalibrated int
	posted       []logic.TimedCommand
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) Descriptors() []mqtt.Descriptor {
	return []mqtt.Descriptor{{
		Component:  mqtt.ComponentBinarySensor,
		ObjectID:   d.id,
		Name:       d.id,
		UniqueID:   d.id,
		StateTopic: "homeassistant/fake/" + d.id,
	}}
}

func (d *fakeDevice) Tick(time.Time) []mqtt.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++
	return []mqtt.Message{mqtt.Text("homeassistant/fake/"+d.id, "tick")}
}

func (d *fakeDevice) Heartbeat(time.Time) []mqtt.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heartbeats++
	return []mqtt.Message{mqtt.Text("homeassistant/fake/"+d.id, "heartbeat")}
}

func (d *fakeDevice) Status() []status.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []status.Device{{
		ID:     d.id,
		Name:   d.id,
		Kind:   "fake",
		State:  "ok",
		Ready:  true,
		Counts: logic.Counts{Reports: d.ticks},
	}}
}

func (d *fakeDevice) CommandTopics() []string { return []string{"homeassistant/fake/" + d.id + "/set"} }

func (d *fakeDevice) Post(cmd logic.TimedCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posted = append(d.posted, cmd)
}

func (d *fakeDevice) Recalibrate(time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recalibrated++
}

func (d *fakeDevice) snapshot() (ticks, heartbeats, recalibrated int, posted []logic.TimedCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks, d.heartbeats, d.recalibrated, append([]logic.TimedCommand(nil), d.posted...)
}

// fakeRadio consumes telemetry and echoes it.
type fakeRadio struct {
	mu       sync.Mutex
	payloads []string
}

func (f *fakeRadio) ID() string                         { return "radio" }
func (f *fakeRadio) Descriptors() []mqtt.Descriptor     { return nil }
func (f *fakeRadio) Tick(time.Time) []mqtt.Message      { return nil }
func (f *fakeRadio) Heartbeat(time.Time) []mqtt.Message { return nil }
func (f *fakeRadio) Status() []status.Device            { return nil }
func (f *fakeRadio) TelemetryTopics() []string          { return []string{"rtl_433"} }
func (f *fakeRadio) Announced() []mqtt.Message          { return []mqtt.Message{mqtt.Text("radio/announced", "1")} }

func (f *fakeRadio) Telemetry(_ string, payload []byte, _ time.Time) ([]mqtt.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, string(payload))
	if string(payload) == "bad" {
		return nil, errors.New("bad decode")
	}
	return []mqtt.Message{mqtt.Text("radio/out", string(payload))}, nil
}

type rig struct {
	runner    *Runner
	client    *mqtt.FakeClient
	tracker   *status.Tracker
	poll      chan time.Time
	heartbeat chan time.Time
	recal     chan time.Time
	cancel    context.CancelCauseFunc
	done      chan error
}

func newRig(t *testing.T, devices ...Device) *rig {
	t.Helper()
	client := mqtt.NewFakeClient()
	tracker := status.NewTracker(t0, status.Config{Mode: "test"})
	r, err := New(Config{Node: "Test Node", Topics: mqtt.NewTopics("")}, client, tracker, nil, devices...)
	require.NoError(t, err)
	r.now = func() time.Time { return t0 }

	ctx, cancel := context.WithCancelCause(context.Background())
	rg := &rig{
		runner:    r,
		client:    client,
		tracker:   tracker,
		poll:      make(chan time.Time),
		heartbeat: make(chan time.Time),
		recal:     make(chan time.Time),
		cancel:    cancel,
		done:      make(chan error, 1),
	}
	go func() {
		rg.done <- r.Run(ctx, Ticks{Poll: rg.poll, Heartbeat: rg.heartbeat, Recalibrate: rg.recal})
	}()
	t.Cleanup(func() { rg.stop(t, nil) })
	return rg
}

func (rg *rig) stop(t *testing.T, cause error) {
	t.Helper()
	if rg.done == nil {
		return
	}
	rg.cancel(cause)
	select {
	case err := <-rg.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	rg.done = nil
}

func statusEvent(t *testing.T, m mqtt.Message) status.StatusInner {
	t.Helper()
	var s status.StatusJSON
	require.NoError(t, json.Unmarshal(m.Payload, &s))
	return s.Status
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New(Config{}, mqtt.NewFakeClient(), nil, nil, &fakeDevice{id: "a"}, &fakeDevice{id: "a"})
	assert.Error(t, err)

	_, err = New(Config{}, mqtt.NewFakeClient(), nil, nil)
	assert.Error(t, err)
}

func TestStartupSubscribesAndAnnounces(t *testing.T) {
	dev := &fakeDevice{id: "door"}
	rg := newRig(t, dev, &fakeRadio{})
	rg.poll <- t0 // loop is running once the tick is accepted

	assert.ElementsMatch(t, []string{
		"homeassistant/register",
		"homeassistant/fake/door/set",
		"rtl_433",
	}, rg.client.Subscriptions())

	cfg := rg.client.On("homeassistant/binary_sensor/door/config")
	require.Len(t, cfg, 1)
	assert.True(t, cfg[0].Retained)
	assert.Len(t, rg.client.On("radio/announced"), 1)

	events := rg.client.On("homeassistant/status/test_node")
	require.Len(t, events, 1)
	assert.True(t, events[0].Retained)
	assert.Equal(t, EventStartup, statusEvent(t, events[0]).Event)
}

func TestPollTicksDriveDevices(t *testing.T) {
	dev := &fakeDevice{id: "door"}
	rg := newRig(t, dev)

	rg.poll <- t0
	rg.poll <- t0
	rg.poll <- t0 // the third send returns once the second tick was handled

	ticks, _, _, _ := dev.snapshot()
	assert.GreaterOrEqual(t, ticks, 2)

	snap := rg.tracker.Snapshot()
	d, ok := snap.Device("door")
	require.True(t, ok)
	assert.Equal(t, "ok", d.State)
	assert.True(t, snap.MQTTConnected)
}

func TestHeartbeatPublishesStatusEvent(t *testing.T) {
	dev := &fakeDevice{id: "door"}
	rg := newRig(t, dev)

	rg.heartbeat <- t0
	rg.poll <- t0

	_, heartbeats, _, _ := dev.snapshot()
	assert.Equal(t, 2, heartbeats, "one from the startup announcement, one from the tick")

	events := rg.client.On("homeassistant/status/test_node")
	require.Len(t, events, 2)
	assert.Equal(t, EventHeartbeat, statusEvent(t, events[1]).Event)
}

func TestRecalibrateReachesRecalibrators(t *testing.T) {
	dev := &fakeDevice{id: "bell"}
	rg := newRig(t, dev, &fakeRadio{})

	rg.recal <- t0
	rg.poll <- t0

	_, _, recalibrated, _ := dev.snapshot()
	assert.Equal(t, 1, recalibrated)
}

func TestCommandsArePostedInOrder(t *testing.T) {
	dev := &fakeDevice{id: "door"}
	rg := newRig(t, dev)
	rg.poll <- t0

	require.Equal(t, 1, rg.client.Deliver("homeassistant/fake/door/set", []byte("open")))
	require.Equal(t, 1, rg.client.Deliver("homeassistant/fake/door/set", []byte("BOGUS")))
	require.Equal(t, 1, rg.client.Deliver("homeassistant/fake/door/set", []byte("CLOSE")))

	require.Eventually(t, func() bool {
		_, _, _, posted := dev.snapshot()
		return len(posted) == 2
	}, time.Second, 5*time.Millisecond)

	_, _, _, posted := dev.snapshot()
	assert.Equal(t, logic.CommandOpen, posted[0].Command)
	assert.Equal(t, logic.CommandClose, posted[1].Command)
	assert.Equal(t, t0, posted[0].Received)
}

func TestRegisterRequestReannounces(t *testing.T) {
	rg := newRig(t, &fakeDevice{id: "door"})
	rg.poll <- t0

	rg.client.Deliver("homeassistant/register", nil)

	require.Eventually(t, func() bool {
		return len(rg.client.On("homeassistant/binary_sensor/door/config")) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTelemetryIsForwarded(t *testing.T) {
	radio := &fakeRadio{}
	rg := newRig(t, radio)
	rg.poll <- t0

	rg.client.Deliver("rtl_433", []byte("bad"))
	rg.client.Deliver("rtl_433", []byte("good"))

	require.Eventually(t, func() bool {
		return len(rg.client.On("radio/out")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "good", string(rg.client.On("radio/out")[0].Payload))
}

func TestPublishFailuresDoNotStopTheLoop(t *testing.T) {
	dev := &fakeDevice{id: "door"}
	rg := newRig(t, dev)
	rg.poll <- t0

	rg.client.SetPublishError(errors.New("broker down"))
	rg.poll <- t0
	rg.poll <- t0
	rg.poll <- t0

	ticks, _, _, _ := dev.snapshot()
	assert.GreaterOrEqual(t, ticks, 3)
}

func TestShutdownReportsCause(t *testing.T) {
	rg := newRig(t, &fakeDevice{id: "door"})
	rg.poll <- t0

	rg.stop(t, errors.New("SIGTERM"))

	events := rg.client.On("homeassistant/status/test_node")
	require.Len(t, events, 2)
	last := statusEvent(t, events[1])
	assert.Equal(t, EventShutdown, last.Event)
	assert.Equal(t, "SIGTERM", last.Reason)
}

func TestShutdownWithoutCause(t *testing.T) {
	rg := newRig(t, &fakeDevice{id: "door"})
	rg.poll <- t0

	rg.stop(t, nil)

	events := rg.client.On("homeassistant/status/test_node")
	require.Len(t, events, 2)
	assert.Empty(t, statusEvent(t, events[1]).Reason)
}
