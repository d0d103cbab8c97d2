package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingActuator struct {
	pulses int
	err    error
}

func (a *countingActuator) Pulse() error {
	if a.err != nil {
		return a.err
	}
	a.pulses++
	return nil
}

func newMachine(interval time.Duration) (*PositionMachine, *countingActuator) {
	act := &countingActuator{}
	return NewPositionMachine(NewTriggerGuard(act, interval)), act
}

// machineIn drives a fresh machine into state without pulsing where possible.
func machineIn(t *testing.T, state Position) (*PositionMachine, *countingActuator) {
	t.Helper()
	m, act := newMachine(5 * time.Second)
	switch state {
	case PositionUnknown:
	case PositionClosed:
		m.Observe(false, t0)
	case PositionOpen:
		m.Observe(true, t0)
	case PositionOpening:
		m.Observe(false, t0)
		m.Command(CommandOpen, t0)
	case PositionClosing:
		m.Observe(true, t0)
		m.Command(CommandClose, t0)
	}
	require.Equal(t, state, m.State())
	act.pulses = 0
	return m, act
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "unknown", PositionUnknown.String())
	assert.Equal(t, "closed", PositionClosed.String())
	assert.Equal(t, "open", PositionOpen.String())
	assert.Equal(t, "opening", PositionOpening.String())
	assert.Equal(t, "closing", PositionClosing.String())
	assert.Equal(t, "unknown", Position(42).String())
}

func TestPositionObserveTable(t *testing.T) {
	tests := []struct {
		from    Position
		atOpen  bool
		want    Position
		anomaly bool
	}{
		{PositionUnknown, true, PositionOpen, false},
		{PositionUnknown, false, PositionClosed, false},
		{PositionClosed, true, PositionOpen, false},
		{PositionClosed, false, PositionClosed, false},
		{PositionOpen, true, PositionOpen, false},
		{PositionOpen, false, PositionClosed, false},
		{PositionOpening, true, PositionOpen, false},
		{PositionOpening, false, PositionOpening, false},
		{PositionClosing, true, PositionOpen, true},
		{PositionClosing, false, PositionClosed, false},
	}

	for _, tt := range tests {
		name := tt.from.String() + "/closed"
		if tt.atOpen {
			name = tt.from.String() + "/open"
		}
		t.Run(name, func(t *testing.T) {
			m, act := machineIn(t, tt.from)
			tr := m.Observe(tt.atOpen, t0.Add(time.Minute))
			assert.Equal(t, tt.from, tr.From)
			assert.Equal(t, tt.want, tr.To)
			assert.Equal(t, tt.want, m.State())
			assert.Equal(t, tt.anomaly, tr.Anomaly)
			assert.False(t, tr.Triggered)
			assert.Zero(t, act.pulses, "sensor input never pulses")
		})
	}
}

func TestPositionCommandTable(t *testing.T) {
	tests := []struct {
		from    Position
		cmd     Command
		want    Position
		trigger bool
	}{
		{PositionUnknown, CommandOpen, PositionOpening, true},
		{PositionUnknown, CommandClose, PositionClosing, true},
		{PositionUnknown, CommandStop, PositionUnknown, false},
		{PositionClosed, CommandOpen, PositionOpening, true},
		{PositionClosed, CommandClose, PositionClosed, false},
		{PositionClosed, CommandStop, PositionClosed, false},
		{PositionOpen, CommandOpen, PositionOpen, false},
		{PositionOpen, CommandClose, PositionClosing, true},
		{PositionOpen, CommandStop, PositionOpen, false},
		{PositionOpening, CommandOpen, PositionOpening, false},
		{PositionOpening, CommandClose, PositionClosing, true},
		{PositionOpening, CommandStop, PositionOpen, true},
		{PositionClosing, CommandOpen, PositionOpening, true},
		{PositionClosing, CommandClose, PositionClosing, false},
		{PositionClosing, CommandStop, PositionOpen, true},
		{PositionOpen, CommandOn, PositionOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+string(tt.cmd), func(t *testing.T) {
			m, act := machineIn(t, tt.from)
			// Far enough after setup that the guard is idle.
			tr := m.Command(tt.cmd, t0.Add(time.Minute))
			assert.Equal(t, tt.want, tr.To)
			assert.Equal(t, tt.want, m.State())
			assert.Equal(t, tt.trigger, tr.Triggered)
			assert.False(t, tr.Suppressed)
			if tt.trigger {
				assert.Equal(t, 1, act.pulses)
			} else {
				assert.Zero(t, act.pulses)
			}
		})
	}
}

func TestPositionScenarioStartupSettlesClosed(t *testing.T) {
	m, _ := newMachine(5 * time.Second)
	d := NewDurationDebouncer(2 * time.Second)

	var transitions []Transition
	for ms := 0; ms <= 3000; ms += 50 {
		now := at(ms)
		if c, ok := d.Update(false, now); ok {
			tr := m.Observe(c.Value, now)
			if tr.Changed() {
				transitions = append(transitions, tr)
			}
		}
	}

	require.Len(t, transitions, 1)
	assert.Equal(t, PositionUnknown, transitions[0].From)
	assert.Equal(t, PositionClosed, transitions[0].To)
}

func TestPositionScenarioGuardDropsRepeatOpen(t *testing.T) {
	m, act := machineIn(t, PositionClosed)

	tr := m.Command(CommandOpen, t0.Add(10*time.Second))
	require.True(t, tr.Triggered)
	assert.Equal(t, PositionOpening, m.State())

	// Re-issued after the state already says opening: ignored outright.
	tr = m.Command(CommandOpen, t0.Add(11*time.Second))
	assert.False(t, tr.Triggered)
	assert.Equal(t, PositionOpening, m.State())

	// A reversal inside the guard interval is refused.
	tr = m.Command(CommandClose, t0.Add(11*time.Second))
	assert.True(t, tr.Suppressed)
	assert.False(t, tr.Changed())
	assert.Equal(t, PositionOpening, m.State())
	assert.Equal(t, 1, act.pulses)
}

func TestPositionScenarioGuardRefusesSecondOpenFromClosed(t *testing.T) {
	m, act := machineIn(t, PositionClosed)

	m.Command(CommandOpen, t0.Add(10*time.Second))
	// Sensor bounced back to closed while the label said opening; the door is
	// then reported closed and a second OPEN arrives one second later.
	m.Observe(true, t0.Add(10*time.Second))
	m.Observe(false, t0.Add(10*time.Second))
	require.Equal(t, PositionClosed, m.State())

	tr := m.Command(CommandOpen, t0.Add(11*time.Second))
	assert.True(t, tr.Suppressed)
	assert.Equal(t, PositionClosed, m.State())
	assert.Equal(t, 1, act.pulses)
}

func TestPositionScenarioOpeningConfirmedBySensor(t *testing.T) {
	m, _ := machineIn(t, PositionOpening)

	tr := m.Observe(true, t0.Add(20*time.Second))
	assert.True(t, tr.Changed())
	assert.Equal(t, PositionOpen, m.State())

	tr = m.Command(CommandOpen, t0.Add(21*time.Second))
	assert.False(t, tr.Changed())
	assert.Equal(t, PositionOpen, m.State())
}

func TestPositionPulseFailureLeavesState(t *testing.T) {
	act := &countingActuator{err: errors.New("relay stuck")}
	m := NewPositionMachine(NewTriggerGuard(act, time.Second))
	m.Observe(false, t0)

	tr := m.Command(CommandOpen, t0)
	assert.Error(t, tr.Err)
	assert.False(t, tr.Triggered)
	assert.Equal(t, PositionClosed, m.State())
}
