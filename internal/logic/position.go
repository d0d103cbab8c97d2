package logic

import "time"

// Transition describes the outcome of one input to a PositionMachine.
type Transition struct {
	From Position
	To   Position
	// Triggered is set when the actuator pulsed.
	Triggered bool
	// Suppressed is set when the guard refused a pulse; the state is unchanged.
	Suppressed bool
	// Err carries a failed pulse; the state is unchanged.
	Err error
	// Anomaly marks the sensor reporting "open" while the door was closing.
	// That may be a genuine reversal or bounce during travel.
	Anomaly bool
}

// Changed reports whether the visible state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// PositionMachine models a two-endpoint actuator (closed = A, open = B) that
// is moved by a momentary relay pulse with no completion feedback. It is not
// safe for concurrent use; drive it from the poll loop only.
type PositionMachine struct {
	state Position
	guard *TriggerGuard
}

// NewPositionMachine starts in PositionUnknown.
func NewPositionMachine(guard *TriggerGuard) *PositionMachine {
	return &PositionMachine{state: PositionUnknown, guard: guard}
}

// State returns the current position.
func (m *PositionMachine) State() Position {
	return m.state
}

// LastTrigger returns the time of the last successful actuation.
func (m *PositionMachine) LastTrigger() (time.Time, bool) {
	return m.guard.LastTrigger()
}

// Observe applies a debounced sensor reading. atOpen is true when the sensor
// confirms the open endpoint. A confirmed endpoint always wins over a
// transitioning label, except that "closed" does not end an opening travel.
func (m *PositionMachine) Observe(atOpen bool, now time.Time) Transition {
	t := Transition{From: m.state, To: m.state}

	switch m.state {
	case PositionUnknown, PositionClosed, PositionOpen:
		if atOpen {
			t.To = PositionOpen
		} else {
			t.To = PositionClosed
		}
	case PositionOpening:
		if atOpen {
			t.To = PositionOpen
		}
	case PositionClosing:
		if atOpen {
			t.To = PositionOpen
			t.Anomaly = true
		} else {
			t.To = PositionClosed
		}
	}

	m.state = t.To
	return t
}

// Command applies an external command. Commands that would move the door go
// through the trigger guard; if it refuses, the command is dropped and the
// state is unchanged. Commands not applicable to the current state are
// silently ignored.
func (m *PositionMachine) Command(cmd Command, now time.Time) Transition {
	target, ok := m.commandTarget(cmd)
	if !ok {
		return Transition{From: m.state, To: m.state}
	}
	return m.actuate(target, now)
}

func (m *PositionMachine) commandTarget(cmd Command) (Position, bool) {
	switch cmd {
	case CommandOpen:
		switch m.state {
		case PositionOpen, PositionOpening:
			return m.state, false
		default:
			return PositionOpening, true
		}
	case CommandClose:
		switch m.state {
		case PositionClosed, PositionClosing:
			return m.state, false
		default:
			return PositionClosing, true
		}
	case CommandStop:
		// Stopped between endpoints reads as open.
		if m.state.Moving() {
			return PositionOpen, true
		}
	}
	return m.state, false
}

func (m *PositionMachine) actuate(target Position, now time.Time) Transition {
	t := Transition{From: m.state, To: m.state}
	fired, err := m.guard.TryTrigger(now)
	if err != nil {
		t.Err = err
		return t
	}
	if !fired {
		t.Suppressed = true
		return t
	}
	t.Triggered = true
	t.To = target
	m.state = target
	return t
}
