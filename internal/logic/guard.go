package logic

import "time"

// Actuator performs one physical relay pulse. It is synchronous and bounded
// in duration.
type Actuator interface {
	Pulse() error
}

// ActuatorFunc adapts a function to the Actuator interface.
type ActuatorFunc func() error

// Pulse calls f.
func (f ActuatorFunc) Pulse() error { return f() }

// TriggerGuard enforces a minimum quiet period between actuation pulses so a
// duplicate or echoed command cannot re-fire the relay mid-motion.
type TriggerGuard struct {
	minInterval time.Duration
	actuator    Actuator
	last        time.Time
	fired       bool
}

// NewTriggerGuard wraps actuator with a minimum inter-trigger interval.
func NewTriggerGuard(actuator Actuator, minInterval time.Duration) *TriggerGuard {
	return &TriggerGuard{minInterval: minInterval, actuator: actuator}
}

// TryTrigger pulses the actuator unless less than the minimum interval has
// elapsed since the last successful pulse. It returns false, nil when the
// guard refuses and false, err when the pulse itself failed; in both cases
// the last-trigger time is left unchanged.
func (g *TriggerGuard) TryTrigger(now time.Time) (bool, error) {
	if !g.Ready(now) {
		return false, nil
	}
	if err := g.actuator.Pulse(); err != nil {
		return false, err
	}
	g.last = now
	g.fired = true
	return true, nil
}

// Ready reports whether a trigger at now would be accepted.
func (g *TriggerGuard) Ready(now time.Time) bool {
	if !g.fired {
		return true
	}
	return !now.Before(g.last.Add(g.minInterval))
}

// LastTrigger returns the time of the last successful pulse.
func (g *TriggerGuard) LastTrigger() (time.Time, bool) {
	return g.last, g.fired
}
