package logic

// Setter drives a level (non-momentary) actuator such as a solenoid valve.
type Setter interface {
	Set(on bool) error
}

// SwitchMachine drives a level actuator that is on whenever automatic mode or
// the manual override asks for it.
type SwitchMachine struct {
	setter   Setter
	on       bool
	auto     bool
	override bool
	applied  bool
}

// NewSwitchMachine creates a switch that starts off. The actuator is not
// touched until Sync or the first change.
func NewSwitchMachine(setter Setter) *SwitchMachine {
	return &SwitchMachine{setter: setter}
}

// On returns the current output level.
func (s *SwitchMachine) On() bool { return s.on }

// Override returns the manual override flag.
func (s *SwitchMachine) Override() bool { return s.override }

// Auto returns the automatic-mode flag.
func (s *SwitchMachine) Auto() bool { return s.auto }

// Command applies ON/OFF to the override flag. Other commands are ignored.
// It returns whether the output level changed. On a failed write neither the
// flag nor the level changes.
func (s *SwitchMachine) Command(cmd Command) (bool, error) {
	var override bool
	switch cmd {
	case CommandOn:
		override = true
	case CommandOff:
		override = false
	default:
		return false, nil
	}
	return s.apply(s.auto, override)
}

// SetAuto sets the automatic-mode flag and returns whether the output changed.
// On a failed write the flag is left as it was.
func (s *SwitchMachine) SetAuto(auto bool) (bool, error) {
	return s.apply(auto, s.override)
}

// Sync writes the current level to the actuator unconditionally.
func (s *SwitchMachine) Sync() error {
	s.applied = true
	return s.setter.Set(s.on)
}

func (s *SwitchMachine) apply(auto, override bool) (bool, error) {
	want := auto || override
	if want == s.on && s.applied {
		s.auto, s.override = auto, override
		return false, nil
	}
	if err := s.setter.Set(want); err != nil {
		return false, err
	}
	changed := want != s.on
	s.on = want
	s.auto, s.override = auto, override
	s.applied = true
	return changed, nil
}

// Hysteresis switches on below Low and off above High, holding its output in
// between.
type Hysteresis struct {
	Low  float64
	High float64
	on   bool
}

// Update feeds one value and returns the output.
func (h *Hysteresis) Update(v float64) bool {
	switch {
	case v < h.Low:
		h.on = true
	case v > h.High:
		h.on = false
	}
	return h.on
}
