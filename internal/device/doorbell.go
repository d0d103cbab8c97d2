package device

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/status"
)

// DoorbellConfig configures a Doorbell.
type DoorbellConfig struct {
	Name               string
	CalibrationWindow  time.Duration
	CalibrationSamples int
	DetectionFactor    float64
	ReleaseCount       int
}

// Doorbell defaults.
const (
	DefaultDoorbellName       = "Doorbell"
	DefaultCalibrationWindow  = 10 * time.Second
	DefaultCalibrationSamples = 100
	DefaultDetectionFactor    = 5.5
	DefaultReleaseCount       = 20
)

func (c *DoorbellConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultDoorbellName
	}
	if c.CalibrationWindow <= 0 {
		c.CalibrationWindow = DefaultCalibrationWindow
	}
	if c.CalibrationSamples <= 0 {
		c.CalibrationSamples = DefaultCalibrationSamples
	}
	if c.DetectionFactor <= 0 {
		c.DetectionFactor = DefaultDetectionFactor
	}
	if c.ReleaseCount <= 0 {
		c.ReleaseCount = DefaultReleaseCount
	}
}

// Doorbell watches the voltage across the bell transformer and reports a ring
// when it leaves the calibrated rest band.
type Doorbell struct {
	id        string
	cfg       DoorbellConfig
	env       Env
	log       *zap.SugaredLogger
	filter    *logic.Filter
	debouncer logic.Debouncer
	health    readHealth

	started    bool
	ringing    bool
	voltage    float64
	counts     logic.Counts
	lastChange time.Time
}

// NewDoorbell creates a controller reading volts from source.
func NewDoorbell(cfg DoorbellConfig, env Env, source logic.Source) *Doorbell {
	cfg.applyDefaults()
	id := mqtt.Normalize(cfg.Name)
	return &Doorbell{
		id:        id,
		cfg:       cfg,
		env:       env,
		log:       env.logger(id),
		filter:    logic.NewFilter(source, 1, 0),
		debouncer: logic.NewCountDebouncer(cfg.ReleaseCount),
	}
}

// ID returns the normalized device name.
func (d *Doorbell) ID() string { return d.id }

// Ringing reports the debounced ring state.
func (d *Doorbell) Ringing() bool { return d.ringing }

// Baseline returns the baseline in effect, or nil before the first
// calibration completes.
func (d *Doorbell) Baseline() *logic.Baseline { return d.filter.Baseline() }

// StateTopic is where ring state is reported.
func (d *Doorbell) StateTopic() string {
	return d.env.Topics.Path("doorbell", d.id)
}

// Recalibrate starts a new calibration window. The current baseline stays in
// effect until the window completes.
func (d *Doorbell) Recalibrate(now time.Time) {
	d.log.Infow("calibration started", "window", d.cfg.CalibrationWindow, "samples", d.cfg.CalibrationSamples)
	d.filter.StartCalibration(now, d.cfg.CalibrationWindow, d.cfg.CalibrationSamples)
}

// Tick reads the voltage and returns a report when the ring state changes.
// The first tick starts the initial calibration.
func (d *Doorbell) Tick(now time.Time) []mqtt.Message {
	if !d.started {
		d.started = true
		d.Recalibrate(now)
	}

	s := d.filter.Read(now)
	d.voltage = s.Raw
	if s.OK {
		d.health.ok(d.log)
	} else {
		d.counts.ReadErrors++
		d.health.fail(d.log, s.Err)
	}

	if d.filter.Calibrating() {
		d.finishCalibration(now)
	}

	anomalous := s.OK && d.filter.Anomalous(s.Raw, d.cfg.DetectionFactor)
	c, changed := d.debouncer.Update(anomalous, now)
	if !changed {
		return nil
	}

	d.ringing = c.Value
	d.lastChange = now
	if d.ringing {
		d.log.Infow("ring", "voltage", round(s.Raw, 3))
	} else {
		d.log.Debugw("ring released")
	}
	msg, err := d.stateMessage()
	if err != nil {
		d.log.Errorw("encode state", "error", err)
		return nil
	}
	d.counts.Reports++
	return []mqtt.Message{msg}
}

func (d *Doorbell) finishCalibration(now time.Time) {
	b, done, err := d.filter.FinishCalibration(now)
	if !done {
		return
	}
	d.counts.Calibration++
	switch {
	case errors.Is(err, logic.ErrNoSamples):
		d.log.Warnw("calibration collected no samples, keeping previous baseline")
	case errors.Is(err, logic.ErrDegenerateBaseline):
		d.log.Warnw("calibration degenerate, ring detection disabled", "mean", round(b.Mean, 3), "samples", b.Samples)
	case err != nil:
		d.log.Warnw("calibration failed", "error", err)
	default:
		d.log.Infow("calibration complete", "mean", round(b.Mean, 3), "tolerance", round(b.Tolerance, 3), "samples", b.Samples)
	}
}

type doorbellPayload struct {
	State   string  `json:"state"`
	Voltage float64 `json:"voltage"`
}

func (d *Doorbell) stateMessage() (mqtt.Message, error) {
	return mqtt.JSON(d.StateTopic(), doorbellPayload{
		State:   onOff(d.ringing),
		Voltage: round(d.voltage, 3),
	})
}

// Heartbeat repeats the current state with the latest voltage.
func (d *Doorbell) Heartbeat(time.Time) []mqtt.Message {
	msg, err := d.stateMessage()
	if err != nil {
		d.log.Errorw("encode state", "error", err)
		return nil
	}
	return []mqtt.Message{msg}
}

// Descriptors announces the doorbell as a Home Assistant binary sensor.
func (d *Doorbell) Descriptors() []mqtt.Descriptor {
	return []mqtt.Descriptor{{
		Component:         mqtt.ComponentBinarySensor,
		ObjectID:          d.id,
		Name:              d.cfg.Name,
		UniqueID:          d.id,
		Icon:              "mdi:doorbell",
		StateTopic:        d.StateTopic(),
		AvailabilityTopic: d.env.Availability,
		ValueTemplate:     "{{ value_json.state }}",
		Device: mqtt.DeviceInfo{
			Identifiers: d.id,
			Name:        d.cfg.Name,
			Model:       "Doorbell",
		},
	}}
}

// Status returns the doorbell for the status page.
func (d *Doorbell) Status() []status.Device {
	attrs := map[string]string{"voltage": fmt.Sprintf("%.3f", d.voltage)}
	ready := false
	if b := d.filter.Baseline(); b != nil {
		attrs["baseline_mean"] = fmt.Sprintf("%.3f", b.Mean)
		attrs["baseline_tolerance"] = fmt.Sprintf("%.3f", b.Tolerance)
		attrs["calibrated"] = b.Taken.UTC().Format(time.RFC3339)
		ready = !b.Degenerate()
	}
	if d.filter.Calibrating() {
		attrs["calibrating"] = "true"
	}
	return []status.Device{{
		ID:         d.id,
		Name:       d.cfg.Name,
		Kind:       "doorbell",
		State:      onOff(d.ringing),
		Ready:      ready,
		Counts:     d.counts,
		LastChange: d.lastChange,
		Attributes: attrs,
	}}
}
