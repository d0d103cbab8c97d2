// Package config loads daemon settings from a YAML file, HOME_SENSORS_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/home-sensors/internal/adc"
	"github.com/sweeney/home-sensors/internal/gpio"
	"github.com/sweeney/home-sensors/internal/logger"
	"github.com/sweeney/home-sensors/internal/mqtt"
)

// EnvPrefix prefixes environment overrides, e.g. HOME_SENSORS_GARAGE_DEBOUNCE.
const EnvPrefix = "HOME_SENSORS"

// DefaultFilePermissions restricts saved files; they may hold a password.
const DefaultFilePermissions = 0o600

// Config holds every setting of the daemon.
type Config struct {
	Broker          string        `mapstructure:"broker" yaml:"broker"`
	Username        string        `mapstructure:"username" yaml:"username,omitempty"`
	Password        string        `mapstructure:"password" yaml:"password,omitempty"`
	ClientID        string        `mapstructure:"client_id" yaml:"client_id,omitempty"`
	DiscoveryPrefix string        `mapstructure:"discovery_prefix" yaml:"discovery_prefix"`
	HTTPAddr        string        `mapstructure:"http_addr" yaml:"http_addr"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	Poll            time.Duration `mapstructure:"poll" yaml:"poll"`
	Heartbeat       time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
	BufferSize      int           `mapstructure:"buffer_size" yaml:"buffer_size"`

	GPIO     GPIO     `mapstructure:"gpio" yaml:"gpio"`
	Garage   Garage   `mapstructure:"garage" yaml:"garage"`
	Doorbell Doorbell `mapstructure:"doorbell" yaml:"doorbell"`
	Garden   Garden   `mapstructure:"garden" yaml:"garden"`
	Bridge   Bridge   `mapstructure:"bridge" yaml:"bridge"`
}

// GPIO selects the GPIO backend.
type GPIO struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Chip    string `mapstructure:"chip" yaml:"chip"`
}

// Garage configures the garage door controller.
type Garage struct {
	Name           string        `mapstructure:"name" yaml:"name"`
	SensorPin      int           `mapstructure:"sensor_pin" yaml:"sensor_pin"`
	SensorPull     string        `mapstructure:"sensor_pull" yaml:"sensor_pull"`
	SensorOpenHigh bool          `mapstructure:"sensor_open_high" yaml:"sensor_open_high"`
	OpenerPin      int           `mapstructure:"opener_pin" yaml:"opener_pin"`
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Guard          time.Duration `mapstructure:"guard" yaml:"guard"`
	Pulse          time.Duration `mapstructure:"pulse" yaml:"pulse"`
}

// Doorbell configures the doorbell controller.
type Doorbell struct {
	Name               string        `mapstructure:"name" yaml:"name"`
	I2CBus             string        `mapstructure:"i2c_bus" yaml:"i2c_bus"`
	Address            int           `mapstructure:"address" yaml:"address"`
	Channel            int           `mapstructure:"channel" yaml:"channel"`
	FullScale          float64       `mapstructure:"full_scale" yaml:"full_scale"`
	CalibrationWindow  time.Duration `mapstructure:"calibration_window" yaml:"calibration_window"`
	CalibrationSamples int           `mapstructure:"calibration_samples" yaml:"calibration_samples"`
	DetectionFactor    float64       `mapstructure:"detection_factor" yaml:"detection_factor"`
	ReleaseCount       int           `mapstructure:"release_count" yaml:"release_count"`
	Recalibrate        string        `mapstructure:"recalibrate" yaml:"recalibrate"`
}

// Garden configures the moisture probes and valve.
type Garden struct {
	Name      string        `mapstructure:"name" yaml:"name"`
	ValveName string        `mapstructure:"valve_name" yaml:"valve_name"`
	I2CBus    string        `mapstructure:"i2c_bus" yaml:"i2c_bus"`
	Address   int           `mapstructure:"address" yaml:"address"`
	Channels  []int         `mapstructure:"channels" yaml:"channels,flow"`
	FullScale float64       `mapstructure:"full_scale" yaml:"full_scale"`
	Window    int           `mapstructure:"window" yaml:"window"`
	Dry       float64       `mapstructure:"dry" yaml:"dry"`
	Wet       float64       `mapstructure:"wet" yaml:"wet"`
	Sample    time.Duration `mapstructure:"sample" yaml:"sample"`
	ValvePin  int           `mapstructure:"valve_pin" yaml:"valve_pin"`
	StatusPin int           `mapstructure:"status_pin" yaml:"status_pin"`
	// OverridePin is a physical ON/OFF switch; negative disables it.
	OverridePin int           `mapstructure:"override_pin" yaml:"override_pin"`
	Blink       time.Duration `mapstructure:"blink" yaml:"blink"`
	AutoWater   bool          `mapstructure:"auto_water" yaml:"auto_water"`
	AutoLow     float64       `mapstructure:"auto_low" yaml:"auto_low"`
	AutoHigh    float64       `mapstructure:"auto_high" yaml:"auto_high"`
}

// Bridge configures the rtl_433 forwarder.
type Bridge struct {
	SourceTopic string  `mapstructure:"source_topic" yaml:"source_topic"`
	MinTempF    float64 `mapstructure:"min_temp_f" yaml:"min_temp_f"`
	MaxTempF    float64 `mapstructure:"max_temp_f" yaml:"max_temp_f"`
}

var (
	// ErrBrokerRequired is returned when no broker address is configured.
	ErrBrokerRequired = errors.New("broker address must be provided")

	errConfigIsNotSet = errors.New("configuration is not set")
)

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("discovery_prefix", mqtt.DefaultDiscoveryPrefix)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("poll", 50*time.Millisecond)
	v.SetDefault("heartbeat", time.Minute)
	v.SetDefault("buffer_size", 100)

	v.SetDefault("gpio.backend", gpio.BackendCdev)
	v.SetDefault("gpio.chip", gpio.DefaultChip)

	v.SetDefault("garage.name", "Garage Door")
	v.SetDefault("garage.sensor_pin", 17)
	v.SetDefault("garage.sensor_pull", "up")
	v.SetDefault("garage.sensor_open_high", true)
	v.SetDefault("garage.opener_pin", 27)
	v.SetDefault("garage.debounce", 2*time.Second)
	v.SetDefault("garage.guard", 5*time.Second)
	v.SetDefault("garage.pulse", 100*time.Millisecond)

	v.SetDefault("doorbell.name", "Doorbell")
	v.SetDefault("doorbell.i2c_bus", "")
	v.SetDefault("doorbell.address", adc.DefaultAddress)
	v.SetDefault("doorbell.channel", 0)
	v.SetDefault("doorbell.full_scale", 4.096)
	v.SetDefault("doorbell.calibration_window", 10*time.Second)
	v.SetDefault("doorbell.calibration_samples", 100)
	v.SetDefault("doorbell.detection_factor", 5.5)
	v.SetDefault("doorbell.release_count", 20)
	v.SetDefault("doorbell.recalibrate", "0 4 * * *")

	v.SetDefault("garden.name", "Garden")
	v.SetDefault("garden.valve_name", "Garden Valve")
	v.SetDefault("garden.i2c_bus", "")
	v.SetDefault("garden.address", adc.DefaultAddress)
	v.SetDefault("garden.channels", []int{0})
	v.SetDefault("garden.full_scale", 4.096)
	v.SetDefault("garden.window", 100)
	v.SetDefault("garden.dry", 4.1)
	v.SetDefault("garden.wet", 1.0)
	v.SetDefault("garden.sample", time.Second)
	v.SetDefault("garden.valve_pin", 21)
	v.SetDefault("garden.status_pin", 20)
	v.SetDefault("garden.override_pin", -1)
	v.SetDefault("garden.blink", 750*time.Millisecond)
	v.SetDefault("garden.auto_water", false)
	v.SetDefault("garden.auto_low", 30.0)
	v.SetDefault("garden.auto_high", 60.0)

	v.SetDefault("bridge.source_topic", "rtl_433")
	v.SetDefault("bridge.min_temp_f", -20.0)
	v.SetDefault("bridge.max_temp_f", 120.0)
}

// New creates a viper instance with defaults and environment overrides, and
// reads path if it is not empty.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by Unmarshal once bound.
	for _, key := range []string{"broker", "username", "password", "client_id"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Load decodes and validates v.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable settings and fills zero durations with their
// defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}
	if cfg.Broker == "" {
		return ErrBrokerRequired
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("invalid broker %q: unsupported scheme %q", cfg.Broker, u.Scheme)
	}
	if _, ok := logger.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}

	if cfg.Poll <= 0 {
		cfg.Poll = 50 * time.Millisecond
	}
	if cfg.Heartbeat < 0 {
		return fmt.Errorf("invalid heartbeat %v", cfg.Heartbeat)
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = mqtt.DefaultDiscoveryPrefix
	}

	switch cfg.GPIO.Backend {
	case "", gpio.BackendCdev, gpio.BackendRpio:
	default:
		return fmt.Errorf("%w: %q", gpio.ErrUnknownBackend, cfg.GPIO.Backend)
	}
	if _, err := gpio.ParsePull(cfg.Garage.SensorPull); err != nil {
		return fmt.Errorf("garage: %w", err)
	}

	if cfg.Garage.Debounce <= 0 {
		cfg.Garage.Debounce = 2 * time.Second
	}
	if cfg.Garage.Guard <= 0 {
		cfg.Garage.Guard = 5 * time.Second
	}
	if cfg.Garage.Pulse <= 0 {
		cfg.Garage.Pulse = 100 * time.Millisecond
	}

	if err := validateChannel("doorbell", cfg.Doorbell.Channel); err != nil {
		return err
	}
	if cfg.Doorbell.DetectionFactor <= 0 {
		return fmt.Errorf("doorbell: detection_factor must be positive, got %v", cfg.Doorbell.DetectionFactor)
	}
	if cfg.Doorbell.CalibrationWindow <= 0 {
		cfg.Doorbell.CalibrationWindow = 10 * time.Second
	}

	for _, ch := range cfg.Garden.Channels {
		if err := validateChannel("garden", ch); err != nil {
			return err
		}
	}
	if cfg.Garden.Dry == cfg.Garden.Wet {
		return fmt.Errorf("garden: dry and wet references must differ")
	}
	if cfg.Garden.AutoWater && cfg.Garden.AutoLow >= cfg.Garden.AutoHigh {
		return fmt.Errorf("garden: auto_low %v must be below auto_high %v", cfg.Garden.AutoLow, cfg.Garden.AutoHigh)
	}
	if cfg.Garden.Sample <= 0 {
		cfg.Garden.Sample = time.Second
	}
	if cfg.Garden.Blink <= 0 {
		cfg.Garden.Blink = 750 * time.Millisecond
	}

	if cfg.Bridge.MinTempF >= cfg.Bridge.MaxTempF {
		return fmt.Errorf("bridge: min_temp_f %v must be below max_temp_f %v", cfg.Bridge.MinTempF, cfg.Bridge.MaxTempF)
	}
	return nil
}

func validateChannel(section string, ch int) error {
	if ch < 0 || ch >= adc.Channels {
		return fmt.Errorf("%s: adc channel %d out of range 0-%d", section, ch, adc.Channels-1)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	c.Garden.Channels = append([]int(nil), c.Garden.Channels...)
	return c
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errConfigIsNotSet
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
