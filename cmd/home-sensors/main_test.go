package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/config"
	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/runner"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestShutdownCause(t *testing.T) {
	assert.EqualError(t, shutdownCause(syscall.SIGINT), "SIGINT")
	assert.EqualError(t, shutdownCause(syscall.SIGTERM), "SIGTERM")
	assert.EqualError(t, shutdownCause(syscall.SIGHUP), "UNKNOWN")
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	t.Setenv("HOME_SENSORS_GARAGE_NAME", "Side Gate")

	out, err := execute(t, "config", "--broker", "tcp://mqtt.local:1883", "--password", "hunter2", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "broker: tcp://mqtt.local:1883")
	assert.Contains(t, out, "name: Side Gate")
	assert.Contains(t, out, "recalibrate: 0 4 * * *")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigCommandSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	_, err := execute(t, "config", "--broker", "tcp://mqtt.local:1883", "--save", path, "--log-level", "error")
	require.NoError(t, err)

	v, err := config.New(path)
	require.NoError(t, err)
	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.Broker)
}

func TestRunCommandsRequireBroker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0o600))

	for _, sub := range []string{"garage", "doorbell", "garden", "bridge"} {
		t.Run(sub, func(t *testing.T) {
			_, err := execute(t, sub, "--config", path)
			assert.ErrorIs(t, err, config.ErrBrokerRequired)
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "config", "--log-level", "chatty")
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	_, _, err := schedule("not a schedule", zap.NewNop().Sugar())
	assert.Error(t, err)

	ch, stop, err := schedule("0 4 * * *", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer stop()
	assert.NotNil(t, ch)
}

func TestRecalibrateScheduleOnlyForRecalibrators(t *testing.T) {
	cfg := &config.Config{Broker: "tcp://x:1883", Doorbell: config.Doorbell{Recalibrate: "0 4 * * *"}}
	s := newSession(cfg, zap.NewNop().Sugar(), "bridge")

	assert.Empty(t, s.recalibrateSchedule([]runner.Device{s.buildBridge()}))
}

func TestSessionTopics(t *testing.T) {
	cfg := &config.Config{DiscoveryPrefix: "ha"}
	s := newSession(cfg, zap.NewNop().Sugar(), "garage")

	env := s.env()
	assert.Equal(t, "ha/availability/home-sensors_garage", env.Availability)
	assert.Equal(t, "ha", env.Topics.Prefix)
}

type closeRecorder struct {
	name  string
	order *[]string
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestSessionClosesInReverseOrder(t *testing.T) {
	var order []string
	s := newSession(&config.Config{}, zap.NewNop().Sugar(), "garage")
	s.own(closeRecorder{"driver", &order})
	s.own(closeRecorder{"sensor", &order})
	s.own(closeRecorder{"opener", &order})

	s.close()
	s.close()

	assert.Equal(t, []string{"opener", "sensor", "driver"}, order)
}

func TestCalibratePrintsBand(t *testing.T) {
	values := []float64{2.0, 2.1}
	i := 0
	f := logic.NewFilter(func() (float64, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}, 1, 0)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	d := config.Doorbell{CalibrationWindow: 20 * time.Millisecond, CalibrationSamples: 4, DetectionFactor: 2}
	require.NoError(t, calibrate(context.Background(), cmd, f, d))

	text := out.String()
	assert.Contains(t, text, "mean:      2.0500 V")
	assert.Contains(t, text, "tolerance: 0.0500 V")
	assert.Contains(t, text, "samples:   4")
	assert.Contains(t, text, "rings outside 1.9500 V .. 2.1500 V")
	require.NotNil(t, f.Baseline())
}

func TestCalibrateDegenerate(t *testing.T) {
	f := logic.NewFilter(func() (float64, error) { return 1.5, nil }, 1, 0)
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	d := config.Doorbell{CalibrationWindow: 10 * time.Millisecond, CalibrationSamples: 3, DetectionFactor: 5.5}
	require.NoError(t, calibrate(context.Background(), cmd, f, d))
	assert.True(t, strings.Contains(out.String(), "degenerate"))
}

func TestCalibrateCancelled(t *testing.T) {
	f := logic.NewFilter(func() (float64, error) { return 1.5, nil }, 1, 0)
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := config.Doorbell{CalibrationWindow: time.Hour, CalibrationSamples: 10, DetectionFactor: 5.5}
	assert.ErrorIs(t, calibrate(ctx, cmd, f, d), context.Canceled)
}
