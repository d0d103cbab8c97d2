package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweeney/home-sensors/internal/config"
	"github.com/sweeney/home-sensors/internal/logic"
)

func newGarageCmd(a *app) *cobra.Command {
	var printState bool
	cmd := &cobra.Command{
		Use:   "garage",
		Short: "Monitor the garage door reed switch and drive the opener relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printState {
				return a.printGarage(cmd)
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			s := newSession(cfg, a.log, "garage")
			door, err := s.buildGarage()
			if err != nil {
				s.close()
				return err
			}
			return s.run(door)
		},
	}
	cmd.Flags().BoolVar(&printState, "print-state", false, "print the raw sensor level and exit")
	return cmd
}

// printGarage reads the door sensor once, without connecting to the broker.
func (a *app) printGarage(cmd *cobra.Command) error {
	cfg, err := config.Decode(a.v)
	if err != nil {
		return err
	}
	s := newSession(cfg, a.log, "garage")
	defer s.close()

	driver, err := s.openGPIO()
	if err != nil {
		return err
	}
	sensor, err := s.garageSensor(driver)
	if err != nil {
		return err
	}
	open, err := sensor.Read()
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	state := logic.PositionClosed
	if open {
		state = logic.PositionOpen
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cfg.Garage.Name, state)
	return nil
}

func newDoorbellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doorbell",
		Short: "Detect doorbell rings from the chime voltage",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			s := newSession(cfg, a.log, "doorbell")
			bell, err := s.buildDoorbell()
			if err != nil {
				s.close()
				return err
			}
			return s.run(bell)
		},
	}
}

func newGardenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "garden",
		Short: "Report soil moisture and drive the watering valve",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			s := newSession(cfg, a.log, "garden")
			garden, err := s.buildGarden()
			if err != nil {
				s.close()
				return err
			}
			return s.run(garden)
		},
	}
}

func newBridgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Forward rtl_433 radio decodes to Home Assistant",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			s := newSession(cfg, a.log, "bridge")
			return s.run(s.buildBridge())
		},
	}
}

func newCalibrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the doorbell baseline and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Decode(a.v)
			if err != nil {
				return err
			}
			s := newSession(cfg, a.log, "calibrate")
			defer s.close()

			d := cfg.Doorbell
			dev, err := s.openADC(d.I2CBus, d.Address)
			if err != nil {
				return err
			}
			ch, err := s.openChannel(dev, d.Channel, d.FullScale)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return calibrate(ctx, cmd, logic.NewFilter(ch.Voltage, 1, 0), d)
		},
	}
}

func calibrate(ctx context.Context, cmd *cobra.Command, f *logic.Filter, d config.Doorbell) error {
	fmt.Fprintf(cmd.OutOrStdout(), "sampling %d readings over %v...\n", d.CalibrationSamples, d.CalibrationWindow)
	b, err := f.Calibrate(ctx, d.CalibrationWindow, d.CalibrationSamples)
	if err != nil && !errors.Is(err, logic.ErrDegenerateBaseline) {
		return fmt.Errorf("calibrate: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mean:      %.4f V\n", b.Mean)
	fmt.Fprintf(out, "tolerance: %.4f V\n", b.Tolerance)
	fmt.Fprintf(out, "samples:   %d\n", b.Samples)
	if b.Degenerate() {
		fmt.Fprintln(out, "baseline is degenerate: no ring would ever be detected")
		return nil
	}
	band := b.Tolerance * d.DetectionFactor
	fmt.Fprintf(out, "rings outside %.4f V .. %.4f V (factor %.1f)\n", b.Mean-band, b.Mean+band, d.DetectionFactor)
	return nil
}

func newConfigCmd(a *app) *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Decode(a.v)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				a.log.Warnw("configuration is not usable as is", "error", err)
			}
			if save != "" {
				if err := config.Save(save, cfg); err != nil {
					return err
				}
				a.log.Infow("configuration saved", "path", save)
			}
			redacted := cfg.Redacted()
			data, err := config.Marshal(&redacted)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "also write the configuration to this file")
	return cmd
}
