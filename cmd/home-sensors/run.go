package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/config"
	"github.com/sweeney/home-sensors/internal/device"
	"github.com/sweeney/home-sensors/internal/mqtt"
	"github.com/sweeney/home-sensors/internal/runner"
	"github.com/sweeney/home-sensors/internal/status"
	"github.com/sweeney/home-sensors/internal/web"
)

// session is what one subcommand run shares between building its devices
// and driving them.
type session struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	mode    string
	topics  mqtt.Topics
	closers []io.Closer
}

func newSession(cfg *config.Config, log *zap.SugaredLogger, mode string) *session {
	return &session{
		cfg:    cfg,
		log:    log,
		mode:   mode,
		topics: mqtt.NewTopics(cfg.DiscoveryPrefix),
	}
}

// node names this process in availability and status topics.
func (s *session) node() string {
	return "home-sensors " + s.mode
}

func (s *session) env() device.Env {
	return device.Env{
		Topics:       s.topics,
		Availability: s.topics.Availability(s.node()),
		Log:          s.log,
	}
}

// own registers c to be closed, in reverse order, when the session ends.
func (s *session) own(c io.Closer) {
	s.closers = append(s.closers, c)
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.log.Warnw("close failed", "error", err)
		}
	}
	s.closers = nil
}

// shutdownCause maps a signal to the reason reported in the SHUTDOWN event.
func shutdownCause(sig os.Signal) error {
	switch sig {
	case syscall.SIGINT:
		return errors.New("SIGINT")
	case syscall.SIGTERM:
		return errors.New("SIGTERM")
	}
	return errors.New("UNKNOWN")
}

// run connects to the broker, serves the status page and drives devices
// until SIGINT or SIGTERM.
func (s *session) run(devices ...runner.Device) error {
	defer s.close()

	availability := s.topics.Availability(s.node())
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:     s.cfg.Broker,
		ClientID:   s.cfg.ClientID,
		Username:   s.cfg.Username,
		Password:   s.cfg.Password,
		Will:       &mqtt.Message{Topic: availability, Payload: []byte(mqtt.AvailabilityOffline), QoS: 1, Retained: true},
		Online:     &mqtt.Message{Topic: availability, Payload: []byte(mqtt.AvailabilityOnline), QoS: 1, Retained: true},
		BufferSize: s.cfg.BufferSize,
	}, s.log)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Mode:        s.mode,
		PollMs:      s.cfg.Poll.Milliseconds(),
		HeartbeatMs: s.cfg.Heartbeat.Milliseconds(),
		Broker:      s.cfg.Broker,
		HTTPAddr:    s.cfg.HTTPAddr,
	})

	if s.cfg.HTTPAddr != "" && s.cfg.HTTPAddr != "off" {
		srv := web.New(s.cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		s.log.Infow("http status server listening", "addr", s.cfg.HTTPAddr)
	}

	r, err := runner.New(runner.Config{Node: s.node(), Topics: s.topics}, client, tracker, s.log, devices...)
	if err != nil {
		return err
	}

	ticks := runner.Ticks{}
	poll := time.NewTicker(s.cfg.Poll)
	defer poll.Stop()
	ticks.Poll = poll.C
	if s.cfg.Heartbeat > 0 {
		hb := time.NewTicker(s.cfg.Heartbeat)
		defer hb.Stop()
		ticks.Heartbeat = hb.C
	}
	if expr := s.recalibrateSchedule(devices); expr != "" {
		ch, stop, err := schedule(expr, s.log)
		if err != nil {
			return err
		}
		defer stop()
		ticks.Recalibrate = ch
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.log.Infow("received signal, shutting down", "signal", sig)
			cancel(shutdownCause(sig))
		case <-ctx.Done():
		}
	}()

	s.log.Infow("started",
		"mode", s.mode,
		"poll", s.cfg.Poll,
		"heartbeat", s.cfg.Heartbeat,
		"broker", s.cfg.Broker,
	)
	return r.Run(ctx, ticks)
}

// recalibrateSchedule returns the cron expression when any device can recalibrate.
func (s *session) recalibrateSchedule(devices []runner.Device) string {
	for _, d := range devices {
		if _, ok := d.(runner.Recalibrator); ok {
			return s.cfg.Doorbell.Recalibrate
		}
	}
	return ""
}

// schedule starts a cron job that signals the returned channel. A firing
// that finds the previous one unconsumed is dropped.
func schedule(expr string, log *zap.SugaredLogger) (<-chan time.Time, func(), error) {
	ch := make(chan time.Time, 1)
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		select {
		case ch <- time.Now():
		default:
			log.Warnw("recalibration still pending, skipping", "schedule", expr)
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid recalibrate schedule %q: %w", expr, err)
	}
	c.Start()
	return ch, func() { c.Stop() }, nil
}
