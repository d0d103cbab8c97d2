package main

import (
	"fmt"

	"github.com/sweeney/home-sensors/internal/adc"
	"github.com/sweeney/home-sensors/internal/bridge"
	"github.com/sweeney/home-sensors/internal/device"
	"github.com/sweeney/home-sensors/internal/gpio"
)

func (s *session) openGPIO() (gpio.Driver, error) {
	driver, err := gpio.Open(s.cfg.GPIO.Backend, s.cfg.GPIO.Chip)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	s.own(driver)
	return driver, nil
}

func (s *session) openADC(bus string, addr int) (*adc.ADS1115, error) {
	dev, err := adc.OpenADS1115(bus, uint16(addr))
	if err != nil {
		return nil, fmt.Errorf("init adc: %w", err)
	}
	s.own(dev)
	return dev, nil
}

func (s *session) openChannel(dev *adc.ADS1115, ch int, fullScale float64) (adc.Reader, error) {
	r, err := dev.Channel(ch, fullScale)
	if err != nil {
		return nil, fmt.Errorf("open adc channel %d: %w", ch, err)
	}
	s.own(r)
	return r, nil
}

func (s *session) garageSensor(driver gpio.Driver) (gpio.Reader, error) {
	g := s.cfg.Garage
	pull, err := gpio.ParsePull(g.SensorPull)
	if err != nil {
		return nil, err
	}
	sensor, err := driver.Input(g.SensorPin, pull, g.SensorOpenHigh)
	if err != nil {
		return nil, fmt.Errorf("open sensor pin %d: %w", g.SensorPin, err)
	}
	s.own(sensor)
	return sensor, nil
}

func (s *session) buildGarage() (*device.GarageDoor, error) {
	g := s.cfg.Garage
	driver, err := s.openGPIO()
	if err != nil {
		return nil, err
	}
	sensor, err := s.garageSensor(driver)
	if err != nil {
		return nil, err
	}
	opener, err := driver.Output(g.OpenerPin, true)
	if err != nil {
		return nil, fmt.Errorf("open opener pin %d: %w", g.OpenerPin, err)
	}
	s.own(opener)

	return device.NewGarageDoor(device.GarageConfig{
		Name:     g.Name,
		Debounce: g.Debounce,
		Guard:    g.Guard,
	}, s.env(), sensor, gpio.NewPulser(opener, g.Pulse)), nil
}

func (s *session) buildDoorbell() (*device.Doorbell, error) {
	d := s.cfg.Doorbell
	dev, err := s.openADC(d.I2CBus, d.Address)
	if err != nil {
		return nil, err
	}
	ch, err := s.openChannel(dev, d.Channel, d.FullScale)
	if err != nil {
		return nil, err
	}
	return device.NewDoorbell(device.DoorbellConfig{
		Name:               d.Name,
		CalibrationWindow:  d.CalibrationWindow,
		CalibrationSamples: d.CalibrationSamples,
		DetectionFactor:    d.DetectionFactor,
		ReleaseCount:       d.ReleaseCount,
	}, s.env(), ch.Voltage), nil
}

func (s *session) buildGarden() (*device.Garden, error) {
	g := s.cfg.Garden
	dev, err := s.openADC(g.I2CBus, g.Address)
	if err != nil {
		return nil, err
	}
	channels := make([]device.MoistureChannel, 0, len(g.Channels))
	for _, n := range g.Channels {
		ch, err := s.openChannel(dev, n, g.FullScale)
		if err != nil {
			return nil, err
		}
		channels = append(channels, device.MoistureChannel{Source: ch.Voltage})
	}

	driver, err := s.openGPIO()
	if err != nil {
		return nil, err
	}
	var hw device.GardenIO
	if hw.Valve, err = driver.Output(g.ValvePin, true); err != nil {
		return nil, fmt.Errorf("open valve pin %d: %w", g.ValvePin, err)
	}
	s.own(hw.Valve)
	if g.StatusPin >= 0 {
		if hw.LED, err = driver.Output(g.StatusPin, true); err != nil {
			return nil, fmt.Errorf("open status pin %d: %w", g.StatusPin, err)
		}
		s.own(hw.LED)
	}
	if g.OverridePin >= 0 {
		// Switch to ground with the internal pull-up.
		if hw.Override, err = driver.Input(g.OverridePin, gpio.PullUp, false); err != nil {
			return nil, fmt.Errorf("open override pin %d: %w", g.OverridePin, err)
		}
		s.own(hw.Override)
	}

	return device.NewGarden(device.GardenConfig{
		Name:      g.Name,
		ValveName: g.ValveName,
		Window:    g.Window,
		Dry:       g.Dry,
		Wet:       g.Wet,
		Sample:    g.Sample,
		Blink:     g.Blink,
		AutoWater: g.AutoWater,
		AutoLow:   g.AutoLow,
		AutoHigh:  g.AutoHigh,
	}, s.env(), channels, hw)
}

func (s *session) buildBridge() *bridge.Bridge {
	b := s.cfg.Bridge
	return bridge.New(bridge.Config{
		SourceTopic: b.SourceTopic,
		MinTempF:    b.MinTempF,
		MaxTempF:    b.MaxTempF,
	}, s.topics, s.log)
}
