// Package device composes the core logic into controllers for each kind of
// physical device: garage door, doorbell and garden watering system.
//
// Controllers are driven by a single goroutine through Tick and Heartbeat and
// return the messages to publish. Post may be called from any goroutine.
package device

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/home-sensors/internal/logic"
	"github.com/sweeney/home-sensors/internal/mqtt"
)

// Env carries what every controller needs from its surroundings.
type Env struct {
	Topics mqtt.Topics
	// Availability is the node's online/offline topic; empty omits it from
	// descriptors.
	Availability string
	Log          *zap.SugaredLogger
}

func (e Env) logger(id string) *zap.SugaredLogger {
	log := e.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return log.Named(id)
}

// PendingCommand is a single-slot mailbox. A command posted before the
// previous one was consumed replaces it.
type PendingCommand struct {
	mu  sync.Mutex
	cmd logic.TimedCommand
	set bool
}

// Offer stores cmd and reports whether an unconsumed command was replaced.
func (p *PendingCommand) Offer(cmd logic.TimedCommand) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	replaced := p.set
	p.cmd = cmd
	p.set = true
	return replaced
}

// Next takes the pending command, if any.
func (p *PendingCommand) Next() (logic.TimedCommand, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.set {
		return logic.TimedCommand{}, false
	}
	cmd := p.cmd
	p.cmd = logic.TimedCommand{}
	p.set = false
	return cmd, true
}

// readHealth logs the first failure of a run of failed reads and the
// recovery, not every failed poll.
type readHealth struct {
	failing bool
}

func (h *readHealth) fail(log *zap.SugaredLogger, err error) {
	if !h.failing {
		log.Warnw("sensor read failed", "error", err)
	}
	h.failing = true
}

func (h *readHealth) ok(log *zap.SugaredLogger) {
	if h.failing {
		log.Infow("sensor read recovered")
	}
	h.failing = false
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
