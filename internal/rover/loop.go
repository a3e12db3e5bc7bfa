// Package rover runs the single-threaded control loop. All session state is
// owned by the loop goroutine; services hand data in over bounded channels or
// are polled, so a stalled peripheral can never wedge the core.
package rover

import (
	"context"
	"io"
	"time"

	"rtkrover/internal/gnss"
	"rtkrover/internal/logstore"
	"rtkrover/internal/ntrip"
	"rtkrover/internal/receiver"
	"rtkrover/internal/session"
)

// FixSource is the receiver-facing side of the loop.
type FixSource interface {
	Fixes() <-chan gnss.FixReport
	LastGGA() []byte
	WriteCorrections(p []byte) (int, error)
}

// Corrections is the caster-facing side of the loop.
type Corrections interface {
	Configured() bool
	Connected() bool
	EnsureConnected(now time.Time) bool
	DrainInbound(sink io.Writer) int
	ForwardPosition(sentence []byte) bool
}

// StorageHealth is polled periodically; the store reinitializes itself on
// each call when it had latched unavailable.
type StorageHealth interface {
	Available() bool
}

type Config struct {
	// Tick is the loop cadence. Default 100ms.
	Tick time.Duration
	// GGAInterval is how often the rover position is forwarded to the
	// caster. Default 10s.
	GGAInterval time.Duration
	// HealthInterval is the cadence of storage checks and the health
	// callback. Default 10s.
	HealthInterval time.Duration
}

type Deps struct {
	Receiver FixSource
	Session  *session.Controller
	Ntrip    Corrections
	Storage  StorageHealth

	// Buttons is the control event channel; may be nil.
	Buttons <-chan session.Event

	// Health is invoked every HealthInterval; main uses it to publish
	// telemetry and log a status line. May be nil.
	Health func(now time.Time)

	// Now and Booted exist for tests; Run fills them in when zero.
	Now    func() time.Time
	Booted time.Time
}

type Loop struct {
	cfg  Config
	deps Deps

	// ingest holds the day-rollover state between fixes.
	ingest gnss.Ingest

	lastGGA    time.Time
	lastHealth time.Time
}

func New(deps Deps, cfg Config) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.GGAInterval <= 0 {
		cfg.GGAInterval = 10 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Booted.IsZero() {
		deps.Booted = deps.Now()
	}
	return &Loop{cfg: cfg, deps: deps}
}

// Run drives the loop until ctx is cancelled, then stops any open session so
// its averaged record is flushed.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if l.deps.Session.Logging() {
				l.deps.Session.Stop()
			}
			return
		case <-ticker.C:
			l.Step(l.deps.Now())
		}
	}
}

// Step runs one loop iteration: control events, then fixes, then the
// correction link, then periodic health. The order matters: a stop event must
// flush before new samples can land in the next point.
func (l *Loop) Step(now time.Time) {
	l.drainButtons(now)
	l.drainFixes(now)
	l.serviceCorrections(now)
	l.health(now)
}

func (l *Loop) drainButtons(now time.Time) {
	for {
		select {
		case ev := <-l.deps.Buttons:
			l.deps.Session.HandleEvent(ev, now)
		default:
			return
		}
	}
}

func (l *Loop) drainFixes(now time.Time) {
	for {
		select {
		case r := <-l.deps.Receiver.Fixes():
			sample, dayChanged := l.ingest.Normalize(r, now.Sub(l.deps.Booted))
			if dayChanged {
				l.deps.Session.Rollover()
			}
			l.deps.Session.HandleSample(now, sample)
		default:
			return
		}
	}
}

func (l *Loop) serviceCorrections(now time.Time) {
	nc := l.deps.Ntrip
	if nc == nil || !nc.Configured() {
		return
	}
	nc.EnsureConnected(now)
	if !nc.Connected() {
		return
	}
	nc.DrainInbound(correctionsWriter{l.deps.Receiver})
	if now.Sub(l.lastGGA) >= l.cfg.GGAInterval {
		if gga := l.deps.Receiver.LastGGA(); len(gga) > 0 {
			if nc.ForwardPosition(gga) {
				l.lastGGA = now
			}
		}
	}
}

func (l *Loop) health(now time.Time) {
	if now.Sub(l.lastHealth) < l.cfg.HealthInterval {
		return
	}
	l.lastHealth = now
	if l.deps.Storage != nil {
		l.deps.Storage.Available()
	}
	if l.deps.Health != nil {
		l.deps.Health(now)
	}
}

// correctionsWriter adapts the receiver's correction sink to io.Writer for
// DrainInbound.
type correctionsWriter struct{ recv FixSource }

func (w correctionsWriter) Write(p []byte) (int, error) { return w.recv.WriteCorrections(p) }

var (
	_ FixSource     = (*receiver.Service)(nil)
	_ Corrections   = (*ntrip.Client)(nil)
	_ StorageHealth = (*logstore.Store)(nil)
)
