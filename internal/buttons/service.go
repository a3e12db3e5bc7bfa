// Package buttons is the edge-triggered event source for the rover's two
// push buttons: the log button alternates StartLogging/StopLogging, the view
// button emits ToggleDisplayView on a short press and EnterSetupMode on a
// long press. Debounce happens at the GPIO layer; the core only ever sees
// discrete events.
package buttons

import (
	"fmt"
	"io"
	"log"
	"time"

	"rtkrover/internal/session"
)

type Config struct {
	Enable bool

	// Chip is the GPIO character device, e.g. "gpiochip0".
	Chip string
	// LogPin and ViewPin are line offsets on Chip. Buttons pull the line to
	// ground; lines are requested with pull-up.
	LogPin  int
	ViewPin int

	Debounce  time.Duration
	LongPress time.Duration
}

type Service struct {
	cfg Config

	events chan session.Event
	dec    decoder

	lines []io.Closer
}

func New(cfg Config) *Service {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 30 * time.Millisecond
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = 1500 * time.Millisecond
	}
	s := &Service{cfg: cfg, events: make(chan session.Event, 8)}
	s.dec.longPress = cfg.LongPress
	return s
}

// Events is the bounded channel of control events, drained by the control
// loop. Events are dropped when the loop falls behind.
func (s *Service) Events() <-chan session.Event {
	if s == nil {
		return nil
	}
	return s.events
}

func (s *Service) Start() error {
	if s == nil {
		return fmt.Errorf("buttons: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	logLine, err := requestLine(s.cfg.Chip, s.cfg.LogPin, s.cfg.Debounce, func(pressed bool, at time.Time) {
		if !pressed {
			return
		}
		s.emit(s.dec.logPressed())
	})
	if err != nil {
		return fmt.Errorf("buttons: log pin %d: %w", s.cfg.LogPin, err)
	}
	s.lines = append(s.lines, logLine)

	viewLine, err := requestLine(s.cfg.Chip, s.cfg.ViewPin, s.cfg.Debounce, func(pressed bool, at time.Time) {
		if ev, ok := s.dec.viewEdge(pressed, at); ok {
			s.emit(ev)
		}
	})
	if err != nil {
		s.Close()
		return fmt.Errorf("buttons: view pin %d: %w", s.cfg.ViewPin, err)
	}
	s.lines = append(s.lines, viewLine)

	log.Printf("buttons enabled chip=%s log_pin=%d view_pin=%d", s.cfg.Chip, s.cfg.LogPin, s.cfg.ViewPin)
	return nil
}

func (s *Service) emit(ev session.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	for _, l := range s.lines {
		_ = l.Close()
	}
	s.lines = nil
}

// decoder turns debounced button edges into discrete control events.
type decoder struct {
	longPress time.Duration

	logging bool

	viewDown   bool
	viewDownAt time.Time
}

// logPressed alternates between starting and stopping a session.
func (d *decoder) logPressed() session.Event {
	if d.logging {
		d.logging = false
		return session.StopLogging
	}
	d.logging = true
	return session.StartLogging
}

// viewEdge classifies a view-button release as a short or long press.
func (d *decoder) viewEdge(pressed bool, at time.Time) (session.Event, bool) {
	if pressed {
		d.viewDown = true
		d.viewDownAt = at
		return 0, false
	}
	if !d.viewDown {
		return 0, false
	}
	d.viewDown = false
	if at.Sub(d.viewDownAt) >= d.longPress {
		return session.EnterSetupMode, true
	}
	return session.ToggleDisplayView, true
}
