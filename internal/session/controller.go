// Package session owns the logging-session lifecycle: an Idle/Logging state
// machine, daily point numbering, sample admission, and the flush of the
// accumulated point when a session stops.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/looplab/fsm"

	"rtkrover/internal/gnss"
	"rtkrover/internal/logstore"
	"rtkrover/internal/point"
)

const (
	StateIdle    = "idle"
	StateLogging = "logging"
)

const (
	eventStart = "start"
	eventStop  = "stop"
)

// Event is one discrete control input produced by the (external) button
// debounce component.
type Event int

const (
	StartLogging Event = iota
	StopLogging
	ToggleDisplayView
	EnterSetupMode
)

// ErrStorageUnavailable is returned when a session start is refused because
// storage is not usable.
var ErrStorageUnavailable = errors.New("session: storage unavailable")

// Storage is the slice of the log store the controller drives.
type Storage interface {
	Available() bool
	AppendRaw(pointNumber int, sample gnss.PositionSample) error
	AppendAveraged(acc *point.Accumulator) error
}

type Config struct {
	// MinSampleInterval is the minimum spacing between accepted samples
	// while logging; faster samples are dropped for logging purposes.
	MinSampleInterval time.Duration
}

// Context is the mutable per-run session state, owned exclusively by the
// controller.
type Context struct {
	// PointNumber is the running daily point number;
	// point.Unassigned after a rollover or at boot.
	PointNumber int
	StartedAt   time.Time
	RawOK       int
	RawFailed   int
}

type Snapshot struct {
	State       string    `json:"state"`
	PointNumber int       `json:"point_number"`
	Samples     int       `json:"samples"`
	RawOK       int       `json:"raw_ok"`
	RawFailed   int       `json:"raw_failed"`
	FixedPct    float64   `json:"fixed_pct"`
	DisplayView int       `json:"display_view"`
	SetupMode   bool      `json:"setup_mode"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// Controller is only ever driven by the control-loop goroutine.
type Controller struct {
	cfg   Config
	store Storage

	machine *fsm.FSM
	acc     point.Accumulator
	ctx     Context

	lastAccepted    time.Time
	lastAcceptedSet bool

	displayView int
	setupMode   bool
}

func New(store Storage, cfg Config) *Controller {
	if cfg.MinSampleInterval <= 0 {
		cfg.MinSampleInterval = 1 * time.Second
	}
	c := &Controller{cfg: cfg, store: store}
	c.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateLogging},
			{Name: eventStop, Src: []string{StateLogging}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() string {
	if c == nil {
		return StateIdle
	}
	return c.machine.Current()
}

// Logging reports whether a session is open.
func (c *Controller) Logging() bool { return c.State() == StateLogging }

// HandleEvent dispatches one discrete control event.
func (c *Controller) HandleEvent(ev Event, now time.Time) {
	if c == nil {
		return
	}
	switch ev {
	case StartLogging:
		if err := c.Start(now); err != nil {
			log.Printf("session start refused: %v", err)
		}
	case StopLogging:
		c.Stop()
	case ToggleDisplayView:
		c.displayView = (c.displayView + 1) % 2
	case EnterSetupMode:
		c.setupMode = true
	}
}

// Start opens a new logging session. It is refused when storage is
// unavailable or a session is already open; the state stays Idle (resp.
// Logging) and the point number is unchanged.
func (c *Controller) Start(now time.Time) error {
	if c == nil {
		return fmt.Errorf("session: controller is nil")
	}
	if !c.machine.Can(eventStart) {
		return fmt.Errorf("session: already logging")
	}
	if c.store == nil || !c.store.Available() {
		return ErrStorageUnavailable
	}

	c.ctx.PointNumber++
	c.ctx.StartedAt = now
	c.ctx.RawOK = 0
	c.ctx.RawFailed = 0
	c.acc.Reset()
	c.acc.SetPointNumber(c.ctx.PointNumber)
	c.lastAcceptedSet = false

	if err := c.machine.Event(context.Background(), eventStart); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	log.Printf("session started point=%d", c.ctx.PointNumber)
	return nil
}

// Stop closes the open session. If any samples were accumulated, the point is
// flushed as one averaged record; a failed flush is logged, not retried, and
// never blocks the transition back to Idle.
func (c *Controller) Stop() {
	if c == nil || !c.machine.Can(eventStop) {
		return
	}

	if c.acc.Count() > 0 {
		if err := c.store.AppendAveraged(&c.acc); err != nil {
			log.Printf("session flush failed point=%d samples=%d: %v",
				c.acc.PointNumber(), c.acc.Count(), err)
		} else {
			log.Printf("session flushed point=%d samples=%d fixed_pct=%.1f",
				c.acc.PointNumber(), c.acc.Count(), c.acc.FixedPercentage())
		}
	} else {
		log.Printf("session stopped empty point=%d", c.acc.PointNumber())
	}
	c.acc.Reset()

	if err := c.machine.Event(context.Background(), eventStop); err != nil {
		log.Printf("session stop transition: %v", err)
	}
}

// Rollover applies a calendar-day change: the running point number resets to
// unassigned regardless of state. An open session keeps its already-assigned
// point number; its raw log straddles the two daily files under the old
// numbering, which is retained as documented behavior.
func (c *Controller) Rollover() {
	if c == nil {
		return
	}
	c.ctx.PointNumber = point.Unassigned
	log.Printf("day rollover: point numbering reset state=%s", c.State())
}

// HandleSample admits one normalized sample while logging. Samples arriving
// faster than the minimum inter-sample interval are dropped for logging
// purposes (they remain visible to the display path). Returns whether the
// sample was logged.
func (c *Controller) HandleSample(now time.Time, sample gnss.PositionSample) bool {
	if c == nil || !c.Logging() {
		return false
	}
	if c.lastAcceptedSet && now.Sub(c.lastAccepted) < c.cfg.MinSampleInterval {
		return false
	}
	c.lastAccepted = now
	c.lastAcceptedSet = true

	c.acc.Add(sample)
	if err := c.store.AppendRaw(c.acc.PointNumber(), sample); err != nil {
		c.ctx.RawFailed++
		log.Printf("raw append failed point=%d: %v", c.acc.PointNumber(), err)
	} else {
		c.ctx.RawOK++
	}
	return true
}

// Accumulator exposes the live accumulator for display-path reads.
func (c *Controller) Accumulator() *point.Accumulator {
	if c == nil {
		return nil
	}
	return &c.acc
}

// DisplayView is the current display page index (display itself is external).
func (c *Controller) DisplayView() int {
	if c == nil {
		return 0
	}
	return c.displayView
}

// SetupRequested reports whether setup mode was requested.
func (c *Controller) SetupRequested() bool {
	if c == nil {
		return false
	}
	return c.setupMode
}

func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		State:       c.State(),
		PointNumber: c.ctx.PointNumber,
		Samples:     c.acc.Count(),
		RawOK:       c.ctx.RawOK,
		RawFailed:   c.ctx.RawFailed,
		FixedPct:    c.acc.FixedPercentage(),
		DisplayView: c.displayView,
		SetupMode:   c.setupMode,
		StartedAt:   c.ctx.StartedAt,
	}
}

var _ Storage = (*logstore.Store)(nil)
