package session

import (
	"fmt"
	"testing"
	"time"

	"rtkrover/internal/gnss"
	"rtkrover/internal/point"
)

type fakeStore struct {
	available bool

	rawPoints []int
	rawErr    error

	flushed    []flushedPoint
	flushErr   error
	flushCount int
}

type flushedPoint struct {
	pointNumber int
	samples     int
}

func (f *fakeStore) Available() bool { return f.available }

func (f *fakeStore) AppendRaw(pointNumber int, _ gnss.PositionSample) error {
	if f.rawErr != nil {
		return f.rawErr
	}
	f.rawPoints = append(f.rawPoints, pointNumber)
	return nil
}

func (f *fakeStore) AppendAveraged(acc *point.Accumulator) error {
	f.flushCount++
	if f.flushErr != nil {
		return f.flushErr
	}
	f.flushed = append(f.flushed, flushedPoint{acc.PointNumber(), acc.Count()})
	return nil
}

func fixedSample() gnss.PositionSample {
	return gnss.PositionSample{CarrierSolution: gnss.CarrierFixed, Satellites: 17}
}

func TestStartRefusedWhenStorageUnavailable(t *testing.T) {
	store := &fakeStore{available: false}
	c := New(store, Config{})

	err := c.Start(time.Now())
	if err != ErrStorageUnavailable {
		t.Fatalf("err=%v want ErrStorageUnavailable", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
	if c.Snapshot().PointNumber != point.Unassigned {
		t.Fatalf("point number must not advance on refused start")
	}
}

func TestStartStopAssignsAndFlushes(t *testing.T) {
	store := &fakeStore{available: true}
	c := New(store, Config{MinSampleInterval: time.Second})

	now := time.Unix(1000, 0)
	if err := c.Start(now); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !c.Logging() {
		t.Fatalf("state=%s want logging", c.State())
	}

	for i := 0; i < 3; i++ {
		if !c.HandleSample(now.Add(time.Duration(i)*time.Second), fixedSample()) {
			t.Fatalf("sample %d not accepted", i)
		}
	}
	c.Stop()

	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
	if len(store.flushed) != 1 {
		t.Fatalf("flushes=%d want 1", len(store.flushed))
	}
	if store.flushed[0] != (flushedPoint{pointNumber: 1, samples: 3}) {
		t.Fatalf("flushed=%+v", store.flushed[0])
	}
	if got := store.rawPoints; len(got) != 3 || got[0] != 1 {
		t.Fatalf("raw writes=%v want three for point 1", got)
	}
	// Accumulator is discarded after the flush.
	if c.Accumulator().Count() != 0 {
		t.Fatalf("accumulator not reset after stop")
	}
}

func TestStopWithEmptySessionSkipsFlush(t *testing.T) {
	store := &fakeStore{available: true}
	c := New(store, Config{})

	if err := c.Start(time.Now()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	c.Stop()
	if store.flushCount != 0 {
		t.Fatalf("empty session must not request a flush")
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestStopTransitionsDespiteFlushFailure(t *testing.T) {
	store := &fakeStore{available: true, flushErr: fmt.Errorf("card pulled")}
	c := New(store, Config{})

	now := time.Now()
	if err := c.Start(now); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	c.HandleSample(now, fixedSample())
	c.Stop()

	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle after failed flush", c.State())
	}
	if store.flushCount != 1 {
		t.Fatalf("flush attempts=%d want 1 (no retry)", store.flushCount)
	}
}

func TestSampleAdmissionInterval(t *testing.T) {
	store := &fakeStore{available: true}
	c := New(store, Config{MinSampleInterval: time.Second})

	now := time.Unix(2000, 0)
	if err := c.Start(now); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !c.HandleSample(now, fixedSample()) {
		t.Fatalf("first sample must be accepted")
	}
	if c.HandleSample(now.Add(300*time.Millisecond), fixedSample()) {
		t.Fatalf("sub-interval sample must be dropped")
	}
	if !c.HandleSample(now.Add(1100*time.Millisecond), fixedSample()) {
		t.Fatalf("post-interval sample must be accepted")
	}
	if got := c.Accumulator().Count(); got != 2 {
		t.Fatalf("count=%d want 2", got)
	}
}

func TestSamplesIgnoredWhileIdle(t *testing.T) {
	store := &fakeStore{available: true}
	c := New(store, Config{})
	if c.HandleSample(time.Now(), fixedSample()) {
		t.Fatalf("idle controller must not log samples")
	}
	if len(store.rawPoints) != 0 {
		t.Fatalf("no raw writes expected while idle")
	}
}

func TestRawFailureCountsButSessionContinues(t *testing.T) {
	store := &fakeStore{available: true, rawErr: fmt.Errorf("write failed")}
	c := New(store, Config{MinSampleInterval: time.Second})

	now := time.Unix(3000, 0)
	if err := c.Start(now); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	c.HandleSample(now, fixedSample())
	c.HandleSample(now.Add(time.Second), fixedSample())

	snap := c.Snapshot()
	if snap.RawFailed != 2 || snap.RawOK != 0 {
		t.Fatalf("counters=%+v want 2 failures", snap)
	}
	if !c.Logging() {
		t.Fatalf("session must stay open despite raw failures")
	}
	// The accumulator still holds the samples for the averaged point.
	if c.Accumulator().Count() != 2 {
		t.Fatalf("count=%d want 2", c.Accumulator().Count())
	}
}

func TestRolloverResetsNumberingButNotOpenSession(t *testing.T) {
	store := &fakeStore{available: true}
	c := New(store, Config{MinSampleInterval: time.Second})

	now := time.Unix(4000, 0)
	c.Start(now)
	c.Stop()
	c.Start(now.Add(time.Minute)) // point 2
	c.HandleSample(now.Add(time.Minute), fixedSample())

	c.Rollover()

	// The open session keeps point 2; no mid-session renumbering.
	if got := c.Accumulator().PointNumber(); got != 2 {
		t.Fatalf("open session point=%d want 2", got)
	}
	c.HandleSample(now.Add(time.Minute+2*time.Second), fixedSample())
	if got := store.rawPoints[len(store.rawPoints)-1]; got != 2 {
		t.Fatalf("raw write point=%d want 2 after rollover", got)
	}
	c.Stop()

	// The next session restarts daily numbering at 1.
	c.Start(now.Add(2 * time.Minute))
	if got := c.Accumulator().PointNumber(); got != 1 {
		t.Fatalf("post-rollover point=%d want 1", got)
	}
}

func TestHandleEventToggleAndSetup(t *testing.T) {
	c := New(&fakeStore{available: true}, Config{})
	now := time.Now()

	c.HandleEvent(ToggleDisplayView, now)
	if c.DisplayView() != 1 {
		t.Fatalf("displayView=%d want 1", c.DisplayView())
	}
	c.HandleEvent(ToggleDisplayView, now)
	if c.DisplayView() != 0 {
		t.Fatalf("displayView=%d want 0", c.DisplayView())
	}

	c.HandleEvent(EnterSetupMode, now)
	if !c.SetupRequested() {
		t.Fatalf("expected setup mode requested")
	}

	c.HandleEvent(StartLogging, now)
	if !c.Logging() {
		t.Fatalf("StartLogging event must open a session")
	}
	c.HandleEvent(StopLogging, now)
	if c.Logging() {
		t.Fatalf("StopLogging event must close the session")
	}
}
