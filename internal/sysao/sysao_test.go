package sysao

import (
	"testing"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/ctlerr"
	"github.com/sagostin/servoctl/internal/servo"
	"github.com/sagostin/servoctl/internal/store"
)

type fakeWriter struct{ pulses map[int]uint16 }

func newFakeWriter() *fakeWriter { return &fakeWriter{pulses: map[int]uint16{}} }
func (f *fakeWriter) SetPulseMicros(axisID int, us uint16) { f.pulses[axisID] = us }

func TestFlashSaveThenLoadRoundTrips(t *testing.T) {
	m := servo.NewMap()
	m.Axes[4].CurrentAngleDeg = 33
	w := newFakeWriter()
	dev := store.NewMemDevice()
	a := New(dev, m, w)

	a.Dispatch(ao.CmdFlashSaveEvent{})

	m.Axes[4].CurrentAngleDeg = 90 // perturb before load
	a.Dispatch(ao.CmdFlashLoadEvent{})

	if m.Axes[4].CurrentAngleDeg != 33 {
		t.Fatalf("axis 4 angle after load = %v, want 33", m.Axes[4].CurrentAngleDeg)
	}
	rec, ok := a.LastLoad()
	if !ok || !rec.PositionsValid {
		t.Fatal("expected LastLoad to report a valid saved record")
	}
}

func TestFlashLoadFallsBackToDefaultsOnEmptyDevice(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	dev := store.NewMemDevice() // never saved to: fails Decode
	a := New(dev, m, w)

	a.Dispatch(ao.CmdFlashLoadEvent{})

	rec, ok := a.LastLoad()
	if !ok {
		t.Fatal("expected a default record to be recorded as the last load")
	}
	if rec.PositionsValid {
		t.Fatal("expected default record's positions_valid to be false")
	}
}

func TestSevereErrorTransitionsToError(t *testing.T) {
	m := servo.NewMap()
	a := New(store.NewMemDevice(), m, newFakeWriter())

	a.Dispatch(ao.ErrorEvent{Code: ctlerr.SevereThreshold, Msg: "boom"})
	if a.State() != Error {
		t.Fatalf("state = %v, want Error", a.State())
	}

	a.Dispatch(ao.InitCompleteEvent{})
	if a.State() != Normal {
		t.Fatalf("state = %v, want Normal after InitComplete", a.State())
	}
}

func TestNonSevereErrorDoesNotTransition(t *testing.T) {
	m := servo.NewMap()
	a := New(store.NewMemDevice(), m, newFakeWriter())
	a.Dispatch(ao.ErrorEvent{Code: ctlerr.SevereThreshold - 1, Msg: "minor"})
	if a.State() != Normal {
		t.Fatalf("state = %v, want Normal for a non-severe code", a.State())
	}
}

func TestEStopDisablesAllAxesAndZeroesPulses(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(store.NewMemDevice(), m, w)

	a.Dispatch(ao.EStopEvent{})

	if a.State() != EStop {
		t.Fatalf("state = %v, want EStop", a.State())
	}
	if a.LedPattern() != LedEStopFast {
		t.Fatal("expected fastest LED pattern on EStop")
	}
	for i := 0; i < servo.Count; i++ {
		if m.Axes[i].Enabled {
			t.Fatalf("axis %d enabled after EStop", i)
		}
		if w.pulses[i] != 0 {
			t.Fatalf("axis %d pulse = %d, want 0", i, w.pulses[i])
		}
	}
}

func TestEStopIsNotClearedByInitComplete(t *testing.T) {
	m := servo.NewMap()
	a := New(store.NewMemDevice(), m, newFakeWriter())
	a.Dispatch(ao.EStopEvent{})
	a.Dispatch(ao.InitCompleteEvent{})
	if a.State() != EStop {
		t.Fatal("EStop must only be cleared externally, not by InitComplete")
	}
}

func TestLedUpdateReflectsCurrentState(t *testing.T) {
	m := servo.NewMap()
	a := New(store.NewMemDevice(), m, newFakeWriter())
	a.Dispatch(ao.LedUpdateEvent{})
	if a.LedPattern() != LedNormal {
		t.Fatalf("LedPattern = %v, want LedNormal", a.LedPattern())
	}
}
