package motionao

import (
	"testing"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/motion"
	"github.com/sagostin/servoctl/internal/servo"
)

type fakeWriter struct {
	pulses map[int]uint16
}

func newFakeWriter() *fakeWriter { return &fakeWriter{pulses: map[int]uint16{}} }

func (f *fakeWriter) SetPulseMicros(axisID int, us uint16) { f.pulses[axisID] = us }

func TestMotionStartDrivesAllAxesToTarget(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(m, w)

	var targets [18]float32
	for i := range targets {
		targets[i] = 45
	}
	a.Dispatch(ao.MotionStartEvent{TargetPositions: targets, DurationMs: 100})
	if a.State() != Moving {
		t.Fatal("expected Moving after MotionStart")
	}

	now := time.Now()
	a.onInterpTick(now)
	a.onInterpTick(now.Add(150 * time.Millisecond))

	if a.State() != Idle {
		t.Fatal("expected Idle once every axis reaches target")
	}
	if m.Axes[0].CurrentAngleDeg != 45 {
		t.Fatalf("axis 0 angle = %v, want 45", m.Axes[0].CurrentAngleDeg)
	}
}

func TestMotionStopHaltsInPlace(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(m, w)
	var targets [18]float32
	for i := range targets {
		targets[i] = 170
	}
	a.Dispatch(ao.MotionStartEvent{TargetPositions: targets, DurationMs: 1000})
	a.onInterpTick(time.Now())

	a.Dispatch(ao.MotionStopEvent{})
	if a.State() != Idle {
		t.Fatal("expected Idle after MotionStop")
	}
}

func TestTrapezoidSetPreservesOtherAxesIdle(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(m, w)

	a.Dispatch(ao.TrapezoidSetEvent{ServoID: 2, TargetAngle: 170, VelocityDegS: 90, AccelDegS2: 200, DecelDegS2: 200})

	var targets [18]float32
	for i := range targets {
		targets[i] = 10 // would move every axis under plain Smoothstep
	}
	a.Dispatch(ao.MotionStartEvent{TargetPositions: targets, DurationMs: 500})

	if a.interp[2].State != motion.Moving {
		t.Fatal("expected axis 2 to remain Moving under its trapezoid")
	}
	if a.interp[0].State == motion.Moving {
		t.Fatal("expected axis 0 to stay Idle since a trapezoid axis was pending")
	}
}

func TestEStopZeroesAllPulsesAndDisables(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(m, w)
	var targets [18]float32
	for i := range targets {
		targets[i] = 170
	}
	a.Dispatch(ao.MotionStartEvent{TargetPositions: targets, DurationMs: 1000})

	a.Dispatch(ao.EStopEvent{})

	if !a.Estopped() {
		t.Fatal("expected Estopped() true")
	}
	if a.State() != Idle {
		t.Fatal("expected Idle after EStop")
	}
	for i := 0; i < servo.Count; i++ {
		if m.Axes[i].Enabled {
			t.Fatalf("axis %d still enabled after EStop", i)
		}
		if w.pulses[i] != 0 {
			t.Fatalf("axis %d pulse = %d after EStop, want 0", i, w.pulses[i])
		}
	}
}

func TestSchedulerDispatchesPlannedBlockThroughAO(t *testing.T) {
	m := servo.NewMap()
	w := newFakeWriter()
	a := New(m, w)

	currentAngle := func(id int) float32 { return m.Axes[id].CurrentAngleDeg }
	if err := a.Planner().AddMotion(0, 5, 45, 100, 200, 200, currentAngle); err != nil {
		t.Fatalf("AddMotion: %v", err)
	}
	a.Scheduler().Start(time.Now())
	a.Dispatch(ao.TickEvent{Signal: ao.SigInterpTick, Now: time.Now()})

	if a.interp[5].State != motion.Moving {
		t.Fatal("expected axis 5 interpolator driven Moving by the scheduler dispatch")
	}
}
