// Package motionao implements Motion AO (§4.11): the state machine that
// drives the per-axis interpolators and the planner/scheduler pair from
// the Idle/Moving states.
package motionao

import (
	"math"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/ctlerr"
	"github.com/sagostin/servoctl/internal/motion"
	"github.com/sagostin/servoctl/internal/servo"
)

// State is Motion AO's top-level state (§4.11).
type State int

const (
	Idle State = iota
	Moving
)

// AO is Motion AO. It owns one Interpolator and one Trajectory slot per
// axis, plus the single shared Planner/Scheduler pair (§4.7/§4.8 — the
// planner queues blocks for any axis, not one planner per axis).
type AO struct {
	handle   *ao.Handle
	servoMap *servo.Map
	writer   servo.PulseWriter

	interp       [servo.Count]*motion.Interpolator
	trajectory   [servo.Count]*motion.Trajectory
	hasTrapezoid [servo.Count]bool

	planner   *motion.Planner
	scheduler *motion.Scheduler

	estopped bool

	onMoveComplete func()
	onError        func(code uint8, msg string)
}

// New builds Motion AO over servoMap, writing pulses through writer. The
// Scheduler's Execute callback is wired to drive this AO's interpolators
// directly (§4.8).
func New(servoMap *servo.Map, writer servo.PulseWriter) *AO {
	a := &AO{servoMap: servoMap, writer: writer}
	for i := range a.interp {
		a.interp[i] = motion.New()
	}
	a.planner = motion.NewPlanner()
	a.scheduler = motion.NewScheduler(a.planner, a.execute)
	return a
}

// Bind stores the runtime handle this AO was registered under. Motion AO
// posts nothing through it; errors reach System AO via the onError hook.
func (a *AO) Bind(handle *ao.Handle) { a.handle = handle }

// SetCallbacks wires optional completion/error hooks (cmd/servoctld wires
// onError to post an ErrorEvent to System AO).
func (a *AO) SetCallbacks(onMoveComplete func(), onError func(code uint8, msg string)) {
	a.onMoveComplete = onMoveComplete
	a.onError = onError
}

// Planner exposes the shared planner so dispatch can call AddMotion /
// AddContinuousMotion for the MoveBuffered and SetSpeed commands.
func (a *AO) Planner() *motion.Planner { return a.planner }

// Scheduler exposes the shared scheduler so dispatch/system can
// start/stop/pause it.
func (a *AO) Scheduler() *motion.Scheduler { return a.scheduler }

// State reports Moving if any axis interpolator is currently moving.
func (a *AO) State() State {
	for _, ip := range a.interp {
		if ip.State == motion.Moving {
			return Moving
		}
	}
	return Idle
}

// Dispatch implements ao.AO.
func (a *AO) Dispatch(ev ao.Event) {
	switch e := ev.(type) {
	case ao.TickEvent:
		if e.Sig() == ao.SigInterpTick {
			a.onInterpTick(e.Now)
		}
	case ao.MotionStartEvent:
		a.onMotionStart(e)
	case ao.MotionStopEvent:
		a.onMotionStop()
	case ao.TrapezoidSetEvent:
		a.onTrapezoidSet(e)
	case ao.EStopEvent:
		a.onEStop()
	}
}

// onInterpTick fires every INTERP_TICK_MS (20 ms default, §6.4). It always
// drives the scheduler (so buffered motion fires even while Idle), then
// evaluates every Moving interpolator and applies positions, aborting an
// axis to Idle with an error on a NaN/Inf/out-of-range result (§4.11).
func (a *AO) onInterpTick(now time.Time) {
	a.scheduler.Update(now)

	allReached := true
	anyWasMoving := false
	for i, ip := range a.interp {
		if ip.State != motion.Moving {
			continue
		}
		anyWasMoving = true
		pos := ip.Update(now)
		if math.IsNaN(float64(pos)) || math.IsInf(float64(pos), 0) || pos < -180 || pos > 180 {
			ip.Stop()
			if a.onError != nil {
				a.onError(0xE0, "motion interpolator produced a non-finite or out-of-range position")
			}
			continue
		}
		a.servoMap.Axes[i].SetAngle(pos, a.writer)
		if ip.State != motion.Reached {
			allReached = false
		}
	}

	for i := range a.servoMap.Axes {
		if a.servoMap.Axes[i].Mode == servo.Cont360 {
			a.servoMap.Axes[i].CheckSafetyTimeout(now, a.writer)
		}
	}

	for i := range a.trajectory {
		a.advanceTrajectoryTick(i, now)
	}

	if anyWasMoving && allReached && a.onMoveComplete != nil {
		a.onMoveComplete()
	}
}

// onMotionStart implements the Idle->Moving transition (§4.11): a
// Smoothstep move to event.TargetPositions for every axis, unless one or
// more axes already have a standalone trapezoid armed via a prior
// TrapezoidSetEvent, in which case those axes keep their trapezoid move
// and every other axis is left Idle at its current angle.
func (a *AO) onMotionStart(e ao.MotionStartEvent) {
	now := time.Now()

	anyTrapezoid := false
	for _, pending := range a.hasTrapezoid {
		if pending {
			anyTrapezoid = true
			break
		}
	}

	if anyTrapezoid {
		for i := range a.interp {
			if !a.hasTrapezoid[i] {
				a.interp[i].Stop()
			}
		}
	} else {
		duration := time.Duration(e.DurationMs) * time.Millisecond
		for i := range a.interp {
			current := a.servoMap.Axes[i].CurrentAngleDeg
			a.interp[i].SetMotion(current, e.TargetPositions[i], duration, motion.Smoothstep, now)
		}
	}

	a.hasTrapezoid = [servo.Count]bool{}
}

// onTrapezoidSet arms a standalone trapezoid on one axis ahead of the
// MotionStart that follows it (MoveTrapezoid, §4.12).
func (a *AO) onTrapezoidSet(e ao.TrapezoidSetEvent) {
	if e.ServoID < 0 || e.ServoID >= servo.Count {
		return
	}
	current := a.servoMap.Axes[e.ServoID].CurrentAngleDeg
	params := motion.TrapezoidParams{VMax: e.VelocityDegS, Accel: e.AccelDegS2, Decel: e.DecelDegS2}
	a.interp[e.ServoID].SetTrapezoid(current, e.TargetAngle, params, time.Now())
	a.hasTrapezoid[e.ServoID] = true
}

func (a *AO) onMotionStop() {
	for _, ip := range a.interp {
		ip.Stop()
	}
}

// onEStop stops every interpolator, disables every axis, and forces all
// pulses off (§7: "EvtEStop drives EStop and forces PulseWriter... to 0
// for all axes").
func (a *AO) onEStop() {
	a.onMotionStop()
	a.estopped = true
	a.servoMap.SetEnabled(0xFF, false)
	if a.writer != nil {
		for i := 0; i < servo.Count; i++ {
			a.writer.SetPulseMicros(i, 0)
		}
	}
}

// Estopped reports whether an EStop has been latched (cleared externally
// per §4.11 — there is no ClearEStop event in the command table).
func (a *AO) Estopped() bool { return a.estopped }

// TrajectoryAddPoint appends a waypoint to axis id's trajectory buffer,
// creating the buffer on first use (TRAJ_ADD_POINT, §4.6's point-sequence
// chaining).
func (a *AO) TrajectoryAddPoint(id int, point motion.TrajectoryPoint) error {
	if id < 0 || id >= servo.Count {
		return ctlerr.New(ctlerr.BadID, "trajectory axis id out of range")
	}
	if a.trajectory[id] == nil {
		a.trajectory[id] = motion.NewTrajectory(nil, false)
	}
	return a.trajectory[id].AddPoint(point)
}

// TrajectoryStart arms axis id's queued waypoint sequence, starting the
// first leg immediately (TRAJ_START). Any standalone trapezoid armed on
// this axis via TrapezoidSet is superseded.
func (a *AO) TrajectoryStart(id int, loop bool) error {
	if id < 0 || id >= servo.Count {
		return ctlerr.New(ctlerr.BadID, "trajectory axis id out of range")
	}
	tr := a.trajectory[id]
	if tr == nil || len(tr.Points) == 0 {
		return ctlerr.New(ctlerr.Busy, "no trajectory points queued for this axis")
	}
	tr.Loop = loop
	tr.Reset()
	first := tr.Points[0]
	current := a.servoMap.Axes[id].CurrentAngleDeg
	a.hasTrapezoid[id] = false
	a.interp[id].SetTrapezoid(current, first.Position, first.Params, time.Now())
	return nil
}

// TrajectoryStop halts axis id's interpolator in place and detaches its
// trajectory (TRAJ_STOP).
func (a *AO) TrajectoryStop(id int) {
	if id < 0 || id >= servo.Count {
		return
	}
	a.interp[id].Stop()
	a.trajectory[id] = nil
}

// TrajectoryClear discards axis id's queued waypoints without touching
// whatever leg is currently in flight (TRAJ_CLEAR).
func (a *AO) TrajectoryClear(id int) {
	if id < 0 || id >= servo.Count {
		return
	}
	a.trajectory[id] = nil
}

// TrajectoryInfo reports axis id's trajectory buffer depth and current
// waypoint index (TRAJ_GET_INFO). ok is false if no trajectory is queued.
func (a *AO) TrajectoryInfo(id int) (count, index int, looping bool, ok bool) {
	if id < 0 || id >= servo.Count || a.trajectory[id] == nil {
		return 0, 0, false, false
	}
	tr := a.trajectory[id]
	return len(tr.Points), tr.Index(), tr.Loop, true
}

// advanceTrajectoryTick loads axis i's next waypoint once its interpolator
// has reached the current one and that waypoint's dwell has elapsed
// (§4.6). Motion AO drives this explicitly by axis index rather than the
// Interpolator holding any reference back to the Trajectory (§9).
func (a *AO) advanceTrajectoryTick(i int, now time.Time) {
	tr := a.trajectory[i]
	if tr == nil || len(tr.Points) == 0 {
		return
	}
	if a.interp[i].State != motion.Reached {
		return
	}
	if !tr.DwellElapsed(now) {
		return
	}
	point, ok := tr.Next()
	if !ok {
		a.trajectory[i] = nil
		return
	}
	current := a.interp[i].CurrentPos
	a.interp[i].SetTrapezoid(current, point.Position, point.Params, now)
}

// execute is the Scheduler's Execute callback (§4.8): for a position
// block it drives that axis's interpolator with the planner-computed
// entry/exit speeds and v_max_actual; for a continuous block it calls
// SetSpeed directly.
func (a *AO) execute(b motion.PlanBlock) {
	if b.ServoID < 0 || b.ServoID >= servo.Count {
		return
	}
	now := time.Now()
	if b.Continuous {
		a.servoMap.Axes[b.ServoID].SetSpeed(b.TargetSpeedPct, now, a.writer)
		return
	}
	fit := motion.TrapFit{VMaxActual: b.VMaxActual, TAccel: b.TAccel, TConst: b.TConst, TDecel: b.TDecel}
	a.interp[b.ServoID].SetTrapezoidPlanned(b.StartAngle, b.TargetAngle, b.VMaxActual, b.Acceleration, b.Deceleration, b.EntrySpeed, b.ExitSpeed, fit, now)
}
