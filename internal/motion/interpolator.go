package motion

import (
	"time"
)

// Profile selects the motion shape an Interpolator evaluates (§3, §4.6).
type Profile int

const (
	Linear Profile = iota
	Smoothstep
	Trapezoid
)

// State is the lifecycle of one axis's interpolator (§3).
type State int

const (
	Idle State = iota
	Moving
	Reached
)

// TrapezoidParams are the kinematic limits for a trapezoidal move (§4.6).
type TrapezoidParams struct {
	VMax  float32
	Accel float32
	Decel float32
}

// Interpolator evaluates one axis's position over time under a Linear,
// Smoothstep, or Trapezoid profile (§4.6). It holds no reference to any
// Trajectory at all — Motion AO owns the per-axis Trajectory slice and
// drives waypoint chaining itself by axis index, calling back into this
// Interpolator only through SetTrapezoid for each leg — avoiding the
// lifetime tangle called out in §9.
type Interpolator struct {
	Profile Profile
	State   State

	StartPos   float32
	TargetPos  float32
	CurrentPos float32

	StartTime time.Time
	Duration  time.Duration

	// Trapezoid-only fields.
	distance   float32 // signed, TargetPos - StartPos
	accel      float32
	decel      float32
	entrySpeed float32
	exitSpeed  float32
	fit        TrapFit
}

// New returns an Idle interpolator.
func New() *Interpolator {
	return &Interpolator{State: Idle}
}

// SetMotion starts a Linear or Smoothstep move from start to target over
// duration (§4.6).
func (ip *Interpolator) SetMotion(start, target float32, duration time.Duration, profile Profile, now time.Time) {
	ip.Profile = profile
	ip.State = Moving
	ip.StartPos = start
	ip.TargetPos = target
	ip.CurrentPos = start
	ip.StartTime = now
	ip.Duration = duration
	if duration <= 0 {
		ip.CurrentPos = target
		ip.State = Reached
	}
}

// SetTrapezoid starts a standalone trapezoidal move (entry/exit speed 0),
// per §4.6's simplified formula — the vEntry=0, vExit=0 case of
// FitTrapezoid.
func (ip *Interpolator) SetTrapezoid(start, target float32, params TrapezoidParams, now time.Time) {
	ip.setTrapezoidFull(start, target, params.VMax, params.Accel, params.Decel, 0, 0, now)
}

// SetTrapezoidPlanned starts a trapezoidal move using a planner-computed
// entry speed, exit speed, and already-fitted duration (§4.8: the
// scheduler calls the interpolator with the planner's computed entry/exit
// speeds and v_max_actual).
func (ip *Interpolator) SetTrapezoidPlanned(start, target, vMaxActual, accel, decel, entrySpeed, exitSpeed float32, fit TrapFit, now time.Time) {
	ip.Profile = Trapezoid
	ip.State = Moving
	ip.StartPos = start
	ip.TargetPos = target
	ip.CurrentPos = start
	ip.StartTime = now
	ip.Duration = time.Duration(fit.DurationMs()) * time.Millisecond
	ip.distance = target - start
	ip.accel = accel
	ip.decel = decel
	ip.entrySpeed = entrySpeed
	ip.exitSpeed = exitSpeed
	fit.VMaxActual = vMaxActual
	ip.fit = fit
	if ip.Duration <= 0 {
		ip.CurrentPos = target
		ip.State = Reached
	}
}

func (ip *Interpolator) setTrapezoidFull(start, target, vMax, accel, decel, entrySpeed, exitSpeed float32, now time.Time) {
	distance := target - start
	fit := FitTrapezoid(distance, vMax, accel, decel, entrySpeed, exitSpeed)
	ip.Profile = Trapezoid
	ip.State = Moving
	ip.StartPos = start
	ip.TargetPos = target
	ip.CurrentPos = start
	ip.StartTime = now
	ip.Duration = time.Duration(fit.DurationMs()) * time.Millisecond
	ip.distance = distance
	ip.accel = accel
	ip.decel = decel
	ip.entrySpeed = entrySpeed
	ip.exitSpeed = exitSpeed
	ip.fit = fit
	if ip.Duration <= 0 {
		ip.CurrentPos = target
		ip.State = Reached
	}
}

// Stop halts the interpolator in place (§4.6, used by MotionStop/EStop).
func (ip *Interpolator) Stop() {
	ip.State = Idle
}

// Reached reports whether the current move has completed.
func (ip *Interpolator) Reached() bool { return ip.State == Reached }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Update advances the interpolator to now and returns the current
// position. On completion (ratio >= 1) it returns exactly TargetPos and
// transitions to Reached (P4).
func (ip *Interpolator) Update(now time.Time) float32 {
	if ip.State != Moving {
		return ip.CurrentPos
	}

	elapsed := now.Sub(ip.StartTime)
	ratio := float32(0)
	if ip.Duration > 0 {
		ratio = clamp01(float32(elapsed) / float32(ip.Duration))
	} else {
		ratio = 1
	}

	switch ip.Profile {
	case Linear:
		ip.CurrentPos = ip.StartPos + (ip.TargetPos-ip.StartPos)*ratio
	case Smoothstep:
		s := 3*ratio*ratio - 2*ratio*ratio*ratio
		ip.CurrentPos = ip.StartPos + (ip.TargetPos-ip.StartPos)*s
	case Trapezoid:
		if ratio >= 1 {
			ip.CurrentPos = ip.TargetPos
		} else {
			tSec := float32(elapsed) / float32(time.Second)
			sign := float32(1)
			if ip.distance < 0 {
				sign = -1
			}
			s := ip.fit.Position(tSec, ip.accel, ip.decel, ip.entrySpeed, ip.exitSpeed)
			ip.CurrentPos = ip.StartPos + sign*s
		}
	}

	if ratio >= 1 {
		ip.CurrentPos = ip.TargetPos
		ip.State = Reached
	}
	return ip.CurrentPos
}

