// Package motion implements the per-axis interpolators, the look-ahead
// planner, and the timestamp-driven scheduler that make up the motion core
// (spec §4.6-§4.8).
package motion

import "math"

// Tunable defaults (§6.4).
const (
	// MaxTrajectoryPoints bounds a per-axis Trajectory's waypoint count.
	MaxTrajectoryPoints = 50
	// PlannerBufferSize is the planner's ring capacity, independent of
	// MaxTrajectoryPoints (§9).
	PlannerBufferSize = 32

	JunctionDeviation = 0.05
	MinJunctionSpeed  = float32(5.0)

	InterpTickMs    = 20
	SchedulerTickMs = 10
)

// TrapFit is the timing decomposition of a trapezoidal (or triangular)
// velocity profile.
type TrapFit struct {
	VMaxActual float32
	TAccel     float32 // seconds
	TConst     float32
	TDecel     float32
}

// DurationMs rounds the total profile time to milliseconds.
func (f TrapFit) DurationMs() int32 {
	total := f.TAccel + f.TConst + f.TDecel
	return int32(math.Round(float64(total) * 1000))
}

func sqrt0(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(v)))
}

// FitTrapezoid computes a trapezoidal velocity profile for a move of
// |distance|, bounded by vNom (cruise speed), accel and decel, starting at
// vEntry and ending at vExit (§4.6's 0-entry/0-exit case is the vEntry=0,
// vExit=0 specialization of §4.7's general re-fit, so one function serves
// both the Interpolator's standalone SetTrapezoid and the Planner's
// recalculateTrapezoid). Degenerate input (non-positive vNom, accel, decel,
// or |distance| <= 0.01) is fitted as a no-op — Planner never panics on
// non-finite input (§9).
func FitTrapezoid(distance, vNom, accel, decel, vEntry, vExit float32) TrapFit {
	d := float32(math.Abs(float64(distance)))
	if vNom <= 0 || d <= 0.01 || accel <= 0 || decel <= 0 {
		return TrapFit{}
	}

	dAccel := (vNom*vNom - vEntry*vEntry) / (2 * accel)
	dDecel := (vNom*vNom - vExit*vExit) / (2 * decel)

	if dAccel+dDecel <= d {
		tAccel := (vNom - vEntry) / accel
		tDecel := (vNom - vExit) / decel
		tConst := (d - dAccel - dDecel) / vNom
		if tConst < 0 {
			tConst = 0
		}
		if tAccel < 0 {
			tAccel = 0
		}
		if tDecel < 0 {
			tDecel = 0
		}
		return TrapFit{VMaxActual: vNom, TAccel: tAccel, TConst: tConst, TDecel: tDecel}
	}

	denom := 1/(2*accel) + 1/(2*decel)
	vPeakSq := (d + vEntry*vEntry/(2*accel) + vExit*vExit/(2*decel)) / denom
	if vPeakSq <= 0 {
		tDecel := (vEntry - vExit) / decel
		if tDecel < 0 {
			tDecel = 0
		}
		return TrapFit{VMaxActual: vEntry, TAccel: 0, TConst: 0, TDecel: tDecel}
	}
	vPeak := sqrt0(vPeakSq)
	if vPeak > vNom {
		vPeak = vNom
	}
	tAccel := (vPeak - vEntry) / accel
	if tAccel < 0 {
		tAccel = 0
	}
	tDecel := (vPeak - vExit) / decel
	if tDecel < 0 {
		tDecel = 0
	}
	return TrapFit{VMaxActual: vPeak, TAccel: tAccel, TConst: 0, TDecel: tDecel}
}

// Position evaluates the signed distance traveled at elapsed seconds t
// (0 <= t <= total duration) under a trapezoidal profile with the given
// entry/exit speeds, by standard constant-acceleration kinematics per
// segment. The segment distances sum to |distance| by construction of
// FitTrapezoid, which is exactly the P7 mass-balance property.
func (f TrapFit) Position(t, accel, decel, vEntry, vExit float32) float32 {
	if t < 0 {
		t = 0
	}
	dAccelSeg := f.VMaxActual*f.VMaxActual/(2*accel) - vEntry*vEntry/(2*accel)
	dConstSeg := f.VMaxActual * f.TConst

	switch {
	case t <= f.TAccel:
		return vEntry*t + 0.5*accel*t*t
	case t <= f.TAccel+f.TConst:
		return dAccelSeg + f.VMaxActual*(t-f.TAccel)
	default:
		t2 := t - f.TAccel - f.TConst
		if t2 > f.TDecel {
			t2 = f.TDecel
		}
		return dAccelSeg + dConstSeg + f.VMaxActual*t2 - 0.5*decel*t2*t2
	}
}

// TotalDistance returns the distance covered by the full profile.
func (f TrapFit) TotalDistance(accel, decel, vEntry, vExit float32) float32 {
	return f.Position(f.TAccel+f.TConst+f.TDecel, accel, decel, vEntry, vExit)
}
