package motion

import (
	"time"

	"github.com/sagostin/servoctl/internal/ctlerr"
)

// TrajectoryPoint is one waypoint in a chained point-sequence (§3, §4.6).
type TrajectoryPoint struct {
	Position float32
	Params   TrapezoidParams
	DwellMs  int32
}

// Trajectory is a bounded per-axis waypoint sequence, owned by Motion AO.
// Motion AO references a Trajectory by the axis index into its own
// [servo.Count]*Trajectory slice (§9's "index, not a pointer" resolution
// for this coupling) and drives it explicitly from its tick handler —
// Trajectory itself holds no reference back to an Interpolator.
type Trajectory struct {
	Points []TrajectoryPoint // len <= MaxTrajectoryPoints
	Loop   bool

	index         int
	reachedAt     time.Time
	haveReachedAt bool
}

// NewTrajectory builds a Trajectory, truncating to MaxTrajectoryPoints if
// the caller supplied more.
func NewTrajectory(points []TrajectoryPoint, loop bool) *Trajectory {
	if len(points) > MaxTrajectoryPoints {
		points = points[:MaxTrajectoryPoints]
	}
	return &Trajectory{Points: points, Loop: loop}
}

// AddPoint appends one waypoint (TRAJ_ADD_POINT), refusing once the
// MaxTrajectoryPoints bound is reached.
func (tr *Trajectory) AddPoint(p TrajectoryPoint) error {
	if len(tr.Points) >= MaxTrajectoryPoints {
		return ctlerr.New(ctlerr.Busy, "trajectory buffer full")
	}
	tr.Points = append(tr.Points, p)
	return nil
}

// Reset rewinds the sequence to its first point and clears dwell tracking
// (TRAJ_START re-arms from point 0 every time it is issued).
func (tr *Trajectory) Reset() {
	tr.index = 0
	tr.haveReachedAt = false
}

// markReached records when the interpolator most recently reached the
// trajectory's current waypoint; called by DwellElapsed on its first call
// after a point is reached.
func (tr *Trajectory) markReached(now time.Time) {
	if !tr.haveReachedAt {
		tr.reachedAt = now
		tr.haveReachedAt = true
	}
}

// DwellElapsed reports whether the dwell timer for the current waypoint
// has elapsed, starting that timer on the first call after a point is
// reached.
func (tr *Trajectory) DwellElapsed(now time.Time) bool {
	if !tr.haveReachedAt {
		tr.markReached(now)
		return false
	}
	if tr.index >= len(tr.Points) {
		return false
	}
	dwell := time.Duration(tr.Points[tr.index].DwellMs) * time.Millisecond
	return now.Sub(tr.reachedAt) >= dwell
}

// Next returns the next waypoint to move to, advancing the index and
// wrapping to 0 if Loop is set.
func (tr *Trajectory) Next() (TrajectoryPoint, bool) {
	tr.index++
	if tr.index >= len(tr.Points) {
		if !tr.Loop {
			return TrajectoryPoint{}, false
		}
		tr.index = 0
	}
	tr.haveReachedAt = false
	return tr.Points[tr.index], true
}

// Index reports the currently active waypoint index.
func (tr *Trajectory) Index() int { return tr.index }
