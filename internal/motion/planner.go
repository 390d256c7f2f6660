package motion

import (
	"math"

	"github.com/sagostin/servoctl/internal/ctlerr"
)

// PlanBlock is one buffered motion command for one axis at an absolute
// timestamp (§3).
type PlanBlock struct {
	TimestampMs int64
	ServoID     int
	Continuous  bool

	// Position-mode fields.
	StartAngle       float32
	TargetAngle      float32
	AbsDistance      float32
	MaxVelocity      float32
	Acceleration     float32
	Deceleration     float32
	EntrySpeed       float32
	ExitSpeed        float32
	MaxJunctionSpeed float32
	NominalSpeed     float32
	TAccel           float32
	TConst           float32
	TDecel           float32
	VMaxActual       float32
	DurationMs       int32

	// Continuous-mode fields.
	TargetSpeedPct   float32
	EntrySpeedPct    float32
	ExitSpeedPct     float32
	AccelRatePctPerS float32
	DecelRatePctPerS float32

	Recalculate   bool
	NominalLength bool
	JunctionValid bool
}

// CurrentAngleFunc reports an axis's current executed angle, used to seed a
// newly queued block's start_angle when no prior block targets that axis
// (§4.7 step 2).
type CurrentAngleFunc func(servoID int) float32

// Planner is the 32-slot ring buffer plus the reverse/forward recalculation
// pass described in §4.7.
type Planner struct {
	blocks [PlannerBufferSize]PlanBlock
	head   int // producer
	tail   int // consumer
	count  int

	Running bool
	Paused  bool

	RecalculateFlag bool

	lastServoID     int
	haveLastServo   bool
	lastTargetAngle float32
}

// NewPlanner returns an empty planner.
func NewPlanner() *Planner {
	return &Planner{lastServoID: -1}
}

// Count returns the number of queued blocks.
func (p *Planner) Count() int { return p.count }

// NextTimestampMs returns the timestamp at which a newly queued block
// would begin if appended immediately after the current tail block (0 if
// the planner is empty), letting a caller chain buffered moves back to
// back without tracking its own clock.
func (p *Planner) NextTimestampMs() int64 {
	if p.count == 0 {
		return 0
	}
	last := p.slot(p.count - 1)
	return last.TimestampMs + int64(last.DurationMs)
}

// Full reports whether the ring has no free slot.
func (p *Planner) Full() bool { return p.count == PlannerBufferSize }

// Peek returns the head block (next to dispatch) without removing it.
func (p *Planner) Peek() (*PlanBlock, bool) {
	if p.count == 0 {
		return nil, false
	}
	return &p.blocks[p.tail], true
}

// Pop removes and returns the head block.
func (p *Planner) Pop() (PlanBlock, bool) {
	if p.count == 0 {
		return PlanBlock{}, false
	}
	b := p.blocks[p.tail]
	p.tail = (p.tail + 1) % PlannerBufferSize
	p.count--
	return b, true
}

func (p *Planner) slot(offsetFromTail int) *PlanBlock {
	idx := (p.tail + offsetFromTail) % PlannerBufferSize
	return &p.blocks[idx]
}

// AddMotion queues a position-mode block (§4.7). currentAngle supplies the
// axis's current executed angle when no queued block already targets it.
func (p *Planner) AddMotion(timestampMs int64, servoID int, target, vMax, accel, decel float32, currentAngle CurrentAngleFunc) error {
	if p.Full() {
		return ctlerr.New(ctlerr.Busy, "planner buffer full")
	}

	start := p.lastKnownTarget(servoID, currentAngle)
	distance := target - start

	b := PlanBlock{
		TimestampMs:      timestampMs,
		ServoID:          servoID,
		Continuous:       false,
		StartAngle:       start,
		TargetAngle:      target,
		AbsDistance:      float32(math.Abs(float64(distance))),
		MaxVelocity:      vMax,
		Acceleration:     accel,
		Deceleration:     decel,
		NominalSpeed:     vMax,
		EntrySpeed:       0,
		ExitSpeed:        0,
		MaxJunctionSpeed: 0,
		Recalculate:      true,
	}
	fit := FitTrapezoid(distance, vMax, accel, decel, 0, 0)
	b.VMaxActual = fit.VMaxActual
	b.TAccel, b.TConst, b.TDecel = fit.TAccel, fit.TConst, fit.TDecel
	b.DurationMs = fit.DurationMs()

	p.push(b)
	p.RecalculateFlag = true
	p.lastServoID = servoID
	p.haveLastServo = true
	p.lastTargetAngle = target
	return nil
}

// AddContinuousMotion queues a continuous-rotation block (§4.7).
func (p *Planner) AddContinuousMotion(timestampMs int64, servoID int, targetPct, accel, decel float32, durationMs int32) error {
	if p.Full() {
		return ctlerr.New(ctlerr.Busy, "planner buffer full")
	}

	entry := float32(0)
	if prev, ok := p.lastBlockFor(servoID); ok && prev.Continuous {
		entry = prev.ExitSpeedPct
	}

	b := PlanBlock{
		TimestampMs:      timestampMs,
		ServoID:          servoID,
		Continuous:       true,
		TargetSpeedPct:   targetPct,
		EntrySpeedPct:    entry,
		ExitSpeedPct:     0,
		AccelRatePctPerS: accel,
		DecelRatePctPerS: decel,
		DurationMs:       durationMs,
		Recalculate:      true,
	}
	p.push(b)
	p.RecalculateFlag = true
	return nil
}

func (p *Planner) push(b PlanBlock) {
	p.blocks[p.head] = b
	p.head = (p.head + 1) % PlannerBufferSize
	p.count++
}

// lastKnownTarget returns the prior queued block's target for servoID, or
// currentAngle(servoID) if no queued block targets it yet (§4.7 step 2).
func (p *Planner) lastKnownTarget(servoID int, currentAngle CurrentAngleFunc) float32 {
	for i := p.count - 1; i >= 0; i-- {
		b := p.slot(i)
		if b.ServoID == servoID && !b.Continuous {
			return b.TargetAngle
		}
	}
	if currentAngle != nil {
		return currentAngle(servoID)
	}
	return 0
}

func (p *Planner) lastBlockFor(servoID int) (*PlanBlock, bool) {
	for i := p.count - 1; i >= 0; i-- {
		b := p.slot(i)
		if b.ServoID == servoID {
			return b, true
		}
	}
	return nil, false
}

// junctionSpeed implements §4.7's continuity rule between two adjacent
// blocks of possibly-different axes/modes.
func junctionSpeed(prev, cur *PlanBlock) float32 {
	if prev.ServoID != cur.ServoID || prev.Continuous != cur.Continuous {
		return 0
	}
	if prev.Continuous {
		delta := float32(math.Abs(float64(prev.TargetSpeedPct - cur.TargetSpeedPct)))
		if delta < 5 {
			return minf(absf(prev.TargetSpeedPct), absf(cur.TargetSpeedPct))
		}
		return absf((prev.TargetSpeedPct + cur.TargetSpeedPct) / 2)
	}
	if prev.AbsDistance == 0 || cur.AbsDistance == 0 {
		return 0
	}
	aMin := minf(prev.Acceleration, cur.Acceleration)
	vNom := minf(prev.NominalSpeed, cur.NominalSpeed)
	avgDist := (prev.AbsDistance + cur.AbsDistance) / 2
	vDev := sqrt0(2 * aMin * JunctionDeviation * avgDist)
	v := minf(vNom, vDev)
	if v < MinJunctionSpeed {
		v = MinJunctionSpeed
	}
	return v
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// Recalculate runs the reverse pass then the forward pass over every
// queued block (§4.7 — the heart of the planner).
func (p *Planner) Recalculate() {
	if p.count == 0 {
		p.RecalculateFlag = false
		return
	}

	// Reverse pass: newest to oldest.
	for i := p.count - 1; i >= 0; i-- {
		cur := p.slot(i)
		if i == p.count-1 {
			cur.ExitSpeed = 0
		}

		if i < p.count-1 {
			next := p.slot(i + 1)
			if !cur.Continuous && !next.Continuous && cur.ServoID == next.ServoID {
				cur.MaxJunctionSpeed = junctionSpeed(cur, next)
				cur.JunctionValid = true
			} else {
				cur.MaxJunctionSpeed = 0
				cur.JunctionValid = false
			}
			cur.ExitSpeed = minf(next.EntrySpeed, cur.MaxJunctionSpeed)
		}

		// The first block always starts from rest. Every later position
		// block gets its max entry speed: the highest speed from which it
		// can still slow to its exit speed over its own distance, capped
		// at its nominal speed. The next iteration reads it as next.EntrySpeed.
		if i == 0 {
			cur.EntrySpeed = 0
		} else if !cur.Continuous {
			vEntryMax := sqrt0(cur.ExitSpeed*cur.ExitSpeed + 2*minf(cur.Acceleration, cur.Deceleration)*cur.AbsDistance)
			cur.EntrySpeed = minf(cur.NominalSpeed, vEntryMax)
		}
	}

	// Forward pass: oldest to newest.
	for i := 0; i < p.count; i++ {
		cur := p.slot(i)
		if !cur.Continuous {
			vExitMax := sqrt0(cur.EntrySpeed*cur.EntrySpeed + 2*minf(cur.Acceleration, cur.Deceleration)*cur.AbsDistance)
			cur.ExitSpeed = minf(cur.ExitSpeed, minf(vExitMax, cur.NominalSpeed))
			p.recalculateTrapezoid(cur)
		}
		if i < p.count-1 {
			next := p.slot(i + 1)
			next.EntrySpeed = cur.ExitSpeed
		}
	}

	p.RecalculateFlag = false
}

// recalculateTrapezoid re-fits a block's trapezoid under its current
// entry/exit/nominal speeds (§4.7).
func (p *Planner) recalculateTrapezoid(b *PlanBlock) {
	fit := FitTrapezoid(b.AbsDistance, b.NominalSpeed, b.Acceleration, b.Deceleration, b.EntrySpeed, b.ExitSpeed)
	b.VMaxActual = fit.VMaxActual
	b.TAccel, b.TConst, b.TDecel = fit.TAccel, fit.TConst, fit.TDecel
	b.DurationMs = fit.DurationMs()
}
