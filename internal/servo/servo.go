// Package servo implements the angle/speed <-> pulse-width calibration map
// for the 18 axes (spec §4.5) and the PWM write contract those axes drive.
package servo

import (
	"math"
	"time"
)

// Count is the fixed number of axes the controller drives.
const Count = 18

// Mode selects how an axis's pulse width is derived.
type Mode int

const (
	Pos180 Mode = iota
	Cont360
)

// Pulse bounds shared by every axis after calibration clamping (I2).
const (
	PulseMin    = 500
	PulseMax    = 2500
	PulseCenter = 1500
)

const (
	neutralDeadbandUs       = 50
	minSpeedThresholdPct    = 5
	safetyTimeout           = 3 * time.Second
	defaultAccelPctPerSec   = 50
	defaultDecelPctPerSec   = 80
	directionChangeDelay    = 200 * time.Millisecond
)

// Calibration holds the per-axis linear pulse mapping (§3).
type Calibration struct {
	PulseMinUs   uint16
	PulseMaxUs   uint16
	PulseOffsetUs int16
	Reversed     bool
}

// DefaultCalibration matches §4.9's first-boot default.
func DefaultCalibration() Calibration {
	return Calibration{PulseMinUs: PulseMin, PulseMaxUs: PulseMax, PulseOffsetUs: 0, Reversed: false}
}

// Axis is the full state of one servo channel (§3).
type Axis struct {
	ID   int
	Mode Mode
	Cal  Calibration

	Enabled bool

	// Pos180 fields.
	CurrentAngleDeg float32
	TargetAngleDeg  float32
	CurrentPulseUs  uint16

	// Cont360 fields.
	CurrentSpeedPct  float32
	TargetSpeedPct   float32
	AccelRatePctPerS float32
	DecelRatePctPerS float32
	NeutralPulseUs   uint16
	DeadbandUs       uint16

	lastSpeedCmd time.Time
}

// NewAxis returns an axis initialized per §4.9 first-boot defaults: 90
// degrees, default calibration, enabled.
func NewAxis(id int, mode Mode) *Axis {
	a := &Axis{
		ID:               id,
		Mode:             mode,
		Cal:              DefaultCalibration(),
		Enabled:          true,
		CurrentAngleDeg:  90,
		TargetAngleDeg:   90,
		AccelRatePctPerS: defaultAccelPctPerSec,
		DecelRatePctPerS: defaultDecelPctPerSec,
		NeutralPulseUs:   PulseCenter,
		DeadbandUs:       neutralDeadbandUs,
	}
	a.CurrentPulseUs = uint16(AngleToPulse(a.Cal, a.CurrentAngleDeg))
	return a
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampPulse(p float32) uint16 {
	p = clampf(p, PulseMin, PulseMax)
	return uint16(math.Round(float64(p)))
}

// AngleToPulse implements §4.5's position mapping:
// clamp(pulse_min + (θ_eff/180)*(pulse_max-pulse_min) + offset).
func AngleToPulse(cal Calibration, angleDeg float32) uint16 {
	theta := clampf(angleDeg, 0, 180)
	effective := theta
	if cal.Reversed {
		effective = 180 - theta
	}
	span := float32(cal.PulseMaxUs) - float32(cal.PulseMinUs)
	pulse := float32(cal.PulseMinUs) + (effective/180)*span + float32(cal.PulseOffsetUs)
	return clampPulse(pulse)
}

// PulseToAngle is the inverse of AngleToPulse, applying the same
// reversal/offset handling.
func PulseToAngle(cal Calibration, pulseUs uint16) float32 {
	span := float32(cal.PulseMaxUs) - float32(cal.PulseMinUs)
	if span == 0 {
		return 0
	}
	adjusted := float32(pulseUs) - float32(cal.PulseOffsetUs) - float32(cal.PulseMinUs)
	effective := (adjusted / span) * 180
	angle := effective
	if cal.Reversed {
		angle = 180 - effective
	}
	return clampf(angle, 0, 180)
}

// SpeedToPulse implements §4.5's continuous-rotation mapping: below the
// min-speed threshold the axis outputs neutral; otherwise speed is scaled
// into a half-range pulse offset from neutral, pushed outside the deadband
// in the commanded direction, then clamped to [pulse_min, pulse_max].
// Direction reversal flips the sign of speed before scaling.
func SpeedToPulse(cal Calibration, neutralUs, deadbandUs uint16, speedPct float32) uint16 {
	speed := clampf(speedPct, -100, 100)
	if cal.Reversed {
		speed = -speed
	}
	if float32(math.Abs(float64(speed))) < minSpeedThresholdPct {
		return neutralUs
	}

	halfRange := (float32(cal.PulseMaxUs) - float32(cal.PulseMinUs)) / 2
	pulse := float32(neutralUs) + (speed/100)*halfRange

	if speed > 0 {
		minAllowed := float32(neutralUs) + float32(deadbandUs)
		if pulse < minAllowed {
			pulse = minAllowed
		}
	} else {
		maxAllowed := float32(neutralUs) - float32(deadbandUs)
		if pulse > maxAllowed {
			pulse = maxAllowed
		}
	}

	return clampPulse(pulse)
}

// PulseWriter is the out-of-scope HAL contract for the hardware PWM
// peripheral (spec §1): this module implements it only with stand-ins, and
// calls it from Core-A's Motion and System AOs (§5 — PWM registers are
// written only from Core-A).
type PulseWriter interface {
	SetPulseMicros(axisID int, us uint16)
}

// SetAngle updates an axis's commanded angle, recomputes its pulse, and
// writes it through w if the axis is enabled (I2: angle clamped to
// [0,180]).
func (a *Axis) SetAngle(angleDeg float32, w PulseWriter) {
	a.CurrentAngleDeg = clampf(angleDeg, 0, 180)
	a.CurrentPulseUs = AngleToPulse(a.Cal, a.CurrentAngleDeg)
	if a.Enabled && w != nil {
		w.SetPulseMicros(a.ID, a.CurrentPulseUs)
	}
}

// SetSpeed updates a Cont360 axis's commanded speed (I2: clamped to
// [-100,100]), resets the safety-timeout deadline, and writes the derived
// pulse if enabled.
func (a *Axis) SetSpeed(speedPct float32, now time.Time, w PulseWriter) {
	a.CurrentSpeedPct = clampf(speedPct, -100, 100)
	a.lastSpeedCmd = now
	pulse := SpeedToPulse(a.Cal, a.NeutralPulseUs, a.DeadbandUs, a.CurrentSpeedPct)
	a.CurrentPulseUs = pulse
	if a.Enabled && w != nil {
		w.SetPulseMicros(a.ID, pulse)
	}
}

// CheckSafetyTimeout forces a Cont360 axis to neutral if no speed command
// has arrived for longer than the 3-second safety window (§5).
func (a *Axis) CheckSafetyTimeout(now time.Time, w PulseWriter) {
	if a.Mode != Cont360 {
		return
	}
	if a.lastSpeedCmd.IsZero() {
		return
	}
	if now.Sub(a.lastSpeedCmd) > safetyTimeout {
		a.CurrentSpeedPct = 0
		a.CurrentPulseUs = a.NeutralPulseUs
		if a.Enabled && w != nil {
			w.SetPulseMicros(a.ID, a.NeutralPulseUs)
		}
	}
}

// Map owns all 18 axes.
type Map struct {
	Axes [Count]*Axis
}

// NewMap builds the default 18-axis map: all Pos180 at 90 degrees, per
// §4.9's first-boot defaults. Callers that know which axes are Cont360
// reconfigure individual Axis.Mode after construction.
func NewMap() *Map {
	m := &Map{}
	for i := 0; i < Count; i++ {
		m.Axes[i] = NewAxis(i, Pos180)
	}
	return m
}

// SetMode reconfigures axis id's operating mode (servo_manager_set_type in
// the original firmware): an axis is Pos180 or Cont360 at any time, never
// both, and a command may flip it between them. Switching to Cont360 parks
// the axis at neutral and zeroes its commanded speed; switching back to
// Pos180 recomputes the pulse from the axis's last angle.
func (m *Map) SetMode(id byte, mode Mode) bool {
	if int(id) >= Count {
		return false
	}
	a := m.Axes[id]
	a.Mode = mode
	if mode == Cont360 {
		a.CurrentSpeedPct = 0
		a.TargetSpeedPct = 0
		a.CurrentPulseUs = a.NeutralPulseUs
		a.lastSpeedCmd = time.Time{}
	} else {
		a.CurrentPulseUs = AngleToPulse(a.Cal, a.CurrentAngleDeg)
	}
	return true
}

// SetEnabled toggles one axis (id < Count) or all axes (id == 0xFF), per
// §4.12's Enable/Disable command. Re-enabling an already-enabled axis is a
// no-op (P10).
func (m *Map) SetEnabled(id byte, enabled bool) {
	if id == 0xFF {
		for _, a := range m.Axes {
			a.Enabled = enabled
		}
		return
	}
	if int(id) >= Count {
		return
	}
	m.Axes[id].Enabled = enabled
}
