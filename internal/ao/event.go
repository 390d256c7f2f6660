// Package ao implements the cooperative active-object runtime described in
// §4.10: a priority-ordered set of AOs, each with a bounded FIFO event
// queue and zero or more TimeEvents, dispatched from a single goroutine
// standing in for Core-A's event loop.
package ao

import "time"

// Signal names the event kinds the three AOs exchange (§4.11).
type Signal int

const (
	SigTick10ms Signal = iota
	SigInterpTick
	SigMotionStart
	SigMotionStop
	SigTrapezoidSet
	SigEStop
	SigCmdFlashSave
	SigCmdFlashLoad
	SigLedUpdate
	SigInitComplete
	SigError
)

func (s Signal) String() string {
	switch s {
	case SigTick10ms:
		return "Tick10ms"
	case SigInterpTick:
		return "InterpTick"
	case SigMotionStart:
		return "MotionStart"
	case SigMotionStop:
		return "MotionStop"
	case SigTrapezoidSet:
		return "TrapezoidSet"
	case SigEStop:
		return "EStop"
	case SigCmdFlashSave:
		return "CmdFlashSave"
	case SigCmdFlashLoad:
		return "CmdFlashLoad"
	case SigLedUpdate:
		return "LedUpdate"
	case SigInitComplete:
		return "InitComplete"
	case SigError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is any signal the runtime can deliver. Concrete event types carry
// their own payload fields; Sig identifies which one a Dispatch received.
type Event interface {
	Sig() Signal
}

// MotionStartEvent carries a target for every axis and the move duration
// (§4.11 Motion AO's Idle->Moving transition).
type MotionStartEvent struct {
	TargetPositions [18]float32
	DurationMs      int32
}

func (MotionStartEvent) Sig() Signal { return SigMotionStart }

// MotionStopEvent requests every interpolator stop in place.
type MotionStopEvent struct{}

func (MotionStopEvent) Sig() Signal { return SigMotionStop }

// TrapezoidSetEvent arms a single axis's standalone trapezoid profile
// ahead of the next MotionStart (AO_Motion_set_trapezoid in §4.11).
type TrapezoidSetEvent struct {
	ServoID      int
	TargetAngle  float32
	VelocityDegS float32
	AccelDegS2   float32
	DecelDegS2   float32
}

func (TrapezoidSetEvent) Sig() Signal { return SigTrapezoidSet }

// EStopEvent is the emergency-stop signal delivered to both Motion and
// System AOs.
type EStopEvent struct{}

func (EStopEvent) Sig() Signal { return SigEStop }

// CmdFlashSaveEvent / CmdFlashLoadEvent drive System AO's Store access.
type CmdFlashSaveEvent struct{}

func (CmdFlashSaveEvent) Sig() Signal { return SigCmdFlashSave }

type CmdFlashLoadEvent struct{}

func (CmdFlashLoadEvent) Sig() Signal { return SigCmdFlashLoad }

// LedUpdateEvent drives System AO's LED pattern.
type LedUpdateEvent struct{}

func (LedUpdateEvent) Sig() Signal { return SigLedUpdate }

// InitCompleteEvent returns System AO from Error to Normal.
type InitCompleteEvent struct{}

func (InitCompleteEvent) Sig() Signal { return SigInitComplete }

// ErrorEvent carries a severity code; codes >= ctlerr.SevereThreshold
// drive System AO to Error (§7).
type ErrorEvent struct {
	Code uint8
	Msg  string
}

func (ErrorEvent) Sig() Signal { return SigError }

// TickEvent carries the wall-clock time a periodic TimeEvent fired at, so
// handlers can do time-based math (interpolator Update, safety timeouts)
// without calling time.Now() themselves. Sig identifies which periodic
// source produced it.
type TickEvent struct {
	Signal Signal
	Now    time.Time
}

func (t TickEvent) Sig() Signal { return t.Signal }
