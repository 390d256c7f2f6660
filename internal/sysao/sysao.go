// Package sysao implements System AO (§4.11): flash persistence via the
// Store, LED status, and the Normal/Error/EStop supervisory state machine.
package sysao

import (
	"log"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/ctlerr"
	"github.com/sagostin/servoctl/internal/servo"
	"github.com/sagostin/servoctl/internal/store"
)

// State is System AO's supervisory state (§4.11).
type State int

const (
	Normal State = iota
	Error
	EStop
)

// LedPattern names the status pattern System AO drives; a real LED HAL is
// out of scope (§1) — AO only records which pattern is currently active.
type LedPattern int

const (
	LedNormal LedPattern = iota
	LedError
	LedEStopFast
)

// AO is System AO.
type AO struct {
	state State
	led   LedPattern

	dev      store.Device
	servoMap *servo.Map
	writer   servo.PulseWriter

	lastLoad store.Record
	haveLoad bool
}

// New builds System AO over dev (the Store's backing block device) and
// servoMap/writer so EStop can force outputs off (§4.11).
func New(dev store.Device, servoMap *servo.Map, writer servo.PulseWriter) *AO {
	return &AO{dev: dev, servoMap: servoMap, writer: writer}
}

// State reports the current supervisory state.
func (a *AO) State() State { return a.state }

// LedPattern reports the currently active LED pattern.
func (a *AO) LedPattern() LedPattern { return a.led }

// LastLoad returns the most recently loaded Store record, if any.
func (a *AO) LastLoad() (store.Record, bool) { return a.lastLoad, a.haveLoad }

// Dispatch implements ao.AO.
func (a *AO) Dispatch(ev ao.Event) {
	switch e := ev.(type) {
	case ao.CmdFlashSaveEvent:
		a.onFlashSave()
	case ao.CmdFlashLoadEvent:
		a.onFlashLoad()
	case ao.LedUpdateEvent:
		a.onLedUpdate()
	case ao.TickEvent:
		if e.Sig() == ao.SigLedUpdate {
			a.onLedUpdate()
		}
	case ao.ErrorEvent:
		a.onError(e)
	case ao.EStopEvent:
		a.onEStop()
	case ao.InitCompleteEvent:
		a.onInitComplete()
	}
}

func (a *AO) onFlashSave() {
	if a.state == EStop {
		return
	}
	rec := a.snapshotRecord()
	if err := store.Save(a.dev, rec); err != nil {
		log.Printf("[sysao] flash save failed: %v", err)
		a.onError(ao.ErrorEvent{Code: ctlerr.SevereThreshold, Msg: err.Error()})
	}
}

func (a *AO) onFlashLoad() {
	if a.state == EStop {
		return
	}
	rec, err := store.Load(a.dev)
	if err != nil {
		log.Printf("[sysao] flash load failed, applying defaults: %v", err)
		rec = store.DefaultRecord()
	}
	a.applyRecord(rec)
	a.lastLoad = rec
	a.haveLoad = true
}

// snapshotRecord builds a Record from the servo map's live calibration
// and current angles, marking positions_valid true.
func (a *AO) snapshotRecord() store.Record {
	r := store.DefaultRecord()
	for i := 0; i < servo.Count && i < len(a.servoMap.Axes); i++ {
		axis := a.servoMap.Axes[i]
		r.Calibrations[i] = store.CalibrationRecord{
			PulseMinUs: axis.Cal.PulseMinUs,
			PulseMaxUs: axis.Cal.PulseMaxUs,
			OffsetUs:   axis.Cal.PulseOffsetUs,
			Reversed:   axis.Cal.Reversed,
		}
		r.SavedPositions[i] = axis.CurrentAngleDeg
	}
	r.PositionsValid = true
	return r
}

// applyRecord pushes a loaded record's calibrations and (if valid) saved
// positions back onto the servo map.
func (a *AO) applyRecord(r store.Record) {
	for i := 0; i < servo.Count && i < len(a.servoMap.Axes); i++ {
		axis := a.servoMap.Axes[i]
		axis.Cal.PulseMinUs = r.Calibrations[i].PulseMinUs
		axis.Cal.PulseMaxUs = r.Calibrations[i].PulseMaxUs
		axis.Cal.PulseOffsetUs = r.Calibrations[i].OffsetUs
		axis.Cal.Reversed = r.Calibrations[i].Reversed
		if r.PositionsValid {
			axis.SetAngle(r.SavedPositions[i], a.writer)
		}
	}
}

func (a *AO) onLedUpdate() {
	switch a.state {
	case Normal:
		a.led = LedNormal
	case Error:
		a.led = LedError
	case EStop:
		a.led = LedEStopFast
	}
}

// onError transitions Normal->Error when the code is severe (§7:
// "severe codes (>= 0xF0) drive System AO to Error").
func (a *AO) onError(e ao.ErrorEvent) {
	if e.Code >= ctlerr.SevereThreshold && a.state == Normal {
		a.state = Error
		a.led = LedError
		log.Printf("[sysao] entering Error state: %s", e.Msg)
	}
}

// onEStop forces every axis disabled and every pulse off, then latches
// EStop (§4.11). No event clears it; InitComplete leaves it latched.
func (a *AO) onEStop() {
	a.state = EStop
	a.led = LedEStopFast
	a.servoMap.SetEnabled(0xFF, false)
	if a.writer != nil {
		for i := 0; i < servo.Count; i++ {
			a.writer.SetPulseMicros(i, 0)
		}
	}
}

func (a *AO) onInitComplete() {
	if a.state == Error {
		a.state = Normal
		a.led = LedNormal
	}
}
