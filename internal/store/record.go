// Package store implements the fixed-layout calibration and last-position
// record persisted to a single flash sector (§4.9).
package store

import (
	"encoding/binary"
	"math"

	"github.com/sagostin/servoctl/internal/ctlerr"
	"github.com/sagostin/servoctl/internal/servo"
)

const (
	// Magic is the little-endian wire value of the ASCII bytes 'S' 'V' 'R' 'P'.
	Magic   uint32 = 0x53565250
	Version uint8  = 0x01

	// SectorSize is the minimum flash sector size a Record is padded to
	// (§6.3: "sector size >= 4096 bytes").
	SectorSize = 4096

	calRecordSize = 8 // u16 pulse_min, u16 pulse_max, i16 offset, u8 reversed, u8 pad
	// recordSize is the number of meaningful bytes before zero-filled
	// reserved padding: 4 magic + 1 version + 1 servo_count + 2 checksum +
	// 18*8 calibrations + 18*4 saved_positions + 1 positions_valid.
	recordSize = 4 + 1 + 1 + 2 + servo.Count*calRecordSize + servo.Count*4 + 1
)

// CalibrationRecord is the on-flash shape of one axis's calibration.
type CalibrationRecord struct {
	PulseMinUs uint16
	PulseMaxUs uint16
	OffsetUs   int16
	Reversed   bool
}

// Record is the StoreRecord described in §3/§4.9/§6.3.
type Record struct {
	Version        uint8
	ServoCount     uint8
	Calibrations   [servo.Count]CalibrationRecord
	SavedPositions [servo.Count]float32
	PositionsValid bool
}

// DefaultRecord returns the reset-to-defaults record applied on first boot
// or on a failed Load (§4.9): pulse 500..2500, offset 0, not reversed,
// positions_valid false, every SavedPositions entry 90 degrees.
func DefaultRecord() Record {
	var r Record
	r.Version = Version
	r.ServoCount = servo.Count
	for i := range r.Calibrations {
		r.Calibrations[i] = CalibrationRecord{PulseMinUs: 500, PulseMaxUs: 2500, OffsetUs: 0, Reversed: false}
		r.SavedPositions[i] = 90
	}
	r.PositionsValid = false
	return r
}

// Encode serializes r to a SectorSize-length little-endian byte slice with
// the checksum computed over every byte except the checksum field itself
// (I6; §9 resolves the "checksum includes itself" ambiguity in the original
// in favor of exclusion).
func (r Record) Encode() []byte {
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = r.Version
	buf[5] = r.ServoCount
	// buf[6:8] is the checksum field, filled in last.

	off := 8
	for _, c := range r.Calibrations {
		binary.LittleEndian.PutUint16(buf[off:off+2], c.PulseMinUs)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], c.PulseMaxUs)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(c.OffsetUs))
		if c.Reversed {
			buf[off+6] = 1
		}
		off += calRecordSize
	}
	for _, p := range r.SavedPositions {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(p))
		off += 4
	}
	if r.PositionsValid {
		buf[off] = 1
	}
	off++

	binary.LittleEndian.PutUint16(buf[6:8], checksum(buf))
	return buf
}

// Decode validates and parses a raw sector read back from a Device. It
// returns a ctlerr BadLength error for a truncated buffer, and a
// VersionMismatch error if magic, version, servo_count, or checksum fail to
// match (I6).
func Decode(buf []byte) (Record, error) {
	if len(buf) < recordSize {
		return Record{}, ctlerr.New(ctlerr.BadLength, "store record truncated")
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Magic {
		return Record{}, ctlerr.New(ctlerr.VersionMismatch, "store record magic mismatch")
	}
	version := buf[4]
	if version != Version {
		return Record{}, ctlerr.New(ctlerr.VersionMismatch, "store record version mismatch")
	}
	servoCount := buf[5]
	if servoCount != servo.Count {
		return Record{}, ctlerr.New(ctlerr.VersionMismatch, "store record servo_count mismatch")
	}
	wantSum := binary.LittleEndian.Uint16(buf[6:8])
	if gotSum := checksum(buf); gotSum != wantSum {
		return Record{}, ctlerr.New(ctlerr.VersionMismatch, "store record checksum mismatch")
	}

	var r Record
	r.Version = version
	r.ServoCount = servoCount

	off := 8
	for i := 0; i < int(servoCount) && i < servo.Count; i++ {
		r.Calibrations[i] = CalibrationRecord{
			PulseMinUs: binary.LittleEndian.Uint16(buf[off : off+2]),
			PulseMaxUs: binary.LittleEndian.Uint16(buf[off+2 : off+4]),
			OffsetUs:   int16(binary.LittleEndian.Uint16(buf[off+4 : off+6])),
			Reversed:   buf[off+6] != 0,
		}
		off += calRecordSize
	}
	for i := 0; i < servo.Count; i++ {
		r.SavedPositions[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	r.PositionsValid = buf[off] != 0

	return r, nil
}

// checksum sums every byte in buf except the two checksum bytes at
// offset 6:8 (I6).
func checksum(buf []byte) uint16 {
	var sum uint16
	for i, b := range buf {
		if i == 6 || i == 7 {
			continue
		}
		sum += uint16(b)
	}
	return sum
}
