package protocol

import (
	"time"

	"github.com/sagostin/servoctl/internal/ctlerr"
)

const (
	Header1 = 0xFF
	Header2 = 0xFE

	// MaxPayload is the largest data[] a frame may carry (§3, §6.1).
	MaxPayload = 128

	// MaxFrame is header + id + cmd + len + data + crc_hi + crc_lo.
	MaxFrame = 2 + 1 + 1 + 1 + MaxPayload + 2

	// BroadcastID addresses every servo/axis.
	BroadcastID = 0x00

	// InterByteTimeout resets the parser after this much inter-byte
	// silence (§4.3, §5, §6.1).
	InterByteTimeout = time.Second
)

// Frame is a fully parsed, CRC-validated protocol frame (§3).
type Frame struct {
	ID   byte
	Cmd  byte
	Data []byte
}

type parserState int

const (
	stateIdle parserState = iota
	stateH1
	stateH2
	stateID
	stateCmd
	stateData
	stateCrcHi
	stateCrcLo
)

// Parser implements the byte-stream state machine in §4.3: Idle -> H1 -> H2
// -> Id -> Cmd -> Len -> (Data if len>0 else CrcHi) -> CrcHi -> CrcLo ->
// Complete, with 0xFF re-seen in H1 causing a resync (stay in H1) and a
// 1-second inter-byte timeout resetting to Idle. Every accepted Frame has a
// verified CRC (I1): the parser never returns a frame whose checksum does
// not match.
type Parser struct {
	state parserState

	id      byte
	cmd     byte
	length  byte
	data    []byte
	dataPos int
	crcHi   byte

	lastByte time.Time

	errorCount uint64
}

// NewParser returns a Parser ready to accept the first header byte.
func NewParser() *Parser {
	return &Parser{state: stateIdle}
}

// ErrorCount returns the number of CRC/framing failures observed so far.
func (p *Parser) ErrorCount() uint64 { return p.errorCount }

func (p *Parser) reset() {
	p.state = stateIdle
	p.id = 0
	p.cmd = 0
	p.length = 0
	p.data = nil
	p.dataPos = 0
	p.crcHi = 0
}

// CheckTimeout resets the parser to Idle if more than InterByteTimeout has
// elapsed since the last byte was fed in, and the parser isn't already
// idle. Callers (Comm AO) invoke this once per tick.
func (p *Parser) CheckTimeout(now time.Time) {
	if p.state == stateIdle {
		return
	}
	if now.Sub(p.lastByte) > InterByteTimeout {
		p.reset()
	}
}

// Feed advances the parser by one byte. It returns a non-nil Frame exactly
// when a complete, CRC-valid frame has just been recognized (I1); the
// parser is reset to Idle immediately afterward so the next call starts a
// fresh frame. CRC mismatches reset to Idle and increment ErrorCount but do
// not return an error — communication errors are recovered locally (§7).
func (p *Parser) Feed(b byte, now time.Time) *Frame {
	p.lastByte = now

	switch p.state {
	case stateIdle:
		if b == Header1 {
			p.state = stateH1
		}
	case stateH1:
		if b == Header1 {
			// Resync: stay in H1 on a repeated 0xFF.
			return nil
		}
		if b == Header2 {
			p.state = stateH2
		} else {
			p.reset()
		}
	case stateH2:
		p.id = b
		p.state = stateID
	case stateID:
		p.cmd = b
		p.state = stateCmd
	case stateCmd:
		p.length = b
		if p.length > MaxPayload {
			p.errorCount++
			p.reset()
			return nil
		}
		p.data = make([]byte, p.length)
		p.dataPos = 0
		if p.length == 0 {
			p.state = stateCrcHi
		} else {
			p.state = stateData
		}
	case stateData:
		p.data[p.dataPos] = b
		p.dataPos++
		if p.dataPos >= int(p.length) {
			p.state = stateCrcHi
		}
	case stateCrcHi:
		p.crcHi = b
		p.state = stateCrcLo
	case stateCrcLo:
		crcLo := b
		got := uint16(p.crcHi)<<8 | uint16(crcLo)
		want := crcOverHeader(p.id, p.cmd, p.length, p.data)
		frame := &Frame{ID: p.id, Cmd: p.cmd, Data: p.data}
		p.reset()
		if got != want {
			p.errorCount++
			return nil
		}
		return frame
	}
	return nil
}

func crcOverHeader(id, cmd, length byte, data []byte) uint16 {
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, id, cmd, length)
	buf = append(buf, data...)
	return CRC16CCITT(buf)
}

// ValidateLength reports ctlerr.BadLength if len exceeds the wire maximum.
func ValidateLength(n int) error {
	if n < 0 || n > MaxPayload {
		return ctlerr.New(ctlerr.BadLength, "payload exceeds 128 bytes")
	}
	return nil
}
