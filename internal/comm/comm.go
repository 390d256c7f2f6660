// Package comm implements Comm AO (§4.11): the single Active state that
// drains the rx ring into the frame parser on every 10ms tick, dispatches
// completed frames through internal/dispatch, and enqueues responses into
// the tx ring for Core-B to carry over the wire.
package comm

import (
	"log"
	"time"

	"github.com/sagostin/servoctl/internal/ao"
	"github.com/sagostin/servoctl/internal/dispatch"
	"github.com/sagostin/servoctl/internal/protocol"
	"github.com/sagostin/servoctl/internal/ring"
)

// readChunk bounds how many ring bytes are pulled per tick.
const readChunk = 128

// AO is Comm AO. It has a single state (Active, §4.11) — there is no
// Idle/Error split, since a malformed frame is recovered locally by the
// parser (§7) without ever surfacing to the state machine.
type AO struct {
	rx *ring.Ring
	tx *ring.Ring

	parser *protocol.Parser
	disp   *dispatch.Dispatcher

	buf [readChunk]byte
}

// New builds Comm AO over the rx/tx rings shared with Core-B, dispatching
// completed frames through disp.
func New(rx, tx *ring.Ring, disp *dispatch.Dispatcher) *AO {
	return &AO{rx: rx, tx: tx, parser: protocol.NewParser(), disp: disp}
}

// Dispatch implements ao.AO. Comm AO only reacts to the 10ms tick (§6.4);
// all other signals are ignored.
func (a *AO) Dispatch(ev ao.Event) {
	te, ok := ev.(ao.TickEvent)
	if !ok || te.Sig() != ao.SigTick10ms {
		return
	}
	a.onTick(te.Now)
}

func (a *AO) onTick(now time.Time) {
	a.parser.CheckTimeout(now)

	n := a.rx.Read(a.buf[:])
	for i := 0; i < n; i++ {
		frame := a.parser.Feed(a.buf[i], now)
		if frame == nil {
			continue
		}
		a.handleFrame(frame)
	}
}

// handleFrame always executes the command, but a broadcast frame (id ==
// BroadcastID) is "silently consumed" (§7): no response frame is written
// back, since no single host-side peer owns id 0x00 to receive it.
func (a *AO) handleFrame(f *protocol.Frame) {
	resp, payload := a.disp.Handle(f.ID, f.Cmd, f.Data)
	if f.ID == protocol.BroadcastID {
		return
	}
	out, err := protocol.BuildResponse(f.ID, f.Cmd, resp, payload)
	if err != nil {
		log.Printf("[comm] dropping oversized response to cmd 0x%02X: %v", f.Cmd, err)
		return
	}
	if written := a.tx.Write(out); written < len(out) {
		log.Printf("[comm] tx ring overflow: dropped %d of %d response bytes", len(out)-written, len(out))
	}
}
