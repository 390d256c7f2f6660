// Package bridge runs the USB byte pump that moves bytes between the
// controller's rx/tx rings and a transport.Conn (§4.2, Core-B's half of
// the concurrency model).
package bridge

import (
	"context"
	"log"
	"time"

	"github.com/sagostin/servoctl/internal/ring"
	"github.com/sagostin/servoctl/internal/transport"
)

// PollInterval is the pace at which CoreB checks for new bytes in either
// direction — a hosted-process stand-in for the firmware's µs-scale
// busy-wait, short enough not to add perceptible latency but long enough
// not to spin a whole CPU.
const PollInterval = 2 * time.Millisecond

const readChunk = 256

// CoreB drains tx into a transport.Conn and feeds the Conn's bytes into rx
// (§4.2). It owns no state beyond the rings and the connection — all
// framing/dispatch happens on Core-A's side of the rings.
type CoreB struct {
	tx *ring.Ring
	rx *ring.Ring
}

// New returns a CoreB bridging tx (outbound, Core-A producer) and rx
// (inbound, Core-A consumer) to whatever Conn Run is given.
func New(tx, rx *ring.Ring) *CoreB {
	return &CoreB{tx: tx, rx: rx}
}

// Run pumps bytes until ctx is canceled or usbConn returns a persistent
// error. Each iteration: flush everything buffered in tx to the wire, then
// read whatever is currently available from the wire into rx.
func (b *CoreB) Run(ctx context.Context, usbConn transport.Conn) error {
	writeBuf := make([]byte, readChunk)
	readBuf := make([]byte, readChunk)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for b.tx.Used() > 0 {
			n := b.tx.Read(writeBuf)
			if n == 0 {
				break
			}
			if _, err := usbConn.Write(writeBuf[:n]); err != nil {
				return err
			}
		}

		n, err := usbConn.Read(readBuf)
		if n > 0 {
			if dropped := n - b.rx.Write(readBuf[:n]); dropped > 0 {
				log.Printf("[bridge] rx ring overflow, dropped %d bytes", dropped)
			}
		}
		if err != nil && !isTimeout(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// Flush blocks until tx has drained or timeout elapses, for callers that
// need to know a response was handed to the wire before proceeding.
func (b *CoreB) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for b.tx.Used() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(PollInterval)
	}
	return true
}

type timeouter interface{ Timeout() bool }

func isTimeout(err error) bool {
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
