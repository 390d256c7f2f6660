// Package transport provides the byte-stream connection the USB bridge
// reads/writes (§6.2): a real serial device for hardware, or an in-memory
// pipe for tests.
package transport

import "io"

// Conn is the USB-CDC byte pipe contract the bridge drives. Any io.Reader
// + io.Writer + Close satisfies it — the bridge never depends on which
// concrete transport it is given.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}
