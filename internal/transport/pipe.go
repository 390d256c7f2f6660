package transport

import "io"

// Pipe is an in-memory Conn pair for tests: writes on one end are
// readable on the other.
type Pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewPipePair returns two Pipes, each reading what the other writes —
// a loopback rig for exercising the bridge/comm path without real hardware.
func NewPipePair() (a, b *Pipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &Pipe{r: ar, w: aw}, &Pipe{r: br, w: bw}
}

func (p *Pipe) Read(buf []byte) (int, error)  { return p.r.Read(buf) }
func (p *Pipe) Write(buf []byte) (int, error) { return p.w.Write(buf) }
func (p *Pipe) Close() error {
	p.r.Close()
	return p.w.Close()
}
