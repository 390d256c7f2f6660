package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial is a Conn backed by a real USB-CDC serial device, 115200 8N1
// nominal (§6.2 — baud is reported for compatibility only; USB-CDC ignores
// it in practice).
type Serial struct {
	port serial.Port
}

// OpenSerial opens device at baudRate 8N1 with no flow control.
func OpenSerial(device string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: failed to set read timeout on %s: %w", device, err)
	}
	return &Serial{port: port}, nil
}

func (s *Serial) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *Serial) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *Serial) Close() error                { return s.port.Close() }
