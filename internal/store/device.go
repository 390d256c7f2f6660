package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/sagostin/servoctl/internal/ctlerr"
)

// Device is the block-device contract a flash sector presents (§6.3): erase
// the sector, program it, then read it back for verification. The real
// program/erase mechanics are HAL and out of scope (§1) — this package only
// ever drives Device through this interface.
type Device interface {
	ReadSector() ([]byte, error)
	EraseAndProgram(data []byte) error
}

// MemDevice is an in-memory Device, useful for unit tests and as the
// default store backing when no persistent medium is configured.
type MemDevice struct {
	mu   sync.Mutex
	data []byte
}

// NewMemDevice returns a MemDevice whose sector reads as all-zero until the
// first EraseAndProgram.
func NewMemDevice() *MemDevice {
	return &MemDevice{data: make([]byte, SectorSize)}
}

func (d *MemDevice) ReadSector() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out, nil
}

func (d *MemDevice) EraseAndProgram(data []byte) error {
	if len(data) != SectorSize {
		return ctlerr.New(ctlerr.BadLength, "store sector program length mismatch")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.data {
		d.data[i] = 0xFF // erased flash reads as all-ones
	}
	copy(d.data, data)
	return nil
}

// FileDevice backs one Device sector with a single fixed-size file,
// standing in for a flash sector on a hosted target (the host CLI/demo
// binary, §4.9).
type FileDevice struct {
	mu   sync.Mutex
	path string
}

// NewFileDevice returns a FileDevice rooted at path, creating it
// pre-erased (all 0xFF) if it does not already exist.
func NewFileDevice(path string) (*FileDevice, error) {
	d := &FileDevice{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		erased := make([]byte, SectorSize)
		for i := range erased {
			erased[i] = 0xFF
		}
		if err := os.WriteFile(path, erased, 0o644); err != nil {
			return nil, ctlerr.New(ctlerr.WriteFail, fmt.Sprintf("create store file: %v", err))
		}
	}
	return d, nil
}

func (d *FileDevice) ReadSector() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := os.ReadFile(d.path)
	if err != nil {
		return nil, ctlerr.New(ctlerr.ReadFail, fmt.Sprintf("read store file: %v", err))
	}
	if len(buf) < SectorSize {
		return nil, ctlerr.New(ctlerr.BadLength, "store file shorter than sector size")
	}
	return buf[:SectorSize], nil
}

func (d *FileDevice) EraseAndProgram(data []byte) error {
	if len(data) != SectorSize {
		return ctlerr.New(ctlerr.BadLength, "store sector program length mismatch")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return ctlerr.New(ctlerr.EraseFail, fmt.Sprintf("program store file: %v", err))
	}
	return nil
}

// Save erases dev's sector and programs record, then reads it back and
// verifies checksum + magic before returning (§4.9: "erases the target
// sector and programs the record... then reads back and verifies").
func Save(dev Device, record Record) error {
	buf := record.Encode()
	if err := dev.EraseAndProgram(buf); err != nil {
		return err
	}
	readBack, err := dev.ReadSector()
	if err != nil {
		return err
	}
	if _, err := Decode(readBack); err != nil {
		return ctlerr.New(ctlerr.VersionMismatch, fmt.Sprintf("store verify after save: %v", err))
	}
	return nil
}

// Load reads dev's sector and validates it. On a failed validation the
// caller is expected to fall back to DefaultRecord (§4.9's first-boot
// behavior), which Load reports via the returned error rather than
// silently substituting defaults.
func Load(dev Device) (Record, error) {
	buf, err := dev.ReadSector()
	if err != nil {
		return Record{}, err
	}
	return Decode(buf)
}
