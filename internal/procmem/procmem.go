// Package procmem provides read/write access to the address space of a
// separate running process.
package procmem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrNotAttached      = errors.New("procmem: process not attached")
	ErrProcessNotFound  = errors.New("procmem: process not found")
	ErrModuleNotFound   = errors.New("procmem: module base not found")
	ErrAddressNotMapped = errors.New("procmem: address not mapped")
	ErrPartialRead      = errors.New("procmem: partial read")
	ErrPartialWrite     = errors.New("procmem: partial write")
)

// OpError carries the full address context of a failed memory operation.
type OpError struct {
	Op   string // "read", "write", "attach"
	Addr uint64
	Want int // bytes requested
	Got  int // bytes actually transferred
	Err  error
}

func (e *OpError) Error() string {
	if e.Want != e.Got && (errors.Is(e.Err, ErrPartialRead) || errors.Is(e.Err, ErrPartialWrite)) {
		return fmt.Sprintf("procmem: %s at 0x%X: %d/%d bytes: %v", e.Op, e.Addr, e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("procmem: %s at 0x%X len=%d: %v", e.Op, e.Addr, e.Want, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Region describes one readable committed region of the target address space.
type Region struct {
	Base    uint64
	Size    uint64
	Protect uint32
}

// Accessor is the process-memory access primitive. Implementations must
// detect partial transfers and fail rather than silently truncate. Access to
// a single attached process is synchronous; callers serialize multi-step
// sequences themselves.
type Accessor interface {
	// PID returns the attached process id, 0 if not attached.
	PID() int

	// ModuleBase returns the load base of the main module.
	ModuleBase() uint64

	// PointerSize returns the target pointer width in bytes (4 or 8).
	PointerSize() int

	// ReadBytes reads exactly n bytes from the absolute address.
	ReadBytes(addr uint64, n int) ([]byte, error)

	// WriteBytes writes all of data at the absolute address.
	WriteBytes(addr uint64, data []byte) error

	// Regions enumerates committed regions overlapping [low, high) that
	// report a readable protection. A region listed here may still fail
	// to read (guard pages, races with the target); callers skip those.
	Regions(low, high uint64) ([]Region, error)
}

// ReadU32 reads a little-endian uint32.
func ReadU32(m Accessor, addr uint64) (uint32, error) {
	b, err := m.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func ReadU64(m Accessor, addr uint64) (uint64, error) {
	b, err := m.ReadBytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadPointer reads a pointer-width value, widened to uint64.
func ReadPointer(m Accessor, addr uint64) (uint64, error) {
	if m.PointerSize() == 4 {
		v, err := ReadU32(m, addr)
		return uint64(v), err
	}
	return ReadU64(m, addr)
}

// WriteU32 writes a little-endian uint32.
func WriteU32(m Accessor, addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.WriteBytes(addr, b[:])
}

// WriteU64 writes a little-endian uint64.
func WriteU64(m Accessor, addr uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.WriteBytes(addr, b[:])
}

// WritePointer writes a pointer-width value.
func WritePointer(m Accessor, addr uint64, v uint64) error {
	if m.PointerSize() == 4 {
		return WriteU32(m, addr, uint32(v))
	}
	return WriteU64(m, addr, v)
}
