package procmem

// Buffer is an Accessor over in-process byte slices. It backs tests and
// offline snapshot analysis with the same interface the live process uses.
// Segments may be sparse; reads and writes never span a segment boundary.
type Buffer struct {
	pid      int
	base     uint64
	ptrSize  int
	segments []segment
}

type segment struct {
	base     uint64
	data     []byte
	readable bool
}

// NewBuffer returns an empty Buffer with the given module base.
func NewBuffer(moduleBase uint64) *Buffer {
	return &Buffer{pid: 1, base: moduleBase, ptrSize: 8}
}

// SetPointerSize overrides the simulated pointer width (4 or 8).
func (b *Buffer) SetPointerSize(n int) { b.ptrSize = n }

// Map adds a readable segment at base. The slice is used directly, so writes
// through the accessor are visible to the caller.
func (b *Buffer) Map(base uint64, data []byte) {
	b.segments = append(b.segments, segment{base: base, data: data, readable: true})
}

// MapUnreadable adds a segment that fails every access, simulating a guard
// page or an unmapped hole inside a scan range.
func (b *Buffer) MapUnreadable(base uint64, size int) {
	b.segments = append(b.segments, segment{base: base, data: make([]byte, size)})
}

func (b *Buffer) PID() int           { return b.pid }
func (b *Buffer) ModuleBase() uint64 { return b.base }
func (b *Buffer) PointerSize() int   { return b.ptrSize }

func (b *Buffer) find(addr uint64, n int) (*segment, int) {
	for i := range b.segments {
		s := &b.segments[i]
		if addr >= s.base && addr+uint64(n) <= s.base+uint64(len(s.data)) {
			return s, int(addr - s.base)
		}
	}
	return nil, 0
}

func (b *Buffer) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, &OpError{Op: "read", Addr: addr, Want: n, Err: ErrAddressNotMapped}
	}
	s, off := b.find(addr, n)
	if s == nil || !s.readable {
		return nil, &OpError{Op: "read", Addr: addr, Want: n, Err: ErrAddressNotMapped}
	}
	out := make([]byte, n)
	copy(out, s.data[off:off+n])
	return out, nil
}

func (b *Buffer) WriteBytes(addr uint64, data []byte) error {
	s, off := b.find(addr, len(data))
	if s == nil || !s.readable {
		return &OpError{Op: "write", Addr: addr, Want: len(data), Err: ErrAddressNotMapped}
	}
	copy(s.data[off:], data)
	return nil
}

func (b *Buffer) Regions(low, high uint64) ([]Region, error) {
	var out []Region
	for _, s := range b.segments {
		end := s.base + uint64(len(s.data))
		if end <= low || s.base >= high {
			continue
		}
		protect := uint32(0)
		if s.readable {
			protect = 0x04 // PAGE_READWRITE
		}
		out = append(out, Region{Base: s.base, Size: uint64(len(s.data)), Protect: protect})
	}
	return out, nil
}
