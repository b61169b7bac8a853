package roster

import (
	"fmt"

	"rosterscope/internal/codec"
	"rosterscope/internal/schema"
)

// RecordSnapshot is a bulk-read window over contiguous fixed-stride
// records: one read serves many field decodes instead of one syscall
// per field. Deref-backed fields cannot be served from the window and
// decode as Unavailable.
type RecordSnapshot struct {
	Kind        Kind
	BaseAddress uint64
	Stride      int
	Count       int
	Buffer      []byte

	cdc *codec.Codec
}

// Snapshot reads count records starting at startIndex in one pass.
func (c *Context) Snapshot(kind Kind, startIndex, count int) (*RecordSnapshot, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count %d", ErrBadIndex, count)
	}
	stride, err := c.Stride(kind)
	if err != nil {
		return nil, err
	}
	base, err := c.RecordAddress(kind, startIndex)
	if err != nil {
		return nil, err
	}
	buf, err := c.mem.ReadBytes(base, count*stride)
	if err != nil {
		return nil, err
	}
	return &RecordSnapshot{
		Kind:        kind,
		BaseAddress: base,
		Stride:      stride,
		Count:       count,
		Buffer:      buf,
		cdc:         c.cdc,
	}, nil
}

// Record returns the raw bytes of record i within the window.
func (s *RecordSnapshot) Record(i int) ([]byte, error) {
	if i < 0 || i >= s.Count {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadIndex, i, s.Count)
	}
	return s.Buffer[i*s.Stride : (i+1)*s.Stride], nil
}

// Decode extracts one field of record i from the window.
func (s *RecordSnapshot) Decode(i int, spec *schema.FieldSpec) (codec.Decoded, error) {
	record, err := s.Record(i)
	if err != nil {
		return codec.Unavailable, err
	}
	return s.cdc.Decode(string(s.Kind), spec, record), nil
}
