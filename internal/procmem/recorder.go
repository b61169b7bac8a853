package procmem

import (
	"fmt"
	"log/slog"
)

// Recorder wraps an Accessor and emits one structured log record per memory
// operation: op kind, absolute address, length, status, pid, and the address
// relative to the module base (signed RVA). The RVA is what lets operators
// correlate a failure with a schema offset after the fact.
type Recorder struct {
	inner Accessor
	log   *slog.Logger
}

// NewRecorder wraps m. A nil logger falls back to slog.Default.
func NewRecorder(m Accessor, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{inner: m, log: log}
}

func (r *Recorder) PID() int         { return r.inner.PID() }
func (r *Recorder) ModuleBase() uint64 { return r.inner.ModuleBase() }
func (r *Recorder) PointerSize() int { return r.inner.PointerSize() }

func (r *Recorder) ReadBytes(addr uint64, n int) ([]byte, error) {
	b, err := r.inner.ReadBytes(addr, n)
	r.event("read", addr, n, err)
	return b, err
}

func (r *Recorder) WriteBytes(addr uint64, data []byte) error {
	err := r.inner.WriteBytes(addr, data)
	r.event("write", addr, len(data), err)
	return err
}

func (r *Recorder) Regions(low, high uint64) ([]Region, error) {
	regs, err := r.inner.Regions(low, high)
	r.event("regions", low, int(high-low), err)
	return regs, err
}

// event logs one operation. Logging failures are swallowed: a broken log
// sink must never turn a successful memory operation into a panic.
func (r *Recorder) event(op string, addr uint64, length int, opErr error) {
	defer func() { _ = recover() }()
	status := "success"
	if opErr != nil {
		status = "failed"
	}
	attrs := []any{
		slog.String("op", op),
		slog.String("addr", fmt.Sprintf("0x%016X", addr)),
		slog.Int("len", length),
		slog.String("status", status),
		slog.Int("pid", r.inner.PID()),
	}
	if base := r.inner.ModuleBase(); base != 0 {
		rel := int64(addr) - int64(base)
		sign := ""
		if rel < 0 {
			sign = "-"
			rel = -rel
		}
		attrs = append(attrs, slog.String("rva", fmt.Sprintf("%s0x%X", sign, rel)))
	}
	if opErr != nil {
		attrs = append(attrs, slog.String("error", opErr.Error()))
		r.log.Error("memory operation", attrs...)
		return
	}
	r.log.Debug("memory operation", attrs...)
}
