//go:build !windows

package procmem

import "fmt"

// Process is only implemented on Windows, where the target runs.
type Process struct{}

// Attach fails on non-Windows hosts. Offline analysis paths use Buffer.
func Attach(target string, aliases []string) (*Process, error) {
	return nil, fmt.Errorf("procmem: live attach requires windows (target %q)", target)
}

func (p *Process) Close() error       { return nil }
func (p *Process) PID() int           { return 0 }
func (p *Process) ModuleBase() uint64 { return 0 }
func (p *Process) PointerSize() int   { return 8 }
func (p *Process) Name() string       { return "" }

func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	return nil, &OpError{Op: "read", Addr: addr, Want: n, Err: ErrNotAttached}
}

func (p *Process) WriteBytes(addr uint64, data []byte) error {
	return &OpError{Op: "write", Addr: addr, Want: len(data), Err: ErrNotAttached}
}

func (p *Process) Regions(low, high uint64) ([]Region, error) {
	return nil, &OpError{Op: "regions", Addr: low, Err: ErrNotAttached}
}
