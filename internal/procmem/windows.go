//go:build windows

package procmem

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	memCommit = 0x1000
	pageGuard = 0x100

	processVMRead    = 0x0010
	processVMWrite   = 0x0020
	processVMOperate = 0x0008
	processQueryInfo = 0x0400

	processAccess = processVMRead | processVMWrite | processVMOperate | processQueryInfo
)

// readableProtect covers the base protection values that allow reads.
var readableProtect = map[uint32]bool{
	0x02: true, // PAGE_READONLY
	0x04: true, // PAGE_READWRITE
	0x08: true, // PAGE_WRITECOPY
	0x20: true, // PAGE_EXECUTE_READ
	0x40: true, // PAGE_EXECUTE_READWRITE
	0x80: true, // PAGE_EXECUTE_WRITECOPY
}

type memoryBasicInfo struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	pad1              uint32
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
	pad2              uint32
}

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualQueryEx    = kernel32.NewProc("VirtualQueryEx")
	procReadProcessMemory = kernel32.NewProc("ReadProcessMemory")
	procWriteProcessMem   = kernel32.NewProc("WriteProcessMemory")
)

// Process is the live Windows Accessor over an attached foreign process.
type Process struct {
	name    string
	pid     int
	handle  windows.Handle
	base    uint64
	ptrSize int
}

// Attach enumerates running processes and attaches to the first whose
// executable name matches target exactly, falling back to the allow-list of
// acceptable aliases. It resolves the module base and pointer width.
func Attach(target string, aliases []string) (*Process, error) {
	pid, name, err := findPID(target, aliases)
	if err != nil {
		return nil, err
	}
	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return nil, &OpError{Op: "attach", Err: fmt.Errorf("OpenProcess(%d): %w", pid, err)}
	}
	base, err := moduleBase(pid, name)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, err
	}
	p := &Process{name: name, pid: int(pid), handle: handle, base: base}
	p.ptrSize = detectPointerSize(handle)
	return p, nil
}

// Close releases the process handle.
func (p *Process) Close() error {
	if p.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.handle)
	p.handle = 0
	p.pid = 0
	p.base = 0
	return err
}

func (p *Process) PID() int           { return p.pid }
func (p *Process) ModuleBase() uint64 { return p.base }
func (p *Process) PointerSize() int   { return p.ptrSize }

// Name returns the executable name the attach resolved to.
func (p *Process) Name() string { return p.name }

func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	if p.handle == 0 {
		return nil, &OpError{Op: "read", Addr: addr, Want: n, Err: ErrNotAttached}
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	var moved uintptr
	ret, _, callErr := procReadProcessMemory.Call(
		uintptr(p.handle),
		uintptr(addr),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(n),
		uintptr(unsafe.Pointer(&moved)),
	)
	if ret == 0 {
		return nil, &OpError{Op: "read", Addr: addr, Want: n, Err: fmt.Errorf("ReadProcessMemory: %w", callErr)}
	}
	if int(moved) != n {
		return nil, &OpError{Op: "read", Addr: addr, Want: n, Got: int(moved), Err: ErrPartialRead}
	}
	return buf, nil
}

func (p *Process) WriteBytes(addr uint64, data []byte) error {
	if p.handle == 0 {
		return &OpError{Op: "write", Addr: addr, Want: len(data), Err: ErrNotAttached}
	}
	if len(data) == 0 {
		return nil
	}
	var moved uintptr
	ret, _, callErr := procWriteProcessMem.Call(
		uintptr(p.handle),
		uintptr(addr),
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&moved)),
	)
	if ret == 0 {
		return &OpError{Op: "write", Addr: addr, Want: len(data), Err: fmt.Errorf("WriteProcessMemory: %w", callErr)}
	}
	if int(moved) != len(data) {
		return &OpError{Op: "write", Addr: addr, Want: len(data), Got: int(moved), Err: ErrPartialWrite}
	}
	return nil
}

func (p *Process) Regions(low, high uint64) ([]Region, error) {
	if p.handle == 0 {
		return nil, &OpError{Op: "regions", Addr: low, Err: ErrNotAttached}
	}
	var out []Region
	var mbi memoryBasicInfo
	addr := uintptr(low)
	for uint64(addr) < high {
		ret, _, _ := procVirtualQueryEx.Call(
			uintptr(p.handle),
			addr,
			uintptr(unsafe.Pointer(&mbi)),
			unsafe.Sizeof(mbi),
		)
		if ret == 0 {
			break
		}
		base := uint64(mbi.BaseAddress)
		size := uint64(mbi.RegionSize)
		if size == 0 {
			addr += 0x1000
			continue
		}
		baseProtect := mbi.Protect & 0xFF
		if mbi.State == memCommit && readableProtect[baseProtect] && mbi.Protect&pageGuard == 0 {
			clipped := size
			if base+clipped > high {
				clipped = high - base
			}
			out = append(out, Region{Base: base, Size: clipped, Protect: mbi.Protect})
		}
		next := base + size
		if uint64(addr) >= next {
			next = uint64(addr) + 0x1000
		}
		addr = uintptr(next)
	}
	return out, nil
}

func findPID(target string, aliases []string) (uint32, string, error) {
	targetLower := strings.ToLower(target)
	allowed := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		allowed[strings.ToLower(a)] = true
	}

	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, "", &OpError{Op: "attach", Err: fmt.Errorf("process snapshot: %w", err)}
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	var fallbackPID uint32
	var fallbackName string
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		name := windows.UTF16ToString(entry.ExeFile[:])
		lower := strings.ToLower(name)
		if lower == targetLower {
			return entry.ProcessID, name, nil
		}
		if fallbackPID == 0 && allowed[lower] {
			fallbackPID = entry.ProcessID
			fallbackName = name
		}
	}
	if fallbackPID != 0 {
		return fallbackPID, fallbackName, nil
	}
	return 0, "", fmt.Errorf("%w: %s", ErrProcessNotFound, target)
}

func moduleBase(pid uint32, module string) (uint64, error) {
	snap, err := windows.CreateToolhelp32Snapshot(
		windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return 0, &OpError{Op: "attach", Err: fmt.Errorf("module snapshot: %w", err)}
	}
	defer windows.CloseHandle(snap)

	lower := strings.ToLower(module)
	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		name := windows.UTF16ToString(entry.Module[:])
		if strings.ToLower(name) == lower {
			return uint64(entry.ModBaseAddr), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrModuleNotFound, module)
}

// detectPointerSize probes whether the target runs under WOW64. A 32-bit
// process under a 64-bit OS stores 4-byte pointers regardless of the host.
func detectPointerSize(handle windows.Handle) int {
	var processMachine, nativeMachine uint16
	if err := windows.IsWow64Process2(handle, &processMachine, &nativeMachine); err == nil {
		if processMachine != 0 {
			return 4
		}
		return 8
	}
	var wow64 bool
	if err := windows.IsWow64Process(handle, &wow64); err == nil && wow64 {
		return 4
	}
	return 8
}
