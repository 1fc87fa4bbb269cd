//go:build windows

package proc

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const readAccess = windows.PROCESS_QUERY_INFORMATION |
	windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_OPERATION

// Target is an open handle to a running process.
type Target struct {
	pid int

	mu     sync.Mutex
	handle windows.Handle
	open   bool
}

// Open acquires a handle to pid with read/write access.
func Open(pid int) (*Target, error) {
	h, err := windows.OpenProcess(readAccess, false, uint32(pid))
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return nil, fmt.Errorf("open pid %d: %w", pid, ErrAccessDenied)
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return nil, fmt.Errorf("open pid %d: %w", pid, ErrNoSuchProcess)
		default:
			return nil, fmt.Errorf("open pid %d: %w", pid, err)
		}
	}
	return &Target{pid: pid, handle: h, open: true}, nil
}

// Pid returns the target's process id.
func (t *Target) Pid() int { return t.pid }

// Close releases the handle. Safe to call more than once.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	return windows.CloseHandle(t.handle)
}

// ReadAt fills buf from the target's memory at addr. A fault or short
// read yields ErrUnreadableMemory; callers treat that as "skip".
func (t *Target) ReadAt(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var n uintptr
	err := windows.ReadProcessMemory(t.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &n)
	if err != nil {
		return 0, fmt.Errorf("read %d bytes at %#x: %w", len(buf), addr, ErrUnreadableMemory)
	}
	if int(n) != len(buf) {
		return int(n), fmt.Errorf("short read at %#x (%d of %d): %w", addr, n, len(buf), ErrUnreadableMemory)
	}
	return int(n), nil
}

// WriteAt copies data into the target's memory at addr.
func (t *Target) WriteAt(addr uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var n uintptr
	err := windows.WriteProcessMemory(t.handle, uintptr(addr), &data[0], uintptr(len(data)), &n)
	if err != nil {
		if errors.Is(err, windows.ERROR_PARTIAL_COPY) || errors.Is(err, windows.ERROR_INVALID_ADDRESS) {
			return 0, fmt.Errorf("write %d bytes at %#x: %w", len(data), addr, ErrAddressInvalidated)
		}
		return 0, fmt.Errorf("write %d bytes at %#x: %w", len(data), addr, ErrUnwritableMemory)
	}
	if int(n) != len(data) {
		return int(n), fmt.Errorf("short write at %#x (%d of %d): %w", addr, n, len(data), ErrUnwritableMemory)
	}
	return int(n), nil
}

const (
	memImage  = 0x1000000
	memMapped = 0x40000
)

// EachRegion walks the committed regions of the target's address space
// in ascending order via VirtualQueryEx, calling fn once per eligible
// region until fn returns false or the query runs off the end of the
// addressable range.
//
// With all=false, image-backed regions (the loaded modules: system and
// shared DLLs) and shared file mappings are skipped so only the
// application's own memory is visited; all=true lifts that filter.
func (t *Target) EachRegion(all bool, fn func(Region) bool) error {
	var addr uintptr
	for {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQueryEx(t.handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			// Past the highest application address.
			return nil
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			return nil
		}

		if mbi.State == windows.MEM_COMMIT && readableProtect(mbi.Protect) {
			if all || (mbi.Type != memImage && mbi.Type != memMapped) {
				r := Region{
					Base:     uint64(mbi.BaseAddress),
					Size:     uint64(mbi.RegionSize),
					Readable: true,
					Writable: writableProtect(mbi.Protect),
				}
				if !fn(r) {
					return nil
				}
			}
		}
		addr = next
	}
}

func readableProtect(p uint32) bool {
	if p&windows.PAGE_GUARD != 0 || p&windows.PAGE_NOACCESS != 0 {
		return false
	}
	const readable = windows.PAGE_READONLY | windows.PAGE_READWRITE |
		windows.PAGE_WRITECOPY | windows.PAGE_EXECUTE_READ |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
	return p&readable != 0
}

func writableProtect(p uint32) bool {
	if p&windows.PAGE_GUARD != 0 {
		return false
	}
	const writable = windows.PAGE_READWRITE | windows.PAGE_WRITECOPY |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
	return p&writable != 0
}
