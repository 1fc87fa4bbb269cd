//go:build linux

package proc

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Target is an open handle to a running process.
//
// Reads and writes go through process_vm_readv/process_vm_writev, which
// move memory directly between address spaces without stopping the
// target. The /proc/<pid>/mem fd is opened only to make the kernel's
// ptrace-access check happen at Open time, so permission failures
// surface before any scan starts.
type Target struct {
	pid int
	exe string

	mu  sync.Mutex
	mem *os.File
}

// Open acquires a handle to pid. It fails with ErrNoSuchProcess if the
// pid does not exist and ErrAccessDenied if the caller lacks ptrace
// access to it.
func Open(pid int) (*Target, error) {
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open pid %d: %w", pid, ErrNoSuchProcess)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("open pid %d: %w", pid, ErrAccessDenied)
		}
		return nil, fmt.Errorf("open pid %d: %w", pid, err)
	}

	exe, _ := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))

	return &Target{pid: pid, exe: exe, mem: mem}, nil
}

// Pid returns the target's process id.
func (t *Target) Pid() int { return t.pid }

// Close releases the handle. Safe to call more than once.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mem == nil {
		return nil
	}
	err := t.mem.Close()
	t.mem = nil
	return err
}

// ReadAt fills buf from the target's memory at addr. A fault or short
// read yields ErrUnreadableMemory; callers treat that as "skip".
func (t *Target) ReadAt(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(t.pid, local, remote, 0)
	if err != nil {
		return 0, fmt.Errorf("read %d bytes at %#x: %w", len(buf), addr, ErrUnreadableMemory)
	}
	if n != len(buf) {
		return n, fmt.Errorf("short read at %#x (%d of %d): %w", addr, n, len(buf), ErrUnreadableMemory)
	}
	return n, nil
}

// WriteAt copies data into the target's memory at addr.
func (t *Target) WriteAt(addr uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(data)}}

	n, err := unix.ProcessVMWritev(t.pid, local, remote, 0)
	if err != nil {
		switch err {
		case unix.ESRCH:
			return 0, fmt.Errorf("write %d bytes at %#x: %w", len(data), addr, ErrAddressInvalidated)
		default:
			return 0, fmt.Errorf("write %d bytes at %#x: %w", len(data), addr, ErrUnwritableMemory)
		}
	}
	if n != len(data) {
		return n, fmt.Errorf("short write at %#x (%d of %d): %w", addr, n, len(data), ErrUnwritableMemory)
	}
	return n, nil
}
