// Package proc gives privileged raw access to another process's
// address space: opening a handle by pid, walking memory regions, and
// bounded reads and writes at arbitrary addresses. The target process
// keeps running the whole time; nothing here stops or attaches to it
// beyond what a single read or write requires.
//
// Addresses and handles are plain numeric tokens. A Target exclusively
// owns its OS handle from Open until Close; callers defer Close on
// every path once Open succeeds.
package proc

import "errors"

// Failure taxonomy. Open failures are fatal to a session; read and
// write failures are local to one address and callers are expected to
// skip or drop rather than abort.
var (
	ErrAccessDenied       = errors.New("access to process denied")
	ErrNoSuchProcess      = errors.New("no such process")
	ErrUnreadableMemory   = errors.New("unreadable memory")
	ErrUnwritableMemory   = errors.New("unwritable memory")
	ErrAddressInvalidated = errors.New("address no longer mapped")
)

// Region is one contiguous, uniformly protected span of the target's
// virtual address space. Regions are produced fresh on every
// enumeration and describe the layout only at that instant.
type Region struct {
	Base     uint64
	Size     uint64
	Readable bool
	Writable bool
	Path     string // backing file or pseudo name ("[heap]"), empty for anonymous
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Base + r.Size }
