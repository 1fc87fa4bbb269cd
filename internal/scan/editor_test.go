package scan

import (
	"context"
	"errors"
	"testing"

	"memscan/internal/codec"
	"memscan/internal/proc"
)

func TestWriteThenReadBack(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)

	if err := Write(ft, 0x1004, "9999", codec.Int32); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4)
	if _, err := ft.ReadAt(0x1004, buf); err != nil {
		t.Fatal(err)
	}
	got, err := codec.Int32.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != "9999" {
		t.Errorf("read back %q, want %q", got, "9999")
	}
}

func TestWriteVerify(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)

	if err := Write(ft, 0x1000, "-5", codec.Int16, WithVerify()); err != nil {
		t.Fatalf("verify of a clean write failed: %v", err)
	}
}

// revertingTarget models a process that rewrites the value right after
// our write lands.
type revertingTarget struct {
	*fakeTarget
	revert []byte
	addr   uint64
}

func (r *revertingTarget) WriteAt(addr uint64, data []byte) (int, error) {
	n, err := r.fakeTarget.WriteAt(addr, data)
	if err == nil && addr == r.addr {
		r.fakeTarget.WriteAt(addr, r.revert)
	}
	return n, err
}

func TestWriteVerifyDetectsRevert(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	old, _ := codec.Int32.Encode("100")
	rt := &revertingTarget{fakeTarget: ft, revert: old, addr: 0x1008}

	err := Write(rt, 0x1008, "9999", codec.Int32, WithVerify())
	if !errors.Is(err, ErrVerifyMismatch) {
		t.Errorf("err = %v, want ErrVerifyMismatch", err)
	}
}

func TestWriteErrors(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, false) // read-only

	if err := Write(ft, 0x1000, "1", codec.Int32); !errors.Is(err, proc.ErrUnwritableMemory) {
		t.Errorf("read-only write err = %v, want ErrUnwritableMemory", err)
	}
	if err := Write(ft, 0xdead0000, "1", codec.Int32); !errors.Is(err, proc.ErrAddressInvalidated) {
		t.Errorf("unmapped write err = %v, want ErrAddressInvalidated", err)
	}
	if err := Write(ft, 0x1000, "zzz", codec.Int32); !errors.Is(err, codec.ErrInvalidValue) {
		t.Errorf("bad value err = %v, want ErrInvalidValue", err)
	}
}

func TestStoreAt(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 32, true)
	ft.put(t, codec.Int32, 0x1000, "6")
	ft.put(t, codec.Int32, 0x1010, "6")

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(context.Background(), ft, ft, "6")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.At(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(-1) err = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := store.At(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At(2) err = %v, want ErrIndexOutOfRange", err)
	}
	c, err := store.At(1)
	if err != nil || c.Addr != 0x1010 {
		t.Errorf("At(1) = %+v, %v", c, err)
	}
	if len(c.Bytes) != codec.Int32.Size() {
		t.Errorf("candidate bytes width = %d, want %d", len(c.Bytes), codec.Int32.Size())
	}

	for _, m := range store.Matches() {
		if m.Value != "6" {
			t.Errorf("decoded value = %q, want %q", m.Value, "6")
		}
	}
}
