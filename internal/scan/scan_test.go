package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"memscan/internal/codec"
	"memscan/internal/proc"
)

// fakeTarget holds regions of plain byte slices and implements the
// accessor and enumerator surfaces the engine consumes.
type fakeTarget struct {
	regions []*fakeRegion
}

type fakeRegion struct {
	base     uint64
	data     []byte
	writable bool
	dead     bool // all reads fault
}

func (f *fakeTarget) region(base uint64, size int, writable bool) *fakeRegion {
	r := &fakeRegion{base: base, data: make([]byte, size), writable: writable}
	f.regions = append(f.regions, r)
	return r
}

func (f *fakeTarget) find(addr uint64, n int) *fakeRegion {
	for _, r := range f.regions {
		if addr >= r.base && addr+uint64(n) <= r.base+uint64(len(r.data)) {
			return r
		}
	}
	return nil
}

func (f *fakeTarget) ReadAt(addr uint64, buf []byte) (int, error) {
	r := f.find(addr, len(buf))
	if r == nil || r.dead {
		return 0, proc.ErrUnreadableMemory
	}
	copy(buf, r.data[addr-r.base:])
	return len(buf), nil
}

func (f *fakeTarget) WriteAt(addr uint64, data []byte) (int, error) {
	r := f.find(addr, len(data))
	if r == nil {
		return 0, proc.ErrAddressInvalidated
	}
	if !r.writable {
		return 0, proc.ErrUnwritableMemory
	}
	copy(r.data[addr-r.base:], data)
	return len(data), nil
}

func (f *fakeTarget) EachRegion(all bool, fn func(proc.Region) bool) error {
	for _, r := range f.regions {
		reg := proc.Region{Base: r.base, Size: uint64(len(r.data)), Readable: true, Writable: r.writable}
		if !fn(reg) {
			return nil
		}
	}
	return nil
}

// put stores the encoding of text at addr.
func (f *fakeTarget) put(t *testing.T, kind codec.Kind, addr uint64, text string) {
	t.Helper()
	b, err := kind.Encode(text)
	if err != nil {
		t.Fatalf("encode %q: %v", text, err)
	}
	if _, err := f.WriteAt(addr, b); err != nil {
		t.Fatalf("write at %#x: %v", addr, err)
	}
}

func TestInitialScanFindsSingleValue(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1004, "100")

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(context.Background(), ft, ft, "100")
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() != 1 {
		t.Fatalf("Count = %d, want 1", store.Count())
	}
	c, err := store.At(0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != 0x1004 {
		t.Errorf("Addr = %#x, want 0x1004", c.Addr)
	}
	if s.State() != StateFiltering || s.Generation() != 1 {
		t.Errorf("state=%v gen=%d, want filtering/1", s.State(), s.Generation())
	}
}

func TestNextScanTracksChangingValue(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1004, "100")

	s := NewSession(codec.Int32)
	if _, err := s.InitialScan(context.Background(), ft, ft, "100"); err != nil {
		t.Fatal(err)
	}

	// Target changes the value; narrowing on the new value keeps it.
	ft.put(t, codec.Int32, 0x1004, "95")
	store, err := s.NextScan(context.Background(), ft, "95")
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() != 1 {
		t.Fatalf("Count after 95 = %d, want 1", store.Count())
	}
	if s.Generation() != 2 {
		t.Errorf("gen = %d, want 2", s.Generation())
	}

	// Narrowing on a value nothing holds empties the set.
	store, err = s.NextScan(context.Background(), ft, "999")
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() != 0 {
		t.Errorf("Count after 999 = %d, want 0", store.Count())
	}
}

func TestNextScanNeverGrows(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 64, true)
	for _, addr := range []uint64{0x1000, 0x1010, 0x1020, 0x1030} {
		ft.put(t, codec.Int32, addr, "7")
	}

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(context.Background(), ft, ft, "7")
	if err != nil {
		t.Fatal(err)
	}
	before := store.Count()

	// Even when more copies of the value appear, narrowing only ever
	// filters the existing set.
	ft.put(t, codec.Int32, 0x1008, "7")
	store, err = s.NextScan(context.Background(), ft, "7")
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() > before {
		t.Errorf("count grew %d -> %d", before, store.Count())
	}
	if store.Count() != before {
		t.Errorf("unchanged candidates should survive: %d -> %d", before, store.Count())
	}
}

func TestMatchAcrossChunkBoundary(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x2000, 64, true)
	// With an 8-byte chunk, a value at offset 6 straddles the first
	// seam and one at offset 8 starts exactly on the second chunk.
	ft.put(t, codec.Int32, 0x2006, "1234")
	ft.put(t, codec.Int32, 0x2010, "1234")

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(context.Background(), ft, ft, "1234", WithChunkSize(8), WithWorkers(1))
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() != 2 {
		t.Fatalf("Count = %d, want 2 (boundary match lost or duplicated)", store.Count())
	}
	got := []uint64{}
	for _, m := range store.Matches() {
		got = append(got, m.Addr)
	}
	if got[0] != 0x2006 || got[1] != 0x2010 {
		t.Errorf("addrs = %#x, want [0x2006 0x2010]", got)
	}
}

func TestMatchesSortedAcrossRegions(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 32, true)
	ft.region(0x8000, 32, true)
	ft.region(0x4000, 32, true)
	ft.put(t, codec.Int16, 0x8002, "41")
	ft.put(t, codec.Int16, 0x1004, "41")
	ft.put(t, codec.Int16, 0x4006, "41")

	s := NewSession(codec.Int16)
	store, err := s.InitialScan(context.Background(), ft, ft, "41", WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	var prev uint64
	for i, m := range store.Matches() {
		if m.Addr <= prev && i > 0 {
			t.Fatalf("matches not in address order: %#x after %#x", m.Addr, prev)
		}
		prev = m.Addr
	}
	if store.Count() != 3 {
		t.Errorf("Count = %d, want 3", store.Count())
	}
}

func TestUnreadableRegionSkipped(t *testing.T) {
	ft := &fakeTarget{}
	bad := ft.region(0x1000, 32, true)
	bad.dead = true
	ft.region(0x2000, 32, true)
	ft.put(t, codec.Int32, 0x2008, "55")

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(context.Background(), ft, ft, "55")
	if err != nil {
		t.Fatalf("unreadable region must not abort the scan: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Count = %d, want 1", store.Count())
	}
}

func TestNextScanDropsUnreadableCandidate(t *testing.T) {
	ft := &fakeTarget{}
	r1 := ft.region(0x1000, 16, true)
	ft.region(0x2000, 16, true)
	ft.put(t, codec.Int32, 0x1004, "9")
	ft.put(t, codec.Int32, 0x2004, "9")

	s := NewSession(codec.Int32)
	if _, err := s.InitialScan(context.Background(), ft, ft, "9"); err != nil {
		t.Fatal(err)
	}

	// First candidate's page vanishes between scans.
	r1.dead = true
	store, err := s.NextScan(context.Background(), ft, "9")
	if err != nil {
		t.Fatalf("candidate re-read failure must be silent: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("Count = %d, want 1", store.Count())
	}
	c, _ := store.At(0)
	if c.Addr != 0x2004 {
		t.Errorf("surviving candidate = %#x, want 0x2004", c.Addr)
	}
}

func TestResetAlwaysYieldsEmptyGenerationZero(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1000, "3")

	s := NewSession(codec.Int32)
	s.Reset() // reset from idle is a no-op but must stay consistent
	if s.Generation() != 0 || s.Store().Count() != 0 {
		t.Fatal("reset from idle not clean")
	}

	if _, err := s.InitialScan(context.Background(), ft, ft, "3"); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if s.State() != StateIdle || s.Generation() != 0 || s.Store().Count() != 0 {
		t.Errorf("after reset: state=%v gen=%d count=%d", s.State(), s.Generation(), s.Store().Count())
	}
}

func TestInitialScanWhileFilteringStartsOver(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 32, true)
	ft.put(t, codec.Int32, 0x1000, "1")
	ft.put(t, codec.Int32, 0x1010, "2")

	s := NewSession(codec.Int32)
	if _, err := s.InitialScan(context.Background(), ft, ft, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextScan(context.Background(), ft, "1"); err != nil {
		t.Fatal(err)
	}

	store, err := s.InitialScan(context.Background(), ft, ft, "2")
	if err != nil {
		t.Fatal(err)
	}
	if s.Generation() != 1 {
		t.Errorf("gen = %d, want 1 (fresh session)", s.Generation())
	}
	c, _ := store.At(0)
	if store.Count() != 1 || c.Addr != 0x1010 {
		t.Errorf("store = %d candidates at %#x, want 1 at 0x1010", store.Count(), c.Addr)
	}
}

func TestCancelledScanDiscardsEverything(t *testing.T) {
	ft := &fakeTarget{}
	for i := 0; i < 16; i++ {
		r := ft.region(uint64(0x10000*(i+1)), 4096, true)
		copy(r.data, []byte{42})
	}
	ft.put(t, codec.Int32, 0x10000, "77")

	ctx, cancel := context.WithCancel(context.Background())
	var progressed atomic.Bool
	s := NewSession(codec.Int32)
	store, err := s.InitialScan(ctx, ft, ft, "77",
		WithChunkSize(512),
		WithWorkers(2),
		WithProgress(func(Progress) {
			progressed.Store(true)
			cancel()
		}))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if !progressed.Load() {
		t.Fatal("progress callback never ran")
	}
	if store == nil || store.Count() != 0 {
		t.Errorf("cancelled scan leaked a partial match list: %v", store)
	}
	if s.State() != StateIdle || s.Generation() != 0 {
		t.Errorf("after cancel: state=%v gen=%d, want idle/0", s.State(), s.Generation())
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1000, "5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(codec.Int32)
	store, err := s.InitialScan(ctx, ft, ft, "5")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count = %d, want 0", store.Count())
	}
}

func TestNextScanRequiresInitialScan(t *testing.T) {
	s := NewSession(codec.Int32)
	if _, err := s.NextScan(context.Background(), &fakeTarget{}, "1"); !errors.Is(err, ErrNoScan) {
		t.Errorf("err = %v, want ErrNoScan", err)
	}
}

func TestInvalidValueFailsActionOnly(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1004, "10")

	s := NewSession(codec.Int32)
	if _, err := s.InitialScan(context.Background(), ft, ft, "10"); err != nil {
		t.Fatal(err)
	}

	_, err := s.NextScan(context.Background(), ft, "not a number")
	if !errors.Is(err, codec.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	// The session survives the failed action.
	if s.State() != StateFiltering || s.Store().Count() != 1 {
		t.Errorf("failed parse damaged the session: state=%v count=%d", s.State(), s.Store().Count())
	}
}

func TestSetKindResetsSession(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 16, true)
	ft.put(t, codec.Int32, 0x1000, "12")

	s := NewSession(codec.Int32)
	if _, err := s.InitialScan(context.Background(), ft, ft, "12"); err != nil {
		t.Fatal(err)
	}
	s.SetKind(codec.Float64)
	if s.Kind() != codec.Float64 || s.State() != StateIdle || s.Store().Count() != 0 {
		t.Errorf("SetKind did not start the session over: kind=%v state=%v count=%d",
			s.Kind(), s.State(), s.Store().Count())
	}
}

func TestProgressReported(t *testing.T) {
	ft := &fakeTarget{}
	ft.region(0x1000, 4096, true)
	ft.region(0x9000, 4096, true)

	var last Progress
	s := NewSession(codec.Int64)
	_, err := s.InitialScan(context.Background(), ft, ft, "123456789",
		WithWorkers(1),
		WithProgress(func(p Progress) { last = p }))
	if err != nil {
		t.Fatal(err)
	}
	if last.Regions != 2 {
		t.Errorf("Regions = %d, want 2", last.Regions)
	}
	if last.Bytes != 8192 {
		t.Errorf("Bytes = %d, want 8192", last.Bytes)
	}
}
