// Package scan implements the scan/filter/edit engine: a full sweep of
// a live process's eligible memory for a numeric value, progressive
// narrowing of the resulting candidate set across repeated
// observations, and direct writes to resolved addresses.
//
// The target keeps running throughout. A race between capturing a
// candidate's bytes and the target rewriting them is an expected
// outcome, not a fault; the next narrowing pass simply drops the
// candidate.
package scan

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"memscan/internal/codec"
	"memscan/internal/proc"
)

var (
	// ErrCancelled reports a scan stopped by its context. Partial
	// results are discarded; the session holds an empty store.
	ErrCancelled = errors.New("scan cancelled")

	// ErrNoScan reports a narrowing scan without a preceding initial
	// scan.
	ErrNoScan = errors.New("no scan in progress")
)

// DefaultChunkSize bounds how much of a region is read per syscall.
// Chunks overlap by the value width minus one so a match straddling a
// chunk seam cannot be missed.
const DefaultChunkSize = 256 << 10

// Memory is the read side of a process accessor.
type Memory interface {
	ReadAt(addr uint64, buf []byte) (int, error)
}

// MemoryWriter extends Memory with writes, for the editor.
type MemoryWriter interface {
	Memory
	WriteAt(addr uint64, data []byte) (int, error)
}

// RegionSource lazily enumerates a process's memory regions in
// ascending address order.
type RegionSource interface {
	EachRegion(all bool, fn func(proc.Region) bool) error
}

// State is the session's position in its command cycle.
type State int

const (
	// StateIdle means no candidate set exists yet.
	StateIdle State = iota
	// StateFiltering means an initial scan succeeded and narrowing
	// scans are valid.
	StateFiltering
)

func (s State) String() string {
	if s == StateFiltering {
		return "filtering"
	}
	return "idle"
}

// Progress is a point-in-time snapshot reported during an initial scan.
type Progress struct {
	Regions int    // regions fully visited
	Bytes   uint64 // bytes scanned so far
	Matches int    // candidates found so far
}

// Option adjusts how an initial scan runs.
type Option func(*options)

type options struct {
	chunkSize  int
	workers    int
	allRegions bool
	progress   func(Progress)
}

// WithChunkSize sets the per-read buffer size. Values below the
// pattern width are raised to the default.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithWorkers bounds the region worker pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithAllRegions scans every readable mapping instead of only the
// target application's own memory.
func WithAllRegions(all bool) Option {
	return func(o *options) { o.allRegions = all }
}

// WithProgress registers a callback invoked as regions complete. It
// may be called from scan worker goroutines.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// Session owns one scan cycle: a data type chosen up front, a
// generation counter bumped on every successful scan, and the current
// candidate set. Methods are safe for use from one goroutine at a
// time, which is how the command layer drives them.
type Session struct {
	mu    sync.Mutex
	kind  codec.Kind
	state State
	gen   uint64
	store *MatchStore
}

// NewSession creates an idle session scanning for values of kind.
func NewSession(kind codec.Kind) *Session {
	return &Session{kind: kind, store: emptyStore(kind)}
}

// Kind returns the session's data type.
func (s *Session) Kind() codec.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the number of successful scans since the last
// reset.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Store returns the current candidate set. Never nil.
func (s *Session) Store() *MatchStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Reset discards all candidates and returns the session to idle with
// generation zero.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.state = StateIdle
	s.gen = 0
	s.store = emptyStore(s.kind)
}

// SetKind changes the session's data type, which always starts the
// session over.
func (s *Session) SetKind(kind codec.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
	s.reset()
}

// InitialScan sweeps every eligible region of the target for the exact
// encoding of valueText and replaces the candidate set with the
// addresses that matched. Any previous session state is discarded
// first, so calling this while filtering is the same as Reset followed
// by InitialScan.
//
// Regions are read in bounded, overlapping chunks across a worker
// pool; unreadable sub-ranges are skipped silently. Cancelling ctx
// stops the scan at chunk granularity, discards partial matches and
// returns ErrCancelled with an empty store.
func (s *Session) InitialScan(ctx context.Context, mem Memory, regions RegionSource, valueText string, opts ...Option) (*MatchStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()

	o := options{chunkSize: DefaultChunkSize, workers: defaultWorkers()}
	for _, opt := range opts {
		opt(&o)
	}

	pattern, err := s.kind.Encode(valueText)
	if err != nil {
		return nil, err
	}
	if o.chunkSize < len(pattern) {
		o.chunkSize = DefaultChunkSize
	}

	found, err := sweep(ctx, mem, regions, pattern, o)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return s.store, ErrCancelled
		}
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Addr < found[j].Addr })
	s.store = &MatchStore{kind: s.kind, cands: found}
	s.state = StateFiltering
	s.gen = 1
	return s.store, nil
}

// NextScan re-reads each candidate and keeps it only if its bytes now
// equal the exact encoding of valueText. Candidates whose re-read
// fails are dropped silently; the candidate count never grows. The
// prior set is discarded.
func (s *Session) NextScan(ctx context.Context, mem Memory, valueText string) (*MatchStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFiltering {
		return nil, ErrNoScan
	}

	pattern, err := s.kind.Encode(valueText)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(pattern))
	kept := make([]Candidate, 0, s.store.Count())
	for _, c := range s.store.cands {
		if ctx.Err() != nil {
			// Leave the prior set in place; an aborted narrowing pass
			// changes nothing.
			return s.store, ErrCancelled
		}
		if _, err := mem.ReadAt(c.Addr, buf); err != nil {
			continue
		}
		if bytes.Equal(buf, pattern) {
			kept = append(kept, Candidate{Addr: c.Addr, Bytes: bytes.Clone(pattern)})
		}
	}

	s.store = &MatchStore{kind: s.kind, cands: kept}
	s.gen++
	return s.store, nil
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// sweep fans eligible regions out to a bounded worker pool. Each
// worker owns a private chunk buffer and a local match slice; locals
// merge under a mutex once the pool drains and the caller restores
// address order with a final sort.
func sweep(ctx context.Context, mem Memory, regions RegionSource, pattern []byte, o options) ([]Candidate, error) {
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan proc.Region)
	g.Go(func() error {
		defer close(jobs)
		err := regions.EachRegion(o.allRegions, func(r proc.Region) bool {
			select {
			case jobs <- r:
				return true
			case <-gctx.Done():
				return false
			}
		})
		if gctx.Err() != nil {
			return gctx.Err()
		}
		return err
	})

	tracker := &progressTracker{cb: o.progress}
	var (
		mu    sync.Mutex
		found []Candidate
	)
	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			buf := make([]byte, o.chunkSize+len(pattern)-1)
			var local []Candidate
			for r := range jobs {
				n, err := scanRegion(gctx, mem, r, pattern, buf, o.chunkSize, &local, tracker)
				if err != nil {
					return err
				}
				tracker.regionDone(n)
			}
			mu.Lock()
			found = append(found, local...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// scanRegion reads r in overlapping chunks and appends every address
// whose bytes equal pattern. Returns the number of matches found in
// this region. Unreadable chunks are skipped, never fatal.
func scanRegion(ctx context.Context, mem Memory, r proc.Region, pattern, buf []byte, chunk int, local *[]Candidate, tracker *progressTracker) (int, error) {
	width := len(pattern)
	matches := 0

	for off := uint64(0); off < r.Size; off += uint64(chunk) {
		if err := ctx.Err(); err != nil {
			return matches, err
		}

		step := r.Size - off
		if step > uint64(chunk) {
			step = uint64(chunk)
		}
		// Read past the step boundary by width-1 bytes so a value
		// straddling the seam is still seen whole.
		want := r.Size - off
		if max := uint64(chunk + width - 1); want > max {
			want = max
		}

		n, err := mem.ReadAt(r.Base+off, buf[:want])
		if err != nil {
			tracker.addBytes(step)
			continue
		}
		data := buf[:n]

		// Only starts within this chunk's step count; later starts
		// belong to the next, overlapping chunk.
		limit := len(data) - width + 1
		if limit > chunk {
			limit = chunk
		}
		for i := 0; i < limit; {
			j := bytes.Index(data[i:limit+width-1], pattern)
			if j < 0 {
				break
			}
			*local = append(*local, Candidate{
				Addr:  r.Base + off + uint64(i+j),
				Bytes: bytes.Clone(pattern),
			})
			matches++
			i += j + 1
		}
		tracker.addBytes(step)
	}
	return matches, nil
}

type progressTracker struct {
	cb func(Progress)
	mu sync.Mutex
	p  Progress
}

func (t *progressTracker) addBytes(n uint64) {
	if t.cb == nil {
		return
	}
	t.mu.Lock()
	t.p.Bytes += n
	t.cb(t.p)
	t.mu.Unlock()
}

func (t *progressTracker) regionDone(matches int) {
	if t.cb == nil {
		return
	}
	t.mu.Lock()
	t.p.Regions++
	t.p.Matches += matches
	t.cb(t.p)
	t.mu.Unlock()
}
