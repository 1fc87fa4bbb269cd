package scan

import (
	"errors"
	"fmt"

	"memscan/internal/codec"
)

// ErrIndexOutOfRange reports an At call past the end of the store.
var ErrIndexOutOfRange = errors.New("index out of range")

// Candidate is an address currently believed to hold the scanned-for
// value, with the bytes observed there by the most recent scan. Its
// byte slice is always exactly the session kind's width.
type Candidate struct {
	Addr  uint64
	Bytes []byte
}

// Match is a display row: a candidate address and its decoded value.
type Match struct {
	Addr  uint64
	Value string
}

// MatchStore is the in-memory candidate set for one scan generation,
// ordered by address. It is immutable once built; narrowing scans
// replace it wholesale.
type MatchStore struct {
	kind  codec.Kind
	cands []Candidate
}

func emptyStore(kind codec.Kind) *MatchStore {
	return &MatchStore{kind: kind}
}

// Count returns the number of candidates.
func (st *MatchStore) Count() int { return len(st.cands) }

// Kind returns the data type the candidates were scanned as.
func (st *MatchStore) Kind() codec.Kind { return st.kind }

// At returns the i'th candidate in address order.
func (st *MatchStore) At(i int) (Candidate, error) {
	if i < 0 || i >= len(st.cands) {
		return Candidate{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(st.cands))
	}
	return st.cands[i], nil
}

// Matches returns the full candidate list with decoded display values,
// ordered by address.
func (st *MatchStore) Matches() []Match {
	out := make([]Match, 0, len(st.cands))
	for _, c := range st.cands {
		v, err := st.kind.Decode(c.Bytes)
		if err != nil {
			v = fmt.Sprintf("% x", c.Bytes)
		}
		out = append(out, Match{Addr: c.Addr, Value: v})
	}
	return out
}
