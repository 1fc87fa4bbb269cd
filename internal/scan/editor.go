package scan

import (
	"bytes"
	"errors"
	"fmt"

	"memscan/internal/codec"
)

// ErrVerifyMismatch reports a write that succeeded but did not stick:
// the read-back bytes differ from what was written, usually because
// the target immediately rewrote them.
var ErrVerifyMismatch = errors.New("written value did not stick")

// WriteOption adjusts how Write behaves.
type WriteOption func(*writeOptions)

type writeOptions struct {
	verify bool
}

// WithVerify reads the address back after writing and fails with
// ErrVerifyMismatch if the bytes reverted.
func WithVerify() WriteOption {
	return func(o *writeOptions) { o.verify = true }
}

// Write encodes valueText as kind and writes it to addr. The address
// does not have to come from a match store; direct edits are allowed
// and no region validation is performed here.
func Write(rw MemoryWriter, addr uint64, valueText string, kind codec.Kind, opts ...WriteOption) error {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	data, err := kind.Encode(valueText)
	if err != nil {
		return err
	}
	if _, err := rw.WriteAt(addr, data); err != nil {
		return err
	}

	if o.verify {
		back := make([]byte, len(data))
		if _, err := rw.ReadAt(addr, back); err != nil {
			return fmt.Errorf("%w: read-back failed: %v", ErrVerifyMismatch, err)
		}
		if !bytes.Equal(back, data) {
			return fmt.Errorf("%w at %#x", ErrVerifyMismatch, addr)
		}
	}
	return nil
}
