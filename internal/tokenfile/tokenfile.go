// Package tokenfile reads and writes raw token-id files: a flat array of
// native-width, native-endian unsigned integers with no header. The first
// id of a prompt file must be the end-of-sequence sentinel.
package tokenfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"os"
)

// Sentinel is the id every prompt must start with (</s>).
const Sentinel = 1

// ElemSize is the width in bytes of one stored id.
const ElemSize = bits.UintSize / 8

var (
	ErrEmpty           = errors.New("tokenfile: no ids in file")
	ErrTruncated       = errors.New("tokenfile: length is not a multiple of the id width")
	ErrMissingSentinel = errors.New("tokenfile: first id is not the sentinel")
	ErrNegativeID      = errors.New("tokenfile: negative id")
	ErrIDTooLarge      = errors.New("tokenfile: id does not fit in int")
)

// Read loads and validates a prompt id file.
func Read(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open token file %s: %w", path, err)
	}
	ids, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ids, nil
}

// Decode parses raw file bytes and checks the sentinel.
func Decode(raw []byte) ([]int, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if len(raw)%ElemSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes, width %d", ErrTruncated, len(raw), ElemSize)
	}
	n := len(raw) / ElemSize
	ids := make([]int, n)
	for i := range n {
		var v uint64
		if ElemSize == 8 {
			v = binary.NativeEndian.Uint64(raw[i*8:])
		} else {
			v = uint64(binary.NativeEndian.Uint32(raw[i*4:]))
		}
		if v > math.MaxInt {
			return nil, fmt.Errorf("%w: index %d", ErrIDTooLarge, i)
		}
		ids[i] = int(v)
	}
	if ids[0] != Sentinel {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMissingSentinel, ids[0], Sentinel)
	}
	return ids, nil
}

// Encode serializes ids without framing.
func Encode(ids []int) ([]byte, error) {
	out := make([]byte, len(ids)*ElemSize)
	for i, id := range ids {
		if id < 0 {
			return nil, fmt.Errorf("%w: %d at index %d", ErrNegativeID, id, i)
		}
		if ElemSize == 8 {
			binary.NativeEndian.PutUint64(out[i*8:], uint64(id))
		} else {
			binary.NativeEndian.PutUint32(out[i*4:], uint32(id))
		}
	}
	return out, nil
}

// Write stores ids at path, replacing any existing file.
func Write(path string, ids []int) error {
	raw, err := Encode(ids)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write token file %s: %w", path, err)
	}
	return nil
}
