// Package modelbin reads the flat model.bin weight container.
//
// The file is a sequence of records until EOF, little-endian:
//
//	u32 name_len | name
//	ternary (projection weights): f32 scale | u32 byte_len | packed bytes
//	float (everything else):      u32 count | count * f32
//
// Whether a record is ternary is decided by its name, see IsQuantizedName.
package modelbin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrTensorNotFound = errors.New("modelbin: tensor not found")
	ErrCorrupt        = errors.New("modelbin: corrupt file")
	ErrWrongKind      = errors.New("modelbin: wrong tensor kind")
)

// Kind tells how a record payload is encoded.
type Kind uint8

const (
	KindFloat Kind = iota
	KindTernary
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "f32"
	case KindTernary:
		return "ternary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var quantizedMarkers = []string{"down_proj", "gate_proj", "up_proj", "q_proj", "k_proj", "v_proj", "o_proj"}

// IsQuantizedName reports whether a tensor of this name is stored ternary.
func IsQuantizedName(name string) bool {
	for _, m := range quantizedMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// TensorInfo describes one record.
type TensorInfo struct {
	Name  string
	Kind  Kind
	Scale float32 // ternary only
	Count int     // f32 elements (float) or packed bytes (ternary)

	off int
}

// Bytes returns the payload size in bytes.
func (t TensorInfo) Bytes() int {
	if t.Kind == KindFloat {
		return t.Count * 4
	}
	return t.Count
}

type index struct {
	order  []string
	byName map[string]TensorInfo
}

func parseIndex(data []byte) (*index, error) {
	idx := &index{byName: make(map[string]TensorInfo)}
	off := 0
	for off < len(data) {
		nameLen, ok := u32(data, off)
		if !ok {
			return nil, fmt.Errorf("%w: truncated name length at offset %d", ErrCorrupt, off)
		}
		off += 4
		if nameLen == 0 || int(nameLen) > len(data)-off {
			return nil, fmt.Errorf("%w: bad name length %d at offset %d", ErrCorrupt, nameLen, off-4)
		}
		name := string(data[off : off+int(nameLen)])
		off += int(nameLen)
		if _, dup := idx.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tensor %q", ErrCorrupt, name)
		}

		info := TensorInfo{Name: name}
		if IsQuantizedName(name) {
			bitsScale, ok := u32(data, off)
			if !ok {
				return nil, fmt.Errorf("%w: %s: truncated scale", ErrCorrupt, name)
			}
			size, ok := u32(data, off+4)
			if !ok {
				return nil, fmt.Errorf("%w: %s: truncated size", ErrCorrupt, name)
			}
			off += 8
			info.Kind = KindTernary
			info.Scale = math.Float32frombits(bitsScale)
			info.Count = int(size)
		} else {
			count, ok := u32(data, off)
			if !ok {
				return nil, fmt.Errorf("%w: %s: truncated count", ErrCorrupt, name)
			}
			off += 4
			info.Kind = KindFloat
			info.Count = int(count)
		}
		info.off = off
		if info.Bytes() > len(data)-off {
			return nil, fmt.Errorf("%w: %s: payload of %d bytes runs past end of file", ErrCorrupt, name, info.Bytes())
		}
		off += info.Bytes()

		idx.order = append(idx.order, name)
		idx.byName[name] = info
	}
	return idx, nil
}

func u32(data []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[off:]), true
}
