package modelbin

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer emits records in model.bin layout.
type Writer struct {
	w    *bufio.Writer
	seen map[string]struct{}
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), seen: make(map[string]struct{})}
}

func (w *Writer) header(name string, wantTernary bool) error {
	if name == "" {
		return fmt.Errorf("modelbin: empty tensor name")
	}
	if IsQuantizedName(name) != wantTernary {
		return fmt.Errorf("%w: name %q does not match record kind", ErrWrongKind, name)
	}
	if _, dup := w.seen[name]; dup {
		return fmt.Errorf("modelbin: duplicate tensor %q", name)
	}
	if uint64(len(name)) > math.MaxUint32 {
		return fmt.Errorf("modelbin: tensor name too long")
	}
	w.seen[name] = struct{}{}
	if err := w.u32(uint32(len(name))); err != nil {
		return err
	}
	_, err := w.w.WriteString(name)
	return err
}

func (w *Writer) u32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.w.Write(b[:])
	return err
}

// WriteFloat appends a float tensor.
func (w *Writer) WriteFloat(name string, vals []float32) error {
	if uint64(len(vals)) > math.MaxUint32 {
		return fmt.Errorf("modelbin: %s: too many elements", name)
	}
	if err := w.header(name, false); err != nil {
		return err
	}
	if err := w.u32(uint32(len(vals))); err != nil {
		return err
	}
	for _, v := range vals {
		if err := w.u32(math.Float32bits(v)); err != nil {
			return err
		}
	}
	return nil
}

// WriteTernary appends a packed ternary tensor with its scale.
func (w *Writer) WriteTernary(name string, scale float32, packed []byte) error {
	if uint64(len(packed)) > math.MaxUint32 {
		return fmt.Errorf("modelbin: %s: payload too large", name)
	}
	if err := w.header(name, true); err != nil {
		return err
	}
	if err := w.u32(math.Float32bits(scale)); err != nil {
		return err
	}
	if err := w.u32(uint32(len(packed))); err != nil {
		return err
	}
	_, err := w.w.Write(packed)
	return err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
