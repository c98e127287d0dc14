package modelbin

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// File is an opened model.bin. Tensor payloads returned by Ternary alias the
// underlying mapping and stay valid until Close.
type File struct {
	data    []byte
	index   *index
	mmapped bool
}

// Open maps a model file read-only and indexes its records.
// If mmap is unavailable, it falls back to reading the whole file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 <= 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s too large to map", ErrCorrupt, path)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		mf, parseErr := newFile(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, fmt.Errorf("%s: %w", path, parseErr)
		}
		return mf, nil
	}

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	mf, err := newFile(data, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mf, nil
}

// FromBytes indexes an in-memory model image.
func FromBytes(data []byte) (*File, error) {
	return newFile(data, false)
}

func newFile(data []byte, mmapped bool) (*File, error) {
	idx, err := parseIndex(data)
	if err != nil {
		return nil, err
	}
	return &File{data: data, index: idx, mmapped: mmapped}, nil
}

// Close releases the mapping. Slices previously returned by Ternary must not
// be used afterwards.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.index = nil
	return err
}

// Size returns the size of the file image in bytes.
func (f *File) Size() int { return len(f.data) }

// Names returns tensor names in file order.
func (f *File) Names() []string {
	if f == nil || f.index == nil {
		return nil
	}
	return append([]string(nil), f.index.order...)
}

func (f *File) Tensor(name string) (TensorInfo, error) {
	if f == nil || f.index == nil {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	info, ok := f.index.byName[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// Float decodes a float tensor into a new slice.
func (f *File) Float(name string) ([]float32, error) {
	info, err := f.Tensor(name)
	if err != nil {
		return nil, err
	}
	if info.Kind != KindFloat {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, name, info.Kind)
	}
	raw := f.data[info.off : info.off+info.Bytes()]
	out := make([]float32, info.Count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// Ternary returns the scale and packed payload of a ternary tensor.
func (f *File) Ternary(name string) (float32, []byte, error) {
	info, err := f.Tensor(name)
	if err != nil {
		return 0, nil, err
	}
	if info.Kind != KindTernary {
		return 0, nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, name, info.Kind)
	}
	return info.Scale, f.data[info.off : info.off+info.Count], nil
}
