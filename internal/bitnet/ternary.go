package bitnet

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/bitdecode/internal/tensor"
)

// Packed ternary layout: four weights per byte, two bits each, lowest bits
// first. Codes: 0 -> 0, 1 -> +1, 2 -> -1. Code 3 is invalid.
const weightsPerByte = 4

var ErrBadPacking = errors.New("bitnet: invalid ternary packing")

// PackedLen returns the number of bytes needed for n ternary weights.
func PackedLen(n int) int {
	return (n + weightsPerByte - 1) / weightsPerByte
}

// PackTernary packs values in {-1, 0, 1}.
func PackTernary(w []int8) ([]byte, error) {
	out := make([]byte, PackedLen(len(w)))
	for i, v := range w {
		var code byte
		switch v {
		case 0:
			code = 0
		case 1:
			code = 1
		case -1:
			code = 2
		default:
			return nil, fmt.Errorf("%w: value %d at %d", ErrBadPacking, v, i)
		}
		out[i/weightsPerByte] |= code << (2 * (i % weightsPerByte))
	}
	return out, nil
}

// UnpackTernary expands n weights from packed.
func UnpackTernary(packed []byte, n int) ([]int8, error) {
	if len(packed) != PackedLen(n) {
		return nil, fmt.Errorf("%w: %d bytes for %d weights, want %d", ErrBadPacking, len(packed), n, PackedLen(n))
	}
	out := make([]int8, n)
	for i := range out {
		code := (packed[i/weightsPerByte] >> (2 * (i % weightsPerByte))) & 0x3
		switch code {
		case 0:
		case 1:
			out[i] = 1
		case 2:
			out[i] = -1
		default:
			return nil, fmt.Errorf("%w: code 3 at weight %d", ErrBadPacking, i)
		}
	}
	return out, nil
}

// QuantizeWeights maps real weights to {-1, 0, 1} using the absmean scale
// s = 1/mean(|w|). The real weight is approximately q/s.
func QuantizeWeights(w []float32) ([]int8, float32) {
	var sum float64
	for _, v := range w {
		sum += math.Abs(float64(v))
	}
	mean := 1e-5
	if len(w) > 0 {
		mean = max(sum/float64(len(w)), 1e-5)
	}
	s := 1 / mean
	q := make([]int8, len(w))
	for i, v := range w {
		r := math.Round(float64(v) * s)
		q[i] = int8(min(max(r, -1), 1))
	}
	return q, float32(s)
}

// QuantizeActivations quantizes x to int8 with a per-vector absmax scale
// s = 127/max(|x|). The real activation is approximately q/s.
func QuantizeActivations(dst []int8, x []float32) float32 {
	var amax float32
	for _, v := range x {
		amax = max(amax, float32(math.Abs(float64(v))))
	}
	s := 127 / max(amax, 1e-5)
	for i, v := range x {
		r := math.Round(float64(v * s))
		dst[i] = int8(min(max(r, -128), 127))
	}
	return s
}

// BitLinear is a ternary projection from In to Out features.
type BitLinear struct {
	Out, In int
	Scale   float32
	W       []int8 // row-major [Out][In]
}

// NewBitLinear unpacks a stored projection.
func NewBitLinear(out, in int, scale float32, packed []byte) (*BitLinear, error) {
	if !(scale > 0) {
		return nil, fmt.Errorf("bitnet: non-positive weight scale %v", scale)
	}
	w, err := UnpackTernary(packed, out*in)
	if err != nil {
		return nil, err
	}
	return &BitLinear{Out: out, In: in, Scale: scale, W: w}, nil
}

// Forward computes dst = W x with int8 activations and no multiplies in the
// inner loop. q is scratch of length In.
func (l *BitLinear) Forward(dst, x []float32, q []int8) {
	actScale := QuantizeActivations(q[:l.In], x[:l.In])
	inv := 1 / (actScale * l.Scale)
	tensor.ParallelRows(l.Out, func(rs, re int) {
		for r := rs; r < re; r++ {
			row := l.W[r*l.In : (r+1)*l.In]
			var acc int32
			for c, w := range row {
				switch w {
				case 1:
					acc += int32(q[c])
				case -1:
					acc -= int32(q[c])
				}
			}
			dst[r] = float32(acc) * inv
		}
	})
}
