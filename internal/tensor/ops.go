package tensor

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRMSEps is the epsilon added under the square root by RMSNorm.
const DefaultRMSEps float32 = 1e-6

// ErrLengthMismatch is returned when two vectors that must share a length do not.
var ErrLengthMismatch = errors.New("tensor: length mismatch")

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// RMSNorm performs Root Mean Square Normalization and returns a new vector:
//
//	variance = sqrt(sum(h_i^2)/n + eps)
//	y_i      = (h_i / variance) * w_i
//
// h and w must have the same length.
func RMSNorm(h, w []float32, eps float32) ([]float32, error) {
	out := make([]float32, len(h))
	if err := RMSNormInto(out, h, w, eps); err != nil {
		return nil, err
	}
	return out, nil
}

// RMSNormInto is RMSNorm writing into dst, which may alias h.
func RMSNormInto(dst, h, w []float32, eps float32) error {
	if len(w) != len(h) {
		return fmt.Errorf("%w: hidden %d, weight %d", ErrLengthMismatch, len(h), len(w))
	}
	if len(dst) < len(h) {
		return fmt.Errorf("%w: dst %d, hidden %d", ErrLengthMismatch, len(dst), len(h))
	}
	if len(h) == 0 {
		return nil
	}
	var sum float32
	for _, v := range h {
		sum += v * v
	}
	variance := float32(math.Sqrt(float64(sum/float32(len(h)) + eps)))
	for i := range h {
		dst[i] = (h[i] / variance) * w[i]
	}
	return nil
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Silu computes the Sigmoid Linear Unit (SiLU) activation.
func Silu(x float32) float32 {
	return x * Sigmoid(x)
}

// SiluMul computes dst[i] = Silu(gate[i]) * up[i].
func SiluMul(dst, gate, up []float32) {
	for i := range dst {
		dst[i] = Silu(gate[i]) * up[i]
	}
}

// RoPEFreqs returns the inverse frequencies for rotary embeddings of the given head size.
func RoPEFreqs(headDim int, theta float64) []float64 {
	inv := make([]float64, headDim/2)
	for i := range inv {
		inv[i] = 1.0 / math.Pow(theta, float64(2*i)/float64(headDim))
	}
	return inv
}

// ApplyRoPE applies Rotary Positional Embeddings to x using the half-split
// layout: element i pairs with element i+headDim/2 inside each head.
// headDim must be even.
func ApplyRoPE(x []float32, nHead, headDim, pos int, invFreq []float64) {
	if headDim%2 != 0 {
		panic("headDim must be even for RoPE")
	}
	half := headDim / 2
	for h := 0; h < nHead; h++ {
		base := h * headDim
		for i := 0; i < half; i++ {
			angle := float64(pos) * invFreq[i]
			c := float32(math.Cos(angle))
			s := float32(math.Sin(angle))
			i0 := base + i
			i1 := i0 + half
			x0 := x[i0]
			x1 := x[i1]
			x[i0] = x0*c - x1*s
			x[i1] = x0*s + x1*c
		}
	}
}
