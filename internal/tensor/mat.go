package tensor

import (
	"errors"
	"fmt"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively. Stride is the
// number of elements between the starts of two consecutive rows.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

var (
	errNegativeDim      = errors.New("tensor: negative dimension for matrix")
	errDataSizeMismatch = errors.New("tensor: data length mismatch")
)

// NewMatFromData wraps existing row-major data as an r x c matrix.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegativeDim
	}
	if r*c != len(data) {
		return Mat{}, fmt.Errorf("%w: %dx%d needs %d, got %d", errDataSizeMismatch, r, c, r*c, len(data))
	}
	return Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// Row returns a view of the i‑th row. Modifications write through.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}
