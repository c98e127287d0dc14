package tensor

import (
	"math/rand"
	"testing"
)

// randMat returns an r x c matrix of reproducible values in (-0.01, 0.01).
func randMat(t *testing.T, r, c int, seed int64) Mat {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, r*c)
	for i := range data {
		data[i] = (rng.Float32() - 0.5) * 0.02
	}
	m, err := NewMatFromData(r, c, data)
	if err != nil {
		t.Fatalf("NewMatFromData: %v", err)
	}
	return m
}
