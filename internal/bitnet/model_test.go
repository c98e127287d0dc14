package bitnet

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/bitdecode/internal/modelbin"
)

func tinyDims() Dims {
	return Dims{
		Vocab:        16,
		Hidden:       8,
		Intermediate: 12,
		Heads:        2,
		HeadDim:      4,
		Layers:       2,
		RMSEps:       1e-6,
		RopeTheta:    10000,
	}
}

func loadTiny(t *testing.T, seed int64) (*Model, *modelbin.File) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteRandom(&buf, tinyDims(), seed))
	f, err := modelbin.FromBytes(buf.Bytes())
	require.NoError(t, err)
	m, err := Load(f, tinyDims())
	require.NoError(t, err)
	return m, f
}

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	w := []int8{1, -1, 0, 0, 1, 1, -1}
	packed, err := PackTernary(w)
	require.NoError(t, err)
	require.Len(t, packed, 2)
	require.Equal(t, byte(0b00_00_10_01), packed[0])

	got, err := UnpackTernary(packed, len(w))
	require.NoError(t, err)
	require.Equal(t, w, got)
}

func TestUnpackRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := UnpackTernary([]byte{0b11}, 1)
	require.ErrorIs(t, err, ErrBadPacking)
	_, err = UnpackTernary([]byte{0, 0}, 4)
	require.ErrorIs(t, err, ErrBadPacking)
	_, err = PackTernary([]int8{2})
	require.ErrorIs(t, err, ErrBadPacking)
}

func TestQuantizeWeights(t *testing.T) {
	t.Parallel()

	q, s := QuantizeWeights([]float32{0.5, -0.5, 0.01, -2})
	// mean |w| = 0.7525
	require.InDelta(t, 1/0.7525, s, 1e-4)
	require.Equal(t, []int8{1, -1, 0, -1}, q)
}

func TestBitLinearApproximatesFloat(t *testing.T) {
	t.Parallel()

	w := []int8{
		1, 0, -1,
		-1, 1, 1,
	}
	packed, err := PackTernary(w)
	require.NoError(t, err)
	lin, err := NewBitLinear(2, 3, 1, packed)
	require.NoError(t, err)

	x := []float32{0.5, -1, 0.25}
	dst := make([]float32, 2)
	lin.Forward(dst, x, make([]int8, 3))
	require.InDelta(t, 0.25, dst[0], 0.02)
	require.InDelta(t, -1.25, dst[1], 0.02)
}

func TestNewBitLinearRejectsBadScale(t *testing.T) {
	t.Parallel()

	_, err := NewBitLinear(1, 4, 0, []byte{0})
	require.Error(t, err)
}

func TestForwardShape(t *testing.T) {
	t.Parallel()

	m, f := loadTiny(t, 1)
	emb, err := LoadEmbedding(f, m.Dims())
	require.NoError(t, err)

	ids := []int{1, 5, 9, 3}
	logits, err := m.Forward(context.Background(), emb, ids, len(ids))
	require.NoError(t, err)
	require.Len(t, logits, len(ids))
	for _, row := range logits {
		require.Len(t, row, m.Dims().Vocab)
		for _, v := range row {
			require.False(t, math.IsNaN(float64(v)))
			require.False(t, math.IsInf(float64(v), 0))
		}
	}
}

func TestForwardIsCausalAndDeterministic(t *testing.T) {
	t.Parallel()

	m, f := loadTiny(t, 2)
	emb, err := LoadEmbedding(f, m.Dims())
	require.NoError(t, err)

	a, err := m.Forward(context.Background(), emb, []int{1, 2, 3}, 3)
	require.NoError(t, err)
	b, err := m.Forward(context.Background(), emb, []int{1, 2, 7}, 3)
	require.NoError(t, err)
	c, err := m.Forward(context.Background(), emb, []int{1, 2, 3}, 3)
	require.NoError(t, err)

	require.Equal(t, a[0], b[0])
	require.Equal(t, a[1], b[1])
	require.NotEqual(t, a[2], b[2])
	require.Equal(t, a, c)
}

func TestForwardErrors(t *testing.T) {
	t.Parallel()

	m, f := loadTiny(t, 3)
	emb, err := LoadEmbedding(f, m.Dims())
	require.NoError(t, err)

	_, err = m.Forward(context.Background(), emb, []int{1, 2}, 3)
	require.ErrorIs(t, err, ErrBadSequence)
	_, err = m.Forward(context.Background(), emb, nil, 0)
	require.ErrorIs(t, err, ErrBadSequence)
	_, err = m.Forward(context.Background(), emb, []int{1, 99}, 2)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Forward(ctx, emb, []int{1}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadMissingTensor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := modelbin.NewWriter(&buf)
	require.NoError(t, w.WriteFloat(NameFinalNorm, make([]float32, tinyDims().Hidden)))
	require.NoError(t, w.Flush())
	f, err := modelbin.FromBytes(buf.Bytes())
	require.NoError(t, err)

	_, err = Load(f, tinyDims())
	require.ErrorIs(t, err, modelbin.ErrTensorNotFound)
}

func TestDimsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultDims().Validate())
	d := tinyDims()
	d.HeadDim = 3
	require.Error(t, d.Validate())
	d = tinyDims()
	d.Layers = 0
	require.Error(t, d.Validate())
}

func TestWriteRandomIsDeterministic(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	require.NoError(t, WriteRandom(&a, tinyDims(), 9))
	require.NoError(t, WriteRandom(&b, tinyDims(), 9))
	require.Equal(t, a.Bytes(), b.Bytes())
}
