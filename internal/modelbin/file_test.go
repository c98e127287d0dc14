package modelbin

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestModel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFloat("embed_tokens", []float32{1.5, -2, 3.25, 4.5}))
	require.NoError(t, w.WriteTernary("layers.0.self_attn.q_proj", 0.75, []byte{0x12, 0x21, 0x00}))
	require.NoError(t, w.WriteFloat("norm", []float32{1, 1}))
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func TestOpenAndReadTensors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, writeTestModel(t), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.Equal(t, []string{"embed_tokens", "layers.0.self_attn.q_proj", "norm"}, f.Names())

	vals, err := f.Float("embed_tokens")
	require.NoError(t, err)
	require.Equal(t, []float32{1.5, -2, 3.25, 4.5}, vals)

	scale, packed, err := f.Ternary("layers.0.self_attn.q_proj")
	require.NoError(t, err)
	require.Equal(t, float32(0.75), scale)
	require.Equal(t, []byte{0x12, 0x21, 0x00}, packed)

	info, err := f.Tensor("norm")
	require.NoError(t, err)
	require.Equal(t, KindFloat, info.Kind)
	require.Equal(t, 2, info.Count)
	require.Equal(t, 8, info.Bytes())
}

func TestTensorMissing(t *testing.T) {
	t.Parallel()

	f, err := FromBytes(writeTestModel(t))
	require.NoError(t, err)

	_, err = f.Tensor("missing")
	require.ErrorIs(t, err, ErrTensorNotFound)
	_, err = f.Float("missing")
	require.ErrorIs(t, err, ErrTensorNotFound)
}

func TestWrongKind(t *testing.T) {
	t.Parallel()

	f, err := FromBytes(writeTestModel(t))
	require.NoError(t, err)

	_, err = f.Float("layers.0.self_attn.q_proj")
	require.ErrorIs(t, err, ErrWrongKind)
	_, _, err = f.Ternary("norm")
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestCorruptFiles(t *testing.T) {
	t.Parallel()

	good := writeTestModel(t)
	tests := map[string][]byte{
		"truncated payload": good[:len(good)-3],
		"truncated header":  good[:2],
		"zero name length":  {0, 0, 0, 0},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromBytes(data)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestOpenEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestWriterRejectsMismatchedKind(t *testing.T) {
	t.Parallel()

	w := NewWriter(&bytes.Buffer{})
	require.ErrorIs(t, w.WriteFloat("layers.0.mlp.up_proj", []float32{1}), ErrWrongKind)
	require.ErrorIs(t, w.WriteTernary("norm", 1, []byte{0}), ErrWrongKind)
	require.NoError(t, w.WriteFloat("norm", []float32{1}))
	require.Error(t, w.WriteFloat("norm", []float32{1}))
}

func TestIsQuantizedName(t *testing.T) {
	t.Parallel()

	require.True(t, IsQuantizedName("layers.3.mlp.down_proj"))
	require.True(t, IsQuantizedName("layers.0.self_attn.o_proj"))
	require.False(t, IsQuantizedName("layers.0.input_layernorm"))
	require.False(t, IsQuantizedName("embed_tokens"))
}
