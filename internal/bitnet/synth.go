package bitnet

import (
	"io"
	"math/rand"

	"github.com/samcharles93/bitdecode/internal/modelbin"
)

// WriteRandom writes a randomly initialised model with the given dimensions.
// The same seed always yields the same bytes.
func WriteRandom(out io.Writer, dims Dims, seed int64) error {
	if err := dims.Validate(); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))
	w := modelbin.NewWriter(out)

	gauss := func(n int, std float64) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = float32(rng.NormFloat64() * std)
		}
		return v
	}
	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	ternary := func(name string, out, in int) error {
		q, scale := QuantizeWeights(gauss(out*in, 0.02))
		packed, err := PackTernary(q)
		if err != nil {
			return err
		}
		return w.WriteTernary(name, scale, packed)
	}

	if err := w.WriteFloat(NameEmbedTokens, gauss(dims.Vocab*dims.Hidden, 1)); err != nil {
		return err
	}
	for i := range dims.Layers {
		if err := w.WriteFloat(layerName(i, "input_layernorm"), ones(dims.Hidden)); err != nil {
			return err
		}
		for _, p := range []struct {
			name    string
			out, in int
		}{
			{"self_attn.q_proj", dims.Hidden, dims.Hidden},
			{"self_attn.k_proj", dims.Hidden, dims.Hidden},
			{"self_attn.v_proj", dims.Hidden, dims.Hidden},
			{"self_attn.o_proj", dims.Hidden, dims.Hidden},
		} {
			if err := ternary(layerName(i, p.name), p.out, p.in); err != nil {
				return err
			}
		}
		if err := w.WriteFloat(layerName(i, "post_attention_layernorm"), ones(dims.Hidden)); err != nil {
			return err
		}
		for _, p := range []struct {
			name    string
			out, in int
		}{
			{"mlp.gate_proj", dims.Intermediate, dims.Hidden},
			{"mlp.up_proj", dims.Intermediate, dims.Hidden},
			{"mlp.down_proj", dims.Hidden, dims.Intermediate},
		} {
			if err := ternary(layerName(i, p.name), p.out, p.in); err != nil {
				return err
			}
		}
	}
	if err := w.WriteFloat(NameFinalNorm, ones(dims.Hidden)); err != nil {
		return err
	}
	return w.Flush()
}
