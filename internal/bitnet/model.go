// Package bitnet is a reference forward pass for ternary-weight decoder
// models stored in model.bin. It recomputes the whole sequence on every call.
package bitnet

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/bitdecode/internal/modelbin"
	"github.com/samcharles93/bitdecode/internal/tensor"
)

var ErrBadSequence = errors.New("bitnet: invalid sequence")

type layer struct {
	inNorm   []float32
	postNorm []float32

	q, k, v, o     *BitLinear
	gate, up, down *BitLinear
}

// Model holds decoded weights. It is read-only after Load and may serve
// sequential Forward calls; it holds no per-sequence state.
type Model struct {
	dims    Dims
	layers  []layer
	norm    []float32
	lmHead  *tensor.Mat // nil: tied to the embedding table
	invFreq []float64
}

// Load decodes every tensor the forward pass needs.
func Load(f *modelbin.File, dims Dims) (*Model, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		dims:    dims,
		layers:  make([]layer, dims.Layers),
		invFreq: tensor.RoPEFreqs(dims.HeadDim, dims.RopeTheta),
	}

	var err error
	if m.norm, err = floatVec(f, NameFinalNorm, dims.Hidden); err != nil {
		return nil, err
	}
	if _, terr := f.Tensor(NameLMHead); terr == nil {
		head, err := floatVec(f, NameLMHead, dims.Vocab*dims.Hidden)
		if err != nil {
			return nil, err
		}
		mat, err := tensor.NewMatFromData(dims.Vocab, dims.Hidden, head)
		if err != nil {
			return nil, err
		}
		m.lmHead = &mat
	}

	for i := range m.layers {
		l := &m.layers[i]
		if l.inNorm, err = floatVec(f, layerName(i, "input_layernorm"), dims.Hidden); err != nil {
			return nil, err
		}
		if l.postNorm, err = floatVec(f, layerName(i, "post_attention_layernorm"), dims.Hidden); err != nil {
			return nil, err
		}
		projs := []struct {
			dst     **BitLinear
			name    string
			out, in int
		}{
			{&l.q, "self_attn.q_proj", dims.Hidden, dims.Hidden},
			{&l.k, "self_attn.k_proj", dims.Hidden, dims.Hidden},
			{&l.v, "self_attn.v_proj", dims.Hidden, dims.Hidden},
			{&l.o, "self_attn.o_proj", dims.Hidden, dims.Hidden},
			{&l.gate, "mlp.gate_proj", dims.Intermediate, dims.Hidden},
			{&l.up, "mlp.up_proj", dims.Intermediate, dims.Hidden},
			{&l.down, "mlp.down_proj", dims.Hidden, dims.Intermediate},
		}
		for _, p := range projs {
			name := layerName(i, p.name)
			scale, packed, err := f.Ternary(name)
			if err != nil {
				return nil, err
			}
			lin, err := NewBitLinear(p.out, p.in, scale, packed)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			*p.dst = lin
		}
	}
	return m, nil
}

// LoadEmbedding builds the token embedding table from embed_tokens.
func LoadEmbedding(f *modelbin.File, dims Dims) (*tensor.Embedding, error) {
	w, err := floatVec(f, NameEmbedTokens, dims.Vocab*dims.Hidden)
	if err != nil {
		return nil, err
	}
	return tensor.NewEmbedding(w, dims.Vocab, dims.Hidden)
}

func floatVec(f *modelbin.File, name string, want int) ([]float32, error) {
	v, err := f.Float(name)
	if err != nil {
		return nil, err
	}
	if len(v) != want {
		return nil, fmt.Errorf("%s: %d elements, want %d", name, len(v), want)
	}
	return v, nil
}

func (m *Model) Dims() Dims { return m.dims }

// Forward returns one logits vector per position of ids[:seqLen].
func (m *Model) Forward(ctx context.Context, emb *tensor.Embedding, ids []int, seqLen int) ([][]float32, error) {
	d := m.dims
	if seqLen < 1 || seqLen > len(ids) {
		return nil, fmt.Errorf("%w: seq_len %d with %d ids", ErrBadSequence, seqLen, len(ids))
	}
	if emb.Hidden() != d.Hidden || emb.Vocab() != d.Vocab {
		return nil, fmt.Errorf("bitnet: embedding is %dx%d, model wants %dx%d", emb.Vocab(), emb.Hidden(), d.Vocab, d.Hidden)
	}

	x := make([][]float32, seqLen)
	for p := range x {
		x[p] = make([]float32, d.Hidden)
		if err := emb.Lookup(x[p], ids[p]); err != nil {
			return nil, fmt.Errorf("position %d: %w", p, err)
		}
	}

	qs := newRows(seqLen, d.Hidden)
	ks := newRows(seqLen, d.Hidden)
	vs := newRows(seqLen, d.Hidden)
	xn := make([]float32, d.Hidden)
	attn := make([]float32, d.Hidden)
	proj := make([]float32, d.Hidden)
	gate := make([]float32, d.Intermediate)
	up := make([]float32, d.Intermediate)
	q8 := make([]int8, max(d.Hidden, d.Intermediate))
	scores := make([]float32, seqLen)
	attnScale := float32(1 / math.Sqrt(float64(d.HeadDim)))

	for li := range m.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := &m.layers[li]

		for p := range seqLen {
			if err := tensor.RMSNormInto(xn, x[p], l.inNorm, d.RMSEps); err != nil {
				return nil, err
			}
			l.q.Forward(qs[p], xn, q8)
			l.k.Forward(ks[p], xn, q8)
			l.v.Forward(vs[p], xn, q8)
			tensor.ApplyRoPE(qs[p], d.Heads, d.HeadDim, p, m.invFreq)
			tensor.ApplyRoPE(ks[p], d.Heads, d.HeadDim, p, m.invFreq)
		}

		for p := range seqLen {
			for h := range d.Heads {
				lo, hi := h*d.HeadDim, (h+1)*d.HeadDim
				s := scores[:p+1]
				for j := range s {
					s[j] = tensor.Dot(qs[p][lo:hi], ks[j][lo:hi]) * attnScale
				}
				tensor.Softmax(s)
				out := attn[lo:hi]
				clear(out)
				for j, w := range s {
					vj := vs[j][lo:hi]
					for c := range out {
						out[c] += w * vj[c]
					}
				}
			}
			l.o.Forward(proj, attn, q8)
			tensor.Add(x[p], proj)
		}

		for p := range seqLen {
			if err := tensor.RMSNormInto(xn, x[p], l.postNorm, d.RMSEps); err != nil {
				return nil, err
			}
			l.gate.Forward(gate, xn, q8)
			l.up.Forward(up, xn, q8)
			tensor.SiluMul(gate, gate, up)
			l.down.Forward(proj, gate, q8)
			tensor.Add(x[p], proj)
		}
	}

	head := m.lmHead
	if head == nil {
		head = emb.Matrix()
	}
	logits := make([][]float32, seqLen)
	for p := range seqLen {
		if err := tensor.RMSNormInto(xn, x[p], m.norm, d.RMSEps); err != nil {
			return nil, err
		}
		logits[p] = make([]float32, d.Vocab)
		tensor.MatVec(logits[p], head, xn)
	}
	return logits, nil
}

func newRows(n, width int) [][]float32 {
	buf := make([]float32, n*width)
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = buf[i*width : (i+1)*width]
	}
	return rows
}
