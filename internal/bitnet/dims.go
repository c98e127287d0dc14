package bitnet

import (
	"fmt"

	"github.com/samcharles93/bitdecode/internal/tensor"
)

// Dims holds the architecture dimensions of a model. The model.bin container
// stores no shapes, so these must match what was exported.
type Dims struct {
	Vocab        int     `yaml:"vocab_size"`
	Hidden       int     `yaml:"hidden_size"`
	Intermediate int     `yaml:"intermediate_size"`
	Heads        int     `yaml:"num_heads"`
	HeadDim      int     `yaml:"head_dim"`
	Layers       int     `yaml:"num_layers"`
	RMSEps       float32 `yaml:"rms_norm_eps"`
	RopeTheta    float64 `yaml:"rope_theta"`
}

// DefaultDims returns the dimensions of bitnet_b1_58-large.
func DefaultDims() Dims {
	return Dims{
		Vocab:        32002,
		Hidden:       1536,
		Intermediate: 4096,
		Heads:        16,
		HeadDim:      96,
		Layers:       24,
		RMSEps:       tensor.DefaultRMSEps,
		RopeTheta:    10000,
	}
}

func (d Dims) Validate() error {
	switch {
	case d.Vocab <= 0, d.Hidden <= 0, d.Intermediate <= 0, d.Heads <= 0, d.HeadDim <= 0, d.Layers <= 0:
		return fmt.Errorf("bitnet: dimensions must be positive: %+v", d)
	case d.Heads*d.HeadDim != d.Hidden:
		return fmt.Errorf("bitnet: num_heads*head_dim = %d, hidden_size = %d", d.Heads*d.HeadDim, d.Hidden)
	case d.HeadDim%2 != 0:
		return fmt.Errorf("bitnet: head_dim %d must be even", d.HeadDim)
	case !(d.RMSEps > 0):
		return fmt.Errorf("bitnet: rms_norm_eps must be > 0")
	case !(d.RopeTheta > 0):
		return fmt.Errorf("bitnet: rope_theta must be > 0")
	}
	return nil
}

// Tensor names inside model.bin.
const (
	NameEmbedTokens = "embed_tokens"
	NameFinalNorm   = "norm"
	NameLMHead      = "lm_head"
)

func layerName(i int, suffix string) string {
	return fmt.Sprintf("layers.%d.%s", i, suffix)
}
