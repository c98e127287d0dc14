package inference

import (
	"fmt"
	"strings"

	"github.com/samcharles93/bitdecode/internal/bitnet"
	"github.com/samcharles93/bitdecode/internal/modelbin"
	"github.com/samcharles93/bitdecode/internal/tensor"
)

type Loader struct {
	Dims bitnet.Dims
}

type LoadResult struct {
	File      *modelbin.File
	Model     *bitnet.Model
	Embedding *tensor.Embedding
}

// Close releases the model file.
func (r *LoadResult) Close() error {
	if r == nil || r.File == nil {
		return nil
	}
	err := r.File.Close()
	r.File = nil
	return err
}

// Load opens a model.bin, decodes the forward-pass weights and builds the
// embedding table.
func (l Loader) Load(modelPath string) (*LoadResult, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, fmt.Errorf("model path is required")
	}

	f, err := modelbin.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", modelPath, err)
	}
	cleanup := func(err error) (*LoadResult, error) {
		_ = f.Close()
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}

	m, err := bitnet.Load(f, l.Dims)
	if err != nil {
		return cleanup(err)
	}
	emb, err := bitnet.LoadEmbedding(f, l.Dims)
	if err != nil {
		return cleanup(err)
	}
	return &LoadResult{File: f, Model: m, Embedding: emb}, nil
}
