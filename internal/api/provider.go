package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/samcharles93/bitdecode/internal/inference"
	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/tensor"
)

// ModelProvider hands out exclusive access to a loaded model.
type ModelProvider interface {
	WithModel(ctx context.Context, fn func(fwd inference.Forwarder, emb *tensor.Embedding) error) error
	// Info reports the model name and vocabulary size, zero until loaded.
	Info() (name string, vocab int)
}

type ProviderConfig struct {
	ModelPath string
	Loader    inference.Loader
}

// CachedModelProvider loads the model on first use and keeps it for the
// lifetime of the server. Calls to WithModel are serialized.
type CachedModelProvider struct {
	cfg    ProviderConfig
	mu     sync.Mutex
	loaded *inference.LoadResult
	vocab  int
}

func NewCachedModelProvider(cfg ProviderConfig) *CachedModelProvider {
	return &CachedModelProvider{cfg: cfg}
}

// Preload loads the model eagerly so the first request does not pay for it.
func (p *CachedModelProvider) Preload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked(ctx)
}

func (p *CachedModelProvider) WithModel(ctx context.Context, fn func(fwd inference.Forwarder, emb *tensor.Embedding) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.loadLocked(ctx); err != nil {
		return err
	}
	return fn(p.loaded.Model, p.loaded.Embedding)
}

func (p *CachedModelProvider) loadLocked(ctx context.Context) error {
	if p.loaded != nil {
		return nil
	}
	if p.cfg.ModelPath == "" {
		return errors.New("no model path configured")
	}
	res, err := p.cfg.Loader.Load(p.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	p.loaded = res
	p.vocab = res.Embedding.Vocab()
	logger.FromContext(ctx).Info("model loaded", "path", p.cfg.ModelPath, "vocab", p.vocab)
	return nil
}

func (p *CachedModelProvider) Info() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filepath.Base(p.cfg.ModelPath), p.vocab
}

func (p *CachedModelProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded == nil {
		return nil
	}
	err := p.loaded.Close()
	p.loaded = nil
	p.vocab = 0
	return err
}
