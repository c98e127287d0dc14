package tensor

import (
	"errors"
	"fmt"
)

// ErrTokenOutOfRange is returned by Lookup for ids outside the vocabulary.
var ErrTokenOutOfRange = errors.New("tensor: token id out of range")

// Embedding is a token embedding table: one row of Hidden values per vocabulary id.
// It is built once per generation run and only read afterwards.
type Embedding struct {
	table Mat
}

// NewEmbedding builds an embedding table from a flat [vocab x hidden] weight.
func NewEmbedding(weight []float32, vocab, hidden int) (*Embedding, error) {
	m, err := NewMatFromData(vocab, hidden, weight)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return &Embedding{table: m}, nil
}

// Vocab returns the number of rows in the table.
func (e *Embedding) Vocab() int { return e.table.R }

// Hidden returns the embedding width.
func (e *Embedding) Hidden() int { return e.table.C }

// Matrix exposes the table, e.g. for a tied output projection.
func (e *Embedding) Matrix() *Mat { return &e.table }

// Lookup copies the embedding of id into dst.
func (e *Embedding) Lookup(dst []float32, id int) error {
	if id < 0 || id >= e.table.R {
		return fmt.Errorf("%w: %d (vocab %d)", ErrTokenOutOfRange, id, e.table.R)
	}
	copy(dst, e.table.Row(id))
	return nil
}
