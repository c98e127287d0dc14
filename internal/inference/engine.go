package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/logits"
	"github.com/samcharles93/bitdecode/internal/tensor"
	"github.com/samcharles93/bitdecode/internal/tokenfile"
)

var (
	ErrInvalidPrompt = errors.New("inference: invalid prompt")
	ErrInvalidLength = errors.New("inference: invalid max length")
)

// Forwarder computes logits for every position of ids[:seqLen]. The
// embedding table is built once per run and passed to every call; model
// weights and architecture dimensions belong to the implementation.
type Forwarder interface {
	Forward(ctx context.Context, emb *tensor.Embedding, ids []int, seqLen int) ([][]float32, error)
}

// Options controls a single Generate call.
type Options struct {
	// MaxLength is the exact number of tokens to generate.
	MaxLength int
	// StopTokens ends generation early once one of them is sampled. The stop
	// token is kept in the sequence. Empty means always run MaxLength steps.
	StopTokens []int
	// OnStep is called after every appended token.
	OnStep func(StepEvent)
}

// StepEvent describes one finished decode step.
type StepEvent struct {
	Step    int
	Token   int
	SeqLen  int
	Latency time.Duration
}

type Stats struct {
	Steps         int
	Latency       time.Duration
	StepLatencies []time.Duration
	// SecondsPerToken is Latency divided by the final sequence length,
	// prompt included.
	SecondsPerToken float64
}

type Result struct {
	Tokens    []int
	PromptLen int
	Stats     Stats
}

// Generated returns the ids appended after the prompt.
func (r *Result) Generated() []int {
	return r.Tokens[r.PromptLen:]
}

// Generate runs the decode loop: each step recomputes the forward pass over
// the whole sequence, samples from the last position and appends the result.
//
// On failure the returned Result holds the sequence accumulated so far
// together with the error; generation does not continue.
func Generate(ctx context.Context, fwd Forwarder, emb *tensor.Embedding, sampler *logits.Sampler, prompt []int, opts Options) (*Result, error) {
	if len(prompt) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPrompt)
	}
	if prompt[0] != tokenfile.Sentinel {
		return nil, fmt.Errorf("%w: first id %d, want %d", ErrInvalidPrompt, prompt[0], tokenfile.Sentinel)
	}
	if opts.MaxLength < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, opts.MaxLength)
	}
	if fwd == nil || emb == nil || sampler == nil {
		return nil, fmt.Errorf("inference: forwarder, embedding and sampler are required")
	}
	if err := sampler.Config().Validate(emb.Vocab()); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	toks := make([]int, len(prompt), len(prompt)+opts.MaxLength)
	copy(toks, prompt)
	res := &Result{
		PromptLen: len(prompt),
		Stats:     Stats{StepLatencies: make([]time.Duration, 0, opts.MaxLength)},
	}
	seqLen := len(toks)

	finish := func(err error) (*Result, error) {
		res.Tokens = toks
		if len(toks) > 0 {
			res.Stats.SecondsPerToken = res.Stats.Latency.Seconds() / float64(len(toks))
		}
		return res, err
	}

	for i := 0; i < opts.MaxLength; i++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		start := time.Now()
		rows, err := safeForward(ctx, fwd, emb, toks, seqLen)
		if err != nil {
			return finish(fmt.Errorf("forward error during generation step %d: %w", i, err))
		}
		if len(rows) < seqLen {
			return finish(fmt.Errorf("forward error during generation step %d: %d logits rows for %d positions", i, len(rows), seqLen))
		}
		next, err := safeSample(sampler, rows[seqLen-1])
		if err != nil {
			return finish(fmt.Errorf("sampling error during generation step %d: %w", i, err))
		}
		elapsed := time.Since(start)

		toks = append(toks, next)
		seqLen++
		res.Stats.Steps++
		res.Stats.Latency += elapsed
		res.Stats.StepLatencies = append(res.Stats.StepLatencies, elapsed)

		log.Debug("decode step", "step", i, "token", next, "seq_len", seqLen, "latency", elapsed)
		if opts.OnStep != nil {
			opts.OnStep(StepEvent{Step: i, Token: next, SeqLen: seqLen, Latency: elapsed})
		}
		if slices.Contains(opts.StopTokens, next) {
			log.Debug("stop token sampled", "token", next, "step", i)
			break
		}
	}

	return finish(nil)
}

func safeForward(ctx context.Context, fwd Forwarder, emb *tensor.Embedding, ids []int, seqLen int) (rows [][]float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return fwd.Forward(ctx, emb, ids, seqLen)
}

func safeSample(s *logits.Sampler, row []float32) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	return s.Sample(row)
}
