package inference

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/samcharles93/bitdecode/internal/logits"
	"github.com/samcharles93/bitdecode/internal/tokenfile"
)

// Config describes one generation run end to end.
type Config struct {
	ModelPath   string
	PromptPath  string
	OutputPath  string
	MaxLength   int
	Temperature float64
	TopK        int
	// Seed < 0 draws a fresh non-deterministic seed.
	Seed       int64
	StopTokens []int
}

// DefaultConfig returns the file names and sampling settings used when
// nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "model.bin",
		PromptPath:  "encoded_prompt.bin",
		OutputPath:  "generated_ids.bin",
		MaxLength:   100,
		Temperature: 0.8,
		TopK:        50,
		Seed:        -1,
	}
}

// Validate checks what can be checked before the model is loaded. TopK's
// upper bound depends on the vocabulary and is checked by the sampler.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.PromptPath == "" {
		return fmt.Errorf("prompt path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if c.MaxLength < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, c.MaxLength)
	}
	if !(c.Temperature > 0) {
		return fmt.Errorf("%w: got %v", logits.ErrInvalidTemperature, c.Temperature)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: got %d", logits.ErrInvalidTopK, c.TopK)
	}
	return nil
}

// SamplerConfig returns the sampling part of the run configuration.
func (c Config) SamplerConfig() logits.SamplerConfig {
	return logits.SamplerConfig{
		Seed:        c.Seed,
		Temperature: float32(c.Temperature),
		TopK:        c.TopK,
	}
}

// Options returns the decode loop options of the run configuration.
func (c Config) Options() Options {
	return Options{MaxLength: c.MaxLength, StopTokens: c.StopTokens}
}

// Report is the serialisable summary of a Result.
type Report struct {
	Tokens          []int     `json:"tokens"`
	Generated       []int     `json:"generated"`
	PromptLen       int       `json:"prompt_len"`
	Steps           int       `json:"steps"`
	LatencySeconds  float64   `json:"latency_seconds"`
	SecondsPerToken float64   `json:"seconds_per_token"`
	StepLatencyMS   []float64 `json:"step_latency_ms"`
	Digest          string    `json:"digest"`
}

func (r *Result) Report() Report {
	ms := make([]float64, len(r.Stats.StepLatencies))
	for i, d := range r.Stats.StepLatencies {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	return Report{
		Tokens:          r.Tokens,
		Generated:       r.Generated(),
		PromptLen:       r.PromptLen,
		Steps:           r.Stats.Steps,
		LatencySeconds:  r.Stats.Latency.Seconds(),
		SecondsPerToken: r.Stats.SecondsPerToken,
		StepLatencyMS:   ms,
		Digest:          fmt.Sprintf("%016x", Digest(r.Tokens)),
	}
}

// Digest fingerprints a sequence by hashing its token-file encoding.
// Sequences with negative ids hash their decimal form instead.
func Digest(ids []int) uint64 {
	raw, err := tokenfile.Encode(ids)
	if err != nil {
		return xxhash.Sum64String(fmt.Sprint(ids))
	}
	return xxhash.Sum64(raw)
}
