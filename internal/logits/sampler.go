package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrEmptyLogits        = errors.New("logits: empty logits vector")
	ErrInvalidTemperature = errors.New("logits: temperature must be > 0")
	ErrInvalidTopK        = errors.New("logits: top-k out of range")

	// ErrInvalidDistribution reports logits that do not form a probability
	// distribution, such as NaN or infinite values from a corrupt model.
	ErrInvalidDistribution = errors.New("logits: non-finite logits")
)

// Source is the randomness a draw consumes. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a seeded source. A negative seed selects a
// non-deterministic one.
func NewSource(seed int64) *rand.Rand {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Candidate is one entry of a top-k shortlist.
type Candidate struct {
	Index int
	Value float64
}

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
}

// Validate checks the configuration against a vocabulary size.
func (c SamplerConfig) Validate(vocab int) error {
	if !(c.Temperature > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, c.Temperature)
	}
	if c.TopK < 1 || c.TopK > vocab {
		return fmt.Errorf("%w: got %d, vocab %d", ErrInvalidTopK, c.TopK, vocab)
	}
	return nil
}

type Sampler struct {
	rng Source
	cfg SamplerConfig
}

// NewSampler returns a new sampler with the provided configuration. The
// configuration is validated per call by Sample, since the vocabulary size
// is only known once logits arrive.
func NewSampler(cfg SamplerConfig) *Sampler {
	return &Sampler{
		rng: NewSource(cfg.Seed),
		cfg: cfg,
	}
}

// NewSamplerWithSource is NewSampler with an explicit randomness source.
func NewSamplerWithSource(cfg SamplerConfig, src Source) *Sampler {
	return &Sampler{rng: src, cfg: cfg}
}

// Config returns the sampler configuration.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample draws a single token id from the provided logits vector. The logits
// are left untouched.
func (s *Sampler) Sample(logits []float32) (int, error) {
	return Sample(logits, s.cfg.Temperature, s.cfg.TopK, s.rng)
}

// Sample draws a token id from logits. The sample process involves:
//
//  1. Dividing every logit by temperature, in float64 so small temperatures
//     cannot overflow large logits.
//  2. Selecting the k highest scaled logits with their vocabulary indices.
//  3. A max-subtracted softmax over the shortlisted values.
//  4. A categorical draw over the shortlist, mapped back to the vocabulary id.
func Sample(logits []float32, temperature float32, k int, src Source) (int, error) {
	scaled, err := Temperature(logits, temperature)
	if err != nil {
		return 0, err
	}
	top, err := TopK(scaled, k)
	if err != nil {
		return 0, err
	}
	vals := make([]float64, len(top))
	for i, c := range top {
		vals[i] = c.Value
	}
	probs, err := Softmax(vals)
	if err != nil {
		return 0, err
	}
	return top[Draw(probs, src)].Index, nil
}

// Temperature returns logits divided elementwise by t.
func Temperature(logits []float32, t float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, ErrEmptyLogits
	}
	if !(t > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTemperature, t)
	}
	inv := 1 / float64(t)
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = float64(l) * inv
	}
	return out, nil
}

// TopK returns the k largest logits with their indices, ordered from largest
// to smallest. Equal values keep their original index order. This is an
// O(V*K) insertion algorithm suitable for small K.
func TopK(logits []float64, k int) ([]Candidate, error) {
	if len(logits) == 0 {
		return nil, ErrEmptyLogits
	}
	if k < 1 || k > len(logits) {
		return nil, fmt.Errorf("%w: got %d, vocab %d", ErrInvalidTopK, k, len(logits))
	}
	top := make([]Candidate, 0, k+1)
	for i, v := range logits {
		pos := len(top)
		for pos > 0 && top[pos-1].Value < v {
			pos--
		}
		if pos >= k {
			continue
		}
		top = append(top, Candidate{})
		copy(top[pos+1:], top[pos:])
		top[pos] = Candidate{Index: i, Value: v}
		if len(top) > k {
			top = top[:k]
		}
	}
	return top, nil
}

// Softmax returns a probability distribution over vals using the maximum
// value as the stabilizing offset. An empty input yields nil. NaN or
// infinite values return ErrInvalidDistribution.
func Softmax(vals []float64) ([]float64, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	maxv := math.Inf(-1)
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %v at %d", ErrInvalidDistribution, v, i)
		}
		if v > maxv {
			maxv = v
		}
	}
	prob := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		e := math.Exp(v - maxv)
		prob[i] = e
		sum += e
	}
	// The maximum contributes exp(0), so sum >= 1.
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}
	return prob, nil
}

// Draw picks an index in [0, len(probs)) with the given probabilities.
func Draw(probs []float64, src Source) int {
	r := src.Float64()
	var c float64
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		c += p
		last = i
		if r < c {
			return i
		}
	}
	// Rounding left the cumulative sum just below r.
	return last
}
