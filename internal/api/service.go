package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/bitdecode/internal/inference"
	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/logits"
	"github.com/samcharles93/bitdecode/internal/tensor"
)

// DefaultMaxLengthLimit caps max_length for a single request.
const DefaultMaxLengthLimit = 4096

type StreamWriter interface {
	Begin(resp GenerateResponse) error
	EmitToken(ev inference.StepEvent) error
	Complete(resp GenerateResponse) error
	Failed(resp GenerateResponse, err error) error
}

type GenerationService struct {
	provider ModelProvider
	defaults inference.Config
	limit    int
	clock    func() time.Time
}

// NewGenerationService builds a service whose request defaults come from
// the run configuration.
func NewGenerationService(provider ModelProvider, defaults inference.Config) *GenerationService {
	return &GenerationService{
		provider: provider,
		defaults: defaults,
		limit:    DefaultMaxLengthLimit,
		clock:    time.Now,
	}
}

// SetMaxLengthLimit changes the per-request max_length cap. Non-positive
// values are ignored.
func (s *GenerationService) SetMaxLengthLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

func (s *GenerationService) resolve(req *GenerateRequest) (inference.Options, logits.SamplerConfig, error) {
	cfg := s.defaults
	if req.MaxLength != nil {
		cfg.MaxLength = *req.MaxLength
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.StopTokens != nil {
		cfg.StopTokens = req.StopTokens
	}

	if len(req.IDs) == 0 {
		return inference.Options{}, logits.SamplerConfig{}, badRequestf("ids is required and must not be empty")
	}
	if cfg.MaxLength < 0 {
		return inference.Options{}, logits.SamplerConfig{}, badRequestf("max_length must be >= 0, got %d", cfg.MaxLength)
	}
	if cfg.MaxLength > s.limit {
		return inference.Options{}, logits.SamplerConfig{}, badRequestf("max_length %d exceeds the limit of %d", cfg.MaxLength, s.limit)
	}
	if !(cfg.Temperature > 0) {
		return inference.Options{}, logits.SamplerConfig{}, badRequestf("temperature must be > 0, got %v", cfg.Temperature)
	}
	return cfg.Options(), cfg.SamplerConfig(), nil
}

// Generate runs one request. When stream is non-nil every step is forwarded
// to it; a failing stream cancels the generation.
func (s *GenerationService) Generate(ctx context.Context, req *GenerateRequest, stream StreamWriter) (*GenerateResponse, error) {
	opts, scfg, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	resp := GenerateResponse{
		ID:        newGenerationID(),
		Object:    "generation",
		CreatedAt: s.clock().Unix(),
		Status:    statusInProgress,
		IDs:       req.IDs,
		Generated: []int{},
	}
	log := logger.FromContext(ctx).With("generation_id", resp.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var streamErr error
	if stream != nil {
		if err := stream.Begin(resp); err != nil {
			return nil, err
		}
		opts.OnStep = func(ev inference.StepEvent) {
			if streamErr != nil {
				return
			}
			if streamErr = stream.EmitToken(ev); streamErr != nil {
				cancel()
			}
		}
	}

	var res *inference.Result
	err = s.provider.WithModel(ctx, func(fwd inference.Forwarder, emb *tensor.Embedding) error {
		sampler := logits.NewSampler(scfg)
		var genErr error
		res, genErr = inference.Generate(logger.WithContext(ctx, log), fwd, emb, sampler, req.IDs, opts)
		return genErr
	})
	if res != nil {
		resp.IDs = res.Tokens
		resp.Generated = res.Generated()
		resp.Stats = res.Report()
	}
	if streamErr != nil {
		err = errors.Join(err, fmt.Errorf("stream: %w", streamErr))
	}
	if err != nil {
		if isArgumentError(err) {
			err = &requestError{msg: err.Error(), cause: err}
		}
		resp.Status = statusFailed
		resp.Error = &ResponseError{Message: err.Error(), Type: errorType(err)}
		if stream != nil && streamErr == nil {
			_ = stream.Failed(resp, err)
		}
		log.Warn("generation failed", "error", err)
		return &resp, err
	}

	resp.Status = statusCompleted
	log.Info("generation completed",
		"prompt_len", res.PromptLen,
		"steps", res.Stats.Steps,
		"latency", res.Stats.Latency,
		"seconds_per_token", res.Stats.SecondsPerToken,
	)
	if stream != nil {
		if err := stream.Complete(resp); err != nil {
			return &resp, err
		}
	}
	return &resp, nil
}

// ErrInvalidRequest marks failures caused by the request rather than the
// model. The server answers them with 400.
var ErrInvalidRequest = errors.New("invalid_request")

// requestError unwraps to ErrInvalidRequest and to its cause, if any.
type requestError struct {
	msg   string
	cause error
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInvalidRequest}
	}
	return []error{ErrInvalidRequest, e.cause}
}

func badRequestf(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func isArgumentError(err error) bool {
	for _, target := range []error{
		inference.ErrInvalidPrompt,
		inference.ErrInvalidLength,
		logits.ErrInvalidTemperature,
		logits.ErrInvalidTopK,
		tensor.ErrTokenOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorType(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request_error"
	}
	return "server_error"
}
