package api

import "github.com/samcharles93/bitdecode/internal/inference"

// GenerateRequest is the body of POST /v1/generate. Omitted fields take the
// server defaults.
type GenerateRequest struct {
	IDs         []int    `json:"ids"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	StopTokens  []int    `json:"stop_tokens,omitempty"`
	Stream      *bool    `json:"stream,omitempty"`
}

type GenerateResponse struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	Status    string           `json:"status"`
	IDs       []int            `json:"ids"`
	Generated []int            `json:"generated"`
	Stats     inference.Report `json:"stats"`
	Error     *ResponseError   `json:"error,omitempty"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Vocab  int    `json:"vocab_size"`
}

const (
	statusCompleted  = "completed"
	statusFailed     = "failed"
	statusInProgress = "in_progress"
)

// streamEvent is one SSE frame of a streamed generation.
type streamEvent struct {
	Type           string            `json:"type"`
	SequenceNumber int               `json:"sequence_number"`
	Generation     *GenerateResponse `json:"generation,omitempty"`
	Step           *int              `json:"step,omitempty"`
	Token          *int              `json:"token,omitempty"`
	LatencyMS      *float64          `json:"latency_ms,omitempty"`
}
