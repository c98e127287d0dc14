package api

import (
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/bitdecode/internal/inference"
)

// SSEStreamWriter emits a generation as server-sent events:
// generation.created, one generation.token per step, then
// generation.completed or generation.failed.
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
	seq     int
	begun   bool
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	return &SSEStreamWriter{w: res, flusher: flusher.Flush, seq: 1}, nil
}

func (s *SSEStreamWriter) Started() bool { return s.begun }

func (s *SSEStreamWriter) Begin(resp GenerateResponse) error {
	s.begun = true
	return s.send(streamEvent{Type: "generation.created", Generation: &resp})
}

func (s *SSEStreamWriter) EmitToken(ev inference.StepEvent) error {
	ms := float64(ev.Latency) / float64(time.Millisecond)
	return s.send(streamEvent{
		Type:      "generation.token",
		Step:      &ev.Step,
		Token:     &ev.Token,
		LatencyMS: &ms,
	})
}

func (s *SSEStreamWriter) Complete(resp GenerateResponse) error {
	if err := s.send(streamEvent{Type: "generation.completed", Generation: &resp}); err != nil {
		return err
	}
	return s.done()
}

func (s *SSEStreamWriter) Failed(resp GenerateResponse, _ error) error {
	if err := s.send(streamEvent{Type: "generation.failed", Generation: &resp}); err != nil {
		return err
	}
	return s.done()
}

func (s *SSEStreamWriter) send(ev streamEvent) error {
	ev.SequenceNumber = s.seq
	s.seq++
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return err
	}
	s.flusher()
	return nil
}

func (s *SSEStreamWriter) done() error {
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher()
	return nil
}
