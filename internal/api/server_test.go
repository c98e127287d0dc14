package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"math"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/bitdecode/internal/inference"
	"github.com/samcharles93/bitdecode/internal/logits"
	"github.com/samcharles93/bitdecode/internal/tensor"
)

const testVocab = 32

// stepForwarder peaks at (last id + 1) % vocab.
type stepForwarder struct{ err error }

func (f stepForwarder) Forward(_ context.Context, emb *tensor.Embedding, ids []int, seqLen int) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	buf := make([]float32, emb.Hidden())
	for _, id := range ids[:seqLen] {
		if err := emb.Lookup(buf, id); err != nil {
			return nil, err
		}
	}
	rows := make([][]float32, seqLen)
	for i := range rows {
		rows[i] = make([]float32, emb.Vocab())
		rows[i][(ids[i]+1)%emb.Vocab()] = 50
	}
	return rows, nil
}

// nanForwarder emits logits a corrupt model could produce.
type nanForwarder struct{}

func (nanForwarder) Forward(_ context.Context, emb *tensor.Embedding, _ []int, seqLen int) ([][]float32, error) {
	rows := make([][]float32, seqLen)
	for i := range rows {
		rows[i] = make([]float32, emb.Vocab())
		rows[i][0] = float32(math.NaN())
	}
	return rows, nil
}

type testProvider struct {
	fwd inference.Forwarder
	emb *tensor.Embedding
}

func (p testProvider) WithModel(_ context.Context, fn func(inference.Forwarder, *tensor.Embedding) error) error {
	return fn(p.fwd, p.emb)
}

func (p testProvider) Info() (string, int) { return "test.bin", p.emb.Vocab() }

func newTestEcho(t *testing.T, fwd inference.Forwarder) *echo.Echo {
	t.Helper()
	emb, err := tensor.NewEmbedding(make([]float32, testVocab*2), testVocab, 2)
	require.NoError(t, err)
	provider := testProvider{fwd: fwd, emb: emb}

	defaults := inference.DefaultConfig()
	defaults.MaxLength = 4
	defaults.TopK = 1
	service := NewGenerationService(provider, defaults)
	service.SetMaxLengthLimit(16)

	e := echo.New()
	NewServer(NewGenerationStore(4), service, provider).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGenerateLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"ids":[1,42,7],"max_length":3,"temperature":0.8,"top_k":1,"seed":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decode[GenerateResponse](t, rec)
	require.True(t, strings.HasPrefix(created.ID, "gen-"))
	require.Equal(t, statusCompleted, created.Status)
	require.Equal(t, []int{1, 42, 7, 8, 9, 10}, created.IDs)
	require.Equal(t, []int{8, 9, 10}, created.Generated)
	require.Equal(t, 3, created.Stats.Steps)
	require.Len(t, created.Stats.Digest, 16)

	rec = doJSON(t, e, http.MethodGet, "/v1/generations/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created.IDs, decode[GenerateResponse](t, rec).IDs)

	rec = doJSON(t, e, http.MethodDelete, "/v1/generations/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"deleted":true`)

	rec = doJSON(t, e, http.MethodGet, "/v1/generations/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateUsesDefaults(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"ids":[1]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []int{1, 2, 3, 4, 5}, decode[GenerateResponse](t, rec).IDs)
}

func TestGenerateValidationErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{})
	cases := map[string]string{
		"empty body":       ``,
		"unknown field":    `{"ids":[1],"prompt":"x"}`,
		"empty ids":        `{"ids":[]}`,
		"no sentinel":      `{"ids":[2,3]}`,
		"zero temperature": `{"ids":[1],"temperature":0}`,
		"top-k too large":  `{"ids":[1],"top_k":33}`,
		"negative length":  `{"ids":[1],"max_length":-1}`,
		"over the limit":   `{"ids":[1],"max_length":17}`,
		"id out of vocab":  `{"ids":[1,99]}`,
	}
	for name, body := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/generate", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "%s: %s", name, rec.Body.String())
		require.Contains(t, rec.Body.String(), "invalid_request_error", name)
	}
}

func TestGenerateForwardFailure(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{err: errors.New("weights gone")})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"ids":[1,2]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "weights gone")
}

func TestGenerateNonFiniteLogitsFails(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, nanForwarder{})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"ids":[1]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "non-finite logits")
	require.Contains(t, rec.Body.String(), "server_error")
}

func TestRequestErrorKeepsCause(t *testing.T) {
	t.Parallel()

	emb, err := tensor.NewEmbedding(make([]float32, testVocab*2), testVocab, 2)
	require.NoError(t, err)
	service := NewGenerationService(testProvider{fwd: stepForwarder{}, emb: emb}, inference.DefaultConfig())

	resp, err := service.Generate(context.Background(), &GenerateRequest{IDs: []int{1, 99}}, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorIs(t, err, tensor.ErrTokenOutOfRange)
	require.Equal(t, statusFailed, resp.Status)

	wideK := testVocab + 1
	_, err = service.Generate(context.Background(), &GenerateRequest{IDs: []int{1}, TopK: &wideK}, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorIs(t, err, logits.ErrInvalidTopK)

	_, err = service.Generate(context.Background(), &GenerateRequest{}, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Equal(t, "ids is required and must not be empty", err.Error())
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"ids":[1,5],"max_length":2,"stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	require.Equal(t, 1, strings.Count(body, "event: generation.created"))
	require.Equal(t, 2, strings.Count(body, "event: generation.token"))
	require.Equal(t, 1, strings.Count(body, "event: generation.completed"))
	require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	require.Contains(t, body, `"token":6`)
	require.Contains(t, body, `"token":7`)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, stepForwarder{})
	rec := doJSON(t, e, http.MethodGet, "/v1/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[HealthResponse](t, rec)
	require.Equal(t, "ok", h.Status)
	require.Equal(t, testVocab, h.Vocab)
}

func TestGenerationStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewGenerationStore(2)
	s.Save(GenerateResponse{ID: "a"})
	s.Save(GenerateResponse{ID: "b"})
	s.Save(GenerateResponse{ID: "c"})
	require.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	require.False(t, ok)
	require.True(t, s.Delete("b"))
	require.False(t, s.Delete("b"))
	require.Equal(t, 1, s.Len())
}

func TestCachedModelProviderMissingModel(t *testing.T) {
	t.Parallel()

	p := NewCachedModelProvider(ProviderConfig{ModelPath: filepath.Join(t.TempDir(), "none.bin")})
	err := p.WithModel(context.Background(), func(inference.Forwarder, *tensor.Embedding) error { return nil })
	require.Error(t, err)
	name, vocab := p.Info()
	require.Equal(t, "none.bin", name)
	require.Zero(t, vocab)
	require.NoError(t, p.Close())
}
