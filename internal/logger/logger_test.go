package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(slog.LevelInfo))

	log.Warn("shown", "key", "value")
	require.Contains(t, buf.String(), `"key":"value"`)
	require.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "decode").WithGroup("step")
	log.Info("token", "id", 7)
	require.Contains(t, buf.String(), `"component":"decode"`)
	require.Contains(t, buf.String(), `"step":{"id":7}`)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	require.Contains(t, buf.String(), "roundtrip")

	require.NotNil(t, FromContext(context.Background()))
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	require.False(t, log.Enabled(slog.LevelError))
	require.NotPanics(t, func() { log.Error("nothing") })
}

func TestForFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"", "pretty", "JSON", "text"} {
		var buf bytes.Buffer
		log, err := ForFormat(f, &buf, slog.LevelInfo)
		require.NoError(t, err, f)
		log.Info("hello")
		require.Contains(t, buf.String(), "hello", f)
	}
	_, err := ForFormat("xml", &bytes.Buffer{}, slog.LevelInfo)
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPrettyPlainOutput(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Debug("decode step", "token", 42, "latency", 1500*time.Microsecond, "path", "a b")

	out := buf.String()
	require.NotContains(t, out, "\033[")
	require.Contains(t, out, "DEBUG decode step")
	require.Contains(t, out, "token=42")
	require.Contains(t, out, "latency=1.5ms")
	require.Contains(t, out, `path="a b"`)
	require.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	require.Same(t, h, h.WithGroup(""))

	slog.New(h.WithGroup("a").WithGroup("b").WithAttrs([]slog.Attr{slog.String("run", "x")})).Info("nested", "key", "val")
	require.Contains(t, buf.String(), "a.b.run=x")
	require.Contains(t, buf.String(), "a.b.key=val")
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}
