package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { log = zerolog.Nop() })

	Info().Str("repository", "arrow-kt/arrow").Msg("Subscribed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "Subscribed", line["message"])
	assert.Equal(t, "arrow-kt/arrow", line["repository"])
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { log = zerolog.Nop() })

	l := WithField("component", "pipeline")
	l.Warn().Msg("slow")
	assert.Contains(t, buf.String(), `"component":"pipeline"`)
}

func TestInit_FileAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	require.NoError(t, Init(Options{Level: "warn", Format: "json", File: path}))
	t.Cleanup(func() { log = zerolog.Nop() })

	Info().Msg("dropped")
	Warn().Msg("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
	assert.Equal(t, zerolog.WarnLevel, Get().GetLevel())
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Options{Level: "loud"}))
	t.Cleanup(func() { log = zerolog.Nop() })
	assert.Equal(t, zerolog.InfoLevel, Get().GetLevel())
}

func TestInit_BadFile(t *testing.T) {
	err := Init(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "x.log"))
}

func TestCtx_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { log = zerolog.Nop() })

	l := Ctx(context.Background())
	l.Info().Msg("untraced")
	assert.NotContains(t, buf.String(), "trace_id")

	buf.Reset()
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	l = Ctx(ctx)
	l.Info().Msg("traced")
	assert.Contains(t, buf.String(), `"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"`)
	assert.Contains(t, buf.String(), `"span_id":"00f067aa0ba902b7"`)
}
