package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func testSpanContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11},
		TraceFlags: trace.FlagsSampled,
	})
}

func TestTraceHandlerAddsSpanIdentity(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newTraceHandler(&buf, slog.LevelInfo))

	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext())
	log.InfoContext(ctx, "Rendering audio", "episodeId", "ep1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", line["trace_id"])
	assert.Equal(t, "0a0b0c0d0e0f1011", line["span_id"])
	assert.Equal(t, "ep1", line["episodeId"])
}

func TestTraceHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newTraceHandler(&buf, slog.LevelInfo))

	log.InfoContext(context.Background(), "No trace here")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "trace_id")
	assert.NotContains(t, line, "span_id")
}

func TestTraceHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newTraceHandler(&buf, slog.LevelInfo))

	log.DebugContext(context.Background(), "Too quiet to print")
	assert.Zero(t, buf.Len())
}

func TestDetachTraceContextFrom(t *testing.T) {
	src := trace.ContextWithSpanContext(context.Background(), testSpanContext())
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	detached := DetachTraceContextFrom(src, base)
	sc := trace.SpanContextFromContext(detached)
	require.True(t, sc.IsValid())
	assert.Equal(t, testSpanContext().TraceID(), sc.TraceID())

	// Cancellation follows the base context, not the request context.
	cancel()
	assert.Error(t, detached.Err())

	// Without a span on src there is nothing to carry over.
	assert.Equal(t, base, DetachTraceContextFrom(context.Background(), base))
}
