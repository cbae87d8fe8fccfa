package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContextFrom copies the span identity from src into baseCtx.
// Job workers outlive the HTTP request that started them: they must
// derive cancellation from the server's base context (so SIGTERM stops
// them) while their spans still link back to the request trace.
func DetachTraceContextFrom(src, baseCtx context.Context) context.Context {
	sc := trace.SpanContextFromContext(src)
	if !sc.IsValid() {
		return baseCtx
	}
	return trace.ContextWithRemoteSpanContext(baseCtx, sc)
}
