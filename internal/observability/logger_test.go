package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestWithTraceNoSpanLeavesArgs(t *testing.T) {
	args := WithTrace(context.Background(), []any{"videoId", "vid-1"})
	if len(args) != 2 {
		t.Fatalf("args = %v, want unchanged", args)
	}
}

func TestWithTraceAppendsIDs(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01},
		SpanID:  trace.SpanID{0x02},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	args := WithTrace(ctx, []any{"videoId", "vid-1"})
	if len(args) != 6 {
		t.Fatalf("args = %v, want trace and span ids appended", args)
	}
	if args[2] != "trace_id" || args[4] != "span_id" {
		t.Errorf("attribute keys = %v, %v", args[2], args[4])
	}
	if args[3] != spanCtx.TraceID().String() {
		t.Errorf("trace id = %v, want %v", args[3], spanCtx.TraceID())
	}
	if args[5] != spanCtx.SpanID().String() {
		t.Errorf("span id = %v, want %v", args[5], spanCtx.SpanID())
	}
}
