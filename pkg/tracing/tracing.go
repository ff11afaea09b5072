package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagspeak/tagspeak/tsapi"
)

type tracerKey struct{}

// noop is handed out whenever a context carries no tracer.
var noop = trace.NewNoopTracerProvider().Tracer("")

// Tracer returns the tracer carried by ctx, or a no-op tracer.
func Tracer(ctx context.Context) trace.Tracer {
	if t, ok := ctx.Value(tracerKey{}).(trace.Tracer); ok {
		return t
	}
	return noop
}

// WithTracer returns a context carrying t. A nil t stores the no-op tracer.
func WithTracer(ctx context.Context, t trace.Tracer) context.Context {
	if t == nil {
		t = noop
	}
	if existing, ok := ctx.Value(tracerKey{}).(trace.Tracer); ok && existing == t {
		return ctx
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// Start opens a span on the context's tracer.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(ctx).Start(ctx, name, opts...)
}

// StartCommand opens the span for one tagspeak subcommand.
func StartCommand(ctx context.Context, command string, args []string) (context.Context, trace.Span) {
	return Start(ctx, "tagspeak "+command, trace.WithAttributes(
		attribute.String(AttrKeyTagspeakCommand, command),
		attribute.StringSlice(AttrKeyTagspeakCommandArgs, args),
	))
}

// StartRun opens the span for one script; depth 0 is the script the command asked for.
func StartRun(ctx context.Context, script string, depth int) (context.Context, trace.Span) {
	return Start(ctx, "run "+script, trace.WithAttributes(
		attribute.String(AttrKeyTagspeakScriptPath, script),
		attribute.Int(AttrKeyTagspeakRunDepth, depth),
	))
}

// StartPacket opens the span for one dispatched packet.
func StartPacket(ctx context.Context, p *tsapi.Packet) (context.Context, trace.Span) {
	return Start(ctx, "packet "+p.Token(), trace.WithAttributes(
		attribute.String(AttrKeyTagspeakPacket, p.String()),
		attribute.Int(AttrKeyTagspeakLine, p.Pos.Line),
	))
}

// StartTask opens the span for a body running in the background.
// kind is one of the AttrFullTaskKind values; name is empty for timers.
func StartTask(ctx context.Context, kind attribute.KeyValue, name string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{kind}
	spanName := kind.Value.AsString()
	if name != "" {
		attrs = append(attrs, attribute.String(AttrKeyTagspeakTaskName, name))
		spanName += " " + name
	}
	return Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail marks the span in ctx as failed with err's tagspeak code.
// A nil err does nothing.
func Fail(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(AttrKeyTagspeakErrorCode, tsapi.Code(err)))
	span.SetStatus(codes.Error, err.Error())
}
