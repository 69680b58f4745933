package zremote

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hunyxv/zremote"

var (
	keyExprKey = attribute.Key("zremote.key_expr")
	idKey      = attribute.Key("zremote.id")
	sessionKey = attribute.Key("zremote.session")
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// startSpan 每个对外操作一个 client span
func (s *Session) startSpan(ctx context.Context, op, keyExpr, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{sessionKey.String(s.ID())}
	if keyExpr != "" {
		attrs = append(attrs, keyExprKey.String(keyExpr))
	}
	if id != "" {
		attrs = append(attrs, idKey.String(id))
	}
	return s.tracer.Start(ctx, "zremote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// endSpan 结束 span，err 不为空时记录
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
