package gateway

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// resolve runs the live call for op and, when it fails, the substitute. A
// substitute error is returned to the caller as-is. Calls abandoned by the
// caller's context are never substituted.
func resolve[T any](
	ctx context.Context,
	c *Client,
	op string,
	live func(ctx context.Context) (T, error),
	substitute func(ctx context.Context) (T, error),
) (Result[T], error) {
	startedAt := time.Now()
	ctx, span := c.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("docflow.operation", op))
	defer span.End()

	value, err := live(ctx)
	if err == nil {
		span.SetAttributes(attribute.String("docflow.source", string(SourceLive)))
		span.SetStatus(codes.Ok, "live")
		c.metrics.observe(op, SourceLive, startedAt)
		return Result[T]{Value: value, Source: SourceLive}, nil
	}
	span.RecordError(err)

	if ctx.Err() != nil || c.cfg.DisableFallback || substitute == nil {
		span.SetAttributes(attribute.String("docflow.source", string(SourceLiveFailed)))
		span.SetStatus(codes.Error, "live call failed")
		c.metrics.observe(op, SourceLiveFailed, startedAt)
		c.logger.Printf("op=%s source=%s err=%v", op, SourceLiveFailed, err)
		if c.cfg.DisableFallback {
			return Result[T]{Source: SourceLiveFailed, Err: err}, fmt.Errorf("%s: %w: %w", op, ErrFallbackDisabled, err)
		}
		return Result[T]{Source: SourceLiveFailed, Err: err}, fmt.Errorf("%s: %w", op, err)
	}

	value, subErr := substitute(ctx)
	span.SetAttributes(attribute.String("docflow.source", string(SourceFallback)))
	c.metrics.observe(op, SourceFallback, startedAt)
	if subErr != nil {
		span.SetStatus(codes.Error, "fallback failed")
		c.logger.Printf("op=%s source=%s live_err=%v err=%v", op, SourceFallback, err, subErr)
		return Result[T]{Source: SourceFallback, Err: err}, subErr
	}

	c.logger.Printf("op=%s source=%s err=%v", op, SourceFallback, err)
	return Result[T]{Value: value, Source: SourceFallback, Err: err}, nil
}
