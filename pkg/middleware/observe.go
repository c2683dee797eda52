package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"serverless-kit/pkg/response"
)

// MetricsRecorder receives one observation per request.
type MetricsRecorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// Metrics reports method, route, status and latency to recorder. Requests
// that end in an error are recorded as 500.
func Metrics(recorder MetricsRecorder) Step {
	return StepFunc("metrics", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		start := time.Now()
		resp, err := next(ctx)

		status := resp.StatusCode
		if err != nil || status == 0 {
			status = http.StatusInternalServerError
		}
		recorder.RecordRequest(ctx, ev.Method, ev.Resource, status, time.Since(start))
		return resp, err
	})
}

// Tracing opens a server span around the rest of the chain. The span
// context is visible to every later step and to the handler.
func Tracing(tracer trace.Tracer) Step {
	return StepFunc("tracing", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		ctx, span := tracer.Start(ctx, ev.Method+" "+ev.Resource,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", ev.Method),
				attribute.String("http.route", ev.Resource),
				attribute.String("url.path", ev.Path),
				attribute.String("correlation_id", inv.CorrelationID),
				attribute.String("faas.invocation_id", inv.RequestID),
			),
		)
		defer span.End()

		resp, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return resp, err
		}

		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "status "+strconv.Itoa(resp.StatusCode))
		}
		return resp, nil
	})
}
