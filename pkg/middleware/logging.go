package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"serverless-kit/pkg/response"
)

// Logging logs every request once it completes. Errors from downstream are
// logged and returned unchanged. A nil logger uses the invocation's logger.
func Logging(logger *zap.Logger) Step {
	return StepFunc("logging", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		log := logger
		if log == nil {
			log = inv.logger()
		}
		log = log.With(
			zap.String("correlation_id", inv.CorrelationID),
			zap.String("request_id", inv.RequestID),
			zap.String("method", ev.Method),
			zap.String("path", ev.Path),
		)

		start := time.Now()
		log.Debug("Request started", zap.String("source_ip", ev.SourceIP))

		resp, err := next(ctx)
		duration := time.Since(start)
		if err != nil {
			log.Error("Request failed", zap.Duration("duration", duration), zap.Error(err))
			return resp, err
		}

		log.Info("Request completed",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return resp, nil
	})
}
