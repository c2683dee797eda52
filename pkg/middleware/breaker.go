package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/response"
)

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker once
	// MinRequests have been seen in the interval.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns a default configuration for circuit breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

var errServerFailure = errors.New("downstream responded with a server error")

// CircuitBreaker counts server-side errors and 5xx responses. Errors that
// map to a 4xx status, such as NotFound or Validation, are the caller's
// fault and do not count against the breaker. Once the
// breaker opens, requests are answered with 503 SERVICE_UNAVAILABLE without
// reaching the handler until the timeout elapses.
func CircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) Step {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, errServerFailure) {
				return false
			}
			return apperrors.HTTPStatus(err) < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return StepFunc("circuit-breaker", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		result, err := cb.Execute(func() (any, error) {
			resp, err := next(ctx)
			if err != nil {
				return resp, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return resp, errServerFailure
			}
			return resp, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			inv.logger().Warn("Circuit breaker rejected request",
				zap.String("breaker", config.Name),
				zap.String("path", ev.Path),
				zap.String("state", cb.State().String()),
			)
			return inv.builder().Error(
				"Service temporarily unavailable",
				http.StatusServiceUnavailable,
				apperrors.CodeUnavailable,
				nil,
				inv.CorrelationID,
			), nil
		case errors.Is(err, errServerFailure):
			return result.(response.Envelope), nil
		}

		resp, _ := result.(response.Envelope)
		return resp, err
	})
}
