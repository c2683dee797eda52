package middleware

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"serverless-kit/pkg/auth"
	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/ratelimit"
	"serverless-kit/pkg/response"
)

// StandardDeps configures Standard. Nil optional members skip their step.
type StandardDeps struct {
	Logger  *zap.Logger
	Mapper  *apperrors.Mapper
	Builder *response.Builder

	CORSMaxAge int

	// Optional.
	Tracer         trace.Tracer
	Metrics        MetricsRecorder
	Limiter        ratelimit.Limiter
	RateLimitKey   KeyFunc
	Authenticator  auth.TokenValidator
	CircuitBreaker *CircuitBreakerConfig
}

// Standard builds the default pipeline: error boundary, logging, tracing,
// metrics, CORS, rate limiting, authentication, circuit breaker and body
// parsing, in that order.
func Standard(deps StandardDeps) *Pipeline {
	mapper := deps.Mapper
	if mapper == nil {
		mapper = apperrors.NewMapper(deps.Logger, true)
	}

	p := NewPipeline(deps.Logger)
	if deps.Builder != nil {
		p.WithBuilder(deps.Builder)
	}

	p.Use(ErrorBoundary(mapper, deps.Builder), Logging(deps.Logger))
	if deps.Tracer != nil {
		p.Use(Tracing(deps.Tracer))
	}
	if deps.Metrics != nil {
		p.Use(Metrics(deps.Metrics))
	}
	p.Use(CORS(deps.CORSMaxAge))
	if deps.Limiter != nil {
		p.Use(RateLimit(deps.Limiter, deps.RateLimitKey))
	}
	if deps.Authenticator != nil {
		p.Use(Authenticate(deps.Authenticator))
	}
	if deps.CircuitBreaker != nil {
		p.Use(CircuitBreaker(*deps.CircuitBreaker, deps.Logger))
	}
	return p.Use(ParseBody())
}
