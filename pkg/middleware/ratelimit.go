package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/ratelimit"
	"serverless-kit/pkg/response"
)

// KeyFunc derives the rate-limit identity of a request.
type KeyFunc func(inv *Invocation, ev *Event) string

// BySourceIP keys on the caller's address.
func BySourceIP(_ *Invocation, ev *Event) string {
	return "ip:" + ev.SourceIP
}

// ByUser keys on the authenticated user, falling back to the source IP for
// anonymous requests.
func ByUser(inv *Invocation, ev *Event) string {
	if id, ok := ev.User(); ok && id.UserID != "" {
		return "user:" + id.UserID
	}
	return BySourceIP(inv, ev)
}

// ByHeader keys on a request header such as an API key, falling back to the
// source IP when the header is absent.
func ByHeader(name string) KeyFunc {
	return func(inv *Invocation, ev *Event) string {
		if v := ev.Header(name); v != "" {
			return "header:" + name + ":" + v
		}
		return BySourceIP(inv, ev)
	}
}

// RateLimit consults limiter for every request. Denied requests get 429
// RATE_LIMIT_EXCEEDED with a Retry-After header in whole seconds. When the
// limiter itself fails the request is let through.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc) Step {
	if key == nil {
		key = BySourceIP
	}
	return FromGuard(GuardFunc("rate-limit", func(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		k := key(inv, ev)
		d, err := limiter.Allow(ctx, k)
		if err != nil {
			inv.logger().Warn("Rate limiter unavailable, allowing request", zap.String("key", k), zap.Error(err))
			return Continue(), nil
		}
		if d.Allowed {
			return Continue(), nil
		}

		seconds := int(math.Ceil(d.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		inv.logger().Info("Rate limit exceeded", zap.String("key", k), zap.Int("retry_after", seconds))

		env := inv.builder().Error(
			"Too many requests, please try again later",
			http.StatusTooManyRequests,
			apperrors.CodeRateLimited,
			map[string]any{"retryAfter": seconds},
			inv.CorrelationID,
		)
		response.SetHeader(env.Headers, response.HeaderRetryAfter, strconv.Itoa(seconds))
		return Respond(env), nil
	}))
}
