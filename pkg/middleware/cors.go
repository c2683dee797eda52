package middleware

import (
	"context"
	"net/http"
)

// DefaultCORSMaxAge is the preflight cache lifetime in seconds.
const DefaultCORSMaxAge = 86400

// CORS answers OPTIONS preflight requests directly. Every other response
// already carries the CORS headers from the response builder.
func CORS(maxAge int) Step {
	if maxAge <= 0 {
		maxAge = DefaultCORSMaxAge
	}
	return FromGuard(GuardFunc("cors", func(_ context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		if ev.Method == http.MethodOptions {
			return Respond(inv.builder().Preflight(maxAge, inv.CorrelationID)), nil
		}
		return Continue(), nil
	}))
}
