package middleware

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/response"
)

// RouteFunc reports the matched route pattern and path parameters of a
// request, as resolved by the HTTP router in front of the pipeline.
type RouteFunc func(r *http.Request) (resource string, params map[string]string)

// HTTP serves the pipeline bound to h over net/http, so the same chain runs
// behind a local development server.
func (p *Pipeline) HTTP(h Handler, route RouteFunc, extra ...Step) http.Handler {
	chain := p.Then(h, extra...)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resource string
		var params map[string]string
		if route != nil {
			resource, params = route(r)
		}

		ev, err := EventFromHTTPRequest(r, resource, params)
		if err != nil {
			inv := NewInvocation(r.Context(), &Event{Headers: Headers{}})
			p.logger.Warn("Failed to read request", zap.String("correlation_id", inv.CorrelationID), zap.Error(err))
			writeEnvelope(w, p.builder.Error("Failed to read request body", http.StatusBadRequest, apperrors.CodeValidation, nil, inv.CorrelationID))
			return
		}

		inv, resp, err := p.invoke(r.Context(), chain, ev)
		if err != nil {
			p.logger.Error("Unhandled pipeline error", zap.String("correlation_id", inv.CorrelationID), zap.Error(err))
			writeEnvelope(w, p.builder.Error("Internal server error", http.StatusInternalServerError, apperrors.CodeInternal, nil, inv.CorrelationID))
			return
		}
		writeEnvelope(w, resp)
	})
}

func writeEnvelope(w http.ResponseWriter, env response.Envelope) {
	for k, v := range env.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range env.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := env.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if env.Body != "" {
		_, _ = w.Write([]byte(env.Body))
	}
}
