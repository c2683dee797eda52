package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
)

// ParseBody decodes a JSON body into the ParsedBody annotation. Bodies that
// are absent or blank leave ParsedBody nil. Malformed JSON is answered with
// 400 INVALID_JSON.
func ParseBody() Step {
	return ParseBodyInto(func() any { return new(any) })
}

// ParseBodyInto decodes into the value returned by newTarget, which must be
// a pointer. The annotation holds the dereferenced value for *any targets
// and the pointer otherwise.
func ParseBodyInto(newTarget func() any) Step {
	return FromGuard(GuardFunc("parse-body", func(_ context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		raw := ev.BodyString()
		if strings.TrimSpace(raw) == "" {
			return Continue(), nil
		}

		target := newTarget()
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			inv.logger().Debug("Rejected malformed JSON body", zap.Error(err))
			return Respond(inv.builder().Error(
				"Invalid JSON in request body",
				http.StatusBadRequest,
				apperrors.CodeInvalidJSON,
				nil,
				inv.CorrelationID,
			)), nil
		}

		var parsed any = target
		if p, ok := target.(*any); ok {
			parsed = *p
		}
		return Continue(Annotate(KeyParsedBody, parsed)), nil
	}))
}
