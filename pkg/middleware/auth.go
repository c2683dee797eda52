package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"serverless-kit/pkg/auth"
	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/response"
)

// Authenticate requires an "Authorization: Bearer <token>" header that
// validator accepts. The resulting identity becomes the User annotation.
func Authenticate(validator auth.TokenValidator) Step {
	return FromGuard(GuardFunc("authenticate", func(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		token, ok := auth.ExtractBearer(ev.Header("Authorization"))
		if !ok {
			return Respond(unauthorized(inv, "Missing or malformed authorization header")), nil
		}

		identity, err := validator.Validate(ctx, token)
		if err != nil {
			inv.logger().Warn("Authentication failed", zap.String("path", ev.Path), zap.Error(err))
			message := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "Token has expired"
			}
			return Respond(unauthorized(inv, message)), nil
		}
		return Continue(Annotate(KeyUser, identity)), nil
	}))
}

// RequireRole lets through only users carrying one of roles. It must run
// after Authenticate.
func RequireRole(roles ...string) Step {
	return FromGuard(GuardFunc("require-role", func(_ context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		id, ok := ev.User()
		if !ok {
			return Respond(unauthorized(inv, "Authentication required")), nil
		}
		if !id.HasRole(roles...) {
			return Respond(inv.builder().Error(
				"Insufficient permissions",
				http.StatusForbidden,
				apperrors.CodeForbidden,
				nil,
				inv.CorrelationID,
			)), nil
		}
		return Continue(), nil
	}))
}

func unauthorized(inv *Invocation, message string) response.Envelope {
	return inv.builder().Error(message, http.StatusUnauthorized, apperrors.CodeUnauthorized, nil, inv.CorrelationID)
}
