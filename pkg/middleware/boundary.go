package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/response"
)

// ErrorBoundary converts any error returned below it, and any panic, into
// the error envelope chosen by mapper. It should be the first step so that
// nothing escapes to the runtime. A nil builder uses the invocation's.
func ErrorBoundary(mapper *apperrors.Mapper, builder *response.Builder) Step {
	return StepFunc("error-boundary", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (resp response.Envelope, err error) {
		b := builder
		if b == nil {
			b = inv.builder()
		}

		defer func() {
			if r := recover(); r != nil {
				inv.logger().Error("Recovered from panic",
					zap.String("correlation_id", inv.CorrelationID),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				perr := apperrors.NewInternalError(fmt.Sprintf("panic: %v", r)).WithCorrelationID(inv.CorrelationID)
				m := mapper.Handle(perr, inv.CorrelationID)
				resp, err = b.Error(m.Message, m.StatusCode, m.Code, detailsOrNil(m.Details), inv.CorrelationID), nil
			}
		}()

		resp, err = next(ctx)
		if err == nil {
			return resp, nil
		}
		m := mapper.Handle(err, inv.CorrelationID)
		return b.Error(m.Message, m.StatusCode, m.Code, detailsOrNil(m.Details), inv.CorrelationID), nil
	})
}

// detailsOrNil keeps an empty details map out of the body.
func detailsOrNil(d map[string]any) any {
	if len(d) == 0 {
		return nil
	}
	return d
}
