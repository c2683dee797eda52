package middleware

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"serverless-kit/pkg/response"
)

// Invocation carries per-request runtime facts that every step may read.
type Invocation struct {
	FunctionName  string
	RequestID     string
	CorrelationID string
	Deadline      time.Time

	// Builder renders short-circuit responses.
	Builder *response.Builder
	// Logger is already tagged with the correlation id.
	Logger *zap.Logger
}

// NewInvocation derives an Invocation from the Lambda context, if any, and
// the request headers. The correlation id is taken from X-Correlation-ID,
// then X-Request-ID, then the Lambda request id, and generated otherwise.
func NewInvocation(ctx context.Context, ev *Event) *Invocation {
	inv := &Invocation{
		FunctionName: lambdacontext.FunctionName,
		Builder:      response.NewBuilder(),
		Logger:       zap.NewNop(),
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		inv.RequestID = lc.AwsRequestID
	}
	if deadline, ok := ctx.Deadline(); ok {
		inv.Deadline = deadline
	}

	switch {
	case ev != nil && ev.Header(response.HeaderCorrelationID) != "":
		inv.CorrelationID = ev.Header(response.HeaderCorrelationID)
	case ev != nil && ev.Header(response.HeaderRequestID) != "":
		inv.CorrelationID = ev.Header(response.HeaderRequestID)
	case inv.RequestID != "":
		inv.CorrelationID = inv.RequestID
	default:
		inv.CorrelationID = response.NewCorrelationID()
	}
	if inv.RequestID == "" {
		inv.RequestID = inv.CorrelationID
	}
	return inv
}

// RemainingTime is the time left before the invocation's deadline, or zero
// when there is no deadline.
func (inv *Invocation) RemainingTime() time.Duration {
	if inv.Deadline.IsZero() {
		return 0
	}
	if d := time.Until(inv.Deadline); d > 0 {
		return d
	}
	return 0
}

func (inv *Invocation) logger() *zap.Logger {
	if inv.Logger == nil {
		return zap.NewNop()
	}
	return inv.Logger
}

func (inv *Invocation) builder() *response.Builder {
	if inv.Builder == nil {
		inv.Builder = response.NewBuilder()
	}
	return inv.Builder
}
