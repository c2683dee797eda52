// Package middleware composes request-handling steps around a Lambda
// handler. Each step receives the invocation, the event and a Next
// continuation; it either calls Next exactly once or answers on its own,
// which stops the chain.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/response"
)

var (
	// ErrNoMoreMiddleware is returned by the Next of the last step in a
	// chain that has no terminal handler.
	ErrNoMoreMiddleware = errors.New("no more middleware in chain")
	// ErrNextCalledTwice is returned when a step invokes its Next again.
	ErrNextCalledTwice = errors.New("next called more than once")
)

// Next invokes the remainder of the chain.
type Next func(ctx context.Context) (response.Envelope, error)

// Handler produces the response for an event.
type Handler func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error)

// Step is one link in the chain.
type Step interface {
	Name() string
	Process(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Process(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
	return s.fn(ctx, inv, ev, next)
}

// StepFunc builds a Step from a function.
func StepFunc(name string, fn func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error)) Step {
	return stepFunc{name: name, fn: fn}
}

// Compose chains steps in order. Calling Next past the last step yields
// ErrNoMoreMiddleware; use WithMiddleware to end the chain in a Handler.
func Compose(steps ...Step) Handler {
	return func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
		return dispatch(ctx, inv, ev, steps, 0)
	}
}

func dispatch(ctx context.Context, inv *Invocation, ev *Event, steps []Step, i int) (response.Envelope, error) {
	if i >= len(steps) {
		return response.Envelope{}, ErrNoMoreMiddleware
	}
	called := false
	next := func(ctx context.Context) (response.Envelope, error) {
		if called {
			return response.Envelope{}, fmt.Errorf("%s: %w", steps[i].Name(), ErrNextCalledTwice)
		}
		called = true
		return dispatch(ctx, inv, ev, steps, i+1)
	}
	return steps[i].Process(ctx, inv, ev, next)
}

// Terminal wraps a Handler as the last step of a chain.
func Terminal(h Handler) Step {
	return StepFunc("handler", func(ctx context.Context, inv *Invocation, ev *Event, _ Next) (response.Envelope, error) {
		return h(ctx, inv, ev)
	})
}

// WithMiddleware runs steps in order and then h. The first step that
// responds without calling Next short-circuits the rest, h included.
func WithMiddleware(h Handler, steps ...Step) Handler {
	chain := make([]Step, 0, len(steps)+1)
	chain = append(chain, steps...)
	chain = append(chain, Terminal(h))
	return Compose(chain...)
}

// Pipeline collects steps and binds them to handlers.
type Pipeline struct {
	steps   []Step
	logger  *zap.Logger
	builder *response.Builder
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger, builder: response.NewBuilder()}
}

// Use appends steps. Steps run in the order they were added.
func (p *Pipeline) Use(steps ...Step) *Pipeline {
	for _, s := range steps {
		if s == nil {
			continue
		}
		p.steps = append(p.steps, s)
		p.logger.Debug("Added middleware to pipeline", zap.String("middleware", s.Name()))
	}
	return p
}

// WithBuilder sets the response builder handed to every invocation.
func (p *Pipeline) WithBuilder(b *response.Builder) *Pipeline {
	p.builder = b
	return p
}

// Steps returns the names of the configured steps in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Then binds the pipeline's steps, followed by extra, to h.
func (p *Pipeline) Then(h Handler, extra ...Step) Handler {
	steps := make([]Step, 0, len(p.steps)+len(extra))
	steps = append(steps, p.steps...)
	steps = append(steps, extra...)
	return WithMiddleware(h, steps...)
}

// Invoke builds the Invocation for ev and runs h.
func (p *Pipeline) Invoke(ctx context.Context, h Handler, ev *Event) (response.Envelope, error) {
	_, resp, err := p.invoke(ctx, h, ev)
	return resp, err
}

// invoke is Invoke that also returns the Invocation, so adapters answer an
// unhandled error under the same correlation id.
func (p *Pipeline) invoke(ctx context.Context, h Handler, ev *Event) (*Invocation, response.Envelope, error) {
	inv := NewInvocation(ctx, ev)
	inv.Builder = p.builder
	inv.Logger = p.logger.With(zap.String("correlation_id", inv.CorrelationID))
	resp, err := h(ctx, inv, ev)
	return inv, resp, err
}

// LambdaHandler is the aws-lambda-go handler signature for REST proxy events.
type LambdaHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Lambda adapts the pipeline bound to h into a Lambda handler.
func (p *Pipeline) Lambda(h Handler, extra ...Step) LambdaHandler {
	chain := p.Then(h, extra...)
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		ev, err := EventFromAPIGateway(req)
		if err != nil {
			inv := NewInvocation(ctx, &Event{Headers: NewHeaders(req.Headers)})
			p.logger.Warn("Rejected undecodable request", zap.String("correlation_id", inv.CorrelationID), zap.Error(err))
			return p.builder.Error("Invalid request body encoding", http.StatusBadRequest, apperrors.CodeInvalidJSON, nil, inv.CorrelationID), nil
		}
		return p.Invoke(ctx, chain, ev)
	}
}
