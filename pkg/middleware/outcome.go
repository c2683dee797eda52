package middleware

import (
	"context"
	"fmt"

	"serverless-kit/pkg/response"
)

// Outcome is what a Guard decides: either let the request continue,
// optionally attaching annotations, or respond immediately.
type Outcome struct {
	respond     bool
	envelope    response.Envelope
	annotations []Annotation
}

// Annotation is a key/value a Guard attaches to the event on Continue.
type Annotation struct {
	Key   string
	Value any
}

// Annotate builds an Annotation.
func Annotate(key string, value any) Annotation {
	return Annotation{Key: key, Value: value}
}

// Continue lets the request proceed to the next step.
func Continue(annotations ...Annotation) Outcome {
	return Outcome{annotations: annotations}
}

// Respond stops the pipeline and returns env to the caller.
func Respond(env response.Envelope) Outcome {
	return Outcome{respond: true, envelope: env}
}

// Response returns the envelope when the outcome is a Respond.
func (o Outcome) Response() (response.Envelope, bool) {
	return o.envelope, o.respond
}

// Guard is a step that only decides whether to continue. Guards cannot
// observe or alter the downstream response.
type Guard interface {
	Name() string
	Check(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error)
}

// FromGuard adapts a Guard into a Step.
func FromGuard(g Guard) Step {
	return StepFunc(g.Name(), func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		out, err := g.Check(ctx, inv, ev)
		if err != nil {
			return response.Envelope{}, err
		}
		if env, ok := out.Response(); ok {
			return env, nil
		}
		for _, a := range out.annotations {
			if err := ev.Set(a.Key, a.Value); err != nil {
				return response.Envelope{}, fmt.Errorf("%s: %w", g.Name(), err)
			}
		}
		return next(ctx)
	})
}

type guardFunc struct {
	name  string
	check func(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error)
}

func (g guardFunc) Name() string { return g.name }

func (g guardFunc) Check(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error) {
	return g.check(ctx, inv, ev)
}

// GuardFunc builds a Guard from a function.
func GuardFunc(name string, check func(ctx context.Context, inv *Invocation, ev *Event) (Outcome, error)) Guard {
	return guardFunc{name: name, check: check}
}
