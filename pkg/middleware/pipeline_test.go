package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverless-kit/pkg/response"
)

func testInvocation() *Invocation {
	return &Invocation{CorrelationID: "corr-1", RequestID: "req-1", Builder: response.NewBuilder()}
}

func recordingStep(name string, trace *[]string) Step {
	return StepFunc(name, func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
		*trace = append(*trace, name+":before")
		resp, err := next(ctx)
		*trace = append(*trace, name+":after")
		return resp, err
	})
}

func okHandler(trace *[]string) Handler {
	return func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
		if trace != nil {
			*trace = append(*trace, "handler")
		}
		return inv.Builder.Success(map[string]string{"ok": "true"}, http.StatusOK, inv.CorrelationID, nil), nil
	}
}

func TestWithMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("Should run steps in declared order around the handler", func(t *testing.T) {
		orders := [][]string{
			{"a", "b", "c"}, {"a", "c", "b"},
			{"b", "a", "c"}, {"b", "c", "a"},
			{"c", "a", "b"}, {"c", "b", "a"},
		}
		for _, order := range orders {
			var trace []string
			steps := make([]Step, len(order))
			for i, name := range order {
				steps[i] = recordingStep(name, &trace)
			}
			h := WithMiddleware(okHandler(&trace), steps...)

			resp, err := h(ctx, testInvocation(), &Event{Method: http.MethodGet})

			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			want := []string{
				order[0] + ":before", order[1] + ":before", order[2] + ":before",
				"handler",
				order[2] + ":after", order[1] + ":after", order[0] + ":after",
			}
			assert.Equal(t, want, trace, "order %v", order)
		}
	})

	t.Run("Should short-circuit when a step responds", func(t *testing.T) {
		var trace []string
		stop := StepFunc("b", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
			trace = append(trace, "b:respond")
			return inv.Builder.Error("nope", http.StatusTeapot, "", nil, inv.CorrelationID), nil
		})
		h := WithMiddleware(okHandler(&trace), recordingStep("a", &trace), stop, recordingStep("c", &trace))

		resp, err := h(ctx, testInvocation(), &Event{})

		require.NoError(t, err)
		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		assert.Equal(t, []string{"a:before", "b:respond", "a:after"}, trace)
	})

	t.Run("Should propagate handler errors to the caller", func(t *testing.T) {
		boom := assert.AnError
		h := WithMiddleware(func(context.Context, *Invocation, *Event) (response.Envelope, error) {
			return response.Envelope{}, boom
		})

		_, err := h(ctx, testInvocation(), &Event{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCompose(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report a chain without a terminal", func(t *testing.T) {
		var trace []string
		h := Compose(recordingStep("a", &trace))

		_, err := h(ctx, testInvocation(), &Event{})
		assert.ErrorIs(t, err, ErrNoMoreMiddleware)
	})

	t.Run("Should refuse a second call to next", func(t *testing.T) {
		calls := 0
		twice := StepFunc("twice", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
			if _, err := next(ctx); err != nil {
				return response.Envelope{}, err
			}
			return next(ctx)
		})
		h := WithMiddleware(func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
			calls++
			return response.Envelope{StatusCode: http.StatusOK}, nil
		}, twice)

		_, err := h(ctx, testInvocation(), &Event{})
		assert.ErrorIs(t, err, ErrNextCalledTwice)
		assert.Equal(t, 1, calls)
	})

	t.Run("Should pass the context given to next downstream", func(t *testing.T) {
		type key struct{}
		tag := StepFunc("tag", func(ctx context.Context, inv *Invocation, ev *Event, next Next) (response.Envelope, error) {
			return next(context.WithValue(ctx, key{}, "tagged"))
		})
		var seen any
		h := WithMiddleware(func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
			seen = ctx.Value(key{})
			return response.Envelope{}, nil
		}, tag)

		_, _ = h(ctx, testInvocation(), &Event{})
		assert.Equal(t, "tagged", seen)
	})
}

func TestGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("Should attach annotations on continue", func(t *testing.T) {
		g := GuardFunc("tagger", func(context.Context, *Invocation, *Event) (Outcome, error) {
			return Continue(Annotate("tenant", "acme")), nil
		})
		var tenant any
		h := WithMiddleware(func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
			tenant, _ = ev.Get("tenant")
			return response.Envelope{}, nil
		}, FromGuard(g))

		_, err := h(ctx, testInvocation(), &Event{})
		require.NoError(t, err)
		assert.Equal(t, "acme", tenant)
	})

	t.Run("Should not let a later step overwrite an annotation", func(t *testing.T) {
		g := GuardFunc("tagger", func(context.Context, *Invocation, *Event) (Outcome, error) {
			return Continue(Annotate("tenant", "acme")), nil
		})
		h := WithMiddleware(okHandler(nil), FromGuard(g), FromGuard(g))

		_, err := h(ctx, testInvocation(), &Event{})
		assert.ErrorIs(t, err, ErrAnnotationSet)
	})
}

func TestEventHeaders(t *testing.T) {
	ev, err := EventFromAPIGateway(events.APIGatewayProxyRequest{
		HTTPMethod: "post",
		Path:       "/subscribers",
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, ev.Method)
	assert.Equal(t, "application/json", ev.Header("content-type"))
	assert.Equal(t, "abc", ev.Header("X-CORRELATION-ID"))
	assert.Equal(t, "/subscribers", ev.Resource)
	assert.Nil(t, ev.Body)
}

func TestEventFromAPIGatewayBase64(t *testing.T) {
	ev, err := EventFromAPIGateway(events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"a":1}`)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, ev.BodyString())

	_, err = EventFromAPIGateway(events.APIGatewayProxyRequest{Body: "%%%", IsBase64Encoded: true})
	assert.Error(t, err)
}

func TestNewInvocation(t *testing.T) {
	t.Run("Should prefer the correlation header", func(t *testing.T) {
		inv := NewInvocation(context.Background(), &Event{Headers: NewHeaders(map[string]string{"X-Correlation-ID": "from-client"})})
		assert.Equal(t, "from-client", inv.CorrelationID)
	})

	t.Run("Should fall back to the Lambda request id", func(t *testing.T) {
		ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "aws-req-1"})
		inv := NewInvocation(ctx, &Event{})
		assert.Equal(t, "aws-req-1", inv.CorrelationID)
		assert.Equal(t, "aws-req-1", inv.RequestID)
	})

	t.Run("Should generate one otherwise", func(t *testing.T) {
		inv := NewInvocation(context.Background(), &Event{})
		assert.NotEmpty(t, inv.CorrelationID)
		assert.Zero(t, inv.RemainingTime())
	})
}

func TestPipelineLambda(t *testing.T) {
	p := NewPipeline(nil).Use(CORS(600), ParseBody())
	assert.Equal(t, []string{"cors", "parse-body"}, p.Steps())

	var body any
	handler := p.Lambda(func(ctx context.Context, inv *Invocation, ev *Event) (response.Envelope, error) {
		body = ev.ParsedBody()
		return inv.Builder.Success(body, http.StatusCreated, inv.CorrelationID, nil), nil
	})

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       `{"email":"a@b.io"}`,
		Headers:    map[string]string{"x-request-id": "r-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "r-9", resp.Headers[response.HeaderCorrelationID])
	assert.Equal(t, map[string]any{"email": "a@b.io"}, body)

	var echoed map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &echoed))
	assert.Equal(t, "a@b.io", echoed["email"])
}
