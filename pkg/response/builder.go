// Package response builds API Gateway proxy responses with the standard
// header set and JSON body shapes.
package response

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Envelope is the response handed back to API Gateway.
type Envelope = events.APIGatewayProxyResponse

const (
	HeaderContentType   = "Content-Type"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderAllowOrigin   = "Access-Control-Allow-Origin"
	HeaderAllowHeaders  = "Access-Control-Allow-Headers"
	HeaderAllowMethods  = "Access-Control-Allow-Methods"
	HeaderAllowCreds    = "Access-Control-Allow-Credentials"
	HeaderMaxAge        = "Access-Control-Max-Age"
	HeaderRetryAfter    = "Retry-After"

	allowedHeaders  = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-Correlation-ID"
	allowedMethods  = "GET,POST,PUT,DELETE,OPTIONS"
	timestampFormat = "2006-01-02T15:04:05.000Z"
)

// ErrorDetail is the "error" member of an error body.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error         ErrorDetail `json:"error"`
	RequestID     string      `json:"requestId"`
	CorrelationID string      `json:"correlationId"`
	Timestamp     string      `json:"timestamp"`
}

// Builder produces envelopes. The zero value is not usable; call NewBuilder.
type Builder struct {
	origin string
	now    func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithAllowedOrigin overrides the Access-Control-Allow-Origin value.
func WithAllowedOrigin(origin string) Option {
	return func(b *Builder) { b.origin = origin }
}

// WithClock sets the clock used for error timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder allowing any origin.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{origin: "*", now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StandardHeaders returns the headers present on every response.
func (b *Builder) StandardHeaders(correlationID string) map[string]string {
	return map[string]string{
		HeaderContentType:   "application/json",
		HeaderAllowOrigin:   b.origin,
		HeaderAllowHeaders:  allowedHeaders,
		HeaderAllowMethods:  allowedMethods,
		HeaderAllowCreds:    "true",
		HeaderCorrelationID: correlationID,
		HeaderRequestID:     correlationID,
	}
}

// SetHeader sets name on headers, replacing any existing key that differs
// only in case.
func SetHeader(headers map[string]string, name, value string) {
	for k := range headers {
		if k != name && strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
	headers[name] = value
}

// Success serializes data as the body. A zero status means 200.
func (b *Builder) Success(data any, status int, correlationID string, extra map[string]string) Envelope {
	if status == 0 {
		status = http.StatusOK
	}
	body, err := json.Marshal(data)
	if err != nil {
		return b.Error("Failed to serialize response", http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", nil, correlationID)
	}
	headers := b.StandardHeaders(correlationID)
	for k, v := range extra {
		SetHeader(headers, k, v)
	}
	return Envelope{StatusCode: status, Headers: headers, Body: string(body)}
}

// Error builds the standard error body. A zero status means 500; code and
// details are omitted when empty.
func (b *Builder) Error(message string, status int, code string, details any, correlationID string) Envelope {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := ErrorBody{
		Error:         ErrorDetail{Message: message, Code: code, Details: details},
		RequestID:     correlationID,
		CorrelationID: correlationID,
		Timestamp:     b.now().UTC().Format(timestampFormat),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		payload.Error.Details = nil
		body, _ = json.Marshal(payload)
	}
	return Envelope{StatusCode: status, Headers: b.StandardHeaders(correlationID), Body: string(body)}
}

// Paginated wraps items as {"items": [...], "pagination": {...}}. The
// pagination object carries count, which meta may override explicitly.
func (b *Builder) Paginated(items any, meta map[string]any, correlationID string) Envelope {
	count := 0
	rv := reflect.ValueOf(items)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		count = rv.Len()
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			items = []any{}
		}
	case reflect.Invalid:
		items = []any{}
	}

	pagination := map[string]any{"count": count}
	for k, v := range meta {
		pagination[k] = v
	}
	return b.Success(map[string]any{"items": items, "pagination": pagination}, http.StatusOK, correlationID, nil)
}

// NoContent returns a 204 with an empty body.
func (b *Builder) NoContent(correlationID string) Envelope {
	return Envelope{StatusCode: http.StatusNoContent, Headers: b.StandardHeaders(correlationID)}
}

// Preflight answers a CORS preflight request.
func (b *Builder) Preflight(maxAge int, correlationID string) Envelope {
	headers := b.StandardHeaders(correlationID)
	headers[HeaderMaxAge] = strconv.Itoa(maxAge)
	return Envelope{StatusCode: http.StatusOK, Headers: headers}
}
