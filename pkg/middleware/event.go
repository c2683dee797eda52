package middleware

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"serverless-kit/pkg/auth"
)

// Annotation keys written by the built-in steps.
const (
	KeyParsedBody     = "parsedBody"
	KeyValidatedData  = "validatedData"
	KeyValidatedPath  = "validatedPath"
	KeyValidatedQuery = "validatedQuery"
	KeyUser           = "user"
)

// ErrAnnotationSet is returned when a step tries to overwrite an annotation
// set by an earlier step.
var ErrAnnotationSet = errors.New("annotation already set")

// maxHTTPBody caps bodies read from local HTTP requests, matching the API
// Gateway payload limit.
const maxHTTPBody = 10 << 20

// Headers is a case-insensitive header map. Keys are stored lower-cased.
type Headers map[string]string

// NewHeaders copies h, folding every key to lower case.
func NewHeaders(h map[string]string) Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Get returns the value of name, or "".
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Event is an inbound API request plus the annotations steps attach to it
// as it moves through a pipeline.
type Event struct {
	Method      string
	Path        string
	Resource    string
	PathParams  map[string]string
	QueryParams map[string]string
	Headers     Headers
	Body        *string
	SourceIP    string

	annotations map[string]any
}

// Header returns a request header, matched case-insensitively.
func (e *Event) Header(name string) string {
	return e.Headers.Get(name)
}

// Set attaches an annotation. Each key may be set once.
func (e *Event) Set(key string, value any) error {
	if e.annotations == nil {
		e.annotations = make(map[string]any)
	}
	if _, exists := e.annotations[key]; exists {
		return fmt.Errorf("%w: %s", ErrAnnotationSet, key)
	}
	e.annotations[key] = value
	return nil
}

// Get returns an annotation.
func (e *Event) Get(key string) (any, bool) {
	v, ok := e.annotations[key]
	return v, ok
}

// ParsedBody is the decoded JSON body, or nil.
func (e *Event) ParsedBody() any {
	v, _ := e.Get(KeyParsedBody)
	return v
}

// ValidatedData is the normalized value produced by a Validate step.
func (e *Event) ValidatedData() any {
	v, _ := e.Get(KeyValidatedData)
	return v
}

// ValidatedPath is the normalized path parameters from ValidatePath.
func (e *Event) ValidatedPath() map[string]any {
	v, _ := e.Get(KeyValidatedPath)
	m, _ := v.(map[string]any)
	return m
}

// ValidatedQuery is the normalized query parameters from ValidateQuery.
func (e *Event) ValidatedQuery() map[string]any {
	v, _ := e.Get(KeyValidatedQuery)
	m, _ := v.(map[string]any)
	return m
}

// User returns the identity attached by Authenticate.
func (e *Event) User() (*auth.Identity, bool) {
	v, _ := e.Get(KeyUser)
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}

// BodyString returns the raw body, or "".
func (e *Event) BodyString() string {
	if e.Body == nil {
		return ""
	}
	return *e.Body
}

// EventFromAPIGateway converts an API Gateway REST proxy request.
func EventFromAPIGateway(req events.APIGatewayProxyRequest) (*Event, error) {
	ev := &Event{
		Method:      strings.ToUpper(req.HTTPMethod),
		Path:        req.Path,
		Resource:    req.Resource,
		PathParams:  copyMap(req.PathParameters),
		QueryParams: copyMap(req.QueryStringParameters),
		Headers:     NewHeaders(req.Headers),
		SourceIP:    req.RequestContext.Identity.SourceIP,
	}
	for k, vs := range req.MultiValueHeaders {
		if _, ok := ev.Headers[strings.ToLower(k)]; !ok && len(vs) > 0 {
			ev.Headers[strings.ToLower(k)] = vs[0]
		}
	}
	if ev.Resource == "" {
		ev.Resource = ev.Path
	}

	if req.Body != "" {
		body := req.Body
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return nil, fmt.Errorf("decoding base64 body: %w", err)
			}
			body = string(decoded)
		}
		ev.Body = &body
	}
	return ev, nil
}

// EventFromHTTPRequest converts a plain HTTP request, as served by the local
// development server. resource is the matched route pattern.
func EventFromHTTPRequest(r *http.Request, resource string, pathParams map[string]string) (*Event, error) {
	headers := make(Headers, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[strings.ToLower(k)] = vs[0]
		}
	}
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	ev := &Event{
		Method:      strings.ToUpper(r.Method),
		Path:        r.URL.Path,
		Resource:    resource,
		PathParams:  copyMap(pathParams),
		QueryParams: query,
		Headers:     headers,
		SourceIP:    clientIP(r),
	}
	if ev.Resource == "" {
		ev.Resource = ev.Path
	}

	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		if len(data) > 0 {
			body := string(data)
			ev.Body = &body
		}
	}
	return ev, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
