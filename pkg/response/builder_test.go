package response

import (
	"encoding/json"
	"math"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 123_000_000, time.UTC)

func newTestBuilder() *Builder {
	return NewBuilder(WithClock(func() time.Time { return fixedNow }))
}

func TestError(t *testing.T) {
	b := newTestBuilder()

	env := b.Error("Not found", http.StatusNotFound, "NOT_FOUND", nil, "abc")

	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.Equal(t, "abc", env.Headers[HeaderCorrelationID])
	assert.Equal(t, "abc", env.Headers[HeaderRequestID])

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Body), &body))
	assert.Equal(t, map[string]any{
		"error":         map[string]any{"message": "Not found", "code": "NOT_FOUND"},
		"requestId":     "abc",
		"correlationId": "abc",
		"timestamp":     "2024-05-01T12:30:00.123Z",
	}, body)
}

func TestErrorDefaultsAndDetails(t *testing.T) {
	b := newTestBuilder()

	env := b.Error("Validation failed", 0, "", map[string]any{"errors": []string{"x"}}, "c1")
	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)

	var body ErrorBody
	require.NoError(t, json.Unmarshal([]byte(env.Body), &body))
	assert.Empty(t, body.Error.Code)
	assert.Equal(t, map[string]any{"errors": []any{"x"}}, body.Error.Details)
}

func TestSuccess(t *testing.T) {
	b := newTestBuilder()

	t.Run("Should serialize data with standard headers", func(t *testing.T) {
		env := b.Success(map[string]string{"id": "1"}, 0, "c1", nil)

		assert.Equal(t, http.StatusOK, env.StatusCode)
		assert.JSONEq(t, `{"id":"1"}`, env.Body)
		assert.Equal(t, "application/json", env.Headers[HeaderContentType])
		assert.Equal(t, "*", env.Headers[HeaderAllowOrigin])
		assert.Equal(t, "true", env.Headers[HeaderAllowCreds])
	})

	t.Run("Should merge extra headers case-insensitively", func(t *testing.T) {
		env := b.Success(nil, http.StatusCreated, "c1", map[string]string{
			"content-type": "application/hal+json",
			"Location":     "/subscribers/1",
		})

		assert.Equal(t, http.StatusCreated, env.StatusCode)
		assert.Equal(t, "application/hal+json", env.Headers["content-type"])
		assert.NotContains(t, env.Headers, HeaderContentType)
		assert.Equal(t, "/subscribers/1", env.Headers["Location"])
	})

	t.Run("Should return a 500 when data cannot be serialized", func(t *testing.T) {
		env := b.Success(math.Inf(1), http.StatusOK, "c1", nil)

		assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
		assert.Contains(t, env.Body, "INTERNAL_SERVER_ERROR")
	})
}

func TestPaginated(t *testing.T) {
	b := newTestBuilder()

	env := b.Paginated([]string{"a", "b"}, map[string]any{"nextCursor": "xyz"}, "c1")
	assert.JSONEq(t, `{"items":["a","b"],"pagination":{"count":2,"nextCursor":"xyz"}}`, env.Body)

	env = b.Paginated([]string{"a"}, map[string]any{"count": 10}, "c1")
	assert.JSONEq(t, `{"items":["a"],"pagination":{"count":10}}`, env.Body)

	var none []string
	env = b.Paginated(none, nil, "c1")
	assert.JSONEq(t, `{"items":[],"pagination":{"count":0}}`, env.Body)
}

func TestNoContentAndPreflight(t *testing.T) {
	b := newTestBuilder()

	env := b.NoContent("c1")
	assert.Equal(t, http.StatusNoContent, env.StatusCode)
	assert.Empty(t, env.Body)

	env = b.Preflight(600, "c1")
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Empty(t, env.Body)
	assert.Equal(t, "600", env.Headers[HeaderMaxAge])
	assert.Contains(t, env.Headers[HeaderAllowMethods], "OPTIONS")
}

func TestStandardHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{
		"Content-Type":                     "application/json",
		"Access-Control-Allow-Origin":      "*",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Allow-Headers":     "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-Correlation-ID",
		"Access-Control-Allow-Methods":     "GET,POST,PUT,DELETE,OPTIONS",
		"X-Correlation-ID":                 "c",
		"X-Request-ID":                     "c",
	}, newTestBuilder().StandardHeaders("c"))
}

func TestAllowedOrigin(t *testing.T) {
	b := NewBuilder(WithAllowedOrigin("https://app.example.com"))

	assert.Equal(t, "https://app.example.com", b.StandardHeaders("c")[HeaderAllowOrigin])
}

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()

	assert.Regexp(t, regexp.MustCompile(`^\d{13}-[0-9a-f]{12}$`), id)
	assert.NotEqual(t, id, NewCorrelationID())
}
