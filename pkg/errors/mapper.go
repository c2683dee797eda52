package errors

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Response codes carried in the error envelope.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeBusinessLogic = "BUSINESS_LOGIC_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeTooLarge      = "REQUEST_TOO_LARGE"
	CodeTimeout       = "REQUEST_TIMEOUT"
	CodeInternal      = "INTERNAL_SERVER_ERROR"
	CodeInvalidJSON   = "INVALID_JSON"
	CodeRateLimited   = "RATE_LIMIT_EXCEEDED"
)

const internalMessage = "Internal server error"

// Mapping is the HTTP projection of an error.
type Mapping struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

type status struct {
	code int
	name string
}

var statuses = map[Kind]status{
	KindValidation:      {http.StatusBadRequest, CodeValidation},
	KindMalformedBody:   {http.StatusBadRequest, CodeValidation},
	KindNotFound:        {http.StatusNotFound, CodeNotFound},
	KindConflict:        {http.StatusConflict, CodeConflict},
	KindUnauthorized:    {http.StatusUnauthorized, CodeUnauthorized},
	KindForbidden:       {http.StatusForbidden, CodeForbidden},
	KindBusinessLogic:   {http.StatusBadRequest, CodeBusinessLogic},
	KindThrottled:       {http.StatusServiceUnavailable, CodeUnavailable},
	KindUnavailable:     {http.StatusServiceUnavailable, CodeUnavailable},
	KindPayloadTooLarge: {http.StatusRequestEntityTooLarge, CodeTooLarge},
	KindTimeout:         {http.StatusRequestTimeout, CodeTimeout},
	KindInternal:        {http.StatusInternalServerError, CodeInternal},
}

// Mapper turns arbitrary errors into a Mapping and logs them.
type Mapper struct {
	logger     *zap.Logger
	production bool
}

// NewMapper creates a mapper. In production, internal error text never
// reaches the response.
func NewMapper(logger *zap.Logger, production bool) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{logger: logger, production: production}
}

// Classify resolves err into an AppError. A classified AppError anywhere in
// the chain wins; otherwise recognised SDK failures are adapted; anything
// else becomes KindInternal.
func Classify(err error) *AppError {
	appErr, ok := As(err)
	if ok && appErr.Kind != KindInternal {
		return appErr
	}
	if adapted, ok := FromAWS(err); ok {
		return adapted
	}
	if ok {
		return appErr
	}
	return &AppError{Kind: KindInternal, Message: err.Error(), Cause: err}
}

// HTTPStatus is the status code Map would assign to err, independent of
// the production flag.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if st, ok := statuses[Classify(err).Kind]; ok {
		return st.code
	}
	return http.StatusInternalServerError
}

// Map is a pure function of err and the production flag. It never panics.
func (m *Mapper) Map(err error) (mapping Mapping) {
	defer func() {
		if r := recover(); r != nil {
			mapping = m.internal(fmt.Sprintf("error classification panicked: %v", r))
		}
	}()

	if err == nil {
		return m.internal("nil error")
	}

	appErr := Classify(err)
	if appErr.Kind == KindInternal {
		return m.internal(appErr.Error())
	}

	st, ok := statuses[appErr.Kind]
	if !ok {
		return m.internal(appErr.Error())
	}
	return Mapping{
		StatusCode: st.code,
		Code:       st.name,
		Message:    appErr.Message,
		Details:    appErr.Details,
	}
}

func (m *Mapper) internal(message string) Mapping {
	if m.production || message == "" {
		message = internalMessage
	}
	return Mapping{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
	}
}

// Handle maps err and emits one structured log line for it. Server-side
// failures are logged at error level, client errors at warn.
func (m *Mapper) Handle(err error, correlationID string) Mapping {
	mapping := m.Map(err)

	fields := []zap.Field{
		zap.String("correlation_id", correlationID),
		zap.Int("status", mapping.StatusCode),
		zap.String("code", mapping.Code),
		zap.Error(err),
	}
	if appErr, ok := As(err); ok {
		fields = append(fields, zap.String("error_type", appErr.Kind.String()))
		if !m.production && appErr.StackTrace != "" {
			fields = append(fields, zap.String("stack_trace", appErr.StackTrace))
		}
	}

	if mapping.StatusCode >= http.StatusInternalServerError {
		m.logger.Error("Request failed", fields...)
	} else {
		m.logger.Warn("Request rejected", fields...)
	}
	return mapping
}
