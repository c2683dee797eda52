// Package validation provides field validators that return a uniform Result
// instead of an error, so callers can aggregate every problem in a request
// before deciding how to respond.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// Result is the outcome of validating a single value or a whole object.
// Value carries the normalized value (trimmed, lower-cased, coerced) and is
// only meaningful when IsValid is true.
type Result struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
	Value   any      `json:"value,omitempty"`
}

// Validator validates a single raw value.
type Validator func(value any) Result

// Valid returns a successful result carrying the normalized value.
func Valid(value any) Result {
	return Result{IsValid: true, Errors: []string{}, Value: value}
}

// Invalid returns a failed result with the given messages.
func Invalid(messages ...string) Result {
	return Result{IsValid: false, Errors: messages}
}

// Message joins the messages into a single string.
func (r Result) Message() string {
	return strings.Join(r.Errors, "; ")
}

func requiredMessage(field string) string {
	return fmt.Sprintf("%s is required", label(field))
}

// label upper-cases the first letter of a field name for messages.
func label(field string) string {
	if field == "" {
		return "Value"
	}
	r := []rune(field)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// isAbsent reports whether value counts as missing: nil or a blank string.
func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if p, ok := value.(*string); ok {
		return p == nil || strings.TrimSpace(*p) == ""
	}
	return false
}

// absent handles the required/optional branch shared by every validator.
// ok is true when value is absent and the caller should return r.
func absent(value any, field string, required bool) (r Result, ok bool) {
	if !isAbsent(value) {
		return Result{}, false
	}
	if required {
		return Invalid(requiredMessage(field)), true
	}
	return Valid(nil), true
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
