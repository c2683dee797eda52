package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// StringRules bounds a string by rune length and an optional pattern.
// Zero values disable the corresponding check.
type StringRules struct {
	Min     int
	Max     int
	Pattern *regexp.Regexp
}

// NumberRules bounds a number. Nil bounds are not checked.
type NumberRules struct {
	Min *float64
	Max *float64
}

// Bound is a convenience for building NumberRules literals.
func Bound(v float64) *float64 { return &v }

// ValidateString trims value and checks it against rules.
func ValidateString(value any, rules StringRules, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	s, ok := asString(value)
	if !ok {
		return Invalid(fmt.Sprintf("%s must be a string", label(field)))
	}
	s = strings.TrimSpace(s)

	var errs []string
	n := utf8.RuneCountInString(s)
	if rules.Min > 0 && n < rules.Min {
		errs = append(errs, fmt.Sprintf("%s must be at least %d characters", label(field), rules.Min))
	}
	if rules.Max > 0 && n > rules.Max {
		errs = append(errs, fmt.Sprintf("%s must be at most %d characters", label(field), rules.Max))
	}
	if rules.Pattern != nil && !rules.Pattern.MatchString(s) {
		errs = append(errs, fmt.Sprintf("%s has an invalid format", label(field)))
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(s)
}

// ValidateEmail trims and lower-cases value before checking its format.
func ValidateEmail(value any, field string, required bool) Result {
	return validateTag(value, field, required, "email", "Invalid email format", strings.ToLower)
}

// ValidateUUID accepts any RFC 4122 UUID and normalizes it to lower case.
func ValidateUUID(value any, field string, required bool) Result {
	return validateTag(value, field, required, "uuid", fmt.Sprintf("%s must be a valid UUID", label(field)), strings.ToLower)
}

// ValidateURL checks for an absolute URL.
func ValidateURL(value any, field string, required bool) Result {
	return validateTag(value, field, required, "url", fmt.Sprintf("%s must be a valid URL", label(field)), nil)
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// ValidatePhone strips common separators and checks for an E.164 number.
func ValidatePhone(value any, field string, required bool) Result {
	return validateTag(value, field, required, "e164", fmt.Sprintf("%s must be a valid phone number", label(field)), phoneSeparators.Replace)
}

func validateTag(value any, field string, required bool, tag, message string, normalize func(string) string) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	s, ok := asString(value)
	if !ok {
		return Invalid(fmt.Sprintf("%s must be a string", label(field)))
	}
	s = strings.TrimSpace(s)
	if normalize != nil {
		s = normalize(s)
	}
	if err := validate.Var(s, tag); err != nil {
		return Invalid(message)
	}
	return Valid(s)
}

// ValidateNumber accepts numbers and numeric strings and coerces them to float64.
func ValidateNumber(value any, rules NumberRules, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	f, ok := toFloat(value)
	if !ok {
		return Invalid(fmt.Sprintf("%s must be a number", label(field)))
	}
	if errs := checkBounds(f, rules, field); len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(f)
}

// ValidateInteger is ValidateNumber restricted to integral values. The
// normalized value is an int64.
func ValidateInteger(value any, rules NumberRules, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	f, ok := toFloat(value)
	if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return Invalid(fmt.Sprintf("%s must be an integer", label(field)))
	}
	if errs := checkBounds(f, rules, field); len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(int64(f))
}

func checkBounds(f float64, rules NumberRules, field string) []string {
	var errs []string
	if rules.Min != nil && f < *rules.Min {
		errs = append(errs, fmt.Sprintf("%s must be at least %s", label(field), formatNumber(*rules.Min)))
	}
	if rules.Max != nil && f > *rules.Max {
		errs = append(errs, fmt.Sprintf("%s must be at most %s", label(field), formatNumber(*rules.Max)))
	}
	return errs
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ValidateBoolean accepts booleans and the strings "true" and "false".
func ValidateBoolean(value any, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	switch v := value.(type) {
	case bool:
		return Valid(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return Valid(true)
		case "false":
			return Valid(false)
		}
	}
	return Invalid(fmt.Sprintf("%s must be a boolean", label(field)))
}

// ValidateEnum requires value to be one of allowed, compared exactly.
func ValidateEnum(value any, allowed []string, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	s, ok := asString(value)
	if ok {
		s = strings.TrimSpace(s)
		for _, a := range allowed {
			if s == a {
				return Valid(s)
			}
		}
	}
	return Invalid(fmt.Sprintf("%s must be one of: %s", label(field), strings.Join(allowed, ", ")))
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateOnly}

// ValidateDate accepts RFC 3339 timestamps and plain dates. The normalized
// value is a time.Time in UTC.
func ValidateDate(value any, field string, required bool) Result {
	if r, ok := absent(value, field, required); ok {
		return r
	}
	if t, ok := value.(time.Time); ok {
		return Valid(t.UTC())
	}
	s, ok := asString(value)
	if ok {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Valid(t.UTC())
			}
		}
	}
	return Invalid(fmt.Sprintf("%s must be a valid date", label(field)))
}

// String binds ValidateString into a Validator.
func String(rules StringRules, field string, required bool) Validator {
	return func(v any) Result { return ValidateString(v, rules, field, required) }
}

// Email binds ValidateEmail into a Validator.
func Email(field string, required bool) Validator {
	return func(v any) Result { return ValidateEmail(v, field, required) }
}

// UUID binds ValidateUUID into a Validator.
func UUID(field string, required bool) Validator {
	return func(v any) Result { return ValidateUUID(v, field, required) }
}

// URL binds ValidateURL into a Validator.
func URL(field string, required bool) Validator {
	return func(v any) Result { return ValidateURL(v, field, required) }
}

// Phone binds ValidatePhone into a Validator.
func Phone(field string, required bool) Validator {
	return func(v any) Result { return ValidatePhone(v, field, required) }
}

// Number binds ValidateNumber into a Validator.
func Number(rules NumberRules, field string, required bool) Validator {
	return func(v any) Result { return ValidateNumber(v, rules, field, required) }
}

// Integer binds ValidateInteger into a Validator.
func Integer(rules NumberRules, field string, required bool) Validator {
	return func(v any) Result { return ValidateInteger(v, rules, field, required) }
}

// Boolean binds ValidateBoolean into a Validator.
func Boolean(field string, required bool) Validator {
	return func(v any) Result { return ValidateBoolean(v, field, required) }
}

// Enum binds ValidateEnum into a Validator.
func Enum(allowed []string, field string, required bool) Validator {
	return func(v any) Result { return ValidateEnum(v, allowed, field, required) }
}

// Date binds ValidateDate into a Validator.
func Date(field string, required bool) Validator {
	return func(v any) Result { return ValidateDate(v, field, required) }
}
