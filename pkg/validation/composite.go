package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ArrayRules bounds the length of an array and optionally validates each item.
type ArrayRules struct {
	Min  int
	Max  int
	Item Validator
}

// ValidateArray accepts any slice or array. Item errors are prefixed with
// the item's position, e.g. "topics[2]: ...".
func ValidateArray(value any, rules ArrayRules, field string, required bool) Result {
	if value == nil {
		if required {
			return Invalid(requiredMessage(field))
		}
		return Valid(nil)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Invalid(fmt.Sprintf("%s must be an array", label(field)))
	}

	n := rv.Len()
	if required && n == 0 {
		return Invalid(requiredMessage(field))
	}
	var errs []string
	if rules.Min > 0 && n < rules.Min {
		errs = append(errs, fmt.Sprintf("%s must contain at least %d items", label(field), rules.Min))
	}
	if rules.Max > 0 && n > rules.Max {
		errs = append(errs, fmt.Sprintf("%s must contain at most %d items", label(field), rules.Max))
	}

	items := make([]any, 0, n)
	for i := 0; i < n; i++ {
		item := rv.Index(i).Interface()
		if rules.Item == nil {
			items = append(items, item)
			continue
		}
		r := rules.Item(item)
		if !r.IsValid {
			for _, e := range r.Errors {
				errs = append(errs, fmt.Sprintf("%s[%d]: %s", field, i, e))
			}
			continue
		}
		items = append(items, r.Value)
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(items)
}

// ValidateObject runs schema against the fields of value. Field order in the
// error list is sorted so the output is deterministic. The normalized value
// holds every field that passed with a non-nil value.
func ValidateObject(value map[string]any, schema map[string]Validator) Result {
	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var errs []string
	out := make(map[string]any, len(schema))
	for _, f := range fields {
		r := schema[f](value[f])
		if !r.IsValid {
			for _, e := range r.Errors {
				errs = append(errs, fmt.Sprintf("%s: %s", f, e))
			}
			continue
		}
		if r.Value != nil {
			out[f] = r.Value
		}
	}
	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(out)
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	maxCursorLength  = 2048
)

// Pagination is the normalized value produced by ValidatePagination.
type Pagination struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

// ValidatePagination validates the limit and cursor query parameters.
// The default limit only applies when limit is absent; an invalid limit is
// reported rather than replaced.
func ValidatePagination(query map[string]string) Result {
	p := Pagination{Limit: DefaultPageLimit}
	var errs []string

	if raw, ok := query["limit"]; ok && strings.TrimSpace(raw) != "" {
		r := ValidateInteger(raw, NumberRules{Min: Bound(1), Max: Bound(MaxPageLimit)}, "limit", false)
		if r.IsValid {
			p.Limit = int(r.Value.(int64))
		} else {
			errs = append(errs, r.Errors...)
		}
	}

	r := ValidateString(query["cursor"], StringRules{Max: maxCursorLength}, "cursor", false)
	if r.IsValid {
		if s, ok := r.Value.(string); ok {
			p.Cursor = s
		}
	} else {
		errs = append(errs, r.Errors...)
	}

	if len(errs) > 0 {
		return Invalid(errs...)
	}
	return Valid(p)
}

// ValidateStruct validates a struct based on its validation tags.
func ValidateStruct(s any) Result {
	err := validate.Struct(s)
	if err == nil {
		return Valid(s)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Invalid(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return Invalid(msgs...)
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := label(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "email":
		return "Invalid email format"
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(e.Param(), " ", ", "))
	case "dive":
		return fmt.Sprintf("%s contains invalid values", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
