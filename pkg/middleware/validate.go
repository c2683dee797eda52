package middleware

import (
	"context"
	"net/http"
	"sort"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/validation"
)

// RequestValidator validates a request as a whole. body is the ParsedBody
// annotation.
type RequestValidator func(body any, pathParams, queryParams map[string]string) validation.Result

// Validate runs v and answers 400 VALIDATION_ERROR with details
// {"errors": [...]} when it fails. On success the normalized value becomes
// the ValidatedData annotation.
func Validate(v RequestValidator) Step {
	return FromGuard(GuardFunc("validate", func(_ context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		r := v(ev.ParsedBody(), ev.PathParams, ev.QueryParams)
		if !r.IsValid {
			return Respond(inv.builder().Error(
				"Validation failed",
				http.StatusBadRequest,
				apperrors.CodeValidation,
				map[string]any{"errors": r.Errors},
				inv.CorrelationID,
			)), nil
		}
		return Continue(Annotate(KeyValidatedData, r.Value)), nil
	}))
}

// ValidateBody validates the parsed body as a JSON object against schema.
// A body that is not an object fails every required field.
func ValidateBody(schema map[string]validation.Validator) Step {
	return Validate(func(body any, _, _ map[string]string) validation.Result {
		obj, _ := body.(map[string]any)
		return validation.ValidateObject(obj, schema)
	})
}

// ValidatePath validates path parameters, aggregating every failure into
// details {"errors": {"param": [...]}}.
func ValidatePath(rules map[string]validation.Validator) Step {
	return paramStep("validate-path", "Invalid path parameters", KeyValidatedPath, rules, func(ev *Event) map[string]string {
		return ev.PathParams
	})
}

// ValidateQuery validates query string parameters like ValidatePath.
func ValidateQuery(rules map[string]validation.Validator) Step {
	return paramStep("validate-query", "Invalid query parameters", KeyValidatedQuery, rules, func(ev *Event) map[string]string {
		return ev.QueryParams
	})
}

func paramStep(name, message, key string, rules map[string]validation.Validator, params func(*Event) map[string]string) Step {
	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)

	return FromGuard(GuardFunc(name, func(_ context.Context, inv *Invocation, ev *Event) (Outcome, error) {
		values := params(ev)
		failed := make(map[string][]string)
		validated := make(map[string]any, len(rules))

		for _, n := range names {
			var raw any
			if v, ok := values[n]; ok {
				raw = v
			}
			r := rules[n](raw)
			if !r.IsValid {
				failed[n] = r.Errors
				continue
			}
			if r.Value != nil {
				validated[n] = r.Value
			}
		}

		if len(failed) > 0 {
			return Respond(inv.builder().Error(
				message,
				http.StatusBadRequest,
				apperrors.CodeValidation,
				map[string]any{"errors": failed},
				inv.CorrelationID,
			)), nil
		}
		return Continue(Annotate(key, validated)), nil
	}))
}
