// Package auth validates bearer credentials and describes the caller they
// identify.
package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries any of roles.
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenValidator turns a bearer token into an Identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// TokenValidatorFunc adapts a function to TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) (*Identity, error)

func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
