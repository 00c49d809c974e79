package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is an externally verified caller identity. Subject is the stable
// id assigned by the identity provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// IdentityVerifier turns an opaque session token into a verified Identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenFromHeader extracts the bearer token from an Authorization header value.
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
