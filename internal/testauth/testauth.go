// Package testauth mints identity tokens for tests, local development and
// the gentoken tool. It must never be wired into the production server.
//
// Tokens are signed with the same HS256 scheme the server verifies, so a
// token minted with the server's JWT_SECRET is accepted as if it came from
// the auth provider.
package testauth

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
)

// DevSecret matches the JWT_SECRET in the example development config.
const DevSecret = "dev_jwt_secret_change_me_in_production"

type Config struct {
	// Secret signs the tokens. Defaults to DEV_JWT_SECRET, then DevSecret.
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// Authenticator signs tokens for arbitrary identities.
type Authenticator struct {
	issuer *auth.JWTVerifier
}

func New(cfg Config) *Authenticator {
	secret := cfg.Secret
	if secret == "" {
		secret = os.Getenv("DEV_JWT_SECRET")
	}
	if secret == "" {
		secret = DevSecret
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Authenticator{issuer: auth.NewJWTVerifier(secret, cfg.Issuer, cfg.Audience, expiry)}
}

// Token signs a token for the identity. Name may be empty.
func (a *Authenticator) Token(subject, email, name string) (string, error) {
	token, err := a.issuer.Issue(auth.Identity{Subject: subject, Email: email, Name: name})
	if err != nil {
		return "", fmt.Errorf("issue token for %q: %w", subject, err)
	}
	return token, nil
}

// AddAuth sets a bearer token for the identity on req.
func (a *Authenticator) AddAuth(req *http.Request, subject, email, name string) error {
	token, err := a.Token(subject, email, name)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// DevToken signs a token with the development defaults.
func DevToken(subject, email, name string) (string, error) {
	return New(Config{}).Token(subject, email, name)
}
