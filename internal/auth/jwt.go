package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the access tokens issued by Supabase-style auth providers:
// the subject is the user id and profile data sits under user_metadata.
type Claims struct {
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

type UserMetadata struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// JWTVerifier validates HS256 identity tokens. It also mints tokens, which
// is only used by tests and the gentoken tool.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
}

func NewJWTVerifier(secret string, issuer string, audience string, expiry time.Duration) *JWTVerifier {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
		now:      time.Now,
	}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(claims.Email),
		Name:    strings.TrimSpace(claims.UserMetadata.Name),
	}
	if identity.Name == "" {
		identity.Name = strings.TrimSpace(claims.UserMetadata.FullName)
	}
	if identity.Subject == "" || identity.Email == "" {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// Issue signs a token for the given identity.
func (v *JWTVerifier) Issue(identity Identity) (string, error) {
	if identity.Subject == "" || identity.Email == "" {
		return "", ErrInvalidToken
	}

	now := v.now()
	claims := &Claims{
		Email:        identity.Email,
		UserMetadata: UserMetadata{Name: identity.Name},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
