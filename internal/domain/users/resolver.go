package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/rs/zerolog"
)

// Resolver maps verified identity tokens to local user records, creating
// the record the first time an identity is seen.
type Resolver struct {
	verifier auth.IdentityVerifier
	repo     Repository
	logger   zerolog.Logger
}

func NewResolver(verifier auth.IdentityVerifier, repo Repository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		repo:     repo,
		logger:   logger.With().Str("component", "users").Logger(),
	}
}

// Resolve verifies token and upserts the matching user. Any verification
// failure is reported as access.ErrUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, access.ErrUnauthenticated
	}
	identity, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", access.ErrUnauthenticated, err)
	}
	return r.ResolveIdentity(ctx, identity)
}

// ResolveIdentity upserts the user for an already verified identity. Email
// and name are refreshed from the identity; an existing role is kept.
func (r *Resolver) ResolveIdentity(ctx context.Context, identity auth.Identity) (*User, error) {
	id := strings.TrimSpace(identity.Subject)
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if id == "" || email == "" {
		return nil, access.ErrUnauthenticated
	}

	user, err := r.repo.Upsert(ctx, UpsertParams{
		ID:          id,
		Email:       email,
		Name:        DisplayName(identity.Name, email),
		InitialRole: DefaultRole,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			r.logger.Warn().Str("user_id", id).Msg("identity email already belongs to another user")
			return nil, err
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// SetRole changes the role of the user registered under email. It is an
// operator action and is not reachable over HTTP.
func (r *Resolver) SetRole(ctx context.Context, email string, role auth.Role) (*User, error) {
	user, err := r.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	updated, err := r.repo.UpdateRole(ctx, user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	r.logger.Info().
		Str("user_id", updated.ID).
		Str("old_role", string(user.Role)).
		Str("new_role", string(updated.Role)).
		Msg("user role changed")
	return updated, nil
}

// DisplayName picks the name shown for a user: the provided name when it is
// non-empty after sanitizing, otherwise the local part of the email.
func DisplayName(name, email string) string {
	if cleaned := sanitize.Text(name); cleaned != "" {
		return cleaned
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
