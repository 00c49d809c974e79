package users

import (
	"context"
	"errors"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
)

var (
	// ErrNotFound means no matching user is registered.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken means another identity already owns the email address.
	ErrEmailTaken = errors.New("email is already registered to another user")
)

// DefaultRole is assigned to users created on first sign-in.
const DefaultRole = auth.RoleEventOwner

// User is the local record of an externally authenticated identity. ID is
// the identity provider's subject.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      auth.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor returns the authorization view of the user.
func (u User) Actor() access.Actor {
	return access.Actor{UserID: u.ID, Role: u.Role}
}

// UpsertParams carries the identity claims refreshed on every sign-in. Role
// only applies when the row is created.
type UpsertParams struct {
	ID          string
	Email       string
	Name        string
	InitialRole auth.Role
}

// Repository persists users. Emails are unique across users.
type Repository interface {
	Upsert(ctx context.Context, params UpsertParams) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateRole(ctx context.Context, id string, role auth.Role) (*User, error)
}
