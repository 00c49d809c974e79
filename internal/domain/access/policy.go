// Package access holds the ownership rules shared by every mutating
// operation on events and their RSVPs.
package access

import (
	"errors"

	"github.com/Togather-Foundation/rsvp/internal/auth"
)

var (
	// ErrUnauthenticated means no verified identity accompanied the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the caller is known but lacks rights on the resource.
	ErrForbidden = errors.New("forbidden")
)

// Actor is the resolved caller an authorization decision is made for.
type Actor struct {
	UserID string
	Role   auth.Role
}

// Owned is implemented by resources that record the user who created them.
type Owned interface {
	OwnerID() string
}

// CanModify reports whether actor may update, delete, or export resource:
// the owner and admins may, nobody else.
func CanModify(actor Actor, resource Owned) bool {
	if actor.UserID == "" {
		return false
	}
	return resource.OwnerID() == actor.UserID || actor.Role.IsAdmin()
}

// CanViewAll reports whether actor sees every event in listings rather than
// only its own.
func CanViewAll(actor Actor) bool {
	return actor.UserID != "" && actor.Role.IsAdmin()
}

// RequireModify returns ErrUnauthenticated for an anonymous actor and
// ErrForbidden when CanModify fails.
func RequireModify(actor Actor, resource Owned) error {
	if actor.UserID == "" {
		return ErrUnauthenticated
	}
	if !CanModify(actor, resource) {
		return ErrForbidden
	}
	return nil
}

// Owner adapts a bare owner id to Owned, for checks made before the full
// resource is loaded.
type Owner string

func (o Owner) OwnerID() string { return string(o) }
