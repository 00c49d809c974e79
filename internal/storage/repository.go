package storage

import (
	"context"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Users() users.Repository
	Events() events.Repository
	RSVPs() rsvps.Repository

	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
