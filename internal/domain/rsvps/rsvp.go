package rsvps

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when the email already has an RSVP for the event.
var ErrConflict = errors.New("you have already RSVP'd to this event")

// RSVP is write-once: it is never updated and only disappears together with
// its event.
type RSVP struct {
	ID        string
	EventID   string
	Name      string
	Email     string
	Message   *string
	CreatedAt time.Time
}

type CreateParams struct {
	ID      string
	EventID string
	Name    string
	Email   string
	Message *string
}

// Repository persists RSVPs. Create must rely on the storage uniqueness
// constraint on (event, email) and report violations as ErrConflict, and
// report a missing parent event as events.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*RSVP, error)
	ListByEvent(ctx context.Context, eventID string) ([]RSVP, error)
}
