package events

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("event not found")
	// ErrPublicURLTaken is returned by Create when the generated slug collides
	// with an existing event.
	ErrPublicURLTaken = errors.New("public url already in use")
)

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusPast     Status = "past"
)

// Creator is the owner summary returned with an event.
type Creator struct {
	ID    string
	Name  string
	Email string
}

type Event struct {
	ID          string
	Title       string
	Description *string
	Location    *string
	DateTime    time.Time
	PublicURL   string
	IsActive    bool
	CreatedBy   string
	Creator     Creator
	// RSVPCount is counted from the rsvps table on every read.
	RSVPCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Event) OwnerID() string {
	return e.CreatedBy
}

// Status derives the lifecycle state from DateTime; it is never stored.
func (e Event) Status(now time.Time) Status {
	if e.DateTime.Before(now) {
		return StatusPast
	}
	return StatusUpcoming
}

type CreateParams struct {
	ID          string
	Title       string
	Description *string
	Location    *string
	DateTime    time.Time
	PublicURL   string
	CreatedBy   string
}

// UpdateParams lists the mutable fields. Nil leaves a field unchanged and a
// pointer to "" clears an optional field.
type UpdateParams struct {
	Title       *string
	Description *string
	Location    *string
	DateTime    *time.Time
}

func (p UpdateParams) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil && p.DateTime == nil
}

type ListFilter struct {
	// CreatedBy restricts results to one owner; empty lists every event.
	CreatedBy string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByPublicURL(ctx context.Context, publicURL string) (*Event, error)
	// LockOwner returns the owner of the event and holds a row lock on it
	// until the surrounding transaction ends.
	LockOwner(ctx context.Context, id string) (string, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Event, error)
	SetActive(ctx context.Context, id string, active bool) (*Event, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]Event, error)
	BeginTx(ctx context.Context) (Repository, TxCommitter, error)
}

type TxCommitter interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
