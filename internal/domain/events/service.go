package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

// maxSlugAttempts bounds retries when a freshly generated public slug
// collides with an existing one.
const maxSlugAttempts = 3

// CreateInput is the raw input for a new event. DateTime accepts ISO 8601
// or a natural-language date.
type CreateInput struct {
	Title       string
	Description *string
	Location    *string
	DateTime    string
}

// UpdateInput carries a partial update; nil fields are left unchanged and
// an empty Description or Location clears it.
type UpdateInput struct {
	Title       *string
	Description *string
	Location    *string
	DateTime    *string
}

type fieldRules struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Location    string `json:"location" validate:"max=500"`
}

type Service struct {
	repo   Repository
	audit  *audit.Logger
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  auditLogger,
		logger: logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// Now is the reference time used for Upcoming/Past classification.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Create(ctx context.Context, actor access.Actor, input CreateInput) (*Event, error) {
	if actor.UserID == "" {
		return nil, access.ErrUnauthenticated
	}

	title := sanitize.Text(input.Title)
	description := optionalText(input.Description)
	location := optionalText(input.Location)
	if err := validation.Struct(fieldRules{Title: title, Description: deref(description), Location: deref(location)}); err != nil {
		return nil, err
	}
	dateTime, err := validation.DateTime("dateTime", input.DateTime, s.now())
	if err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	var created *Event
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug, err := ids.NewPublicSlug()
		if err != nil {
			return nil, fmt.Errorf("generate public url: %w", err)
		}
		created, err = s.repo.Create(ctx, CreateParams{
			ID:          id,
			Title:       title,
			Description: description,
			Location:    location,
			DateTime:    dateTime,
			PublicURL:   slug,
			CreatedBy:   actor.UserID,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrPublicURLTaken) || attempt == maxSlugAttempts {
			return nil, fmt.Errorf("create event: %w", err)
		}
		s.logger.Warn().Int("attempt", attempt).Msg("public url collision, regenerating")
	}

	metrics.EventsCreated.Inc()
	s.audit.LogSuccess(ctx, "event.create", actor.UserID, "event", created.ID, nil)
	return created, nil
}

// Get returns an event by id. Malformed ids are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	if err := ids.ValidateULID(id); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, ids.NormalizeULID(id))
}

// GetByPublicURL returns an active event by its share slug. Inactive and
// unknown slugs both yield ErrNotFound.
func (s *Service) GetByPublicURL(ctx context.Context, publicURL string) (*Event, error) {
	slug := strings.ToLower(strings.TrimSpace(publicURL))
	if err := ids.ValidatePublicSlug(slug); err != nil {
		return nil, ErrNotFound
	}
	event, err := s.repo.GetByPublicURL(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, ErrNotFound
	}
	return event, nil
}

// List returns every event for admins and the caller's own events for
// everyone else, newest first.
func (s *Service) List(ctx context.Context, actor access.Actor) ([]Event, error) {
	if actor.UserID == "" {
		return nil, access.ErrUnauthenticated
	}
	filter := ListFilter{CreatedBy: actor.UserID}
	if access.CanViewAll(actor) {
		filter.CreatedBy = ""
	}
	return s.repo.List(ctx, filter)
}

// Update applies a partial update. ErrNotFound and ErrForbidden take
// precedence over validation errors in the input.
func (s *Service) Update(ctx context.Context, actor access.Actor, id string, input UpdateInput) (*Event, error) {
	if actor.UserID == "" {
		return nil, access.ErrUnauthenticated
	}
	params, invalid := s.updateParams(input)

	var updated *Event
	err := s.modify(ctx, actor, "event.update", id, func(ctx context.Context, repo Repository, id string) error {
		if invalid != nil {
			return invalid
		}
		var err error
		if params.Empty() {
			updated, err = repo.GetByID(ctx, id)
		} else {
			updated, err = repo.Update(ctx, id, params)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetActive toggles whether the event is reachable through its public URL.
func (s *Service) SetActive(ctx context.Context, actor access.Actor, id string, active bool) (*Event, error) {
	if actor.UserID == "" {
		return nil, access.ErrUnauthenticated
	}
	var updated *Event
	err := s.modify(ctx, actor, "event.set_active", id, func(ctx context.Context, repo Repository, id string) error {
		var err error
		updated, err = repo.SetActive(ctx, id, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the event; its RSVPs go with it.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id string) error {
	if actor.UserID == "" {
		return access.ErrUnauthenticated
	}
	err := s.modify(ctx, actor, "event.delete", id, func(ctx context.Context, repo Repository, id string) error {
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	metrics.EventsDeleted.Inc()
	return nil
}

// modify runs fn in a transaction after locking the event row and checking
// the ownership policy, so the check and the write see the same owner.
func (s *Service) modify(ctx context.Context, actor access.Actor, action string, id string, fn func(context.Context, Repository, string) error) error {
	if err := ids.ValidateULID(id); err != nil {
		return ErrNotFound
	}
	id = ids.NormalizeULID(id)

	txRepo, tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	owner, err := txRepo.LockOwner(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireModify(ctx, actor, action, id, owner); err != nil {
		return err
	}

	if err := fn(ctx, txRepo, id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	details := map[string]string{}
	if owner != actor.UserID {
		details["owner"] = owner
	}
	s.audit.Log(ctx, audit.Entry{
		Action:       action,
		Actor:        actor.UserID,
		ActorRole:    string(actor.Role),
		ResourceType: "event",
		ResourceID:   id,
		Status:       audit.StatusSuccess,
		Details:      details,
	})
	return nil
}

// CheckModify returns the error a modification of event id by actor would
// fail with, ignoring its input. Handlers call it when the request body
// cannot be decoded.
func (s *Service) CheckModify(ctx context.Context, actor access.Actor, action string, id string) error {
	if actor.UserID == "" {
		return access.ErrUnauthenticated
	}
	if err := ids.ValidateULID(id); err != nil {
		return ErrNotFound
	}
	id = ids.NormalizeULID(id)
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.requireModify(ctx, actor, action, id, event.CreatedBy)
}

func (s *Service) requireModify(ctx context.Context, actor access.Actor, action string, id string, owner string) error {
	if err := access.RequireModify(actor, access.Owner(owner)); err != nil {
		metrics.AuthorizationDenied.WithLabelValues(action).Inc()
		s.audit.LogFailure(ctx, action, actor.UserID, "event", id, map[string]string{"reason": "forbidden"})
		return err
	}
	return nil
}

func (s *Service) updateParams(input UpdateInput) (UpdateParams, error) {
	var params UpdateParams
	rules := fieldRules{Title: "placeholder"}

	if input.Title != nil {
		title := sanitize.Text(*input.Title)
		params.Title = &title
		rules.Title = title
	}
	if input.Description != nil {
		params.Description = optionalText(input.Description)
		rules.Description = deref(params.Description)
		if params.Description == nil {
			params.Description = new(string)
		}
	}
	if input.Location != nil {
		params.Location = optionalText(input.Location)
		rules.Location = deref(params.Location)
		if params.Location == nil {
			params.Location = new(string)
		}
	}
	if err := validation.Struct(rules); err != nil {
		return UpdateParams{}, err
	}
	if input.DateTime != nil {
		dateTime, err := validation.DateTime("dateTime", *input.DateTime, s.now())
		if err != nil {
			return UpdateParams{}, err
		}
		params.DateTime = &dateTime
	}
	return params, nil
}

// optionalText sanitizes an optional field, mapping blank values to nil.
func optionalText(value *string) *string {
	cleaned := sanitize.OptionalText(value)
	if cleaned == nil || *cleaned == "" {
		return nil
	}
	return cleaned
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
