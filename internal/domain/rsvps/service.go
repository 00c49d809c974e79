package rsvps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

// EventLookup resolves the event an RSVP belongs to.
type EventLookup interface {
	Get(ctx context.Context, id string) (*events.Event, error)
}

type CreateInput struct {
	Name    string
	Email   string
	Message *string
}

// Row is one exported RSVP, ready for a formatter.
type Row struct {
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// Export is the result of an authorized export: the event it belongs to and
// its RSVPs newest first.
type Export struct {
	Event *events.Event
	Rows  []Row
}

type fieldRules struct {
	Name    string `json:"name" validate:"required,max=200"`
	Message string `json:"message" validate:"max=2000"`
}

type Service struct {
	repo   Repository
	events EventLookup
	audit  *audit.Logger
	logger zerolog.Logger
}

func NewService(repo Repository, eventLookup EventLookup, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventLookup,
		audit:  auditLogger,
		logger: logger.With().Str("component", "rsvps").Logger(),
	}
}

// Create records an RSVP. No identity is required. A second RSVP with the
// same email for the same event fails with ErrConflict.
func (s *Service) Create(ctx context.Context, eventID string, input CreateInput) (*RSVP, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	name := sanitize.Text(input.Name)
	var message *string
	if cleaned := sanitize.OptionalText(input.Message); cleaned != nil && *cleaned != "" {
		message = cleaned
	}
	rules := fieldRules{Name: name}
	if message != nil {
		rules.Message = *message
	}
	var fieldErrs validation.Errors
	if err := validation.Struct(rules); err != nil {
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
	}
	email, err := validation.Email("email", input.Email)
	if err != nil {
		var single *validation.Error
		if !errors.As(err, &single) {
			return nil, err
		}
		fieldErrs = append(fieldErrs, single)
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate rsvp id: %w", err)
	}

	created, err := s.repo.Create(ctx, CreateParams{
		ID:      id,
		EventID: event.ID,
		Name:    name,
		Email:   email,
		Message: message,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.RSVPConflicts.Inc()
			return nil, err
		}
		if errors.Is(err, events.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create rsvp: %w", err)
	}

	metrics.RSVPsCreated.Inc()
	s.logger.Info().Str("event_id", event.ID).Str("rsvp_id", created.ID).Msg("rsvp recorded")
	return created, nil
}

// List returns the RSVPs of an existing event, newest first. It performs no
// authorization; ListForActor is the gated variant used by the API.
func (s *Service) List(ctx context.Context, eventID string) ([]RSVP, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByEvent(ctx, event.ID)
}

// ListForActor returns the RSVPs of an event to its owner or an admin.
func (s *Service) ListForActor(ctx context.Context, actor access.Actor, eventID string) ([]RSVP, error) {
	event, err := s.authorize(ctx, actor, "rsvp.list", eventID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByEvent(ctx, event.ID)
}

// Export returns the RSVP rows of an event to its owner or an admin. It does
// no formatting.
func (s *Service) Export(ctx context.Context, actor access.Actor, eventID string) (*Export, error) {
	event, err := s.authorize(ctx, actor, "rsvp.export", eventID)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	metrics.RSVPExports.Inc()
	s.audit.LogSuccess(ctx, "rsvp.export", actor.UserID, "event", event.ID, map[string]string{
		"rows": fmt.Sprintf("%d", len(list)),
	})
	return &Export{Event: event, Rows: Rows(list)}, nil
}

func (s *Service) authorize(ctx context.Context, actor access.Actor, action string, eventID string) (*events.Event, error) {
	if actor.UserID == "" {
		return nil, access.ErrUnauthenticated
	}
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireModify(actor, event); err != nil {
		metrics.AuthorizationDenied.WithLabelValues(action).Inc()
		s.audit.LogFailure(ctx, action, actor.UserID, "event", event.ID, map[string]string{"reason": "forbidden"})
		return nil, err
	}
	return event, nil
}

// Rows converts RSVPs to export rows, keeping their order.
func Rows(list []RSVP) []Row {
	rows := make([]Row, 0, len(list))
	for _, item := range list {
		row := Row{Name: item.Name, Email: item.Email, CreatedAt: item.CreatedAt}
		if item.Message != nil {
			row.Message = *item.Message
		}
		rows = append(rows, row)
	}
	return rows
}
