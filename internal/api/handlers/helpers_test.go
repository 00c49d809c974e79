package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/rs/zerolog"
)

var (
	ownerUser = &users.User{ID: "owner-1", Email: "owner@example.com", Name: "Olive Owner", Role: auth.RoleEventOwner}
	otherUser = &users.User{ID: "other-1", Email: "other@example.com", Name: "Oscar Other", Role: auth.RoleEventOwner}
	adminUser = &users.User{ID: "admin-1", Email: "admin@example.com", Name: "Ada Admin", Role: auth.RoleAdmin}
)

// memoryStore backs the event and RSVP repositories with maps. The
// (event, email) uniqueness check and insert happen under one lock, as a
// unique index would make them.
type memoryStore struct {
	mu     sync.Mutex
	users  map[string]*users.User
	events map[string]events.Event
	rsvps  []rsvps.RSVP
	clock  time.Time
}

func newMemoryStore() *memoryStore {
	store := &memoryStore{
		users:  map[string]*users.User{},
		events: map[string]events.Event{},
		clock:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, user := range []*users.User{ownerUser, otherUser, adminUser} {
		store.users[user.ID] = user
	}
	return store
}

func (s *memoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memoryStore) withCount(event events.Event) *events.Event {
	for _, row := range s.rsvps {
		if row.EventID == event.ID {
			event.RSVPCount++
		}
	}
	return &event
}

type memoryEvents struct {
	*memoryStore
}

func (m memoryEvents) Create(_ context.Context, params events.CreateParams) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.PublicURL == params.PublicURL {
			return nil, events.ErrPublicURLTaken
		}
	}
	creator := m.users[params.CreatedBy]
	now := m.tick()
	event := events.Event{
		ID:          params.ID,
		Title:       params.Title,
		Description: params.Description,
		Location:    params.Location,
		DateTime:    params.DateTime,
		PublicURL:   params.PublicURL,
		IsActive:    true,
		CreatedBy:   params.CreatedBy,
		Creator:     events.Creator{ID: creator.ID, Name: creator.Name, Email: creator.Email},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.events[event.ID] = event
	return m.withCount(event), nil
}

func (m memoryEvents) GetByID(_ context.Context, id string) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	return m.withCount(event), nil
}

func (m memoryEvents) GetByPublicURL(_ context.Context, publicURL string) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.PublicURL == publicURL {
			return m.withCount(event), nil
		}
	}
	return nil, events.ErrNotFound
}

func (m memoryEvents) LockOwner(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return "", events.ErrNotFound
	}
	return event.CreatedBy, nil
}

func (m memoryEvents) Update(_ context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	if params.Title != nil {
		event.Title = *params.Title
	}
	if params.Description != nil {
		event.Description = clearable(*params.Description)
	}
	if params.Location != nil {
		event.Location = clearable(*params.Location)
	}
	if params.DateTime != nil {
		event.DateTime = *params.DateTime
	}
	event.UpdatedAt = m.tick()
	m.events[id] = event
	return m.withCount(event), nil
}

func (m memoryEvents) SetActive(_ context.Context, id string, active bool) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	event.IsActive = active
	event.UpdatedAt = m.tick()
	m.events[id] = event
	return m.withCount(event), nil
}

func (m memoryEvents) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(m.events, id)
	kept := m.rsvps[:0]
	for _, row := range m.rsvps {
		if row.EventID != id {
			kept = append(kept, row)
		}
	}
	m.rsvps = kept
	return nil
}

func (m memoryEvents) List(_ context.Context, filter events.ListFilter) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []events.Event{}
	for _, event := range m.events {
		if filter.CreatedBy == "" || event.CreatedBy == filter.CreatedBy {
			out = append(out, *m.withCount(event))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m memoryEvents) BeginTx(_ context.Context) (events.Repository, events.TxCommitter, error) {
	return m, noopTx{}, nil
}

type noopTx struct{}

func (noopTx) Commit(context.Context) error   { return nil }
func (noopTx) Rollback(context.Context) error { return nil }

type memoryRSVPs struct {
	*memoryStore
}

func (m memoryRSVPs) Create(_ context.Context, params rsvps.CreateParams) (*rsvps.RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[params.EventID]; !ok {
		return nil, events.ErrNotFound
	}
	for _, row := range m.rsvps {
		if row.EventID == params.EventID && row.Email == params.Email {
			return nil, rsvps.ErrConflict
		}
	}
	row := rsvps.RSVP{
		ID:        params.ID,
		EventID:   params.EventID,
		Name:      params.Name,
		Email:     params.Email,
		Message:   params.Message,
		CreatedAt: m.tick(),
	}
	m.rsvps = append(m.rsvps, row)
	return &row, nil
}

func (m memoryRSVPs) ListByEvent(_ context.Context, eventID string) ([]rsvps.RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []rsvps.RSVP{}
	for _, row := range m.rsvps {
		if row.EventID == eventID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func clearable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// testAPI wires the handlers onto a mux the way the router does, minus the
// middleware stack. Callers pick the identity per request.
type testAPI struct {
	store *memoryStore
	mux   *http.ServeMux
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := newMemoryStore()
	eventService := events.NewService(memoryEvents{store}, audit.Nop(), zerolog.Nop())
	rsvpService := rsvps.NewService(memoryRSVPs{store}, eventService, audit.Nop(), zerolog.Nop())

	eventsHandler := NewEventsHandler(eventService, "test")
	rsvpsHandler := NewRSVPsHandler(rsvpService, "test")
	usersHandler := NewUsersHandler("test")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/profile", usersHandler.Profile)
	mux.HandleFunc("GET /api/v1/events", eventsHandler.List)
	mux.HandleFunc("POST /api/v1/events", eventsHandler.Create)
	mux.HandleFunc("GET /api/v1/public/events/{publicUrl}", eventsHandler.GetPublic)
	mux.HandleFunc("GET /api/v1/events/{id}", eventsHandler.Get)
	mux.HandleFunc("PUT /api/v1/events/{id}", eventsHandler.Update)
	mux.HandleFunc("DELETE /api/v1/events/{id}", eventsHandler.Delete)
	mux.HandleFunc("PUT /api/v1/events/{id}/active", eventsHandler.SetActive)
	mux.HandleFunc("GET /api/v1/events/{id}/rsvps", rsvpsHandler.List)
	mux.HandleFunc("POST /api/v1/events/{id}/rsvps", rsvpsHandler.Create)
	mux.HandleFunc("GET /api/v1/events/{id}/rsvps/export", rsvpsHandler.Export)

	return &testAPI{store: store, mux: mux}
}

func (a *testAPI) do(t *testing.T, user *users.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(middleware.ContextWithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}
