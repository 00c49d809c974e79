package handlers

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

type EventsHandler struct {
	Service *events.Service
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

type createEventRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	DateTime    string  `json:"dateTime"`
}

// updateEventRequest fields left out of the body are not changed.
type updateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	DateTime    *string `json:"dateTime"`
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

type creatorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type eventResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Location    *string         `json:"location"`
	DateTime    time.Time       `json:"dateTime"`
	PublicURL   string          `json:"publicUrl"`
	IsActive    bool            `json:"isActive"`
	CreatedBy   string          `json:"createdBy"`
	Status      events.Status   `json:"status"`
	RSVPCount   int             `json:"rsvpCount"`
	Creator     creatorResponse `json:"creator"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type publicCreatorResponse struct {
	Name string `json:"name"`
}

// publicEventResponse is what anyone holding the share link sees. The
// creator is reduced to a display name.
type publicEventResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description *string               `json:"description"`
	Location    *string               `json:"location"`
	DateTime    time.Time             `json:"dateTime"`
	PublicURL   string                `json:"publicUrl"`
	Status      events.Status         `json:"status"`
	RSVPCount   int                   `json:"rsvpCount"`
	Creator     publicCreatorResponse `json:"creator"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context(), middleware.Actor(r))
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	now := h.Service.Now()
	items := make([]eventResponse, 0, len(list))
	for _, event := range list {
		items = append(items, toEventResponse(event, now))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	created, err := h.Service.Create(r.Context(), middleware.Actor(r), events.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		DateTime:    req.DateTime,
	})
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(*created, h.Service.Now()))
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*event, h.Service.Now()))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		if denied := h.Service.CheckModify(r.Context(), middleware.Actor(r), "event.update", pathParam(r, "id")); denied != nil {
			err = denied
		}
		problem.FromError(w, r, err, h.Env)
		return
	}

	updated, err := h.Service.Update(r.Context(), middleware.Actor(r), pathParam(r, "id"), events.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		DateTime:    req.DateTime,
	})
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*updated, h.Service.Now()))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), middleware.Actor(r), pathParam(r, "id")); err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event deleted successfully"})
}

func (h *EventsHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	err := decodeJSON(r, &req)
	if err == nil && req.IsActive == nil {
		err = validation.NewError("isActive", "is required")
	}
	if err != nil {
		if denied := h.Service.CheckModify(r.Context(), middleware.Actor(r), "event.set_active", pathParam(r, "id")); denied != nil {
			err = denied
		}
		problem.FromError(w, r, err, h.Env)
		return
	}

	updated, err := h.Service.SetActive(r.Context(), middleware.Actor(r), pathParam(r, "id"), *req.IsActive)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*updated, h.Service.Now()))
}

// GetPublic serves the share page data. Inactive events are not found.
func (h *EventsHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.GetByPublicURL(r.Context(), pathParam(r, "publicUrl"))
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, publicEventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		DateTime:    event.DateTime,
		PublicURL:   event.PublicURL,
		Status:      event.Status(h.Service.Now()),
		RSVPCount:   event.RSVPCount,
		Creator:     publicCreatorResponse{Name: event.Creator.Name},
	})
}

func toEventResponse(event events.Event, now time.Time) eventResponse {
	return eventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		DateTime:    event.DateTime,
		PublicURL:   event.PublicURL,
		IsActive:    event.IsActive,
		CreatedBy:   event.CreatedBy,
		Status:      event.Status(now),
		RSVPCount:   event.RSVPCount,
		Creator: creatorResponse{
			ID:    event.Creator.ID,
			Name:  event.Creator.Name,
			Email: event.Creator.Email,
		},
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}
}
