package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/export"
	"github.com/rs/zerolog"
)

type RSVPsHandler struct {
	Service *rsvps.Service
	Env     string
}

func NewRSVPsHandler(service *rsvps.Service, env string) *RSVPsHandler {
	return &RSVPsHandler{Service: service, Env: env}
}

type createRSVPRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Message *string `json:"message"`
}

type rsvpResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   *string   `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Create accepts an RSVP from anyone who knows the event id.
func (h *RSVPsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRSVPRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	created, err := h.Service.Create(r.Context(), pathParam(r, "id"), rsvps.CreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toRSVPResponse(*created))
}

func (h *RSVPsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListForActor(r.Context(), middleware.Actor(r), pathParam(r, "id"))
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	items := make([]rsvpResponse, 0, len(list))
	for _, item := range list {
		items = append(items, toRSVPResponse(item))
	}
	writeJSON(w, http.StatusOK, items)
}

// Export streams the event's RSVPs as a CSV attachment.
func (h *RSVPsHandler) Export(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Export(r.Context(), middleware.Actor(r), pathParam(r, "id"))
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(result.Event.Title)))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, result.Rows); err != nil {
		// Headers are gone; all that is left is to log.
		zerolog.Ctx(r.Context()).Error().Err(err).Str("event_id", result.Event.ID).Msg("write rsvp export")
	}
}

func toRSVPResponse(item rsvps.RSVP) rsvpResponse {
	return rsvpResponse{
		ID:        item.ID,
		EventID:   item.EventID,
		Name:      item.Name,
		Email:     item.Email,
		Message:   item.Message,
		CreatedAt: item.CreatedAt,
	}
}
