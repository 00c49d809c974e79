package handlers

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

type UsersHandler struct {
	Env string
}

func NewUsersHandler(env string) *UsersHandler {
	return &UsersHandler{Env: env}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile returns the caller as resolved by the auth middleware.
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := middleware.User(r)
	if user == nil {
		problem.FromError(w, r, access.ErrUnauthenticated, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func toUserResponse(user users.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
