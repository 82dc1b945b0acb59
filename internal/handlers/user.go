package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/crucial707/hci-auth/internal/models"
)

// UserLister is the read side of the user store used by the listing endpoint.
type UserLister interface {
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Count(ctx context.Context) (int, error)
}

// ==========================
// UserHandler
// ==========================
type UserHandler struct {
	Repo UserLister
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// UserListResponse is one page of users. Password hashes never leave the store.
type UserListResponse struct {
	Items  []models.User `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ==========================
// List Users
// ==========================
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = min(val, maxListLimit)
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}
	users, err := h.Repo.List(r.Context(), limit, offset)
	if err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	total, err := h.Repo.Count(r.Context())
	if err != nil {
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	writeJSON(w, http.StatusOK, UserListResponse{Items: users, Total: total, Limit: limit, Offset: offset})
}
