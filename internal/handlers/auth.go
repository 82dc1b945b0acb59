package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/hci-auth/internal/auth"
	"github.com/crucial707/hci-auth/internal/middleware"
	"github.com/crucial707/hci-auth/internal/repo"
)

// ==========================
// Request / Response types
// ==========================
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message  string `json:"message"`
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ProfileResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type RevokeResponse struct {
	TokenVersion int `json:"token_version"`
}

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	Service *auth.Service
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var input CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return input, false
	}
	fields := make(map[string]string)
	if input.Username == "" {
		fields["username"] = "required"
	}
	if input.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return input, false
	}
	return input, true
}

// ==========================
// Register
// ==========================
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.Service.Register(r.Context(), input.Username, input.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateUsername):
		JSONError(w, "username already exists", http.StatusConflict)
		return
	case errors.Is(err, auth.ErrEncoding):
		JSONError(w, "username or password cannot be encoded", http.StatusBadRequest)
		return
	case errors.Is(err, auth.ErrInvalidUsername):
		JSONValidationError(w, "validation failed", map[string]string{"username": "must be 1-80 bytes"}, http.StatusBadRequest)
		return
	default:
		slog.Error("register failed", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message:  "registered",
		ID:       user.ID,
		Username: user.Username,
	})
}

// ==========================
// Login
// ==========================
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	tok, err := h.Service.Login(r.Context(), input.Username, input.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		JSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrCorruptHash):
		// Already logged by the service as a data integrity problem.
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	default:
		slog.Error("login failed", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

// ==========================
// Profile
// ==========================
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{ID: user.ID, Username: user.Username})
}

// ==========================
// Revoke (log out everywhere)
// ==========================
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	v, err := h.Service.RevokeAll(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			JSONError(w, "user not found", http.StatusNotFound)
			return
		}
		slog.Error("revoke failed", "user_id", userID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RevokeResponse{TokenVersion: v})
}
