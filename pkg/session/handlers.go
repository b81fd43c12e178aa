package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// BeginHandler handles POST /sessions: issues a fresh anonymous lease.
func BeginHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := store.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to begin session: %v", err))
			return
		}
		writeJSON(w, http.StatusCreated, sessionToResponse(rec))
	}
}

// GetSessionHandler handles GET /sessions/{sessionId}. Revoked and unknown
// leases are both 404; clients treat that status as an Invalid transition.
func GetSessionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		rec, err := store.Get(sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get session: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, sessionToResponse(rec))
	}
}

// upgradeRequest is the body for POST /sessions/{sessionId}:upgrade
type upgradeRequest struct {
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	Credentials string `json:"credentials,omitempty"`
}

// UpgradeHandler handles POST /sessions/{sessionId}:upgrade
func UpgradeHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")

		var req upgradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.UserID == "" || req.TenantID == "" {
			writeError(w, http.StatusBadRequest, "missing user id or tenant id")
			return
		}

		rec, err := store.Upgrade(sessionID, req.UserID, req.TenantID, req.Credentials)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
			case errors.Is(err, ErrUpgradeConflict):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, ErrInvalidCredentials):
				writeError(w, http.StatusUnauthorized, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to upgrade session: %v", err))
			}
			return
		}
		writeJSON(w, http.StatusOK, sessionToResponse(rec))
	}
}

// InvalidateHandler handles POST /sessions/{sessionId}:invalidate.
// Revocation is server-authoritative; clients discover it on their next
// session-scoped call.
func InvalidateHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		if err := store.Invalidate(sessionID); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to invalidate session: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// sessionResponse is the JSON shape for one session lease.
type sessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	TenantID  string    `json:"tenant_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func sessionToResponse(rec *SessionRecord) sessionResponse {
	return sessionResponse{
		SessionID: rec.SessionID,
		Status:    rec.Status,
		TenantID:  rec.TenantID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
