package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

// GetIntentHandler handles GET /intents/{intentId}
func GetIntentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intentID := chi.URLParam(r, "intentId")
		in, err := store.Get(intentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get intent: %v", err))
			return
		}
		if in == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("intent %q not found", intentID))
			return
		}
		writeJSON(w, http.StatusOK, intentToResponse(in))
	}
}

// ListIntentsHandler handles GET /intents
func ListIntentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			TenantID:   tenancy.TenantIDFromContext(r.Context()),
			SessionID:  r.URL.Query().Get("sessionId"),
			IntentType: r.URL.Query().Get("type"),
			Status:     r.URL.Query().Get("status"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.List(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list intents: %v", err))
			return
		}

		intents := make([]intentResponse, len(records))
		for i := range records {
			intents[i] = intentToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"intents":       intents,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// Canceller cancels an intent. The coordinator satisfies it and additionally
// signals the running collaborator; the Store alone only marks the row.
type Canceller interface {
	Cancel(intentID string) error
}

// CancelIntentHandler handles POST /intents/{intentId}:cancel. When a
// canceller is given, cancellation goes through it so a running execution is
// actually signalled to stop; nil falls back to the store's row-level cancel.
func CancelIntentHandler(store *Store, canceller Canceller) http.HandlerFunc {
	if canceller == nil {
		canceller = store
	}
	return func(w http.ResponseWriter, r *http.Request) {
		intentID := chi.URLParam(r, "intentId")
		if err := canceller.Cancel(intentID); err != nil {
			if errors.Is(err, ErrIllegalStatusChange) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			in, getErr := store.Get(intentID)
			if getErr == nil && in == nil {
				writeError(w, http.StatusNotFound, fmt.Sprintf("intent %q not found", intentID))
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to cancel intent: %v", err))
			return
		}
		in, err := store.Get(intentID)
		if err != nil || in == nil {
			writeError(w, http.StatusInternalServerError, "failed to reload intent")
			return
		}
		writeJSON(w, http.StatusOK, intentToResponse(in))
	}
}

// intentResponse is the JSON shape for one intent execution.
type intentResponse struct {
	IntentID            string         `json:"intent_id"`
	TenantID            string         `json:"tenant_id"`
	SessionID           string         `json:"session_id,omitempty"`
	IntentType          string         `json:"intent_type"`
	Status              Status         `json:"status"`
	TargetArtifactID    string         `json:"target_artifact_id,omitempty"`
	Context             map[string]any `json:"context,omitempty"`
	ExecutionID         string         `json:"execution_id,omitempty"`
	Error               string         `json:"error,omitempty"`
	ProducedArtifactIDs []string       `json:"produced_artifact_ids,omitempty"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func intentToResponse(in *IntentRecord) intentResponse {
	return intentResponse{
		IntentID:            in.IntentID,
		TenantID:            in.TenantID,
		SessionID:           in.SessionID,
		IntentType:          in.IntentType,
		Status:              in.Status,
		TargetArtifactID:    in.TargetArtifactID,
		Context:             in.Context,
		ExecutionID:         in.ExecutionID,
		Error:               in.Error,
		ProducedArtifactIDs: in.ProducedArtifactIDs,
		StartedAt:           in.StartedAt,
		CompletedAt:         in.CompletedAt,
		CreatedAt:           in.CreatedAt,
		UpdatedAt:           in.UpdatedAt,
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
