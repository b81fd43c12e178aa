package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/intent"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

// submitRequest is the body for POST /executions
type submitRequest struct {
	IntentType       string         `json:"intent_type"`
	TargetArtifactID string         `json:"target_artifact_id,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key,omitempty"`
}

// SubmitHandler handles POST /executions. The intent is recorded durably
// before the request returns; execution proceeds asynchronously.
func SubmitHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.IntentType == "" {
			writeError(w, http.StatusBadRequest, "missing intent type")
			return
		}

		tc, _ := tenancy.TenantFromContext(r.Context())
		in := &intent.IntentRecord{
			TenantID:         tc.TenantID,
			SessionID:        tc.SessionID,
			IntentType:       req.IntentType,
			TargetArtifactID: req.TargetArtifactID,
			Context:          dbjson.Map(req.Context),
			IdempotencyKey:   req.IdempotencyKey,
		}

		executionID, err := c.Submit(in)
		if err != nil {
			var unknown *ErrUnknownIntentType
			if errors.As(err, &unknown) {
				writeError(w, http.StatusBadRequest, unknown.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to submit intent: %v", err))
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"intent_id":    in.IntentID,
			"execution_id": executionID,
		})
	}
}

// StatusHandler handles GET /executions/{executionId}. Callers poll this
// endpoint until the status is terminal.
func StatusHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executionID := chi.URLParam(r, "executionId")
		st, err := c.Status(executionID)
		if err != nil {
			if errors.Is(err, ErrExecutionNotFound) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("execution %q not found", executionID))
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get execution status: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, st)
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
