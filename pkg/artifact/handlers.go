package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

// GetArtifactHandler handles GET /artifacts/{artifactId}
func GetArtifactHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifactID := chi.URLParam(r, "artifactId")
		if artifactID == "" {
			writeError(w, http.StatusBadRequest, "missing artifact ID")
			return
		}

		a, err := store.Get(artifactID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get artifact: %v", err))
			return
		}
		if a == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %q not found", artifactID))
			return
		}

		writeJSON(w, http.StatusOK, artifactToResponse(a))
	}
}

// GetCurrentHandler handles GET /artifacts/{artifactId}/current
// The id may be any version in a chain; the response is the chain's head.
func GetCurrentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifactID := chi.URLParam(r, "artifactId")

		a, err := store.GetCurrent(artifactID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resolve current version: %v", err))
			return
		}
		if a == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %q not found", artifactID))
			return
		}

		writeJSON(w, http.StatusOK, artifactToResponse(a))
	}
}

// ListVersionsHandler handles GET /artifacts/{artifactId}/versions
func ListVersionsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifactID := chi.URLParam(r, "artifactId")

		records, err := store.ListVersions(artifactID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %q not found", artifactID))
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list versions: %v", err))
			return
		}

		versions := make([]artifactResponse, len(records))
		for i := range records {
			versions[i] = artifactToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
	}
}

// ListArtifactsHandler handles GET /artifacts
// Query params: type, state, current, pageSize, pageToken. Tenant comes from
// the request context.
func ListArtifactsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			TenantID:     tenancy.TenantIDFromContext(r.Context()),
			ArtifactType: r.URL.Query().Get("type"),
			State:        r.URL.Query().Get("state"),
		}
		if v := r.URL.Query().Get("current"); v != "" {
			filter.CurrentOnly, _ = strconv.ParseBool(v)
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
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list artifacts: %v", err))
			return
		}

		artifacts := make([]artifactResponse, len(records))
		for i := range records {
			artifacts[i] = artifactToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"artifacts":     artifacts,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// transitionRequest is the body for POST /artifacts/{artifactId}:transition
type transitionRequest struct {
	State string `json:"state"`
	Actor string `json:"actor,omitempty"`
}

// TransitionHandler handles POST /artifacts/{artifactId}:transition
func TransitionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifactID := chi.URLParam(r, "artifactId")

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.State == "" {
			writeError(w, http.StatusBadRequest, "missing target state")
			return
		}

		a, err := store.TransitionLifecycle(artifactID, LifecycleState(req.State), req.Actor)
		if err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				writeJSON(w, http.StatusConflict, te)
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to transition artifact: %v", err))
			return
		}
		if a == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %q not found", artifactID))
			return
		}

		writeJSON(w, http.StatusOK, artifactToResponse(a))
	}
}

// artifactResponse is the API representation of an artifact version.
type artifactResponse struct {
	ArtifactID        string         `json:"artifactId"`
	TenantID          string         `json:"tenantId"`
	SessionID         string         `json:"sessionId,omitempty"`
	SolutionID        string         `json:"solutionId,omitempty"`
	ExecutionID       string         `json:"executionId,omitempty"`
	ArtifactType      string         `json:"artifactType"`
	LifecycleState    string         `json:"lifecycleState"`
	Owner             string         `json:"owner"`
	Purpose           string         `json:"purpose"`
	PayloadReference  string         `json:"payloadReference,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Regenerable       bool           `json:"regenerable"`
	RetentionPolicy   string         `json:"retentionPolicy,omitempty"`
	Version           int            `json:"version"`
	ParentArtifactID  string         `json:"parentArtifactId,omitempty"`
	RootArtifactID    string         `json:"rootArtifactId"`
	IsCurrentVersion  bool           `json:"isCurrentVersion"`
	SourceArtifactIDs []string       `json:"sourceArtifactIds,omitempty"`
	CreatedAt         string         `json:"createdAt"`
	UpdatedAt         string         `json:"updatedAt"`
}

func artifactToResponse(a *ArtifactRecord) artifactResponse {
	return artifactResponse{
		ArtifactID:        a.ArtifactID,
		TenantID:          a.TenantID,
		SessionID:         a.SessionID,
		SolutionID:        a.SolutionID,
		ExecutionID:       a.ExecutionID,
		ArtifactType:      a.ArtifactType,
		LifecycleState:    string(a.LifecycleState),
		Owner:             string(a.Owner),
		Purpose:           string(a.Purpose),
		PayloadReference:  a.PayloadReference,
		Metadata:          a.Metadata,
		Regenerable:       a.Regenerable,
		RetentionPolicy:   a.RetentionPolicy,
		Version:           a.Version,
		ParentArtifactID:  a.ParentArtifactID,
		RootArtifactID:    a.RootArtifactID,
		IsCurrentVersion:  a.IsCurrentVersion,
		SourceArtifactIDs: a.SourceArtifactIDs,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
