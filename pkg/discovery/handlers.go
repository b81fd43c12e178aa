package discovery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/cache"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

// QueryHandler handles GET /index/entries. Responses are served from the
// query cache when one is configured; entries may lag the artifact store.
func QueryHandler(store *Store, qc queryCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenancy.TenantIDFromContext(r.Context())
		filter := QueryFilter{
			TenantID:     tenantID,
			ArtifactType: r.URL.Query().Get("type"),
			State:        r.URL.Query().Get("state"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		cacheKey := cache.Key(tenantID, fmt.Sprintf("index:%s:%s:%d:%s",
			filter.ArtifactType, filter.State, pageSize, pageToken))
		if qc != nil {
			if cached, ok := qc.Get(cacheKey); ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write(cached)
				return
			}
		}

		entries, nextToken, total, err := store.Query(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query index: %v", err))
			return
		}

		resp := map[string]any{
			"entries":       entriesToResponse(entries),
			"nextPageToken": nextToken,
			"totalSize":     total,
		}
		body, err := json.Marshal(resp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		if qc != nil {
			qc.Set(cacheKey, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// GetEntryHandler handles GET /index/entries/{artifactId}.
func GetEntryHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifactID := chi.URLParam(r, "artifactId")
		entry, err := store.Get(artifactID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get index entry: %v", err))
			return
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %q not indexed", artifactID))
			return
		}
		writeJSON(w, http.StatusOK, entryToResponse(entry))
	}
}

// queryCache is the subset of cache.QueryCache the handlers use.
type queryCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type entryResponse struct {
	ArtifactID         string         `json:"artifact_id"`
	TenantID           string         `json:"tenant_id"`
	ArtifactType       string         `json:"artifact_type"`
	LifecycleState     IndexState     `json:"lifecycle_state"`
	SemanticDescriptor map[string]any `json:"semantic_descriptor,omitempty"`
	ProducedBy         map[string]any `json:"produced_by,omitempty"`
	Lineage            map[string]any `json:"lineage,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func entryToResponse(e *IndexEntry) entryResponse {
	return entryResponse{
		ArtifactID:         e.ArtifactID,
		TenantID:           e.TenantID,
		ArtifactType:       e.ArtifactType,
		LifecycleState:     e.LifecycleState,
		SemanticDescriptor: e.SemanticDescriptor,
		ProducedBy:         e.ProducedBy,
		Lineage:            e.Lineage,
		UpdatedAt:          e.UpdatedAt,
	}
}

func entriesToResponse(entries []IndexEntry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i := range entries {
		out[i] = entryToResponse(&entries[i])
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
