package session

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the session API.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Post("/sessions", BeginHandler(store))
	r.Get("/sessions/{sessionId}", GetSessionHandler(store))
	r.Post("/sessions/{sessionId}:upgrade", UpgradeHandler(store))
	r.Post("/sessions/{sessionId}:invalidate", InvalidateHandler(store))

	return r
}
