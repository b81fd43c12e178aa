package artifact

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the artifact API.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Get("/artifacts", ListArtifactsHandler(store))
	r.Get("/artifacts/{artifactId}", GetArtifactHandler(store))
	r.Get("/artifacts/{artifactId}/current", GetCurrentHandler(store))
	r.Get("/artifacts/{artifactId}/versions", ListVersionsHandler(store))
	r.Post("/artifacts/{artifactId}:transition", TransitionHandler(store))

	return r
}
