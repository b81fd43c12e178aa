package coordinator

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the execution API.
func Router(c *Coordinator) chi.Router {
	r := chi.NewRouter()

	r.Post("/executions", SubmitHandler(c))
	r.Get("/executions/{executionId}", StatusHandler(c))

	return r
}
