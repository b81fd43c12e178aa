package intent

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the intent log API. Submission goes
// through the coordinator; this router exposes the log itself. The canceller
// routes cancellation through the coordinator so running executions are
// signalled; nil cancels the row only.
func Router(store *Store, canceller Canceller) chi.Router {
	r := chi.NewRouter()

	r.Get("/intents", ListIntentsHandler(store))
	r.Get("/intents/{intentId}", GetIntentHandler(store))
	r.Post("/intents/{intentId}:cancel", CancelIntentHandler(store, canceller))

	return r
}
