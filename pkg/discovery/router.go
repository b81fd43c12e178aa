package discovery

import (
	"github.com/go-chi/chi/v5"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/cache"
)

// Router creates a chi.Router for the discovery index API. The cache may be
// nil to disable response caching.
func Router(store *Store, qc *cache.QueryCache) chi.Router {
	r := chi.NewRouter()

	var c queryCache
	if qc != nil {
		c = qc
	}
	r.Get("/index/entries", QueryHandler(store, c))
	r.Get("/index/entries/{artifactId}", GetEntryHandler(store))

	return r
}
