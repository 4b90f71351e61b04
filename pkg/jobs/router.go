package jobs

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the async run API. The known func tells
// the enqueue endpoint which pipeline names exist; nil skips the check.
func Router(store *JobStore, known func(name string) bool) chi.Router {
	r := chi.NewRouter()

	r.Post("/runs", EnqueueJobHandler(store, known))
	r.Get("/runs", ListJobsHandler(store))
	r.Get("/runs/{jobId}", GetJobHandler(store))
	r.Post("/runs/{jobId}:cancel", CancelJobHandler(store))

	return r
}
