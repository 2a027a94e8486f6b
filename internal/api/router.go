package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", apiHandler.HealthHandler)

		// Token-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Dataset routes
			r.Post("/datasets", apiHandler.UploadDatasetHandler)
			r.Get("/datasets", apiHandler.ListDatasetsHandler)
			r.Get("/datasets/{datasetID}", apiHandler.GetDatasetHandler)
			r.Delete("/datasets/{datasetID}", apiHandler.DeleteDatasetHandler)

			// Query route
			r.Post("/query", apiHandler.QueryHandler)
		})
	})

	return r
}
