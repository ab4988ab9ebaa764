package api

import (
	"net/http"

	"github.com/testcraft/testcraft/pkg/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRouter initializes the Chi router and defines the API endpoints.
func SetupRouter(api *API, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// --- CORS Configuration ---
	// Permissive options for development; restrict AllowedOrigins for production.
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// --- Standard Middleware Stack ---
	r.Use(corsMiddleware.Handler)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(StructuredRequestLogger(api.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// Basic health check endpoint
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// API v1 Routes (Grouped under /api/v1)
	r.Route("/api/v1", func(r chi.Router) {
		// User stories synced from the tracker
		r.Route("/stories", func(r chi.Router) {
			r.Post("/sync", api.HandleSyncStories) // Pull stories from the tracker
			r.Get("/", api.HandleGetStories)       // List stories for a project
			r.Route("/{storyId}", func(r chi.Router) {
				r.Get("/", api.HandleGetStory)
				r.Post("/suggest", api.HandleSuggest) // LLM review notes
			})
		})

		// Test case generation
		r.Post("/generate", api.HandleGenerate)

		// Catalog of supported test case types
		r.Get("/testtypes", api.HandleGetTestTypes)

		// Generated test cases: listing, review, bulk interchange
		r.Route("/testcases", func(r chi.Router) {
			r.Get("/", api.HandleGetTestCases)
			r.Post("/push", api.HandlePushTestCases) // Enqueue approved cases for tracker sync
			r.Post("/import", api.HandleImportTestCases)
			r.Post("/export", api.HandleExportTestCases)

			r.Route("/{caseId}", func(r chi.Router) {
				r.Get("/", api.HandleGetTestCase)
				r.Delete("/", api.HandleDeleteTestCase)
				r.Post("/approve", api.HandleApproveTestCase)
				r.Post("/reject", api.HandleRejectTestCase)
			})
		})

		// Push queue status
		r.Route("/queues", func(r chi.Router) {
			r.Get("/{project}/status", api.HandleGetQueueStatus)
		})

		// Per-project operator configs
		r.Route("/projects", func(r chi.Router) {
			r.Route("/{project}/config/{kind}", func(r chi.Router) {
				r.Get("/", api.HandleGetProjectConfig)
				r.Put("/", api.HandlePutProjectConfig)
			})
		})
	})

	return r
}
