// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vrsandeep/catalog-importer/internal/core"
	"github.com/vrsandeep/catalog-importer/internal/importer"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app       *core.App
	db        *sql.DB
	store     *store.Store
	submitter *importer.Submitter
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:       app,
		db:        app.DB(),
		store:     app.Store(),
		submitter: app.Submitter(),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(LimitUploadSize(maxUploadBytes))

			r.Post("/imports", s.handleSubmitImport)
			r.Post("/imports/preview", s.handlePreviewImport)
			r.Post("/stock-imports", s.handleSubmitStockImport)
		})

		r.Get("/imports", s.handleListImports)
		r.Get("/imports/{importID}", s.handleGetImport)
		r.Post("/imports/{importID}/retry", s.handleRetryImport)
		r.Delete("/imports/{importID}", s.handleDeleteImport)

		r.Get("/collections/{collectionID}/import-fields", s.handleGetImportFields)

		// Maintenance job triggers
		r.Route("/admin", func(r chi.Router) {
			r.Get("/jobs/status", s.handleGetAdminJobsStatus)
			r.Post("/jobs/run", s.handleRunAdminJob)
		})

		r.Get("/health", s.handleHealth)
	})

	// WebSocket route
	r.Get("/ws/imports/progress", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
